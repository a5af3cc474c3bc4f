// Package store provides Badger DB-backed storage for monitoring data points.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/jamesainslie/perftune/pkg/perftune/logging"
)

// Key prefixes for different data types
const (
	prefixPoint = "p:" // Data points, ordered by time
	prefixMeta  = "m:" // Metadata (schema)
)

// DataPoint is a single labelled measurement.
type DataPoint struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Value float64   `json:"value"`
	Units string    `json:"units"`
	Time  time.Time `json:"time"`
}

// Store is the data point storage backed by Badger DB.
type Store struct {
	db  *badger.DB
	log *logging.Logger
	now func() time.Time
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, log: logging.Get("store"), now: time.Now}
	if err := s.checkSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// pointKey is prefix, 8-byte big-endian unix nanos, then the 16 uuid bytes,
// so lexical key order is time order.
func pointKey(t time.Time, id uuid.UUID) []byte {
	key := make([]byte, 0, len(prefixPoint)+8+16)
	key = append(key, prefixPoint...)
	key = binary.BigEndian.AppendUint64(key, uint64(t.UnixNano()))
	return append(key, id[:]...)
}

// timeKey is the smallest point key at or after t.
func timeKey(t time.Time) []byte {
	key := make([]byte, 0, len(prefixPoint)+8)
	key = append(key, prefixPoint...)
	return binary.BigEndian.AppendUint64(key, uint64(t.UnixNano()))
}

// CollectDataPoint records a measurement stamped with the current time.
// It reports whether the point was stored; failures are logged.
func (s *Store) CollectDataPoint(label string, value float64, units string) bool {
	if _, err := s.Record(label, value, units); err != nil {
		s.log.Warn("data point dropped", "label", label, "error", err)
		return false
	}
	return true
}

// Record stores a measurement and returns it.
func (s *Store) Record(label string, value float64, units string) (DataPoint, error) {
	if label == "" {
		return DataPoint{}, fmt.Errorf("data point label is empty")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return DataPoint{}, fmt.Errorf("data point %s has non-finite value", label)
	}

	id := uuid.New()
	p := DataPoint{
		ID:    id.String(),
		Label: label,
		Value: value,
		Units: units,
		Time:  s.now().UTC(),
	}
	data, err := json.Marshal(p)
	if err != nil {
		return DataPoint{}, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pointKey(p.Time, id), data)
	})
	if err != nil {
		return DataPoint{}, err
	}
	return p, nil
}

// Recent returns up to limit points, newest first. A non-positive limit
// returns every point.
func (s *Store) Recent(limit int) ([]DataPoint, error) {
	var results []DataPoint

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPoint)
		// Seek past every point key when iterating backwards.
		start := append([]byte(prefixPoint), 0xff)
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}
			p, err := decode(it.Item())
			if err != nil {
				return err
			}
			results = append(results, p)
		}
		return nil
	})

	return results, err
}

// Since returns every point recorded at or after t, oldest first.
func (s *Store) Since(t time.Time) ([]DataPoint, error) {
	var results []DataPoint

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPoint)
		for it.Seek(timeKey(t)); it.ValidForPrefix(prefix); it.Next() {
			p, err := decode(it.Item())
			if err != nil {
				return err
			}
			results = append(results, p)
		}
		return nil
	})

	return results, err
}

// Count returns the number of stored points.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPoint)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Prune deletes points recorded before cutoff and returns how many.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPoint)
		end := timeKey(cutoff)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if bytes.Compare(key, end) >= 0 {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func decode(item *badger.Item) (DataPoint, error) {
	var p DataPoint
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	})
	return p, err
}
