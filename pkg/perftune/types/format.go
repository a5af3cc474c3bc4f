package types

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count in SI units ("1.2 GB").
func FormatBytes(n uint64) string {
	return humanize.Bytes(n)
}

// FormatPercent renders a percentage with one decimal.
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// FormatUsage renders a triggering value in the units of its resource.
func FormatUsage(t BottleneckType, v float64) string {
	switch t {
	case CPU, Memory:
		return FormatPercent(v)
	default:
		if v < 0 {
			v = 0
		}
		return FormatBytes(uint64(v))
	}
}
