//go:build !linux

package source

// Default returns the gopsutil based reader.
func Default() MetricSource {
	return NewPortableSource()
}
