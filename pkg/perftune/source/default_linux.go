//go:build linux

package source

// Default returns the /proc based reader.
func Default() MetricSource {
	return NewProcSource()
}
