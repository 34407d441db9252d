//go:build !linux

package gpio

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns ErrUnsupported on non-Linux platforms.
func NewRealReader(chipName string, pins []Pin) (*RealReader, error) {
	return nil, ErrUnsupported
}

func (r *RealReader) Read() (map[int]bool, error) {
	return nil, ErrUnsupported
}

func (r *RealReader) Close() error {
	return nil
}
