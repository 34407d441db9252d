package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted levels. Each Read
// consumes the next sample; the last sample repeats once they run out.
type FakeReader struct {
	mu      sync.Mutex
	Samples []map[int]bool
	index   int
	reads   int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

func NewFakeReader(samples ...map[int]bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

func (f *FakeReader) Read() (map[int]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++

	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	out := make(map[int]bool, len(sample))
	for k, v := range sample {
		out[k] = v
	}
	return out, nil
}

// Reads reports how many times Read was called.
func (f *FakeReader) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
