package store

import (
	"fmt"
	"sync"
)

// MemFlash is an in-memory flash block, used by the simulator and tests.
type MemFlash struct {
	mu     sync.Mutex
	block  [BlockSize]byte
	erases int
	writes int
}

// NewMemFlash returns an erased block.
func NewMemFlash() *MemFlash {
	f := &MemFlash{}
	for i := range f.block {
		f.block[i] = erased
	}
	return f
}

func (f *MemFlash) Erase() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.block {
		f.block[i] = erased
	}
	f.erases++
	return nil
}

func (f *MemFlash) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > BlockSize {
		return fmt.Errorf("write %d bytes at %d: %w", len(data), offset, ErrOutOfRange)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range data {
		f.block[offset+i] &= v
	}
	f.writes++
	return nil
}

func (f *MemFlash) Read(offset int) (byte, error) {
	if offset < 0 || offset >= BlockSize {
		return 0, fmt.Errorf("read at %d: %w", offset, ErrOutOfRange)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block[offset], nil
}

// Counts returns the number of erases and writes so far.
func (f *MemFlash) Counts() (erases, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.erases, f.writes
}

func (f *MemFlash) Close() error { return nil }
