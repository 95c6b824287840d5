//go:build unix

package pager

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/tidalstore/lsmtree/internal/errs"
)

// MappedWindow maps the file's prefix (the first mappedPages pages) into
// this process's address space. Handles returned by Bytes alias the
// mapping directly; if the window is later grown, every live alias must
// be rebased by the same shift, which is why callers hold mapped-page
// handles in a separate list rather than caching raw slices elsewhere.
type MappedWindow struct {
	mu   sync.RWMutex
	fd   int
	data []byte
}

// MapPrefix maps the first n bytes of the file referenced by fd.
func MapPrefix(fd int, n int) (*MappedWindow, error) {
	data, err := unix.Mmap(fd, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errs.Wrap(errs.IOErr, err, "pager: mmap")
	}
	return &MappedWindow{fd: fd, data: data}, nil
}

// Bytes returns the byte range [off, off+n) of the mapping. The returned
// slice aliases the mapping; callers must not retain it across a Grow.
func (w *MappedWindow) Bytes(off, n int) []byte {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.data[off : off+n]
}

// Grow extends the mapping to newSize bytes, unmapping and remapping
// since POSIX mmap cannot be resized in place. Callers must treat every
// previously returned Bytes slice as invalid after Grow returns and must
// re-derive their handles' data pointers from the new mapping, the
// atomic-rebase step the spec calls for.
func (w *MappedWindow) Grow(newSize int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := unix.Munmap(w.data); err != nil {
		return errs.Wrap(errs.IOErr, err, "pager: munmap before grow")
	}
	data, err := unix.Mmap(w.fd, 0, newSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return errs.Wrap(errs.IOErr, err, "pager: mmap after grow")
	}
	w.data = data
	return nil
}

// Unmap releases the mapping.
func (w *MappedWindow) Unmap() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.data == nil {
		return nil
	}
	err := unix.Munmap(w.data)
	w.data = nil
	if err != nil {
		return errs.Wrap(errs.IOErr, err, "pager: munmap")
	}
	return nil
}

// Len returns the current mapping size in bytes.
func (w *MappedWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.data)
}
