//go:build !unix

package pager

import "github.com/tidalstore/lsmtree/internal/errs"

// MappedWindow is the non-unix stand-in: mmap mode is unavailable on this
// platform, so MapPrefix always fails and callers fall back to ordinary
// cached page reads.
type MappedWindow struct{}

func MapPrefix(fd int, n int) (*MappedWindow, error) {
	return nil, errs.New(errs.Misuse, "pager: mmap mode unsupported on this platform")
}

func (w *MappedWindow) Bytes(off, n int) []byte { return nil }
func (w *MappedWindow) Grow(newSize int) error  { return nil }
func (w *MappedWindow) Unmap() error             { return nil }
func (w *MappedWindow) Len() int                 { return 0 }
