// Package pager implements the file-system layer: page/block arithmetic,
// an LRU page cache, an optional mmap window over the file's prefix, and
// the page compression pipeline built on internal/compress.
package pager

// Page is one cached, possibly-dirty copy of a page's bytes.
type Page struct {
	No    uint64
	Data  []byte
	Dirty bool
	refs  int32
}

// Pin increments the page's reference count, keeping it out of the LRU's
// eviction candidates until every Unpin call balances it.
func (p *Page) Pin() { p.refs++ }

// Unpin decrements the reference count.
func (p *Page) Unpin() {
	if p.refs > 0 {
		p.refs--
	}
}

// Pinned reports whether the page currently has outstanding references.
func (p *Page) Pinned() bool { return p.refs > 0 }
