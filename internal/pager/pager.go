package pager

import (
	"encoding/binary"

	"github.com/tidalstore/lsmtree/internal/compress"
	"github.com/tidalstore/lsmtree/internal/errs"
)

// sizeHdrLen is the width of the size header sandwiching every record
// AppendRecord writes (compressed or not), so a reader can confirm the record it just
// decoded by re-checking the trailing copy against the leading one.
const sizeHdrLen = 3

// Pager is the file-system layer: page cache plus raw file plus, in
// compressed mode, the size-hdr|payload|size-hdr record pipeline built on
// internal/compress. One Pager serves one open database file.
type Pager struct {
	file       *File
	cache      *Cache
	compress   *compress.Registry
	compressed bool

	appendPoint uint64 // next free byte offset for compressed-mode segment writes
}

// Open opens path as a paged file, wiring compression through registry
// when compressed is true (compression only applies to variable-length
// segment records, never to fixed tree-node pages).
func Open(path string, pageSize, blockSize uint32, compressed bool, registry *compress.Registry) (*Pager, error) {
	f, err := NewFile(path, pageSize, blockSize)
	if err != nil {
		return nil, err
	}
	return &Pager{
		file:       f,
		cache:      NewCache(pageSize),
		compress:   registry,
		compressed: compressed,
	}, nil
}

// ReadPage returns page pageNo, through the cache.
func (p *Pager) ReadPage(pageNo uint64) (*Page, error) {
	if cached, ok := p.cache.Get(pageNo); ok {
		return cached, nil
	}
	data, err := p.file.ReadPage(pageNo)
	if err != nil {
		return nil, err
	}
	page := &Page{No: pageNo, Data: data}
	p.cache.Put(page)
	return page, nil
}

// WritePage writes pageNo's bytes through the cache to the file.
func (p *Pager) WritePage(pageNo uint64, data []byte) error {
	if err := p.file.WritePage(pageNo, data); err != nil {
		return err
	}
	page := &Page{No: pageNo, Data: data, Dirty: false}
	p.cache.Put(page)
	return nil
}

// AppendRecord writes one variable-length record at the current append
// point, compressing it first when the pager is in compressed mode, and
// framing it size-hdr|payload|size-hdr so a forward or backward scan can
// always re-derive the record's length before reading it. It returns the
// byte offset the record was written at.
func (p *Pager) AppendRecord(raw []byte) (uint64, error) {
	payload := raw
	if p.compressed {
		compressed, err := p.compress.CompressPage(raw)
		if err != nil {
			return 0, err
		}
		payload = compressed
	}
	if len(payload) > 1<<(8*sizeHdrLen)-1 {
		return 0, errs.New(errs.Full, "pager: record too large for size header")
	}

	framed := make([]byte, 0, sizeHdrLen*2+len(payload))
	framed = append(framed, put3(len(payload))...)
	framed = append(framed, payload...)
	framed = append(framed, put3(len(payload))...)

	off := p.appendPoint
	if err := p.writeRaw(off, framed); err != nil {
		return 0, err
	}
	p.appendPoint += uint64(len(framed))
	return off, nil
}

// ReadRecord decodes the 3-byte leading size header at off, reads that
// many payload bytes (verifying the trailing copy matches), and
// decompresses if the pager is in compressed mode.
func (p *Pager) ReadRecord(off uint64) ([]byte, error) {
	hdr, err := p.readRaw(off, sizeHdrLen)
	if err != nil {
		return nil, err
	}
	size := get3(hdr)

	payload, err := p.readRaw(off+sizeHdrLen, size)
	if err != nil {
		return nil, err
	}

	trailer, err := p.readRaw(off+sizeHdrLen+uint64(size), sizeHdrLen)
	if err != nil {
		return nil, err
	}
	if get3(trailer) != size {
		return nil, errs.New(errs.Corrupt, "pager: record size-header mismatch")
	}

	if !p.compressed {
		return payload, nil
	}
	return p.compress.DecompressPage(payload)
}

// writeRaw/readRaw operate on the page-addressed file at byte
// granularity, spanning pages as needed — the straddling behavior the
// spec's variable-length records require when a record crosses a page
// boundary within a block.
func (p *Pager) writeRaw(off uint64, data []byte) error {
	pageSize := uint64(p.file.PageSize())
	for len(data) > 0 {
		pageNo := off / pageSize
		within := off % pageSize
		n := pageSize - within
		if n > uint64(len(data)) {
			n = uint64(len(data))
		}
		page, err := p.ReadPage(pageNo)
		if err != nil {
			return err
		}
		buf := append([]byte(nil), page.Data...)
		copy(buf[within:within+n], data[:n])
		if err := p.WritePage(pageNo, buf); err != nil {
			return err
		}
		data = data[n:]
		off += n
	}
	return nil
}

func (p *Pager) readRaw(off uint64, n int) ([]byte, error) {
	pageSize := uint64(p.file.PageSize())
	out := make([]byte, 0, n)
	for len(out) < n {
		pageNo := off / pageSize
		within := off % pageSize
		want := pageSize - within
		if want > uint64(n-len(out)) {
			want = uint64(n - len(out))
		}
		page, err := p.ReadPage(pageNo)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Data[within:within+want]...)
		off += want
	}
	return out, nil
}

func put3(v int) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return buf[1:]
}

func get3(b []byte) int {
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

// Sync flushes the underlying file.
func (p *Pager) Sync() error { return p.file.Sync() }

// Truncate resizes the file to n pages. No caller in this module invokes
// it (see DESIGN.md's truncation-policy decision).
func (p *Pager) Truncate(n uint64) error { return p.file.Truncate(n) }

// Close closes the underlying file.
func (p *Pager) Close() error { return p.file.Close() }

// CacheStats exposes the page cache's hit/miss/eviction counters.
func (p *Pager) CacheStats() CacheStats { return p.cache.Stats() }

// CacheSize reports the number of pages currently resident in the cache.
func (p *Pager) CacheSize() int { return p.cache.Size() }

// PageSize reports the fixed page size this Pager was opened with.
func (p *Pager) PageSize() uint32 { return p.file.PageSize() }
