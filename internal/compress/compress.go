// Package compress implements the pluggable page-compression vtable:
// a small registry of codecs selected by a one-byte id, a page framing
// format (magic, codec id, original size) wrapped around whatever bytes
// a codec produces, and running stats so info() can report compression
// effectiveness the way the teacher's CompressionManager does.
package compress

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/tidalstore/lsmtree/internal/errs"
)

// Codec ids, stable on disk: 0 is reserved to mean "empty database, no
// codec chosen yet", matching the convention that a freshly created file
// carries compression id 0 until the first page is written.
const (
	IDEmpty  uint8 = 0
	IDNone   uint8 = 1
	IDSnappy uint8 = 2
	IDLZ4    uint8 = 3
)

var pageMagic = [4]byte{0x43, 0x4D, 0x50, 0x52} // "CMPR"

// Codec compresses and decompresses whole pages under one on-disk id.
type Codec interface {
	ID() uint8
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(dst []byte, originalSize int) ([]byte, error)
}

type noneCodec struct{}

func (noneCodec) ID() uint8        { return IDNone }
func (noneCodec) Name() string     { return "none" }
func (noneCodec) Compress(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}
func (noneCodec) Decompress(dst []byte, originalSize int) ([]byte, error) {
	if len(dst) != originalSize {
		return nil, errs.New(errs.Corrupt, "compress: none-codec payload size mismatch")
	}
	return dst, nil
}

type snappyCodec struct{}

func (snappyCodec) ID() uint8    { return IDSnappy }
func (snappyCodec) Name() string { return "snappy" }
func (snappyCodec) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}
func (snappyCodec) Decompress(dst []byte, originalSize int) ([]byte, error) {
	out, err := snappy.Decode(make([]byte, 0, originalSize), dst)
	if err != nil {
		return nil, errs.Wrap(errs.Corrupt, err, "compress: snappy decode failed")
	}
	return out, nil
}

type lz4Codec struct{}

func (lz4Codec) ID() uint8    { return IDLZ4 }
func (lz4Codec) Name() string { return "lz4" }
func (lz4Codec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, errs.Wrap(errs.IOErr, err, "compress: lz4 write failed")
	}
	if err := w.Close(); err != nil {
		return nil, errs.Wrap(errs.IOErr, err, "compress: lz4 flush failed")
	}
	return buf.Bytes(), nil
}
func (lz4Codec) Decompress(dst []byte, originalSize int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(dst))
	out := make([]byte, originalSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errs.Wrap(errs.Corrupt, err, "compress: lz4 decode failed")
	}
	return out, nil
}

// Stats mirrors the counters a compression manager accumulates across
// CompressPage calls, surfaced by info(). Calls made while the none codec
// is active are not counted.
type Stats struct {
	TotalPages      uint64
	CompressedPages uint64
	TotalSize       uint64
	CompressedSize  uint64
	FailureCount    uint64
}

// AvgSavings returns the fraction of bytes saved across all compressed
// pages so far, 0 if none have been compressed yet.
func (s Stats) AvgSavings() float64 {
	if s.TotalSize == 0 {
		return 0
	}
	return 1 - float64(s.CompressedSize)/float64(s.TotalSize)
}

// Factory is the SET_COMPRESSION_FACTORY extension point: a caller may
// register additional codecs beyond the three built in here.
type Factory func() Codec

// Registry selects a codec by id and frames/unframes pages around it. A
// Registry is safe for concurrent use: one writer, many readers, same
// discipline as the rest of this module.
type Registry struct {
	mu         sync.RWMutex
	codecs     map[uint8]Codec
	active     uint8
	minSavings float64
	stats      Stats
}

// NewRegistry returns a Registry with none/snappy/lz4 pre-registered and
// "none" selected, the same default a freshly opened database starts
// from before SET_COMPRESSION picks anything else.
func NewRegistry() *Registry {
	r := &Registry{
		codecs: map[uint8]Codec{
			IDNone:   noneCodec{},
			IDSnappy: snappyCodec{},
			IDLZ4:    lz4Codec{},
		},
		active:     IDNone,
		minSavings: 0.0,
	}
	return r
}

// Register adds or replaces a codec under its own id, the mechanism
// behind SET_COMPRESSION_FACTORY.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.ID()] = c
}

// SetActive selects the codec used by future CompressPage calls.
// DecompressPage always uses the id stamped in the page, independent of
// the active setting, so changing this mid-database life is safe:
// existing pages keep decoding with whatever codec wrote them.
func (r *Registry) SetActive(id uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codecs[id]; !ok {
		return errs.New(errs.Mismatch, "compress: unknown codec id")
	}
	r.active = id
	return nil
}

// SetMinSavings sets the minimum fractional size reduction a compressed
// page must show to be stored compressed; pages that don't clear the bar
// are stored under IDNone instead, mirroring the teacher's MinSavings
// gate.
func (r *Registry) SetMinSavings(f float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minSavings = f
}

// CompressPage frames data under the currently active codec, falling
// back to IDNone when compression doesn't clear the minimum-savings bar.
func (r *Registry) CompressPage(data []byte) ([]byte, error) {
	r.mu.RLock()
	active := r.active
	minSavings := r.minSavings
	codec := r.codecs[active]
	r.mu.RUnlock()

	if active == IDNone {
		return frame(IDNone, len(data), data), nil
	}

	compressed, err := codec.Compress(data)
	if err != nil {
		r.recordFailure()
		return nil, err
	}

	savings := 1 - float64(len(compressed))/float64(len(data))
	if savings < minSavings {
		r.recordStats(len(data), len(data))
		return frame(IDNone, len(data), data), nil
	}

	r.recordStats(len(data), len(compressed))
	return frame(active, len(data), compressed), nil
}

// DecompressPage reads the frame header to learn which codec and
// original size were used, regardless of the registry's currently active
// codec, then decodes.
func (r *Registry) DecompressPage(data []byte) ([]byte, error) {
	id, originalSize, payload, err := unframe(data)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	codec, ok := r.codecs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.Mismatch, "compress: page references unregistered codec id")
	}
	return codec.Decompress(payload, originalSize)
}

func (r *Registry) recordStats(originalSize, compressedSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalPages++
	if compressedSize < originalSize {
		r.stats.CompressedPages++
	}
	r.stats.TotalSize += uint64(originalSize)
	r.stats.CompressedSize += uint64(compressedSize)
}

func (r *Registry) recordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.FailureCount++
}

// Stats returns a snapshot of the running compression counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func frame(id uint8, originalSize int, payload []byte) []byte {
	buf := make([]byte, 0, len(pageMagic)+1+4+len(payload))
	buf = append(buf, pageMagic[:]...)
	buf = append(buf, id)
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(originalSize))
	buf = append(buf, sizeBuf[:]...)
	buf = append(buf, payload...)
	return buf
}

func unframe(data []byte) (id uint8, originalSize int, payload []byte, err error) {
	const headerLen = 4 + 1 + 4
	if len(data) < headerLen || !bytes.Equal(data[:4], pageMagic[:]) {
		return 0, 0, nil, errs.New(errs.Corrupt, "compress: bad page frame magic")
	}
	id = data[4]
	originalSize = int(binary.BigEndian.Uint32(data[5:9]))
	return id, originalSize, data[9:], nil
}
