package checkpoint

import (
	"github.com/tidalstore/lsmtree/internal/errs"
	"github.com/tidalstore/lsmtree/internal/pager"
)

// metaPages are the two fixed page numbers reserved for checkpoint
// copies; writes alternate between them so a crash mid-write always
// leaves the other copy intact.
const (
	metaPage0 = 0
	metaPage1 = 1
)

// Store persists Snapshots to a Pager's two reserved meta pages and
// recovers the most recent verifying one on open.
type Store struct {
	p    *pager.Pager
	next uint64 // which meta page (0 or 1) the next Write targets
}

// NewStore wraps p. Callers normally call Recover first to learn which
// meta page was last written, so the next Write lands on the other one.
func NewStore(p *pager.Pager) *Store {
	return &Store{p: p, next: metaPage0}
}

// Write encodes snap and persists it to the meta page not holding the
// most recently written copy, then flips Store's notion of "next" so the
// following Write alternates again.
func (s *Store) Write(snap *Snapshot) error {
	buf, err := Encode(snap)
	if err != nil {
		return err
	}
	page := make([]byte, s.p.PageSize())
	if len(buf) > len(page) {
		return errs.New(errs.Misuse, "checkpoint: encoded snapshot larger than page size")
	}
	copy(page, buf)
	if err := s.p.WritePage(s.next, page); err != nil {
		return err
	}
	s.next = otherMetaPage(s.next)
	return nil
}

func otherMetaPage(n uint64) uint64 {
	if n == metaPage0 {
		return metaPage1
	}
	return metaPage0
}

// Recover reads both meta pages and returns the one with the larger id
// whose checksum verifies, so Store.Write targets the other slot next.
// If neither page decodes, ok is false and the caller must initialize an
// empty database.
func (s *Store) Recover() (snap *Snapshot, ok bool, err error) {
	var candidates []*Snapshot
	var pages []uint64
	for _, pn := range []uint64{metaPage0, metaPage1} {
		page, rerr := s.p.ReadPage(pn)
		if rerr != nil {
			continue
		}
		decoded, derr := Decode(page.Data)
		if derr != nil {
			continue
		}
		candidates = append(candidates, decoded)
		pages = append(pages, pn)
	}
	if len(candidates) == 0 {
		s.next = metaPage0
		return nil, false, nil
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].ID > candidates[best].ID {
			best = i
		}
	}
	s.next = otherMetaPage(pages[best])
	return candidates[best], true, nil
}
