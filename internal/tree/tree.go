package tree

import (
	"math"
	"sort"

	"github.com/tidalstore/lsmtree/internal/arena"
	"github.com/tidalstore/lsmtree/internal/errs"
)

const nodeAllocSize = 256 // nominal arena accounting unit per node, see arena package doc

// rollback record kinds, see Tree.Mark/RollbackTo.
type recKind int

const (
	recNewNode recKind = iota
	recStampedV2
	recRootChange
)

type rollbackRec struct {
	kind        recKind
	node        *Node
	priorRoot   arena.Handle
	priorHeight uint32
}

// Tree is a single-writer/multi-reader in-memory B-tree. All mutating
// methods assume the caller holds the writer lock (internal/concurrency
// enforces this); readers call SeekFrom/GetFrom against a root handle and
// txid they captured at snapshot time and never mutate the structure.
type Tree struct {
	arena  *arena.Arena
	nodes  map[arena.Handle]*Node
	root   arena.Handle
	height uint32

	writeTxid uint64 // current_transaction_id: bumped at BeginWrite
	totalBytes uint64

	log []rollbackRec
}

// New creates an empty tree with a single empty leaf root.
func New(a *arena.Arena) *Tree {
	t := &Tree{arena: a, nodes: make(map[arena.Handle]*Node)}
	h, err := a.Alloc(nodeAllocSize, true)
	if err != nil {
		panic(err) // fresh arena can always satisfy the first allocation
	}
	root := &Node{Handle: h, Leaf: true}
	t.nodes[h] = root
	t.root = h
	t.height = 1
	t.writeTxid = 1
	return t
}

// Header returns a snapshot of the tree's header fields as they stand
// right now, for publication by internal/concurrency.
func (t *Tree) Header() Header {
	return Header{
		Root:        t.root,
		Height:      t.height,
		TotalBytes:  t.totalBytes,
		Txid:        t.writeTxid,
		FirstChunk:  t.arena.FirstChunkSeq(),
		NextChunk:   t.arena.NextSeq(),
	}
}

// BeginWrite starts a new write generation: any v2 override stamped after
// this point carries the new txid and is invisible to readers whose
// snapshot predates it. Returns a Mark usable with RollbackTo.
func (t *Tree) BeginWrite() int {
	t.writeTxid++
	return t.Mark()
}

// Mark returns a savepoint for the current rollback log position, used to
// implement nested transactions (begin/commit/rollback with arbitrary
// nesting depth).
func (t *Tree) Mark() int { return len(t.log) }

// RollbackTo undoes every structural change recorded since mark: v2
// stamps are cleared, nodes allocated since the mark are forgotten, and
// root/height are restored.
func (t *Tree) RollbackTo(mark int) {
	for i := len(t.log) - 1; i >= mark; i-- {
		rec := t.log[i]
		switch rec.kind {
		case recStampedV2:
			rec.node.V2 = nil
		case recNewNode:
			delete(t.nodes, rec.node.Handle)
		case recRootChange:
			t.root = rec.priorRoot
			t.height = rec.priorHeight
		}
	}
	t.log = t.log[:mark]
}

func (t *Tree) node(h arena.Handle) *Node { return t.nodes[h] }

// RepairV2Overrides clears every v2 override stamped at a txid beyond
// verifiedTxid, the last tree header a reader/writer could checksum-
// verify. A dead writer may have stamped overrides and then crashed
// before publishing the header that would have made them visible; since
// no reader observed them, they must not survive into the repaired tree.
// Returns the number of overrides cleared. See
// internal/concurrency.Repair, grounded on the teacher's
// mvcc.DeadlockDetector repair step.
func (t *Tree) RepairV2Overrides(verifiedTxid uint64) int {
	cleared := 0
	for _, n := range t.nodes {
		if n.V2 != nil && n.V2.ValidAt > verifiedTxid {
			n.V2 = nil
			cleared++
		}
	}
	return cleared
}

// SetWriteTxid forces the tree's write-generation counter, used only by
// recovery to resume numbering after the last txid a verified header
// recorded.
func (t *Tree) SetWriteTxid(txid uint64) {
	if txid > t.writeTxid {
		t.writeTxid = txid
	}
}

func (t *Tree) allocNode(n *Node) error {
	h, err := t.arena.Alloc(nodeAllocSize, true)
	if err != nil {
		return errs.Wrap(errs.Full, err, "tree: out of arena space")
	}
	n.Handle = h
	t.nodes[h] = n
	t.log = append(t.log, rollbackRec{kind: recNewNode, node: n})
	return nil
}

// SeekResult is the outcome of a seek: the node reached (a leaf when no
// match was found, but possibly an internal node when the key is one of
// its promoted separator entries), the slot within it, and a three-way
// comparison result for the caller to interpret.
type SeekResult struct {
	Node *Node
	Slot int
	Cmp  int // -1, 0, +1: key vs Node.Keys[Slot] (or past the end if Slot==len(Keys))
}

// path records, for a single Seek walk, the chain of ancestor nodes and
// the child slot chosen at each to continue the descent — needed to
// propagate a leaf-level change back up to the root.
type path struct {
	nodes []*Node
	slots []int // slots[i]: child index chosen within nodes[i]
}

// seek walks from root toward key, honoring v2 overrides as seen by a
// viewer at readerTxid (the writer always passes root=t.root and
// readerTxid=math.MaxUint64 to see its own uncommitted changes; a reader
// passes the root handle it captured at BeginRead together with its
// pinned snapshot txid — see SeekFrom). It returns as soon as an exact
// match is found, whether that match sits in a leaf or in an internal
// node's own promoted keys; otherwise it bottoms out at the leaf where
// key would be inserted.
func (t *Tree) seek(root arena.Handle, key []byte, readerTxid uint64) (SeekResult, path) {
	var p path
	h := root
	for {
		n := t.node(h)
		slot, cmp := locate(n, key)
		p.nodes = append(p.nodes, n)
		if cmp == 0 {
			p.slots = append(p.slots, slot)
			return SeekResult{Node: n, Slot: slot, Cmp: 0}, p
		}
		if n.Leaf {
			p.slots = append(p.slots, slot)
			return SeekResult{Node: n, Slot: slot, Cmp: cmp}, p
		}
		p.slots = append(p.slots, slot)
		h = n.childAt(slot, readerTxid)
	}
}

// Seek walks the tree's current (writer-visible) root. It is the
// convenience form for writer-side code that always wants the latest,
// possibly-uncommitted view.
func (t *Tree) Seek(key []byte, readerTxid uint64) SeekResult {
	res, _ := t.seek(t.root, key, readerTxid)
	return res
}

// SeekFrom walks the tree starting at an explicit root handle, the one a
// reader captured in its snapshot header at BeginRead, resolving v2
// overrides against readerTxid. This is what gives a long-lived reader a
// consistent view across concurrent writes: as long as its captured root
// handle is still live (not yet garbage from a rolled-back generation),
// walking from it and gating every v2 override by readerTxid reproduces
// exactly the tree shape and contents visible at snapshot time.
func (t *Tree) SeekFrom(root arena.Handle, key []byte, readerTxid uint64) SeekResult {
	res, _ := t.seek(root, key, readerTxid)
	return res
}

// locate finds key's position among n.Keys: Cmp==0 means n.Keys[slot]
// equals key; otherwise slot is the insertion point.
func locate(n *Node, key []byte) (slot int, cmp int) {
	for i, e := range n.Keys {
		c := CompareKeys(key, e.Key)
		if c == 0 {
			return i, 0
		}
		if c < 0 {
			return i, -1
		}
	}
	return len(n.Keys), 1
}

// applyChildSwap propagates a single child-pointer replacement into
// parent at slot, using the v2-override fast path when possible and
// falling back to a full copy when parent already carries an override
// from an earlier, unflattened generation.
func (t *Tree) applyChildSwap(parent *Node, slot int, newChild arena.Handle) (arena.Handle, error) {
	if parent.V2 == nil {
		t.log = append(t.log, rollbackRec{kind: recStampedV2, node: parent})
		parent.V2 = &v2Override{Slot: slot, Child: newChild, ValidAt: t.writeTxid}
		return parent.Handle, nil
	}
	// Already carries an override from an earlier mutation: flatten it
	// into a concrete copy, then apply the new change to the copy.
	children := parent.viewChildren(math.MaxUint64)
	children[slot] = newChild
	cp := &Node{Leaf: parent.Leaf, Keys: cloneEntries(parent.Keys), Children: children}
	if err := t.allocNode(cp); err != nil {
		return arena.Nil, err
	}
	return cp.Handle, nil
}

// applyKeyInsert inserts (key, child) immediately after slot in a full
// copy of parent (folding in any existing v2 override), also overwriting
// the child at slot with leftChild. If the copy overflows maxKeys it is
// split in half and the median key is promoted to the caller, classic
// B-tree split-with-promotion: internal nodes keep a real copy of the
// promoted key rather than a separator-only placeholder.
func (t *Tree) applyKeyInsert(parent *Node, slot int, leftChild arena.Handle, promoted *Entry, rightOfPromoted arena.Handle) (handle arena.Handle, newPromoted *Entry, newRight arena.Handle, err error) {
	children := parent.viewChildren(math.MaxUint64)
	children[slot] = leftChild

	newChildren := make([]arena.Handle, 0, len(children)+1)
	newChildren = append(newChildren, children[:slot+1]...)
	newChildren = append(newChildren, rightOfPromoted)
	newChildren = append(newChildren, children[slot+1:]...)

	newKeys := make([]*Entry, 0, len(parent.Keys)+1)
	newKeys = append(newKeys, parent.Keys[:slot]...)
	newKeys = append(newKeys, promoted)
	newKeys = append(newKeys, parent.Keys[slot:]...)

	if len(newKeys) <= maxKeys {
		cp := &Node{Leaf: false, Keys: newKeys, Children: newChildren}
		if e := t.allocNode(cp); e != nil {
			return arena.Nil, nil, arena.Nil, e
		}
		return cp.Handle, nil, arena.Nil, nil
	}

	mid := len(newKeys) / 2
	left := &Node{Leaf: false, Keys: append([]*Entry{}, newKeys[:mid]...), Children: append([]arena.Handle{}, newChildren[:mid+1]...)}
	right := &Node{Leaf: false, Keys: append([]*Entry{}, newKeys[mid+1:]...), Children: append([]arena.Handle{}, newChildren[mid+1:]...)}
	if e := t.allocNode(left); e != nil {
		return arena.Nil, nil, arena.Nil, e
	}
	if e := t.allocNode(right); e != nil {
		return arena.Nil, nil, arena.Nil, e
	}
	return left.Handle, newKeys[mid], right.Handle, nil
}

func cloneEntries(es []*Entry) []*Entry {
	out := make([]*Entry, len(es))
	copy(out, es)
	return out
}

// propagate walks p from the leaf's parent up to the root, applying
// either a pure child swap or a key insertion (when childPromoted != nil)
// at each level, then installs a new root if the split reached the top.
func (t *Tree) propagate(p path, leafIdx int, childHandle arena.Handle, promoted *Entry, rightHandle arena.Handle) error {
	for i := leafIdx - 1; i >= 0; i-- {
		parent := p.nodes[i]
		slot := p.slots[i]
		if promoted == nil {
			h, err := t.applyChildSwap(parent, slot, childHandle)
			if err != nil {
				return err
			}
			childHandle = h
			continue
		}
		h, newPromoted, newRight, err := t.applyKeyInsert(parent, slot, childHandle, promoted, rightHandle)
		if err != nil {
			return err
		}
		childHandle, promoted, rightHandle = h, newPromoted, newRight
	}

	priorRoot, priorHeight := t.root, t.height
	if promoted == nil {
		if childHandle != t.root {
			t.log = append(t.log, rollbackRec{kind: recRootChange, priorRoot: priorRoot, priorHeight: priorHeight})
			t.root = childHandle
		}
		return nil
	}
	newRoot := &Node{Leaf: false, Keys: []*Entry{promoted}, Children: []arena.Handle{childHandle, rightHandle}}
	if err := t.allocNode(newRoot); err != nil {
		return err
	}
	t.log = append(t.log, rollbackRec{kind: recRootChange, priorRoot: priorRoot, priorHeight: priorHeight})
	t.root = newRoot.Handle
	t.height++
	return nil
}

// insertLeafCopy produces a copy of leaf with entry placed at slot
// (replacing an equal key if present), splitting if it overflows.
func (t *Tree) insertLeafCopy(leaf *Node, slot int, replace bool, entry *Entry) (handle arena.Handle, promoted *Entry, right arena.Handle, err error) {
	newKeys := make([]*Entry, 0, len(leaf.Keys)+1)
	newKeys = append(newKeys, leaf.Keys...)
	if replace {
		newKeys[slot] = entry
	} else {
		newKeys = append(newKeys, nil)
		copy(newKeys[slot+1:], newKeys[slot:])
		newKeys[slot] = entry
	}

	if len(newKeys) <= maxKeys {
		cp := &Node{Leaf: true, Keys: newKeys}
		if e := t.allocNode(cp); e != nil {
			return arena.Nil, nil, arena.Nil, e
		}
		return cp.Handle, nil, arena.Nil, nil
	}

	mid := len(newKeys) / 2
	left := &Node{Leaf: true, Keys: append([]*Entry{}, newKeys[:mid]...)}
	right2 := &Node{Leaf: true, Keys: append([]*Entry{}, newKeys[mid+1:]...)}
	if e := t.allocNode(left); e != nil {
		return arena.Nil, nil, arena.Nil, e
	}
	if e := t.allocNode(right2); e != nil {
		return arena.Nil, nil, arena.Nil, e
	}
	return left.Handle, newKeys[mid], right2.Handle, nil
}

// Insert applies entry, performing range-delete coalescing:
//   - START_DELETE next to an already-open start: no-op
//   - END_DELETE next to an already-closed end: no-op
//   - a new entry landing inside an open delete range inherits the
//     covering START/END bits
//   - an exact-match INSERT/POINT_DELETE preserves existing START/END bits
//   - an exact-match bare START/END boundary keeps the existing payload
//     and adds its boundary bit to it
func (t *Tree) Insert(entry *Entry) error {
	if !entry.Flags.Valid() {
		return errs.New(errs.Misuse, "tree: INSERT and POINT_DELETE are mutually exclusive")
	}
	res, p := t.seek(t.root, entry.Key, math.MaxUint64)

	if res.Cmp == 0 {
		existing := res.Node.Keys[res.Slot]
		if entry.Flags.Has(Insert) || entry.Flags.Has(PointDelete) {
			entry = entry.Clone()
			entry.Flags |= existing.Flags & (StartDelete | EndDelete)
		} else if entry.Flags&(StartDelete|EndDelete) != 0 {
			merged := existing.Clone()
			merged.Flags |= entry.Flags & (StartDelete | EndDelete)
			entry = merged
		}
		cp := copyWithKeyReplaced(res.Node, res.Slot, entry)
		if err := t.allocNode(cp); err != nil {
			return err
		}
		return t.propagate(p, len(p.nodes)-1, cp.Handle, nil, arena.Nil)
	}

	leaf := res.Node
	order, idx := t.orderedNeighbors(entry.Key)
	if entry.Flags == StartDelete && precedingHasOpenStart(order, idx) {
		return nil
	}
	if entry.Flags == EndDelete && followingHasClosedEnd(order, idx) {
		return nil
	}
	if open, startFlags := openRangeAt(order, idx); open {
		entry = entry.Clone()
		entry.Flags |= startFlags
	}

	handle, promoted, right, err := t.insertLeafCopy(leaf, res.Slot, false, entry)
	if err != nil {
		return err
	}
	t.totalBytes += uint64(len(entry.Key) + len(entry.Value) + 1)
	return t.propagate(p, len(p.nodes)-1, handle, promoted, right)
}

// copyWithKeyReplaced copies node, replacing the entry at slot in place
// (key count and child count unchanged), for the exact-match update path.
func copyWithKeyReplaced(node *Node, slot int, entry *Entry) *Node {
	newKeys := cloneEntries(node.Keys)
	newKeys[slot] = entry
	if node.Leaf {
		return &Node{Leaf: true, Keys: newKeys}
	}
	return &Node{Leaf: false, Keys: newKeys, Children: node.viewChildren(math.MaxUint64)}
}

// orderedNeighbors materializes the tree's full in-order key sequence (the
// same flattening Iterator.collectInOrder does — an in-memory tree is
// bounded by the autoflush threshold, so holding its full key set as a
// slice for one insert's coalescing check is cheap) and returns it together
// with the index key would occupy. Unlike a single-leaf scan, this sees the
// true immediately-preceding/following keys and any open StartDelete span
// regardless of which leaf they live in — an order-4 tree routinely splits
// a StartDelete boundary and the keys inside its range across leaves.
func (t *Tree) orderedNeighbors(key []byte) ([]*Entry, int) {
	var entries []*Entry
	t.collectInOrder(t.root, math.MaxUint64, &entries)
	idx := sort.Search(len(entries), func(i int) bool {
		return CompareKeys(entries[i].Key, key) >= 0
	})
	return entries, idx
}

// precedingHasOpenStart reports whether the key immediately before the
// insertion point already has StartDelete set (coalescing rule 1).
func precedingHasOpenStart(order []*Entry, idx int) bool {
	if idx > 0 {
		return order[idx-1].Flags.Has(StartDelete)
	}
	return false
}

// followingHasClosedEnd reports whether the key immediately after the
// insertion point already has EndDelete set (coalescing rule 2).
func followingHasClosedEnd(order []*Entry, idx int) bool {
	if idx < len(order) {
		return order[idx].Flags.Has(EndDelete)
	}
	return false
}

// openRangeAt reports whether the insertion point at idx sits inside an
// unmatched StartDelete...EndDelete span, scanning backward over the full
// ordered key sequence (across leaf boundaries) for the nearest boundary.
func openRangeAt(order []*Entry, idx int) (bool, Flags) {
	for i := idx - 1; i >= 0; i-- {
		if order[i].Flags.Has(EndDelete) {
			return false, 0
		}
		if order[i].Flags.Has(StartDelete) {
			return true, StartDelete | EndDelete
		}
	}
	return false, 0
}

// Get performs a point lookup against the tree's current root, returning
// (entry, true) on an exact match.
func (t *Tree) Get(key []byte, readerTxid uint64) (*Entry, bool) {
	res := t.Seek(key, readerTxid)
	if res.Cmp != 0 {
		return nil, false
	}
	return res.Node.Keys[res.Slot], true
}

// GetFrom performs a point lookup against an explicit snapshot root, the
// reader-isolation counterpart to Get.
func (t *Tree) GetFrom(root arena.Handle, key []byte, readerTxid uint64) (*Entry, bool) {
	res := t.SeekFrom(root, key, readerTxid)
	if res.Cmp != 0 {
		return nil, false
	}
	return res.Node.Keys[res.Slot], true
}
