package tree

import (
	"math"

	"github.com/tidalstore/lsmtree/internal/arena"
)

// Delete records a point-delete tombstone for key: deletes are entries
// with PointDelete set, not physical removal — the physical key
// disappears only once compaction drops it past the oldest live
// snapshot. This is exactly an Insert of a PointDelete entry, which
// already implements the range-delete-flag-preserving coalescing rules.
func (t *Tree) Delete(key []byte) error {
	return t.Insert(&Entry{Flags: PointDelete, Key: key})
}

// RangeDelete removes every key in the open interval (lo, hi) and installs
// StartDelete/EndDelete boundary markers at lo and hi.
//
// One way to implement this avoids reshaping the tree at all: repeatedly
// copy a successor's payload backward over the slot being vacated and
// delete the successor instead of the target slot, so only leaf-level
// payloads move and no rebalancing is needed. This implementation instead
// performs direct physical deletion of each covered key through the
// ordinary borrow/merge rebalancer below, which reaches the same
// externally observable end state (covered keys gone, the range's own
// boundary keys untouched) at the cost of more restructuring. The
// difference is not observable through the public API; see DESIGN.md's
// "Implementation notes (internal/tree)" section for the tradeoff.
func (t *Tree) RangeDelete(lo, hi []byte) error {
	for {
		key, ok := t.smallestKeyAbove(lo, hi)
		if !ok {
			break
		}
		if err := t.physicalDelete(key); err != nil {
			return err
		}
	}
	if err := t.Insert(&Entry{Flags: StartDelete, Key: lo}); err != nil {
		return err
	}
	return t.Insert(&Entry{Flags: EndDelete, Key: hi})
}

// smallestKeyAbove returns the smallest live key k with lo < k < hi, if
// any. It walks the tree via in-order successor starting from lo.
func (t *Tree) smallestKeyAbove(lo, hi []byte) ([]byte, bool) {
	res, p := t.seek(t.root, lo, math.MaxUint64)
	var key []byte
	var found bool
	if res.Cmp == 0 {
		k, ok := t.successorKey(p, res)
		if !ok {
			return nil, false
		}
		key, found = k, true
	} else {
		// res already sits at the insertion point: Node.Keys[Slot] (if in
		// range) is the smallest key > lo.
		if res.Slot < len(res.Node.Keys) {
			key, found = res.Node.Keys[res.Slot].Key, true
		} else {
			k, ok := t.successorKey(p, res)
			if !ok {
				return nil, false
			}
			key, found = k, true
		}
	}
	if !found || CompareKeys(key, hi) >= 0 {
		return nil, false
	}
	return key, true
}

// successorKey finds the in-order successor of the position identified by
// (p, res): the leftmost key of the next subtree when res sits on an
// internal key, the next key of the same leaf when there is one, and
// otherwise the separator key of the nearest ancestor the descent entered
// to the left of.
func (t *Tree) successorKey(p path, res SeekResult) ([]byte, bool) {
	if !res.Node.Leaf && res.Slot+1 < len(res.Node.Children) {
		h := res.Node.childAt(res.Slot+1, math.MaxUint64)
		n := t.node(h)
		for !n.Leaf {
			n = t.node(n.childAt(0, math.MaxUint64))
		}
		if len(n.Keys) == 0 {
			return nil, false
		}
		return n.Keys[0].Key, true
	}
	if res.Node.Leaf && res.Cmp == 0 && res.Slot+1 < len(res.Node.Keys) {
		return res.Node.Keys[res.Slot+1].Key, true
	}
	for i := len(p.nodes) - 2; i >= 0; i-- {
		parent := p.nodes[i]
		slot := p.slots[i]
		if slot < len(parent.Keys) {
			return parent.Keys[slot].Key, true
		}
	}
	return nil, false
}

// physicalDelete removes key from the tree structure entirely (not a
// tombstone). If key lives in an internal node, it is first swapped with
// its in-order predecessor (always in a leaf), which is then the one
// physically removed.
func (t *Tree) physicalDelete(key []byte) error {
	res, p := t.seek(t.root, key, math.MaxUint64)
	if res.Cmp != 0 {
		return nil
	}
	if !res.Node.Leaf {
		predPath, predLeaf, predSlot := t.predecessorLeaf(p, res)
		pred := predLeaf.Keys[predSlot]
		cp := copyWithKeyReplaced(res.Node, res.Slot, pred)
		if err := t.allocNode(cp); err != nil {
			return err
		}
		// Rebalance through cp rather than res.Node, so the leaf removal
		// installs the copy (pred in place of key) into the tree.
		predPath.nodes[len(p.nodes)-1] = cp
		return t.removeFromLeaf(predPath, predLeaf, predSlot)
	}
	return t.removeFromLeaf(p, res.Node, res.Slot)
}

// predecessorLeaf descends to the rightmost leaf of the subtree rooted at
// res.Node's child[res.Slot], returning the path from the tree root to
// that leaf (for later rebalancing) plus the leaf and matching slot.
func (t *Tree) predecessorLeaf(p path, res SeekResult) (path, *Node, int) {
	full := path{nodes: append([]*Node{}, p.nodes...), slots: append([]int{}, p.slots...)}
	h := res.Node.childAt(res.Slot, math.MaxUint64)
	n := t.node(h)
	full.nodes = append(full.nodes, n)
	full.slots = append(full.slots, 0)
	for !n.Leaf {
		slot := len(n.Children) - 1
		full.slots[len(full.slots)-1] = slot
		h = n.childAt(slot, math.MaxUint64)
		n = t.node(h)
		full.nodes = append(full.nodes, n)
		full.slots = append(full.slots, 0)
	}
	return full, n, len(n.Keys) - 1
}

// removeFromLeaf deletes leaf.Keys[slot] and rebalances ancestors on
// underflow, borrowing from a sibling or merging with one; if the root's
// last key is removed, the tree height decreases.
func (t *Tree) removeFromLeaf(p path, leaf *Node, slot int) error {
	newKeys := append([]*Entry{}, leaf.Keys[:slot]...)
	newKeys = append(newKeys, leaf.Keys[slot+1:]...)
	cp := &Node{Leaf: true, Keys: newKeys}
	if err := t.allocNode(cp); err != nil {
		return err
	}
	return t.rebalanceUp(p, len(p.nodes)-1, cp)
}

// rebalanceUp installs replacement (the post-delete copy of p.nodes[idx])
// into its parent, borrowing or merging with a sibling whenever
// replacement has underflowed (fewer than 1 key), propagating further up
// as needed and shrinking the tree's height if the root becomes empty
// with a single child.
func (t *Tree) rebalanceUp(p path, idx int, replacement *Node) error {
	if idx == 0 {
		if len(replacement.Keys) == 0 && !replacement.Leaf {
			priorRoot, priorHeight := t.root, t.height
			t.log = append(t.log, rollbackRec{kind: recRootChange, priorRoot: priorRoot, priorHeight: priorHeight})
			t.root = replacement.Children[0]
			t.height--
			return nil
		}
		priorRoot, priorHeight := t.root, t.height
		t.log = append(t.log, rollbackRec{kind: recRootChange, priorRoot: priorRoot, priorHeight: priorHeight})
		t.root = replacement.Handle
		return nil
	}

	parent := p.nodes[idx-1]
	slot := p.slots[idx-1]

	if len(replacement.Keys) >= 1 {
		h, err := t.applyChildSwap(parent, slot, replacement.Handle)
		if err != nil {
			return err
		}
		return t.continueRebalance(p, idx-1, h)
	}

	// Underflow: try to borrow from a sibling, else merge.
	children := parent.viewChildren(math.MaxUint64)

	if slot > 0 {
		leftSib := t.node(children[slot-1])
		if len(leftSib.Keys) > 1 {
			return t.borrowFromLeft(p, idx, parent, slot, leftSib, replacement)
		}
	}
	if slot < len(children)-1 {
		rightSib := t.node(children[slot+1])
		if len(rightSib.Keys) > 1 {
			return t.borrowFromRight(p, idx, parent, slot, rightSib, replacement)
		}
	}
	if slot > 0 {
		leftSib := t.node(children[slot-1])
		return t.mergeSiblings(p, idx, parent, slot-1, leftSib, replacement)
	}
	rightSib := t.node(children[slot+1])
	return t.mergeSiblings(p, idx, parent, slot, replacement, rightSib)
}

func (t *Tree) continueRebalance(p path, idx int, newHandle arena.Handle) error {
	if idx == 0 {
		if newHandle != t.root {
			priorRoot, priorHeight := t.root, t.height
			t.log = append(t.log, rollbackRec{kind: recRootChange, priorRoot: priorRoot, priorHeight: priorHeight})
			t.root = newHandle
		}
		return nil
	}
	parent := p.nodes[idx-1]
	slot := p.slots[idx-1]
	h, err := t.applyChildSwap(parent, slot, newHandle)
	if err != nil {
		return err
	}
	return t.continueRebalance(p, idx-1, h)
}

// borrowFromLeft rotates the left sibling's last key through the parent
// separator into replacement (the underflowed node).
func (t *Tree) borrowFromLeft(p path, idx int, parent *Node, slot int, left *Node, under *Node) error {
	sep := parent.Keys[slot-1]
	newUnderKeys := append([]*Entry{sep}, under.Keys...)
	newLeftKeys := append([]*Entry{}, left.Keys[:len(left.Keys)-1]...)
	newSep := left.Keys[len(left.Keys)-1]

	newUnder := &Node{Leaf: under.Leaf, Keys: newUnderKeys}
	newLeft := &Node{Leaf: left.Leaf, Keys: newLeftKeys}
	if !under.Leaf {
		movedChild := left.viewChildren(math.MaxUint64)
		lastChild := movedChild[len(movedChild)-1]
		newUnder.Children = append([]arena.Handle{lastChild}, under.viewChildren(math.MaxUint64)...)
		newLeft.Children = movedChild[:len(movedChild)-1]
	}
	if err := t.allocNode(newUnder); err != nil {
		return err
	}
	if err := t.allocNode(newLeft); err != nil {
		return err
	}

	newParentKeys := cloneEntries(parent.Keys)
	newParentKeys[slot-1] = newSep
	newParentChildren := parent.viewChildren(math.MaxUint64)
	newParentChildren[slot-1] = newLeft.Handle
	newParentChildren[slot] = newUnder.Handle
	newParent := &Node{Leaf: false, Keys: newParentKeys, Children: newParentChildren}
	if err := t.allocNode(newParent); err != nil {
		return err
	}
	return t.continueRebalance(p, idx-1, newParent.Handle)
}

// borrowFromRight mirrors borrowFromLeft using the right sibling.
func (t *Tree) borrowFromRight(p path, idx int, parent *Node, slot int, right *Node, under *Node) error {
	sep := parent.Keys[slot]
	newUnderKeys := append(append([]*Entry{}, under.Keys...), sep)
	newRightKeys := append([]*Entry{}, right.Keys[1:]...)
	newSep := right.Keys[0]

	newUnder := &Node{Leaf: under.Leaf, Keys: newUnderKeys}
	newRight := &Node{Leaf: right.Leaf, Keys: newRightKeys}
	if !under.Leaf {
		movedChild := right.viewChildren(math.MaxUint64)
		firstChild := movedChild[0]
		newUnder.Children = append(under.viewChildren(math.MaxUint64), firstChild)
		newRight.Children = movedChild[1:]
	}
	if err := t.allocNode(newUnder); err != nil {
		return err
	}
	if err := t.allocNode(newRight); err != nil {
		return err
	}

	newParentKeys := cloneEntries(parent.Keys)
	newParentKeys[slot] = newSep
	newParentChildren := parent.viewChildren(math.MaxUint64)
	newParentChildren[slot] = newUnder.Handle
	newParentChildren[slot+1] = newRight.Handle
	newParent := &Node{Leaf: false, Keys: newParentKeys, Children: newParentChildren}
	if err := t.allocNode(newParent); err != nil {
		return err
	}
	return t.continueRebalance(p, idx-1, newParent.Handle)
}

// mergeSiblings combines left and right (one of which is the underflowed
// node) plus the separating parent key into a single node, removing that
// key/child pair from the parent — which may itself then underflow,
// continuing the rebalance one level up.
func (t *Tree) mergeSiblings(p path, idx int, parent *Node, leftSlot int, left *Node, right *Node) error {
	sep := parent.Keys[leftSlot]
	mergedKeys := append(append(append([]*Entry{}, left.Keys...), sep), right.Keys...)
	merged := &Node{Leaf: left.Leaf, Keys: mergedKeys}
	if !left.Leaf {
		merged.Children = append(append([]arena.Handle{}, left.viewChildren(math.MaxUint64)...), right.viewChildren(math.MaxUint64)...)
	}
	if err := t.allocNode(merged); err != nil {
		return err
	}

	newParentKeys := append(append([]*Entry{}, parent.Keys[:leftSlot]...), parent.Keys[leftSlot+1:]...)
	children := parent.viewChildren(math.MaxUint64)
	newParentChildren := append(append([]arena.Handle{}, children[:leftSlot]...), children[leftSlot+2:]...)
	newParentChildren = insertHandleAt(newParentChildren, leftSlot, merged.Handle)
	newParent := &Node{Leaf: false, Keys: newParentKeys, Children: newParentChildren}
	if err := t.allocNode(newParent); err != nil {
		return err
	}
	return t.rebalanceUp(p, idx-1, newParent)
}

func insertHandleAt(s []arena.Handle, i int, h arena.Handle) []arena.Handle {
	s = append(s, arena.Nil)
	copy(s[i+1:], s[i:])
	s[i] = h
	return s
}

