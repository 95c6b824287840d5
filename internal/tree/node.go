package tree

import "github.com/tidalstore/lsmtree/internal/arena"

const (
	maxKeys     = 3 // order-4 B-tree: leaves/internal nodes hold up to 3 keys
	maxChildren = 4
)

// v2Override is the single in-place MVCC override a node may carry: a
// replacement child handle for one child slot, valid for readers
// observing txid >= ValidAt.
type v2Override struct {
	Slot    int
	Child   arena.Handle
	ValidAt uint64
}

// Node is a B-tree node. Handles for this node and its children are keys
// into Tree.nodes (see package doc in arena for why live nodes are kept
// in a side table rather than packed into arena bytes).
type Node struct {
	Handle   arena.Handle
	Leaf     bool
	Keys     []*Entry       // up to maxKeys, ascending by Compare
	Children []arena.Handle // len(Keys)+1 when !Leaf, else nil
	V2       *v2Override
}

// childAt resolves child slot i, following the v2 override when present
// and applicable. Readers call this with their own snapshot txid; the
// writer (which always wants the latest view) calls it with
// math.MaxUint64.
func (n *Node) childAt(i int, readerTxid uint64) arena.Handle {
	if n.V2 != nil && n.V2.Slot == i && readerTxid >= n.V2.ValidAt {
		return n.V2.Child
	}
	return n.Children[i]
}

// viewChildren returns the slice of children as a reader at
// readerTxid would see them (override folded in), without mutating n.
func (n *Node) viewChildren(readerTxid uint64) []arena.Handle {
	out := make([]arena.Handle, len(n.Children))
	for i := range n.Children {
		out[i] = n.childAt(i, readerTxid)
	}
	return out
}

// LogRegion mirrors one write-ahead-log region's [start,end) extent, as
// captured in a tree header's log snapshot.
type LogRegion struct {
	Start uint64
	End   uint64
}

// Header is the tree's published header: root handle, height, byte
// usage, current txid, shm chunk bookkeeping, a log-region snapshot, a
// user version, and two checksums. internal/concurrency maintains two
// checksummed copies of this struct (hdr1/hdr2).
type Header struct {
	Root         arena.Handle
	Height       uint32
	TotalBytes   uint64
	Txid         uint64
	FirstChunk   uint64 // iFirst chunk sequence id
	NextChunk    uint64 // iNextShmid
	UsedChunk    uint64 // iUsedShmid
	WriteOffset  uint32
	LogRegions   [3]LogRegion // R0, R1, R2
	UserVersion  uint32
	Checksum1    uint32
	Checksum2    uint32
}

// Clone returns a value copy of h, used before mutating one of the two
// published copies.
func (h Header) Clone() Header { return h }
