package fsys

import (
	"sync"
	"sync/atomic"
)

// Fid is a client handle on a node. The position is not authoritative
// (callers pass explicit offsets); Aux is scratch owned by the file the
// fid is open on. Cancel is closed when the fid is clunked so that a
// blocked read wakes up and aborts.
type Fid struct {
	ID   uint64
	Node *Node
	Aux  interface{}

	once   sync.Once
	cancel chan struct{}
}

var fidGen uint64

// NewFid allocates a handle on node. The 9P adapter allocates one per
// protocol fid; in-process clients (routes) allocate their own.
func NewFid(node *Node) *Fid {
	return &Fid{
		ID:     atomic.AddUint64(&fidGen, 1),
		Node:   node,
		cancel: make(chan struct{}),
	}
}

// Cancel returns the channel a blocking read must select on.
func (f *Fid) Cancel() <-chan struct{} { return f.cancel }

// Clunk destroys the handle: wakes any blocked read and gives the file
// a chance to free per-fid scratch.
func (f *Fid) Clunk() {
	f.once.Do(func() { close(f.cancel) })
	if f.Node != nil && !f.Node.IsDir() {
		f.Node.File().Clunk(f)
	}
}
