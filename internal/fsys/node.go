// Package fsys holds the synthetic file tree: directories with ordered
// children, file nodes dispatching to per-file implementations, and the
// fid handles clients hold on them. It is protocol-agnostic; the 9P
// adapter in cmd/peribusfs translates go9p requests into calls on this
// package, and the routes manager drives it directly in-process.
package fsys

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/peripherialabs/peribus/internal/linuxerr"
)

// File is the contract a synthetic file implements. Read may block
// (streaming files); Write must not. Clunk releases any per-fid scratch
// the file hung off the fid.
type File interface {
	Read(f *Fid, offset int64, count int) ([]byte, error)
	Write(f *Fid, offset int64, data []byte) (int, error)
	Clunk(f *Fid)
	SizeHint() int64
}

// Node is a member of the tree: a directory or a file. Identity is the
// node itself, not its name.
type Node struct {
	name   string
	parent *Node
	qpath  uint64

	// Exactly one of the two is set.
	file File

	mu    sync.Mutex
	order []string
	child map[string]*Node
}

var qidGen uint64

func newQpath() uint64 { return atomic.AddUint64(&qidGen, 1) }

// NewDir returns an empty directory node.
func NewDir(name string) *Node {
	return &Node{name: name, qpath: newQpath(), child: make(map[string]*Node)}
}

// NewFile returns a file node backed by impl.
func NewFile(name string, impl File) *Node {
	return &Node{name: name, qpath: newQpath(), file: impl}
}

func (n *Node) Name() string  { return n.name }
func (n *Node) Qpath() uint64 { return n.qpath }
func (n *Node) IsDir() bool   { return n.file == nil }
func (n *Node) File() File    { return n.file }

// Add appends child to the directory, keeping insertion order. Adding
// to a file or reusing a name panics: the tree shape is assembled by
// the server, not by clients, so both are programming errors.
func (n *Node) Add(child *Node) *Node {
	if !n.IsDir() {
		panic("fsys: Add on a file node")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.child[child.name]; ok {
		panic("fsys: duplicate child " + child.name)
	}
	child.parent = n
	n.child[child.name] = child
	n.order = append(n.order, child.name)
	return child
}

// Remove unlinks the named child. Used when a terminal goes away.
func (n *Node) Remove(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.child[name]; !ok {
		return
	}
	delete(n.child, name)
	for i, s := range n.order {
		if s == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// Children returns the directory's children in insertion order.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	nodes := make([]*Node, 0, len(n.order))
	for _, name := range n.order {
		nodes = append(nodes, n.child[name])
	}
	return nodes
}

// Lookup resolves one name in the directory.
func (n *Node) Lookup(name string) (*Node, error) {
	if !n.IsDir() {
		return nil, linuxerr.EACCES
	}
	if name == ".." {
		if n.parent == nil {
			return n, nil
		}
		return n.parent, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if child, ok := n.child[name]; ok {
		return child, nil
	}
	return nil, linuxerr.ENOENT
}

// Path returns the node's path from the root, starting with a slash.
func (n *Node) Path() string {
	if n.parent == nil {
		return "/"
	}
	var elems []string
	for m := n; m.parent != nil; m = m.parent {
		elems = append(elems, m.name)
	}
	for i, j := 0, len(elems)-1; i < j; i, j = i+1, j-1 {
		elems[i], elems[j] = elems[j], elems[i]
	}
	return "/" + strings.Join(elems, "/")
}

// Resolve walks a slash-separated absolute path from n.
func (n *Node) Resolve(path string) (*Node, error) {
	node := n
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		child, err := node.Lookup(name)
		if err != nil {
			return nil, err
		}
		node = child
	}
	return node, nil
}
