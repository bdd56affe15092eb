package termfs

import (
	"sync"

	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/linuxerr"
	log "github.com/sirupsen/logrus"
)

// Registry owns the live terminals and the terms directory node.
type Registry struct {
	opts Options
	dir  *fsys.Node

	mu    sync.Mutex
	terms map[string]*Terminal
}

func NewRegistry(dir *fsys.Node, opts Options) *Registry {
	return &Registry{opts: opts, dir: dir, terms: make(map[string]*Terminal)}
}

// Spawn starts a shell and mounts its directory under terms/.
func (r *Registry) Spawn() (*Terminal, error) {
	t := newTerminal(r.opts)
	t.onExit = func(exited *Terminal) {
		log.WithField("term", exited.ID).Info("Shell exited, removing terminal")
		r.remove(exited)
	}
	if err := t.start(); err != nil {
		return nil, err
	}
	r.attach(t)
	return t, nil
}

// attach wires an already-started terminal into the tree. Tests use it
// with pipe-backed terminals.
func (r *Registry) attach(t *Terminal) {
	r.mu.Lock()
	r.terms[t.ID] = t
	r.mu.Unlock()
	r.dir.Add(t.buildNode())
}

func (r *Registry) remove(t *Terminal) {
	r.mu.Lock()
	delete(r.terms, t.ID)
	r.mu.Unlock()
	r.dir.Remove(t.ID)
}

// Get looks a terminal up by id.
func (r *Registry) Get(id string) (*Terminal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.terms[id]
	if !ok {
		return nil, linuxerr.ENOENT
	}
	return t, nil
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.terms)
}

// StopAll destroys every terminal (server shutdown): SIGTERM to each
// shell's process group.
func (r *Registry) StopAll() {
	r.mu.Lock()
	terms := make([]*Terminal, 0, len(r.terms))
	for _, t := range r.terms {
		terms = append(terms, t)
	}
	r.terms = make(map[string]*Terminal)
	r.mu.Unlock()
	for _, t := range terms {
		t.destroy()
		r.dir.Remove(t.ID)
	}
}
