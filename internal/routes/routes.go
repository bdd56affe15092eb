// Package routes implements attachments: persistent tail-style pipes
// from one file to another, built entirely over the file contract. A
// route's worker repeatedly opens the source, reads it to EOF
// (blocking while the source has nothing), and appends what it got to
// the destination. EOF rearms the source's blocking-read state, so one
// worker drives the file perpetually without busy-polling.
package routes

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

// Handle is one open file on either side of a route.
type Handle interface {
	// ReadAll reads to EOF, blocking as the file dictates.
	ReadAll() ([]byte, error)
	// WriteAll appends the payload.
	WriteAll(p []byte) error
	Close()
	// Polling reports that reads return immediately instead of
	// blocking, so the worker must pace itself.
	Polling() bool
}

// Opener resolves a path to a Handle. Paths inside the synthetic tree
// resolve there; anything else falls through to the host filesystem.
type Opener interface {
	Open(path string) (Handle, error)
}

// EventKind says what happened to the route set.
type EventKind int

const (
	EventAdd EventKind = iota
	EventRemove
)

type Event struct {
	Kind        EventKind
	Source      string
	Destination string
}

// Seekable is implemented by polling handles that can resume a tail
// from a byte offset (host files).
type Seekable interface {
	SetOffset(offset int64)
}

// Route is one attachment. At most one exists per source path.
type Route struct {
	Source      string
	Destination string

	mgr  *Manager
	stop chan struct{}

	mu      sync.Mutex
	running bool
	current Handle

	hostOffset int64
}

// Manager owns the attachments.
type Manager struct {
	opener    Opener
	mountRoot string

	mu        sync.Mutex
	routes    map[string]*Route
	order     []string
	listeners []func(Event)
}

func NewManager(opener Opener, mountRoot string) *Manager {
	return &Manager{
		opener:    opener,
		mountRoot: mountRoot,
		routes:    make(map[string]*Route),
	}
}

// Subscribe registers a listener for add/remove events. UIs use this
// to reflect the route table.
func (m *Manager) Subscribe(fn func(Event)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) notify(e Event) {
	m.mu.Lock()
	listeners := append(([]func(Event))(nil), m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(e)
	}
}

// Expand turns a mount-root-relative path into an absolute one.
func (m *Manager) Expand(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return strings.TrimSuffix(m.mountRoot, "/") + "/" + path
}

// AddRoute creates an attachment. An existing attachment for the same
// source is stopped and replaced.
func (m *Manager) AddRoute(source, destination string) *Route {
	source = m.Expand(source)
	destination = m.Expand(destination)

	m.mu.Lock()
	if old, ok := m.routes[source]; ok {
		m.mu.Unlock()
		m.RemoveRoute(old.Source)
		m.mu.Lock()
	}
	r := &Route{
		Source:      source,
		Destination: destination,
		mgr:         m,
		stop:        make(chan struct{}),
		running:     true,
	}
	m.routes[source] = r
	m.order = append(m.order, source)
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"source":      source,
		"destination": destination,
	}).Info("Route attached")
	go r.run()
	m.notify(Event{Kind: EventAdd, Source: source, Destination: destination})
	return r
}

// RemoveRoute stops and forgets the attachment for source.
func (m *Manager) RemoveRoute(source string) bool {
	source = m.Expand(source)
	m.mu.Lock()
	r, ok := m.routes[source]
	if ok {
		delete(m.routes, source)
		for i, s := range m.order {
			if s == source {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	r.cancel()
	log.WithField("source", source).Info("Route removed")
	m.notify(Event{Kind: EventRemove, Source: source, Destination: r.Destination})
	return true
}

// ListRoutes returns the attachments in creation order.
func (m *Manager) ListRoutes() []*Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Route, 0, len(m.order))
	for _, source := range m.order {
		out = append(out, m.routes[source])
	}
	return out
}

// StopAll cancels every attachment and waits for the workers to go.
func (m *Manager) StopAll() {
	m.mu.Lock()
	routes := make([]*Route, 0, len(m.routes))
	for _, r := range m.routes {
		routes = append(routes, r)
	}
	m.routes = make(map[string]*Route)
	m.order = nil
	m.mu.Unlock()

	var g errgroup.Group
	for _, r := range routes {
		r := r
		g.Go(func() error {
			r.cancel()
			return nil
		})
	}
	_ = g.Wait()
}

// Running reports whether the worker is alive.
func (r *Route) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Route) cancel() {
	r.mu.Lock()
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	current := r.current
	r.mu.Unlock()
	if current != nil {
		current.Close()
	}
}

func (r *Route) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *Route) setCurrent(h Handle) {
	r.mu.Lock()
	r.current = h
	r.mu.Unlock()
}

// run is the tail loop.
func (r *Route) run() {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()
	const retry = time.Second
	for !r.stopped() {
		src, err := r.mgr.opener.Open(r.Source)
		if err != nil {
			log.WithFields(log.Fields{
				"source": r.Source,
				"err":    err,
			}).Warning("Route could not open source")
			r.sleep(retry)
			continue
		}
		if s, ok := src.(Seekable); ok {
			s.SetOffset(r.hostOffset)
		}
		r.setCurrent(src)
		data, err := src.ReadAll()
		polling := src.Polling()
		r.setCurrent(nil)
		src.Close()
		if r.stopped() {
			return
		}
		if err != nil {
			r.sleep(retry)
			continue
		}
		if len(data) > 0 {
			if polling {
				r.hostOffset += int64(len(data))
			}
			for {
				err := r.deliver(data)
				if err == nil {
					break
				}
				log.WithFields(log.Fields{
					"destination": r.Destination,
					"err":         err,
				}).Warning("Route could not deliver, retrying")
				r.sleep(retry)
				if r.stopped() {
					return
				}
			}
		}
		if polling {
			// Host files have no blocking read to park on.
			r.sleep(500 * time.Millisecond)
		}
	}
}

func (r *Route) deliver(data []byte) error {
	dst, err := r.mgr.opener.Open(r.Destination)
	if err != nil {
		return err
	}
	defer dst.Close()
	return dst.WriteAll(data)
}

func (r *Route) sleep(d time.Duration) {
	select {
	case <-r.stop:
	case <-time.After(d):
	}
}
