// Package scene holds the registered display items, the display
// settings, and the snapshot history behind undo/redo/goto. It knows
// nothing about files; the scenefs package maps it onto the tree.
package scene

import (
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Item is one registered scene element. Props carry only JSON-friendly
// values (numbers, strings, bools, lists).
type Item struct {
	ID    string                 `json:"id"`
	Kind  string                 `json:"kind"`
	Props map[string]interface{} `json:"props"`
}

// Settings are the display parameters the root ctl exposes.
type Settings struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Background string `json:"background"`
}

// Manager owns the items and the version store. All mutations happen
// under mu in short critical sections; long work (rendering, encoding)
// copies out first.
type Manager struct {
	mu         sync.Mutex
	items      []*Item
	registered map[string]*Item
	settings   Settings
	nextItem   int
	generation uint64

	snapshots   []*Snapshot
	redo        []*Snapshot
	current     uint64
	nextVersion uint64
}

func NewManager() *Manager {
	m := &Manager{
		registered: make(map[string]*Item),
		settings:   Settings{Width: 800, Height: 600, Background: "#1e1e1e"},
	}
	// Baseline snapshot so undo from the first user version lands on
	// an empty scene.
	m.takeSnapshotLocked("empty", "")
	return m
}

// RegisterItem adds the item and assigns its id.
func (m *Manager) RegisterItem(kind string, props map[string]interface{}) *Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextItem++
	item := &Item{
		ID:    fmt.Sprintf("%s-%d", kind, m.nextItem),
		Kind:  kind,
		Props: props,
	}
	m.items = append(m.items, item)
	m.registered[item.ID] = item
	m.generation++
	return item
}

// RemoveItem unregisters the item (the DSL's item.remove()).
func (m *Manager) RemoveItem(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registered[id]; !ok {
		return false
	}
	delete(m.registered, id)
	for i, it := range m.items {
		if it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			break
		}
	}
	m.generation++
	return true
}

// IsRegistered reports whether the item is still part of the scene.
// The compactor uses this to elide creations of dead widgets.
func (m *Manager) IsRegistered(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.registered[id]
	return ok
}

// Items returns a copy of the registered items in registration order.
func (m *Manager) Items() []*Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyItemsLocked()
}

func (m *Manager) copyItemsLocked() []*Item {
	items := make([]*Item, 0, len(m.items))
	for _, it := range m.items {
		props := make(map[string]interface{}, len(it.Props))
		for k, v := range it.Props {
			props[k] = v
		}
		items = append(items, &Item{ID: it.ID, Kind: it.Kind, Props: props})
	}
	return items
}

func (m *Manager) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Clear discards all items. The caller decides whether to snapshot
// first (the ctl clear verb does).
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	m.registered = make(map[string]*Item)
	m.generation++
}

// Refresh requests a redraw from registered items. Rendering is lazy
// (the screen file renders on read), so this just invalidates caches.
func (m *Manager) Refresh() {
	m.mu.Lock()
	m.generation++
	m.mu.Unlock()
}

// Generation changes whenever the visible scene changes; the screen
// file keys its render cache on it.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

func (m *Manager) Resize(w, h int) {
	m.mu.Lock()
	m.settings.Width, m.settings.Height = w, h
	m.generation++
	m.mu.Unlock()
}

func (m *Manager) SetBackground(color string) {
	m.mu.Lock()
	m.settings.Background = color
	m.generation++
	m.mu.Unlock()
}

func (m *Manager) SetSettings(s Settings) {
	m.mu.Lock()
	m.settings = s
	m.generation++
	m.mu.Unlock()
}

// ToJSON serializes the registered items.
func (m *Manager) ToJSON() ([]byte, error) {
	m.mu.Lock()
	items := m.copyItemsLocked()
	m.mu.Unlock()
	return json.Marshal(items)
}

// FromJSON replaces the scene with the given serialized items.
func (m *Manager) FromJSON(data []byte) error {
	var items []*Item
	if err := json.Unmarshal(data, &items); err != nil {
		return errorf("Manager.FromJSON", "%v", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	m.registered = make(map[string]*Item)
	for _, it := range items {
		if it.ID == "" {
			m.nextItem++
			it.ID = fmt.Sprintf("%s-%d", it.Kind, m.nextItem)
		}
		m.items = append(m.items, it)
		m.registered[it.ID] = it
	}
	m.generation++
	return nil
}

func (m *Manager) restoreLocked(state []byte) {
	var items []*Item
	if err := json.Unmarshal(state, &items); err != nil {
		log.WithField("err", err).Warning("Could not restore scene state from snapshot")
		return
	}
	m.items = items
	m.registered = make(map[string]*Item)
	for _, it := range m.items {
		m.registered[it.ID] = it
	}
	m.generation++
}
