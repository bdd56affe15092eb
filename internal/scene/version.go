package scene

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is an immutable record of scene state plus the code that
// produced it, identified by a monotonic version number.
type Snapshot struct {
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
	Code      string    `json:"code"`
	ItemCount int       `json:"item_count"`

	state []byte
}

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/peripherialabs/peribus/internal/scene."+typeMethod+": "+format, a...)
}

// TakeSnapshot captures the scene under the next version number. A
// snapshot taken while redo history exists truncates it.
func (m *Manager) TakeSnapshot(label, code string) *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.takeSnapshotLocked(label, code)
}

func (m *Manager) takeSnapshotLocked(label, code string) *Snapshot {
	state, err := json.Marshal(m.copyItemsLocked())
	if err != nil {
		// Items hold only JSON-friendly values; this cannot happen
		// short of a bug, and the caller still needs a version.
		state = []byte("[]")
	}
	s := &Snapshot{
		Version:   m.nextVersion,
		Timestamp: time.Now(),
		Label:     label,
		Code:      code,
		ItemCount: len(m.items),
		state:     state,
	}
	m.nextVersion++
	m.snapshots = append(m.snapshots, s)
	m.redo = nil
	m.current = s.Version
	return s
}

func (m *Manager) indexOfLocked(version uint64) int {
	for i, s := range m.snapshots {
		if s.Version == version {
			return i
		}
	}
	return -1
}

// Undo steps one snapshot back, or returns nil at the oldest.
func (m *Manager) Undo() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOfLocked(m.current)
	if i <= 0 {
		return nil
	}
	m.redo = append(m.redo, m.snapshots[i])
	target := m.snapshots[i-1]
	m.restoreLocked(target.state)
	m.current = target.Version
	return target
}

// Redo reverses the latest undo, or returns nil if there is nothing to
// redo.
func (m *Manager) Redo() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.redo) == 0 {
		return nil
	}
	target := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.restoreLocked(target.state)
	m.current = target.Version
	return target
}

// GotoVersion jumps to an arbitrary snapshot and clears the redo
// history.
func (m *Manager) GotoVersion(version uint64) *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOfLocked(version)
	if i < 0 {
		return nil
	}
	target := m.snapshots[i]
	m.restoreLocked(target.state)
	m.current = target.Version
	m.redo = nil
	return target
}

// Snapshots returns the snapshot records ordered by version. The
// records are shared; callers must not mutate them.
func (m *Manager) Snapshots() []*Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Snapshot(nil), m.snapshots...)
}

func (m *Manager) CurrentVersion() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexOfLocked(m.current) > 0
}

func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}
