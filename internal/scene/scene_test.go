package scene

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func rect(m *Manager, x, y int) *Item {
	return m.RegisterItem("Rect", map[string]interface{}{"x": x, "y": y, "width": 10, "height": 10})
}

func TestUndoRedoRestoresCurrentVersion(t *testing.T) {
	m := NewManager()
	rect(m, 0, 0)
	m.TakeSnapshot("one", "Rect(0, 0)")
	rect(m, 5, 5)
	m.TakeSnapshot("two", "Rect(5, 5)")

	before := m.CurrentVersion()
	if s := m.Undo(); s == nil || s.Version != before-1 {
		t.Fatalf("undo went to %v", s)
	}
	if m.ItemCount() != 1 {
		t.Fatalf("got %d items after undo", m.ItemCount())
	}
	if !m.CanRedo() {
		t.Fatal("no redo after undo")
	}
	if s := m.Redo(); s == nil || s.Version != before {
		t.Fatalf("redo went to %v", s)
	}
	if m.CurrentVersion() != before {
		t.Fatalf("got version %d, want %d", m.CurrentVersion(), before)
	}
	if m.ItemCount() != 2 {
		t.Fatalf("got %d items after redo", m.ItemCount())
	}
}

func TestSnapshotTruncatesRedo(t *testing.T) {
	m := NewManager()
	rect(m, 0, 0)
	m.TakeSnapshot("one", "")
	rect(m, 1, 1)
	m.TakeSnapshot("two", "")
	if m.Undo() == nil {
		t.Fatal("undo failed")
	}
	rect(m, 2, 2)
	m.TakeSnapshot("three", "")
	if m.CanRedo() {
		t.Fatal("redo survived a snapshot")
	}
	if m.Redo() != nil {
		t.Fatal("redo returned a snapshot after truncation")
	}
}

func TestUndoAtOldestFails(t *testing.T) {
	m := NewManager()
	if m.Undo() != nil {
		t.Fatal("undo succeeded at the baseline")
	}
}

func TestGotoClearsRedo(t *testing.T) {
	m := NewManager()
	rect(m, 0, 0)
	one := m.TakeSnapshot("one", "")
	rect(m, 1, 1)
	m.TakeSnapshot("two", "")
	m.Undo()
	if s := m.GotoVersion(one.Version); s == nil {
		t.Fatal("goto failed")
	}
	if m.CanRedo() {
		t.Fatal("redo survived goto")
	}
	if m.GotoVersion(999) != nil {
		t.Fatal("goto of unknown version succeeded")
	}
}

func TestExportClearImportRoundTrip(t *testing.T) {
	m := NewManager()
	rect(m, 3, 4)
	m.RegisterItem("Text", map[string]interface{}{"text": "hello", "x": 1, "y": 2})
	exported, err := m.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	before := m.Items()
	m.Clear()
	if m.ItemCount() != 0 {
		t.Fatal("clear left items behind")
	}
	if err := m.FromJSON(exported); err != nil {
		t.Fatal(err)
	}
	// Numbers come back from JSON as float64, so compare the items in
	// their serialized form.
	want, err := json.Marshal(before)
	if err != nil {
		t.Fatal(err)
	}
	got, err := json.Marshal(m.Items())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(string(want), string(got)); diff != "" {
		t.Fatalf("items changed across export/import:\n%s", diff)
	}
}

func TestRemoveItem(t *testing.T) {
	m := NewManager()
	it := rect(m, 0, 0)
	if !m.IsRegistered(it.ID) {
		t.Fatal("item not registered")
	}
	if !m.RemoveItem(it.ID) {
		t.Fatal("remove failed")
	}
	if m.IsRegistered(it.ID) {
		t.Fatal("item still registered")
	}
	if m.RemoveItem(it.ID) {
		t.Fatal("second remove succeeded")
	}
}
