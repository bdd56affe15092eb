package scenefs

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/linuxerr"
)

// versionFile lists the snapshot history and accepts undo, redo, or a
// decimal version number. Failed operations do not error the write;
// they leave a note in the status, which is where file-reading agents
// look.
type versionFile struct {
	s *Surface

	mu   sync.Mutex
	note string

	snap fsys.SnapshotFile
}

func newVersionFile(s *Surface) *versionFile {
	f := &versionFile{s: s}
	f.snap.Build = func(fid *fsys.Fid) ([]byte, error) {
		var b bytes.Buffer
		m := s.scene
		current := m.CurrentVersion()
		for _, snap := range m.Snapshots() {
			fmt.Fprintf(&b, "%d\t%d items\t%s", snap.Version, snap.ItemCount, snap.Label)
			if snap.Version == current {
				b.WriteString(" *")
			}
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "current %d\n", current)
		fmt.Fprintf(&b, "can_undo %t\n", m.CanUndo())
		fmt.Fprintf(&b, "can_redo %t\n", m.CanRedo())
		f.mu.Lock()
		if f.note != "" {
			fmt.Fprintf(&b, "note %s\n", f.note)
		}
		f.mu.Unlock()
		return b.Bytes(), nil
	}
	return f
}

func (f *versionFile) setNote(note string) {
	f.mu.Lock()
	f.note = note
	f.mu.Unlock()
}

func (f *versionFile) Read(fid *fsys.Fid, offset int64, count int) ([]byte, error) {
	return f.snap.Read(fid, offset, count)
}

func (f *versionFile) Write(fid *fsys.Fid, offset int64, data []byte) (int, error) {
	cmd := strings.TrimSpace(string(data))
	switch cmd {
	case "undo":
		if f.s.scene.Undo() == nil {
			f.setNote("nothing to undo")
		} else {
			f.setNote("")
		}
	case "redo":
		if f.s.scene.Redo() == nil {
			f.setNote("nothing to redo")
		} else {
			f.setNote("")
		}
	default:
		v, err := strconv.ParseUint(cmd, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("want undo, redo or a version number, got %q: %w", cmd, linuxerr.EINVAL)
		}
		if f.s.scene.GotoVersion(v) == nil {
			f.setNote(fmt.Sprintf("version %d not found", v))
		} else {
			f.setNote("")
		}
	}
	return len(data), nil
}

func (f *versionFile) Clunk(fid *fsys.Fid) { f.snap.Clunk(fid) }

func (f *versionFile) SizeHint() int64 { return 0 }
