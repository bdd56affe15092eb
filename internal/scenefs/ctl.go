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

// newSceneCtl is the scene's control file. Commands with output
// (export) leave it readable on the ctl, the way the version ops leave
// their status.
func newSceneCtl(s *Surface) *fsys.CtlFile {
	var mu sync.Mutex
	var lastOutput []byte
	setOutput := func(p []byte) {
		mu.Lock()
		lastOutput = p
		mu.Unlock()
	}
	status := func(b *bytes.Buffer) {
		mu.Lock()
		out := lastOutput
		mu.Unlock()
		if len(out) > 0 {
			b.Write(out)
			return
		}
		m := s.scene
		fmt.Fprintf(b, "items %d\n", m.ItemCount())
		fmt.Fprintf(b, "version %d\n", m.CurrentVersion())
		fmt.Fprintf(b, "can_undo %t\n", m.CanUndo())
		fmt.Fprintf(b, "can_redo %t\n", m.CanRedo())
	}
	run := func(verb, arg string) error {
		switch verb {
		case "clear":
			s.scene.TakeSnapshot("before clear", "")
			s.scene.Clear()
			setOutput(nil)
		case "refresh":
			s.scene.Refresh()
			setOutput(nil)
		case "export":
			b, err := s.scene.ToJSON()
			if err != nil {
				return err
			}
			setOutput(append(b, '\n'))
		case "undo":
			if s.scene.Undo() == nil {
				setOutput([]byte("nothing to undo\n"))
			} else {
				setOutput(nil)
			}
		case "redo":
			if s.scene.Redo() == nil {
				setOutput([]byte("nothing to redo\n"))
			} else {
				setOutput(nil)
			}
		case "goto":
			v, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 64)
			if err != nil {
				return fmt.Errorf("goto %q: %w", arg, linuxerr.EINVAL)
			}
			if s.scene.GotoVersion(v) == nil {
				return fmt.Errorf("version %d: %w", v, linuxerr.ENOENT)
			}
			setOutput(nil)
		case "snapshot":
			label := strings.TrimSpace(arg)
			if label == "" {
				label = "manual"
			}
			s.scene.TakeSnapshot(label, "")
			setOutput(nil)
		default:
			return fsys.ErrUnknownVerb
		}
		return nil
	}
	return fsys.NewCtlFile(status, run)
}
