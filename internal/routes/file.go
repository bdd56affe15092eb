package routes

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/linuxerr"
)

// File is the public interface to the manager: one line per attachment
// on read, "src -> dst" or "-src" on write.
type File struct {
	mgr  *Manager
	snap fsys.SnapshotFile
}

func NewFile(mgr *Manager) *File {
	f := &File{mgr: mgr}
	f.snap.Build = func(fid *fsys.Fid) ([]byte, error) {
		var b bytes.Buffer
		rr := mgr.ListRoutes()
		if len(rr) == 0 {
			b.WriteString("(no routes)\n")
			return b.Bytes(), nil
		}
		for _, r := range rr {
			state := "stopped"
			if r.Running() {
				state = "running"
			}
			fmt.Fprintf(&b, "%s -> %s [%s]\n", r.Source, r.Destination, state)
		}
		return b.Bytes(), nil
	}
	return f
}

func (f *File) Read(fid *fsys.Fid, offset int64, count int) ([]byte, error) {
	return f.snap.Read(fid, offset, count)
}

func (f *File) Write(fid *fsys.Fid, offset int64, data []byte) (int, error) {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") {
			source := strings.TrimSpace(line[1:])
			if source == "" {
				return 0, fmt.Errorf("empty source in %q: %w", line, linuxerr.EINVAL)
			}
			if !f.mgr.RemoveRoute(source) {
				return 0, fmt.Errorf("no route for %s: %w", source, linuxerr.ENOENT)
			}
			continue
		}
		parts := strings.Split(line, " -> ")
		if len(parts) != 2 {
			return 0, fmt.Errorf("want SRC -> DST or -SRC, got %q: %w", line, linuxerr.EINVAL)
		}
		source := strings.TrimSpace(parts[0])
		destination := strings.TrimSpace(parts[1])
		if source == "" || destination == "" {
			return 0, fmt.Errorf("want SRC -> DST, got %q: %w", line, linuxerr.EINVAL)
		}
		f.mgr.AddRoute(source, destination)
	}
	return len(data), nil
}

func (f *File) Clunk(fid *fsys.Fid) { f.snap.Clunk(fid) }

func (f *File) SizeHint() int64 { return 0 }
