package scenefs

import (
	"github.com/peripherialabs/peribus/internal/fsys"
)

// BuildDir assembles the scene directory.
func (s *Surface) BuildDir() *fsys.Node {
	dir := fsys.NewDir("scene")
	dir.Add(fsys.NewFile("ctl", newSceneCtl(s)))
	dir.Add(fsys.NewFile("parse", &parseFile{s: s}))
	dir.Add(fsys.NewFile("stdout", &streamFile{buf: s.stdout}))
	dir.Add(fsys.NewFile("STDERR", &streamFile{buf: s.stderr}))
	dir.Add(fsys.NewFile("vars", newVarsFile(s)))
	dir.Add(fsys.NewFile("state", &stateFile{s: s}))
	dir.Add(fsys.NewFile("version", newVersionFile(s)))
	return dir
}

// ScreenFile is the root-level PNG view of the scene.
func (s *Surface) ScreenFile() fsys.File { return newScreenFile(s) }

// ContextNode returns the root-level CONTEXT node, which serves the
// compacted program text (see ContextFile).
func (s *Surface) ContextNode() *fsys.Node {
	return fsys.NewFile("CONTEXT", s.context)
}
