package scenefs

import (
	"strings"

	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/script"
)

// parseFile accumulates writes per fid and executes the drained buffer
// on clunk. Reading answers whether this fid has anything pending.
type parseFile struct {
	s *Surface
}

func (f *parseFile) assembler(fid *fsys.Fid) *script.Assembler {
	if a, ok := fid.Aux.(*script.Assembler); ok {
		return a
	}
	a := &script.Assembler{}
	fid.Aux = a
	return a
}

func (f *parseFile) Read(fid *fsys.Fid, offset int64, count int) ([]byte, error) {
	status := "ready\n"
	if a, ok := fid.Aux.(*script.Assembler); ok && !a.Empty() {
		status = "buffering...\n"
	}
	if offset >= int64(len(status)) {
		return nil, nil
	}
	return []byte(status)[offset:], nil
}

func (f *parseFile) Write(fid *fsys.Fid, offset int64, data []byte) (int, error) {
	f.assembler(fid).Write(data)
	return len(data), nil
}

func (f *parseFile) Clunk(fid *fsys.Fid) {
	a, ok := fid.Aux.(*script.Assembler)
	fid.Aux = nil
	if !ok {
		return
	}
	if code := a.Drain(); strings.TrimSpace(code) != "" {
		f.s.Run(code)
	}
}

func (f *parseFile) SizeHint() int64 { return 0 }
