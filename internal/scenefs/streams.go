package scenefs

import (
	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/linuxerr"
	"github.com/peripherialabs/peribus/internal/stream"
)

// streamFile serves one of the surface's output buffers. Whether an
// idle read returns empty or blocks is the buffer's mode, decided at
// construction (stdout is state-aware, STDERR always blocks).
type streamFile struct {
	buf *stream.Buffer
}

func (f *streamFile) Read(fid *fsys.Fid, offset int64, count int) ([]byte, error) {
	return f.buf.Read(offset, count, fid.Cancel())
}

func (f *streamFile) Write(fid *fsys.Fid, offset int64, data []byte) (int, error) {
	return 0, linuxerr.EPERM
}

func (f *streamFile) Clunk(fid *fsys.Fid) {}

func (f *streamFile) SizeHint() int64 { return int64(f.buf.Len()) }
