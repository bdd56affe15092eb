package scenefs

import (
	"strings"
	"sync"

	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/linuxerr"
	"github.com/peripherialabs/peribus/internal/script"
	"github.com/peripherialabs/peribus/internal/stream"
	log "github.com/sirupsen/logrus"
)

// ContextFile serves the compacted program text. A read returns the
// latest compaction as soon as one exists; once it has been read to
// EOF, the next read at offset zero blocks until the next successful
// execution refreshes it, so agents can cat it every cycle and get a
// fresh coherent view.
type ContextFile struct {
	interp *script.Interp

	mu        sync.Mutex
	fragments []string

	buf *stream.Buffer
}

func newContextFile(interp *script.Interp) *ContextFile {
	return &ContextFile{
		interp: interp,
		buf:    stream.NewBuffer(stream.Blocking),
	}
}

// AppendCode records a successfully executed fragment and publishes
// the new compaction as the next readable batch. Compaction failures
// fall back to the raw concatenation.
func (c *ContextFile) AppendCode(code string) {
	c.mu.Lock()
	c.fragments = append(c.fragments, code)
	fragments := append([]string(nil), c.fragments...)
	c.mu.Unlock()

	text, err := script.Compact(fragments, c.interp)
	if err != nil {
		log.WithField("err", err).Warning("Context compaction failed, emitting raw concatenation")
		var raw strings.Builder
		for _, f := range fragments {
			raw.WriteString(strings.TrimRight(f, "\n"))
			raw.WriteByte('\n')
		}
		text = raw.String()
	}
	c.buf.Set([]byte(text))
}

// Fragments returns the append log (state envelope, tests).
func (c *ContextFile) Fragments() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.fragments...)
}

func (c *ContextFile) Read(fid *fsys.Fid, offset int64, count int) ([]byte, error) {
	return c.buf.Read(offset, count, fid.Cancel())
}

func (c *ContextFile) Write(fid *fsys.Fid, offset int64, data []byte) (int, error) {
	return 0, linuxerr.EPERM
}

func (c *ContextFile) Clunk(fid *fsys.Fid) {}

func (c *ContextFile) SizeHint() int64 { return int64(c.buf.Len()) }
