package fsys

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/peripherialabs/peribus/internal/linuxerr"
)

// SnapshotFile is a file whose content is built per fid on every read
// at offset zero (or on the fid's first read) and served from that
// cache for reads at later offsets, until the next offset-zero read or
// the clunk. This keeps multi-read sequences (any read larger
// than one message) coherent even if the underlying state changes
// between messages.
type SnapshotFile struct {
	Build func(f *Fid) ([]byte, error)

	// WriteTo, when non-nil, accepts writes; otherwise writing fails
	// with permission denied.
	WriteTo func(f *Fid, offset int64, data []byte) (int, error)
}

func (s *SnapshotFile) Read(f *Fid, offset int64, count int) ([]byte, error) {
	content, ok := f.Aux.([]byte)
	if !ok || offset == 0 {
		b, err := s.Build(f)
		if err != nil {
			return nil, err
		}
		f.Aux = b
		content = b
	}
	if offset >= int64(len(content)) {
		return nil, nil
	}
	end := offset + int64(count)
	if end > int64(len(content)) {
		end = int64(len(content))
	}
	return content[offset:end], nil
}

func (s *SnapshotFile) Write(f *Fid, offset int64, data []byte) (int, error) {
	if s.WriteTo == nil {
		return 0, linuxerr.EPERM
	}
	return s.WriteTo(f, offset, data)
}

func (s *SnapshotFile) Clunk(f *Fid) { f.Aux = nil }

func (s *SnapshotFile) SizeHint() int64 { return 0 }

// CtlFile is a line-oriented command file. Writes carry single-line
// commands, first whitespace-delimited token is the verb; reads return
// a multi-line "key value" status.
type CtlFile struct {
	// Status appends "key value" lines to the buffer.
	Status func(b *bytes.Buffer)

	// Run executes one verb. Returning ErrUnknownVerb converts to a
	// usage error.
	Run func(verb, arg string) error

	snap SnapshotFile
}

// ErrUnknownVerb is returned by Run implementations for verbs they do
// not recognize.
var ErrUnknownVerb = fmt.Errorf("unknown verb")

func NewCtlFile(status func(b *bytes.Buffer), run func(verb, arg string) error) *CtlFile {
	c := &CtlFile{Status: status, Run: run}
	c.snap.Build = func(f *Fid) ([]byte, error) {
		var b bytes.Buffer
		c.Status(&b)
		return b.Bytes(), nil
	}
	return c
}

func (c *CtlFile) Read(f *Fid, offset int64, count int) ([]byte, error) {
	return c.snap.Read(f, offset, count)
}

func (c *CtlFile) Write(f *Fid, offset int64, data []byte) (int, error) {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		verb := line
		arg := ""
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			verb, arg = line[:i], strings.TrimSpace(line[i:])
		}
		if err := c.Run(verb, arg); err != nil {
			if err == ErrUnknownVerb {
				return 0, fmt.Errorf("%s: %w", verb, linuxerr.EINVAL)
			}
			return 0, err
		}
	}
	return len(data), nil
}

func (c *CtlFile) Clunk(f *Fid) { c.snap.Clunk(f) }

func (c *CtlFile) SizeHint() int64 { return 0 }
