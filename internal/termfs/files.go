package termfs

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/linuxerr"
)

var (
	errNoShell     = fmt.Errorf("shell not running: %w", linuxerr.EIO)
	errDisplayGone = fmt.Errorf("no longer exists: %w", linuxerr.EIO)
)

// buildNode assembles the terminal's directory.
func (t *Terminal) buildNode() *fsys.Node {
	dir := fsys.NewDir(t.ID)
	dir.Add(fsys.NewFile("ctl", t.ctlFile()))
	dir.Add(fsys.NewFile("stdin", &stdinFile{t: t}))
	dir.Add(fsys.NewFile("stdout", &stdoutFile{t: t}))
	dir.Add(fsys.NewFile("input", &inputFile{t: t}))
	dir.Add(fsys.NewFile("output", &outputFile{t: t}))
	dir.Add(fsys.NewFile("interrupt", &interruptFile{t: t}))
	t.node = dir
	return dir
}

// Node returns the terminal's directory node.
func (t *Terminal) Node() *fsys.Node { return t.node }

func (t *Terminal) ctlFile() *fsys.CtlFile {
	return fsys.NewCtlFile(
		func(b *bytes.Buffer) {
			t.mu.Lock()
			defer t.mu.Unlock()
			fmt.Fprintf(b, "font %d\n", t.fontSize)
			fmt.Fprintf(b, "pid %d\n", t.pid)
			agent := t.agent
			if agent == "" {
				agent = "none"
			}
			fmt.Fprintf(b, "agent %s\n", agent)
		},
		func(verb, arg string) error {
			if verb == "font" {
				n, err := strconv.Atoi(arg)
				if err != nil || n <= 0 {
					return fmt.Errorf("font %q: %w", arg, linuxerr.EINVAL)
				}
				t.mu.Lock()
				t.fontSize = n
				t.mu.Unlock()
				return nil
			}
			// Anything else is a shell command for the PTY. It passes
			// the sandbox like stdin does: a rejection lands in stdout
			// and the write still succeeds.
			line := verb
			if arg != "" {
				line += " " + arg
			}
			if ok, reason := t.opts.Validator.Validate(line); !ok {
				t.feedError("SANDBOX BLOCKED: " + reason + "\n")
				return nil
			}
			t.startCapture()
			return t.writePTY(line + "\n")
		},
	)
}

// stdin: write-only gated execution. The write succeeds even when the
// sandbox rejects; the rejection is observable only by reading stdout.
type stdinFile struct{ t *Terminal }

func (f *stdinFile) Read(fid *fsys.Fid, offset int64, count int) ([]byte, error) {
	return nil, nil
}

func (f *stdinFile) Write(fid *fsys.Fid, offset int64, data []byte) (int, error) {
	f.t.submit(string(data))
	return len(data), nil
}

func (f *stdinFile) Clunk(fid *fsys.Fid) {}

func (f *stdinFile) SizeHint() int64 { return 0 }

// stdout: always-blocking read of ANSI-stripped PTY output.
type stdoutFile struct{ t *Terminal }

func (f *stdoutFile) Read(fid *fsys.Fid, offset int64, count int) ([]byte, error) {
	return f.t.stdout.Read(offset, count, fid.Cancel())
}

func (f *stdoutFile) Write(fid *fsys.Fid, offset int64, data []byte) (int, error) {
	return 0, linuxerr.EPERM
}

func (f *stdoutFile) Clunk(fid *fsys.Fid) {}

func (f *stdoutFile) SizeHint() int64 { return int64(f.t.stdout.Len()) }

// input: write-only forwarder to the connected agent.
type inputFile struct{ t *Terminal }

func (f *inputFile) Read(fid *fsys.Fid, offset int64, count int) ([]byte, error) {
	return nil, nil
}

func (f *inputFile) Write(fid *fsys.Fid, offset int64, data []byte) (int, error) {
	if err := f.t.forwardToAgent(data); err != nil {
		return 0, fmt.Errorf("%v: %w", err, linuxerr.EIO)
	}
	return len(data), nil
}

func (f *inputFile) Clunk(fid *fsys.Fid) {}

func (f *inputFile) SizeHint() int64 { return 0 }

// output: bidirectional. Writes go to the display and into the
// blocking-read buffer; reads tail that buffer. Routes from agent
// output files end here.
type outputFile struct{ t *Terminal }

func (f *outputFile) Read(fid *fsys.Fid, offset int64, count int) ([]byte, error) {
	return f.t.output.Read(offset, count, fid.Cancel())
}

func (f *outputFile) Write(fid *fsys.Fid, offset int64, data []byte) (int, error) {
	if err := f.t.mirrorOutput(data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (f *outputFile) Clunk(fid *fsys.Fid) {}

func (f *outputFile) SizeHint() int64 { return int64(f.t.output.Len()) }

// interrupt: any write sends SIGINT to the shell's process group.
type interruptFile struct{ t *Terminal }

func (f *interruptFile) Read(fid *fsys.Fid, offset int64, count int) ([]byte, error) {
	return nil, nil
}

func (f *interruptFile) Write(fid *fsys.Fid, offset int64, data []byte) (int, error) {
	if err := f.t.interrupt(); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (f *interruptFile) Clunk(fid *fsys.Fid) {}

func (f *interruptFile) SizeHint() int64 { return 0 }
