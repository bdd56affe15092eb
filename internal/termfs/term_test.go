package termfs

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/linuxerr"
	"github.com/peripherialabs/peribus/internal/sandbox"
)

// fakePTY stands in for the PTY master: the terminal writes commands
// into it, the test injects shell output through it.
type fakePTY struct {
	mu      sync.Mutex
	written bytes.Buffer

	r *io.PipeReader
	w *io.PipeWriter
}

func newFakePTY() *fakePTY {
	r, w := io.Pipe()
	return &fakePTY{r: r, w: w}
}

func (f *fakePTY) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *fakePTY) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.Write(p)
}

func (f *fakePTY) Close() error { return f.r.Close() }

func (f *fakePTY) inject(s string) {
	_, _ = f.w.Write([]byte(s))
}

func (f *fakePTY) commands() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

func testTerminal(t *testing.T) (*Terminal, *fakePTY) {
	t.Helper()
	opts := Options{
		Shell:     "/bin/sh",
		Debounce:  20 * time.Millisecond,
		MountRoot: "/mnt/peribus",
		Validator: sandbox.Policy{MountRoot: "/mnt/peribus"},
	}
	term := newTerminal(opts)
	f := newFakePTY()
	term.pty = f
	go term.readLoop(f)
	t.Cleanup(func() { _ = f.w.Close(); _ = f.r.Close() })
	reg := NewRegistry(fsys.NewDir("terms"), opts)
	reg.attach(term)
	return term, f
}

func lookup(t *testing.T, term *Terminal, name string) (fsys.File, *fsys.Fid) {
	t.Helper()
	node, err := term.Node().Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	return node.File(), fsys.NewFid(node)
}

func readBatch(t *testing.T, file fsys.File, fid *fsys.Fid, d time.Duration) string {
	t.Helper()
	done := make(chan string, 1)
	go func() {
		p, _ := file.Read(fid, 0, 65536)
		done <- string(p)
	}()
	select {
	case s := <-done:
		return s
	case <-time.After(d):
		fid.Clunk()
		t.Fatal("read did not complete")
		return ""
	}
}

func TestStdinSandboxRejection(t *testing.T) {
	term, f := testTerminal(t)
	stdin, sfid := lookup(t, term, "stdin")
	n, err := stdin.Write(sfid, 0, []byte("rm -rf /\n"))
	if err != nil || n != len("rm -rf /\n") {
		t.Fatalf("write: n=%d err=%v, want full success", n, err)
	}
	stdout, ofid := lookup(t, term, "stdout")
	batch := readBatch(t, stdout, ofid, time.Second)
	if !strings.HasPrefix(batch, "SANDBOX BLOCKED: ") {
		t.Fatalf("stdout %q", batch)
	}
	if f.commands() != "" {
		t.Fatalf("rejected command reached the shell: %q", f.commands())
	}
}

func TestStdinRunsAndCaptures(t *testing.T) {
	term, f := testTerminal(t)
	stdin, sfid := lookup(t, term, "stdin")
	if _, err := stdin.Write(sfid, 0, []byte("echo hi")); err != nil {
		t.Fatal(err)
	}
	if got := f.commands(); got != "echo hi\n" {
		t.Fatalf("pty got %q", got)
	}
	f.inject("\x1b[1mhi\x1b[0m\r\n")
	stdout, ofid := lookup(t, term, "stdout")
	batch := readBatch(t, stdout, ofid, time.Second)
	if batch != "hi\n" {
		t.Fatalf("stdout %q", batch)
	}
}

func TestDebounceWaitsForQuiet(t *testing.T) {
	term, f := testTerminal(t)
	stdin, sfid := lookup(t, term, "stdin")
	if _, err := stdin.Write(sfid, 0, []byte("cat big")); err != nil {
		t.Fatal(err)
	}
	f.inject("part one ")
	time.Sleep(5 * time.Millisecond)
	f.inject("part two\n")
	stdout, ofid := lookup(t, term, "stdout")
	batch := readBatch(t, stdout, ofid, time.Second)
	if batch != "part one part two\n" {
		t.Fatalf("stdout %q", batch)
	}
}

func TestAgentRegistration(t *testing.T) {
	term, _ := testTerminal(t)
	stdin, sfid := lookup(t, term, "stdin")
	if _, err := stdin.Write(sfid, 0, []byte("echo 'new claude'")); err != nil {
		t.Fatal(err)
	}
	if got := term.ConnectedAgent(); got != "claude" {
		t.Fatalf("agent %q", got)
	}
	if agents := term.KnownAgents(); len(agents) != 1 || agents[0] != "claude" {
		t.Fatalf("known %v", agents)
	}
}

func TestOutputMirrorsAndDisplays(t *testing.T) {
	term, _ := testTerminal(t)
	var shown bytes.Buffer
	term.AttachDisplay(displayFunc(func(p []byte) { shown.Write(p) }))
	output, wfid := lookup(t, term, "output")
	if _, err := output.Write(wfid, 0, []byte("agent says hi\n")); err != nil {
		t.Fatal(err)
	}
	_, rfid := lookup(t, term, "output")
	batch := readBatch(t, output, rfid, time.Second)
	if batch != "agent says hi\n" {
		t.Fatalf("read %q", batch)
	}
	if shown.String() != "agent says hi\n" {
		t.Fatalf("display %q", shown.String())
	}
}

func TestOutputFailsWhenDisplayGone(t *testing.T) {
	term, _ := testTerminal(t)
	term.AttachDisplay(displayFunc(func([]byte) {}))
	term.DetachDisplay()
	output, fid := lookup(t, term, "output")
	if _, err := output.Write(fid, 0, []byte("x")); !errors.Is(err, linuxerr.EIO) {
		t.Fatalf("got %v, want EIO", err)
	}
}

func TestCtlFontAndStatus(t *testing.T) {
	term, f := testTerminal(t)
	ctl, fid := lookup(t, term, "ctl")
	if _, err := ctl.Write(fid, 0, []byte("font 16\n")); err != nil {
		t.Fatal(err)
	}
	status, err := ctl.Read(fid, 0, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(status), "font 16\n") {
		t.Fatalf("status %q", status)
	}
	// Any other line is forwarded to the PTY as a command.
	if _, err := ctl.Write(fid, 0, []byte("ls -la\n")); err != nil {
		t.Fatal(err)
	}
	if got := f.commands(); got != "ls -la\n" {
		t.Fatalf("pty got %q", got)
	}
	if _, err := ctl.Write(fid, 0, []byte("font zero\n")); !errors.Is(err, linuxerr.EINVAL) {
		t.Fatalf("got %v, want EINVAL", err)
	}
}

func TestStdoutIsReadOnly(t *testing.T) {
	term, _ := testTerminal(t)
	stdout, fid := lookup(t, term, "stdout")
	if _, err := stdout.Write(fid, 0, []byte("x")); !errors.Is(err, linuxerr.EPERM) {
		t.Fatalf("got %v, want EPERM", err)
	}
}

type displayFunc func(p []byte)

func (f displayFunc) Show(p []byte) { f(p) }
