// Package termfs reifies PTY-backed shells as directories of files:
// terms/<id>/{ctl, stdin, stdout, input, output, interrupt}. Commands
// go through the sandbox gate before touching the PTY; PTY output is
// ANSI-stripped and served through the blocking-read protocol with a
// debounce marking batches ready.
package termfs

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/sandbox"
	"github.com/peripherialabs/peribus/internal/stream"
	log "github.com/sirupsen/logrus"
)

// Display is the embedded widget a terminal may be shown in. The
// terminal holds an ordinary reference to it until DetachDisplay drops
// it; from then on output writes fail with "no longer exists". It is
// not a weak reference: an attached display stays reachable until it
// is detached.
type Display interface {
	Show(p []byte)
}

// Options configure every terminal spawned by a registry.
type Options struct {
	Shell      string
	Debounce   time.Duration
	MountRoot  string
	LLMFSMount string
	Validator  sandbox.Validator
}

// Terminal is one live shell.
type Terminal struct {
	ID string

	opts Options

	mu          sync.Mutex
	pty         io.ReadWriteCloser
	pid         int
	fontSize    int
	agent       string
	known       map[string]bool
	capturing   bool
	display     Display
	displayLost bool

	stdout *stream.Buffer
	output *stream.Buffer

	debounceMu sync.Mutex
	debounce   *time.Timer

	node   *fsys.Node
	onExit func(*Terminal)
}

var agentAnnounce = regexp.MustCompile(`echo '?new ([A-Za-z0-9_-]+)'?`)

func newTerminal(opts Options) *Terminal {
	return &Terminal{
		ID:       uuid.NewString(),
		opts:     opts,
		fontSize: 12,
		known:    make(map[string]bool),
		stdout:   stream.NewBuffer(stream.Blocking),
		output:   stream.NewBuffer(stream.Blocking),
	}
}

// start launches the shell on a fresh PTY and begins the reader task.
func (t *Terminal) start() error {
	cmd := exec.Command(t.opts.Shell)
	cmd.Env = append(os.Environ(), "TERM=dumb")
	if t.opts.MountRoot != "" {
		// The sandbox admits relative paths because they resolve here.
		cmd.Dir = t.opts.MountRoot
	}
	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.pty = f
	t.pid = cmd.Process.Pid
	t.mu.Unlock()
	go t.readLoop(f)
	go func() {
		_ = cmd.Wait()
		t.exited()
	}()
	return nil
}

func (t *Terminal) readLoop(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			t.feed(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// feed is the capture callback: strip escapes, post, kick the
// debounce. The timer never signals when no chunks were captured
// (MarkReady no-ops on an empty buffer).
func (t *Terminal) feed(p []byte) {
	t.mu.Lock()
	capturing := t.capturing
	display := t.display
	t.mu.Unlock()
	if display != nil {
		display.Show(p)
	}
	if !capturing {
		return
	}
	clean := stripANSI(p)
	if len(clean) > 0 {
		t.stdout.Post(clean)
	}
	t.debounceMu.Lock()
	if t.debounce == nil {
		t.debounce = time.AfterFunc(t.opts.Debounce, t.stdout.MarkReady)
	} else {
		t.debounce.Reset(t.opts.Debounce)
	}
	t.debounceMu.Unlock()
}

// feedError injects a message into the stdout buffer, bypassing the
// PTY. Sandbox rejections arrive this way.
func (t *Terminal) feedError(msg string) {
	t.stdout.Arm()
	t.stdout.Post([]byte(msg))
	t.stdout.MarkReady()
}

// startCapture clears the stdout buffer and enables capture, so the
// next command's output forms a fresh batch. A debounce left over from
// the previous command must not mark the new batch ready early.
func (t *Terminal) startCapture() {
	t.debounceMu.Lock()
	if t.debounce != nil {
		t.debounce.Stop()
	}
	t.debounceMu.Unlock()
	t.mu.Lock()
	t.capturing = true
	t.mu.Unlock()
	t.stdout.Arm()
}

// submit validates and runs one command line.
func (t *Terminal) submit(command string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}
	if ok, reason := t.opts.Validator.Validate(command); !ok {
		log.WithFields(log.Fields{
			"term":    t.ID,
			"command": command,
		}).Warning("Sandbox rejected command")
		t.feedError("SANDBOX BLOCKED: " + reason + "\n")
		return
	}
	if m := agentAnnounce.FindStringSubmatch(command); m != nil {
		t.mu.Lock()
		t.agent = m[1]
		t.known[m[1]] = true
		t.mu.Unlock()
	}
	t.startCapture()
	if err := t.writePTY(command + "\n"); err != nil {
		t.feedError("terminal error: " + err.Error() + "\n")
	}
}

func (t *Terminal) writePTY(s string) error {
	t.mu.Lock()
	f := t.pty
	t.mu.Unlock()
	if f == nil {
		return errNoShell
	}
	_, err := f.Write([]byte(s))
	return err
}

// forwardToAgent appends the payload to the connected agent's input
// file on the llmfs mount. A terminal with no agent swallows the write.
func (t *Terminal) forwardToAgent(p []byte) error {
	t.mu.Lock()
	agent := t.agent
	t.mu.Unlock()
	if agent == "" || t.opts.LLMFSMount == "" {
		return nil
	}
	path := filepath.Join(t.opts.LLMFSMount, "agents", agent, "input")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(p)
	return err
}

// mirrorOutput is the write side of the output file: show on the
// display and make the bytes readable as a batch.
func (t *Terminal) mirrorOutput(p []byte) error {
	t.mu.Lock()
	display := t.display
	lost := t.displayLost
	t.mu.Unlock()
	if lost {
		return errDisplayGone
	}
	if display != nil {
		display.Show(p)
	}
	t.output.Post(p)
	t.output.MarkReady()
	return nil
}

func (t *Terminal) interrupt() error {
	t.mu.Lock()
	pid := t.pid
	t.mu.Unlock()
	if pid <= 0 {
		return errNoShell
	}
	return syscall.Kill(-pid, syscall.SIGINT)
}

// AttachDisplay embeds the terminal in a widget.
func (t *Terminal) AttachDisplay(d Display) {
	t.mu.Lock()
	t.display = d
	t.displayLost = false
	t.mu.Unlock()
}

// DetachDisplay records that the widget went away. Output writes fail
// with "no longer exists" from here on.
func (t *Terminal) DetachDisplay() {
	t.mu.Lock()
	t.display = nil
	t.displayLost = true
	t.mu.Unlock()
}

// ConnectedAgent returns the registered agent name, if any.
func (t *Terminal) ConnectedAgent() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agent
}

// KnownAgents returns every agent ever announced on this terminal.
func (t *Terminal) KnownAgents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.known))
	for name := range t.known {
		names = append(names, name)
	}
	return names
}

func (t *Terminal) exited() {
	t.mu.Lock()
	if t.pty != nil {
		_ = t.pty.Close()
		t.pty = nil
	}
	onExit := t.onExit
	t.mu.Unlock()
	if onExit != nil {
		onExit(t)
	}
}

// destroy terminates the shell's process group.
func (t *Terminal) destroy() {
	t.mu.Lock()
	pid := t.pid
	f := t.pty
	t.pid = 0
	t.pty = nil
	t.onExit = nil
	t.mu.Unlock()
	if pid > 0 {
		_ = syscall.Kill(-pid, syscall.SIGTERM)
	}
	if f != nil {
		_ = f.Close()
	}
}
