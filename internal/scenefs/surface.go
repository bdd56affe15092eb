// Package scenefs maps the scene manager and the DSL executor onto the
// file tree: scene/{ctl, parse, stdout, STDERR, vars, state, version}
// plus the root-level screen and CONTEXT files.
package scenefs

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/peripherialabs/peribus/internal/scene"
	"github.com/peripherialabs/peribus/internal/script"
	"github.com/peripherialabs/peribus/internal/stream"
)

// Surface binds the execution pipeline together: code drained from
// parse fids runs here, output lands in the streaming files, the scene
// snapshots, and the context file compacts.
type Surface struct {
	scene  *scene.Manager
	interp *script.Interp

	// Stdout is state-aware so stat-like probes return immediately;
	// STDERR always blocks and is the natural source of a route.
	stdout *stream.Buffer
	stderr *stream.Buffer

	context *ContextFile

	// Serializes executions and state restores.
	mu sync.Mutex
}

func NewSurface(m *scene.Manager) *Surface {
	s := &Surface{
		scene:  m,
		interp: script.New(m),
		stdout: stream.NewBuffer(stream.StateAware),
		stderr: stream.NewBuffer(stream.Blocking),
	}
	s.context = newContextFile(s.interp)
	return s
}

func (s *Surface) Scene() *scene.Manager { return s.scene }

func (s *Surface) Interp() *script.Interp { return s.interp }

func (s *Surface) Context() *ContextFile { return s.context }

func firstLine(code string) string {
	for _, line := range strings.Split(code, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return "(empty)"
}

// Run executes one drained submission. A failure never raises through
// the file protocol; it becomes bytes on STDERR.
func (s *Surface) Run(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stdout.Arm()
	s.stderr.Reset()

	var out, errb bytes.Buffer
	res := s.interp.Execute(code, &out, &errb)
	if !res.Success {
		s.stdout.Reset()
		s.stderr.Post(errb.Bytes())
		s.stderr.MarkReady()
		return
	}

	s.stdout.Post(out.Bytes())
	repr := "None"
	if res.Result != nil {
		repr = script.Repr(res.Result)
	}
	s.stdout.Post([]byte("→ " + repr + "\n"))
	for _, id := range res.WidgetsCreated {
		s.stdout.Post([]byte("+ " + id + "\n"))
	}

	s.context.AppendCode(code)
	snap := s.scene.TakeSnapshot(firstLine(code), code)
	s.stdout.Post([]byte(fmt.Sprintf("✓ Version %d\n", snap.Version)))

	s.stdout.MarkReady()
	s.stderr.MarkReady()
}
