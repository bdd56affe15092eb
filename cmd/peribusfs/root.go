package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/peripherialabs/peribus/internal/config"
	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/linuxerr"
	"github.com/peripherialabs/peribus/internal/routes"
	"github.com/peripherialabs/peribus/internal/sandbox"
	"github.com/peripherialabs/peribus/internal/scene"
	"github.com/peripherialabs/peribus/internal/scenefs"
	"github.com/peripherialabs/peribus/internal/storage"
	"github.com/peripherialabs/peribus/internal/termfs"
	log "github.com/sirupsen/logrus"
)

// server wires the subsystems into one tree:
//
//	/
//	├── ctl
//	├── screen
//	├── CONTEXT
//	├── routes
//	├── terms/<term_id>/...
//	└── scene/...
type server struct {
	cfg     *config.C
	surface *scenefs.Surface
	terms   *termfs.Registry
	routes  *routes.Manager
	store   storage.Store
	root    *fsys.Node
}

func newServer(cfg *config.C, store storage.Store) *server {
	s := &server{cfg: cfg, store: store}
	s.surface = scenefs.NewSurface(scene.NewManager())

	var validator sandbox.Validator
	if cfg.Sandbox == "off" {
		log.Warning("Sandbox disabled: running with the permissive validator (development only)")
		validator = sandbox.Permissive{}
	} else {
		validator = sandbox.Policy{MountRoot: cfg.MountPoint}
	}

	root := fsys.NewDir("/")
	s.root = root
	root.Add(fsys.NewFile("ctl", s.rootCtl()))
	root.Add(fsys.NewFile("screen", s.surface.ScreenFile()))
	root.Add(s.surface.ContextNode())

	client := fsys.NewClient(root)
	s.routes = routes.NewManager(
		&routes.TreeOpener{Client: client, MountRoot: cfg.MountPoint},
		cfg.MountPoint,
	)
	root.Add(fsys.NewFile("routes", routes.NewFile(s.routes)))

	termsDir := root.Add(fsys.NewDir("terms"))
	s.terms = termfs.NewRegistry(termsDir, termfs.Options{
		Shell:      cfg.Shell,
		Debounce:   time.Duration(cfg.TermDebounceMs) * time.Millisecond,
		MountRoot:  cfg.MountPoint,
		LLMFSMount: cfg.LLMFSMount,
		Validator:  validator,
	})

	root.Add(s.surface.BuildDir())
	return s
}

func (s *server) shutdown() {
	s.routes.StopAll()
	s.terms.StopAll()
}

const latestStateKey = storage.Key("state/latest")

func (s *server) saveState(path string) error {
	b, err := s.surface.BuildEnvelope()
	if err != nil {
		return err
	}
	if path != "" {
		return os.WriteFile(path, b, 0600)
	}
	return s.store.Put(latestStateKey, b)
}

func (s *server) loadState(path string) error {
	var b []byte
	var err error
	if path != "" {
		b, err = os.ReadFile(path)
	} else {
		var v storage.Value
		v, err = s.store.Get(latestStateKey)
		b = v
	}
	if err != nil {
		return err
	}
	return s.surface.RestoreEnvelope(b)
}

// rootCtl is the display-level control file.
func (s *server) rootCtl() *fsys.CtlFile {
	var mu sync.Mutex
	var lastOutput []byte
	setOutput := func(p []byte) {
		mu.Lock()
		lastOutput = p
		mu.Unlock()
	}
	status := func(b *bytes.Buffer) {
		mu.Lock()
		out := lastOutput
		mu.Unlock()
		if len(out) > 0 {
			b.Write(out)
			return
		}
		m := s.surface.Scene()
		settings := m.Settings()
		fmt.Fprintf(b, "width %d\n", settings.Width)
		fmt.Fprintf(b, "height %d\n", settings.Height)
		fmt.Fprintf(b, "background %s\n", settings.Background)
		fmt.Fprintf(b, "items %d\n", m.ItemCount())
		fmt.Fprintf(b, "version %d\n", m.CurrentVersion())
		fmt.Fprintf(b, "routes %d\n", len(s.routes.ListRoutes()))
		fmt.Fprintf(b, "terms %d\n", s.terms.Count())
	}
	run := func(verb, arg string) error {
		m := s.surface.Scene()
		switch verb {
		case "refresh":
			m.Refresh()
			setOutput(nil)
		case "clear":
			m.TakeSnapshot("before clear", "")
			m.Clear()
			setOutput(nil)
		case "export":
			b, err := m.ToJSON()
			if err != nil {
				return err
			}
			setOutput(append(b, '\n'))
		case "import":
			if strings.TrimSpace(arg) == "" {
				return fmt.Errorf("import needs a JSON payload: %w", linuxerr.EINVAL)
			}
			if err := m.FromJSON([]byte(arg)); err != nil {
				return fmt.Errorf("%v: %w", err, linuxerr.EINVAL)
			}
			setOutput(nil)
		case "size":
			fields := strings.Fields(arg)
			if len(fields) != 2 {
				return fmt.Errorf("size W H: %w", linuxerr.EINVAL)
			}
			w, werr := strconv.Atoi(fields[0])
			h, herr := strconv.Atoi(fields[1])
			if werr != nil || herr != nil || w <= 0 || h <= 0 {
				return fmt.Errorf("size %q: %w", arg, linuxerr.EINVAL)
			}
			m.Resize(w, h)
			setOutput(nil)
		case "background":
			if arg == "" {
				setOutput([]byte("background " + m.Settings().Background + "\n"))
				return nil
			}
			m.SetBackground(arg)
			setOutput(nil)
		case "save":
			if err := s.saveState(strings.TrimSpace(arg)); err != nil {
				return fmt.Errorf("%v: %w", err, linuxerr.EIO)
			}
			setOutput([]byte("saved\n"))
		case "load":
			if err := s.loadState(strings.TrimSpace(arg)); err != nil {
				return fmt.Errorf("%v: %w", err, linuxerr.EIO)
			}
			setOutput([]byte("loaded\n"))
		case "term":
			t, err := s.terms.Spawn()
			if err != nil {
				return fmt.Errorf("%v: %w", err, linuxerr.EIO)
			}
			setOutput([]byte("term " + t.ID + "\n"))
		default:
			return fsys.ErrUnknownVerb
		}
		return nil
	}
	return fsys.NewCtlFile(status, run)
}
