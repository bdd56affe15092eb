package fsys

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/peripherialabs/peribus/internal/linuxerr"
)

type constFile struct{ content []byte }

func (c *constFile) Read(f *Fid, offset int64, count int) ([]byte, error) {
	if offset >= int64(len(c.content)) {
		return nil, nil
	}
	end := offset + int64(count)
	if end > int64(len(c.content)) {
		end = int64(len(c.content))
	}
	return c.content[offset:end], nil
}

func (c *constFile) Write(f *Fid, offset int64, data []byte) (int, error) {
	return 0, linuxerr.EPERM
}

func (c *constFile) Clunk(f *Fid) {}

func (c *constFile) SizeHint() int64 { return int64(len(c.content)) }

func TestChildrenKeepInsertionOrder(t *testing.T) {
	root := NewDir("/")
	for _, name := range []string{"zeta", "alpha", "mid"} {
		root.Add(NewFile(name, &constFile{}))
	}
	var got []string
	for _, child := range root.Children() {
		got = append(got, child.Name())
	}
	want := []string{"zeta", "alpha", "mid"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	root := NewDir("/")
	scene := root.Add(NewDir("scene"))
	parse := scene.Add(NewFile("parse", &constFile{}))
	testCases := []struct {
		path string
		want *Node
		err  error
	}{
		{path: "/scene/parse", want: parse},
		{path: "/scene", want: scene},
		{path: "/", want: root},
		{path: "/scene/missing", err: linuxerr.ENOENT},
		{path: "/scene/parse/deeper", err: linuxerr.EACCES},
	}
	for _, tc := range testCases {
		node, err := root.Resolve(tc.path)
		if !errors.Is(err, tc.err) {
			t.Errorf("%q: got error %v, want %v", tc.path, err, tc.err)
			continue
		}
		if tc.err == nil && node != tc.want {
			t.Errorf("%q: resolved to %q", tc.path, node.Name())
		}
	}
}

func TestPath(t *testing.T) {
	root := NewDir("/")
	terms := root.Add(NewDir("terms"))
	term := terms.Add(NewDir("t0"))
	stdout := term.Add(NewFile("stdout", &constFile{}))
	if got, want := stdout.Path(), "/terms/t0/stdout"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := root.Path(), "/"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRemoveChild(t *testing.T) {
	root := NewDir("/")
	root.Add(NewDir("t0"))
	root.Add(NewDir("t1"))
	root.Remove("t0")
	children := root.Children()
	if len(children) != 1 || children[0].Name() != "t1" {
		t.Fatalf("got %d children", len(children))
	}
	if _, err := root.Lookup("t0"); !errors.Is(err, linuxerr.ENOENT) {
		t.Fatalf("got %v, want ENOENT", err)
	}
}

func TestCtlFileDispatch(t *testing.T) {
	var verbs []string
	ctl := NewCtlFile(
		func(b *bytes.Buffer) { fmt.Fprintf(b, "count %d\n", len(verbs)) },
		func(verb, arg string) error {
			if verb == "bad" {
				return ErrUnknownVerb
			}
			verbs = append(verbs, verb+":"+arg)
			return nil
		},
	)
	f := NewFid(NewFile("ctl", ctl))
	if _, err := ctl.Write(f, 0, []byte("refresh\nsize 800 600\n")); err != nil {
		t.Fatal(err)
	}
	if len(verbs) != 2 || verbs[0] != "refresh:" || verbs[1] != "size:800 600" {
		t.Fatalf("got %v", verbs)
	}
	if _, err := ctl.Write(f, 0, []byte("bad arg\n")); !errors.Is(err, linuxerr.EINVAL) {
		t.Fatalf("got %v, want EINVAL", err)
	}
	p, err := ctl.Read(f, 0, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if string(p) != "count 2\n" {
		t.Fatalf("got %q", p)
	}
}

func TestSnapshotFileCachesPerFid(t *testing.T) {
	n := 0
	file := &SnapshotFile{Build: func(f *Fid) ([]byte, error) {
		n++
		return []byte(fmt.Sprintf("build %d\n", n)), nil
	}}
	f := NewFid(NewFile("vars", file))
	first, _ := file.Read(f, 0, 5)
	rest, _ := file.Read(f, 5, 4096)
	if got := string(first) + string(rest); got != "build 1\n" {
		t.Fatalf("got %q, want a coherent single build", got)
	}
	// A fresh read at offset zero rebuilds.
	p, _ := file.Read(f, 0, 4096)
	if string(p) != "build 2\n" {
		t.Fatalf("got %q, want rebuild", p)
	}
	if _, err := file.Write(f, 0, []byte("x")); !errors.Is(err, linuxerr.EPERM) {
		t.Fatalf("got %v, want EPERM", err)
	}
}
