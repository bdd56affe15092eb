package main

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/peripherialabs/peribus/internal/config"
	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/storage"
)

func testServer(t *testing.T) *server {
	t.Helper()
	cfg := &config.C{
		MountPoint:     "/mnt/peribus",
		Shell:          "/bin/sh",
		TermDebounceMs: 50,
		Sandbox:        "on",
	}
	s := newServer(cfg, &storage.InMemory{})
	t.Cleanup(s.shutdown)
	return s
}

func TestTreeLayout(t *testing.T) {
	s := testServer(t)
	var names []string
	for _, child := range s.root.Children() {
		names = append(names, child.Name())
	}
	want := []string{"ctl", "screen", "CONTEXT", "routes", "terms", "scene"}
	if strings.Join(names, " ") != strings.Join(want, " ") {
		t.Fatalf("root children %v, want %v", names, want)
	}
	for _, path := range []string{
		"/scene/ctl", "/scene/parse", "/scene/stdout", "/scene/STDERR",
		"/scene/vars", "/scene/state", "/scene/version",
	} {
		if _, err := s.root.Resolve(path); err != nil {
			t.Errorf("%s: %v", path, err)
		}
	}
}

func writeCtl(t *testing.T, s *server, line string) error {
	t.Helper()
	node, err := s.root.Resolve("/ctl")
	if err != nil {
		t.Fatal(err)
	}
	fid := fsys.NewFid(node)
	defer fid.Clunk()
	_, err = node.File().Write(fid, 0, []byte(line+"\n"))
	return err
}

func readCtl(t *testing.T, s *server) string {
	t.Helper()
	node, err := s.root.Resolve("/ctl")
	if err != nil {
		t.Fatal(err)
	}
	fid := fsys.NewFid(node)
	defer fid.Clunk()
	p, err := node.File().Read(fid, 0, 8192)
	if err != nil {
		t.Fatal(err)
	}
	return string(p)
}

func TestRootCtlSizeAndBackground(t *testing.T) {
	s := testServer(t)
	if err := writeCtl(t, s, "size 1280 720"); err != nil {
		t.Fatal(err)
	}
	if err := writeCtl(t, s, "background #003366"); err != nil {
		t.Fatal(err)
	}
	status := readCtl(t, s)
	for _, want := range []string{"width 1280\n", "height 720\n", "background #003366\n"} {
		if !strings.Contains(status, want) {
			t.Errorf("status %q missing %q", status, want)
		}
	}
	if err := writeCtl(t, s, "size huge"); err == nil {
		t.Fatal("bad size accepted")
	}
	if err := writeCtl(t, s, "frobnicate"); err == nil {
		t.Fatal("unknown verb accepted")
	}
}

func TestRootCtlExportImport(t *testing.T) {
	s := testServer(t)
	m := s.surface.Scene()
	m.RegisterItem("Rect", map[string]interface{}{"x": 1, "y": 2})
	if err := writeCtl(t, s, "export"); err != nil {
		t.Fatal(err)
	}
	exported := strings.TrimSpace(readCtl(t, s))
	if err := writeCtl(t, s, "clear"); err != nil {
		t.Fatal(err)
	}
	if m.ItemCount() != 0 {
		t.Fatal("clear left items")
	}
	if err := writeCtl(t, s, "import "+exported); err != nil {
		t.Fatal(err)
	}
	if m.ItemCount() != 1 {
		t.Fatalf("items %d after import", m.ItemCount())
	}
}

func TestRootCtlSaveLoadThroughStore(t *testing.T) {
	s := testServer(t)
	m := s.surface.Scene()
	m.RegisterItem("Rect", map[string]interface{}{"x": 1, "y": 2})
	if err := writeCtl(t, s, "save"); err != nil {
		t.Fatal(err)
	}
	if err := writeCtl(t, s, "clear"); err != nil {
		t.Fatal(err)
	}
	if err := writeCtl(t, s, "load"); err != nil {
		t.Fatal(err)
	}
	if m.ItemCount() != 1 {
		t.Fatalf("items %d after load", m.ItemCount())
	}
	snaps := m.Snapshots()
	if snaps[len(snaps)-1].Label != "restored session" {
		t.Fatalf("label %q", snaps[len(snaps)-1].Label)
	}
}

func TestRootCtlSaveLoadThroughFile(t *testing.T) {
	s := testServer(t)
	path := t.TempDir() + "/session.json"
	s.surface.Scene().RegisterItem("Text", map[string]interface{}{"text": "hi"})
	if err := writeCtl(t, s, "save "+path); err != nil {
		t.Fatal(err)
	}
	if err := writeCtl(t, s, "clear"); err != nil {
		t.Fatal(err)
	}
	if err := writeCtl(t, s, "load "+path); err != nil {
		t.Fatal(err)
	}
	if s.surface.Scene().ItemCount() != 1 {
		t.Fatal("item not restored from file")
	}
}

func TestRouteCarriesExecutionErrors(t *testing.T) {
	s := testServer(t)
	dest := t.TempDir() + "/errors.log"

	node, err := s.root.Resolve("/routes")
	if err != nil {
		t.Fatal(err)
	}
	routesFid := fsys.NewFid(node)
	line := "/scene/STDERR -> " + dest + "\n"
	if _, err := node.File().Write(routesFid, 0, []byte(line)); err != nil {
		t.Fatal(err)
	}

	// Trigger an execution error.
	client := fsys.NewClient(s.root)
	parseFid, err := client.Open("/scene/parse")
	if err != nil {
		t.Fatal(err)
	}
	if err := client.WriteAll(parseFid, []byte("nope(")); err != nil {
		t.Fatal(err)
	}
	parseFid.Clunk()

	deadline := time.Now().Add(2 * time.Second)
	for {
		b, _ := os.ReadFile(dest)
		if strings.Contains(string(b), "parse error") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("route never delivered, destination has %q", b)
		}
		time.Sleep(10 * time.Millisecond)
	}

	listing, err := node.File().Read(routesFid, 0, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(listing), "/scene/STDERR -> "+dest+" [running]") {
		t.Fatalf("listing %q", listing)
	}
	if _, err := node.File().Write(routesFid, 0, []byte("-/scene/STDERR\n")); err != nil {
		t.Fatal(err)
	}
	listing, _ = node.File().Read(routesFid, 0, 4096)
	if string(listing) != "(no routes)\n" {
		t.Fatalf("listing after remove %q", listing)
	}
}

// A blocked reader on one fid must not delay writes on another fid.
func TestBlockedReadDoesNotDelayWrites(t *testing.T) {
	s := testServer(t)
	client := fsys.NewClient(s.root)
	stderrFid, err := client.Open("/scene/STDERR")
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan string, 1)
	go func() {
		b, _ := client.ReadAll(stderrFid)
		got <- string(b)
	}()

	// While that read is parked, a parse submission proceeds and its
	// failure unblocks the reader.
	parseFid, err := client.Open("/scene/parse")
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := client.WriteAll(parseFid, []byte("boom(")); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("write took %v with a blocked reader", elapsed)
	}
	parseFid.Clunk()

	select {
	case text := <-got:
		if !strings.Contains(text, "parse error") {
			t.Fatalf("STDERR %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked reader never woke")
	}
}
