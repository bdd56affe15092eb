package script

import (
	"testing"

	"github.com/andreyvit/diff"
	"github.com/peripherialabs/peribus/internal/scene"
)

type allLive struct{}

func (allLive) LiveWidget(string) bool { return true }

type noneLive struct{}

func (noneLive) LiveWidget(string) bool { return false }

func mustCompact(t *testing.T, fragments []string, ns NamespaceView) string {
	t.Helper()
	out, err := Compact(fragments, ns)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestCompactDedupsImports(t *testing.T) {
	got := mustCompact(t, []string{
		"import math\nx = 1",
		"import math\nimport os\ny = 2",
	}, allLive{})
	want := "import math\nx = 1\nimport os\ny = 2\n"
	if got != want {
		t.Fatalf("compacted program differs:\n%s", diff.LineDiff(want, got))
	}
}

func TestCompactSupersedesAssignments(t *testing.T) {
	got := mustCompact(t, []string{
		"x = 1\ny = 2",
		"x = 10",
	}, allLive{})
	want := "x = 10\ny = 2\n"
	if got != want {
		t.Fatalf("compacted program differs:\n%s", diff.LineDiff(want, got))
	}
}

func TestCompactElidesDeadWidgets(t *testing.T) {
	fragments := []string{
		"r = Rect(x=1, y=2)\nn = 5",
	}
	got := mustCompact(t, fragments, noneLive{})
	want := "n = 5\n"
	if got != want {
		t.Fatalf("compacted program differs:\n%s", diff.LineDiff(want, got))
	}
	// The same creation survives while the widget lives.
	got = mustCompact(t, fragments, allLive{})
	want = "r = Rect(x=1, y=2)\nn = 5\n"
	if got != want {
		t.Fatalf("compacted program differs:\n%s", diff.LineDiff(want, got))
	}
}

func TestCompactAgainstLiveNamespace(t *testing.T) {
	m := scene.NewManager()
	in := New(m)
	frag1 := "r = Rect(x=1, y=2)\nkeep = Text('hi', 0, 0)"
	frag2 := "r.remove()"
	for _, frag := range []string{frag1, frag2} {
		if res := in.Execute(frag, discard{}, discard{}); !res.Success {
			t.Fatalf("execute %q: %s", frag, res.Err)
		}
	}
	got := mustCompact(t, []string{frag1, frag2}, in)
	want := "keep = Text('hi', 0, 0)\nr.remove()\n"
	if got != want {
		t.Fatalf("compacted program differs:\n%s", diff.LineDiff(want, got))
	}
}

func TestCompactIsDeterministic(t *testing.T) {
	fragments := []string{
		"import math\na = 1\nb = a + 1",
		"a = 2\nimport math\nprint(a)",
	}
	first := mustCompact(t, fragments, allLive{})
	for i := 0; i < 10; i++ {
		if got := mustCompact(t, fragments, allLive{}); got != first {
			t.Fatalf("output changed between runs:\n%s", diff.LineDiff(first, got))
		}
	}
}

func TestCompactErrorsOnUnparsableFragment(t *testing.T) {
	if _, err := Compact([]string{"x = ("}, allLive{}); err == nil {
		t.Fatal("expected an error for an unparsable fragment")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
