package script

import "testing"

func TestUnfence(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain code untouched", in: "x = 1\nprint(x)\n", want: "x = 1\nprint(x)\n"},
		{name: "single fenced block", in: "```python\nx = 1\n```\n", want: "x = 1"},
		{name: "tilde fence", in: "~~~\nx = 1\n~~~", want: "x = 1"},
		{
			name: "prose around blocks",
			in:   "Here is the code:\n```\nx = 1\n```\nand more:\n```\ny = 2\n```\n",
			want: "x = 1\ny = 2",
		},
		{name: "unterminated fence keeps body", in: "```\nx = 1\n", want: "x = 1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Unfence(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAssemblerAccumulatesAcrossChunks(t *testing.T) {
	var a Assembler
	if !a.Empty() {
		t.Fatal("new assembler not empty")
	}
	// A 9P client may split anywhere, even mid-token.
	for _, chunk := range []string{"x = ", "1\npri", "nt(x)\n"} {
		a.Write([]byte(chunk))
	}
	if a.Empty() {
		t.Fatal("assembler empty after writes")
	}
	if got := a.Drain(); got != "x = 1\nprint(x)\n" {
		t.Fatalf("got %q", got)
	}
	if !a.Empty() {
		t.Fatal("assembler not reset by drain")
	}
}
