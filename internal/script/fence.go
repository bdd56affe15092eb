// Package script implements the code path of the scene subtree: the
// streaming assembler that collects code across arbitrarily-sized 9P
// writes, the scene DSL interpreter that executes it against a
// persistent namespace, and the compactor that rewrites the append-only
// code log into a minimal equivalent program.
package script

import (
	"bytes"
	"strings"
	"sync"
)

// Assembler accumulates the chunks written on one fid of the parse
// file. Chunks arrive in whatever sizes the transport chose (a 9P
// msize is typically 8-64 KiB), so nothing is interpreted until the
// fid is clunked and Drain is called.
type Assembler struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (a *Assembler) Write(p []byte) {
	a.mu.Lock()
	a.buf.Write(p)
	a.mu.Unlock()
}

func (a *Assembler) Empty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Len() == 0
}

// Drain returns the accumulated text with code fences unwrapped, and
// resets the assembler.
func (a *Assembler) Drain() string {
	a.mu.Lock()
	s := a.buf.String()
	a.buf.Reset()
	a.mu.Unlock()
	return Unfence(s)
}

func fenceOf(line string) string {
	t := strings.TrimSpace(line)
	if strings.HasPrefix(t, "```") {
		return "```"
	}
	if strings.HasPrefix(t, "~~~") {
		return "~~~"
	}
	return ""
}

// Unfence extracts code from fenced blocks. Text with no fences is
// returned as-is; text that is one fenced block loses the fences; text
// mixing prose and fenced blocks yields the blocks joined in order
// (agents often stream markdown around their code).
func Unfence(text string) string {
	if fenceOf(text) == "" && !strings.Contains(text, "\n```") && !strings.Contains(text, "\n~~~") {
		return text
	}
	var blocks []string
	var cur []string
	inside := false
	fence := ""
	for _, line := range strings.Split(text, "\n") {
		if f := fenceOf(line); f != "" {
			if !inside {
				inside = true
				fence = f
				cur = nil
			} else if f == fence {
				inside = false
				blocks = append(blocks, strings.Join(cur, "\n"))
			} else {
				cur = append(cur, line)
			}
			continue
		}
		if inside {
			cur = append(cur, line)
		}
	}
	if inside {
		// Unterminated fence: keep what we have, minus the empty
		// element a trailing newline leaves behind.
		if n := len(cur); n > 0 && cur[n-1] == "" {
			cur = cur[:n-1]
		}
		blocks = append(blocks, strings.Join(cur, "\n"))
	}
	if len(blocks) == 0 {
		return text
	}
	return strings.Join(blocks, "\n")
}
