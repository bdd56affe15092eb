// Package sandbox is the pre-flight validator consulted before any
// command reaches a terminal's PTY. It is purely syntactic: it
// classifies the command text, it never executes anything, and the
// same input always yields the same verdict.
package sandbox

import (
	"path"
	"strings"
)

// Validator decides whether a shell command may run.
type Validator interface {
	// Validate returns ok=false and a reason when the command is
	// rejected.
	Validate(command string) (ok bool, reason string)
}

// Policy confines mutations to the subtree under MountRoot and blocks
// destructive operations outright.
type Policy struct {
	MountRoot string
}

// Permissive allows everything. Installed when the sandbox is disabled
// in the configuration; a development convenience only.
type Permissive struct{}

func (Permissive) Validate(string) (bool, string) { return true, "" }

// Commands that only read. Path arguments are irrelevant for these.
var readOnly = map[string]bool{
	"cat": true, "ls": true, "head": true, "tail": true, "grep": true,
	"find": true, "wc": true, "stat": true, "file": true, "df": true,
	"du": true, "ps": true, "top": true, "which": true, "env": true,
	"printenv": true, "date": true, "who": true, "whoami": true,
	"uname": true, "pwd": true, "echo": true, "true": true, "false": true,
	"sleep": true, "id": true, "hostname": true, "uptime": true,
	"sort": true, "uniq": true, "cut": true, "tr": true, "diff": true,
	"md5sum": true, "sha256sum": true, "xxd": true, "od": true, "strings": true,
}

// Commands that are destructive no matter what they point at.
var destructive = map[string]bool{
	"rm": true, "dd": true, "mkfs": true, "mkswap": true, "fdisk": true,
	"parted": true, "shred": true, "wipefs": true, "shutdown": true,
	"reboot": true, "halt": true, "poweroff": true, "init": true,
	"umount": true, "mount": true, "swapoff": true, "sysctl": true,
	"killall": true, "pkill": true,
}

func (p Policy) Validate(command string) (bool, string) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return true, ""
	}
	if strings.Contains(strings.ReplaceAll(trimmed, " ", ""), ":(){") {
		return false, "fork bomb"
	}
	for _, simple := range splitCommands(trimmed) {
		if ok, reason := p.validateOne(simple); !ok {
			return false, reason
		}
	}
	return true, ""
}

// splitCommands breaks a compound command at ; && || | and newlines.
// Quoting is not honored: a quoted separator splits too, which can
// only make the validator stricter, never laxer.
func splitCommands(s string) []string {
	var out []string
	cur := s
	for {
		i := strings.IndexAny(cur, ";|\n&")
		if i < 0 {
			break
		}
		out = append(out, cur[:i])
		for i < len(cur) && strings.ContainsRune(";|\n&", rune(cur[i])) {
			i++
		}
		cur = cur[i:]
	}
	return append(out, cur)
}

func (p Policy) validateOne(simple string) (bool, string) {
	fields := strings.Fields(simple)
	// Peel redirections off first: `cmd > /etc/passwd` is a mutation
	// of /etc/passwd whatever cmd is.
	var args []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if f == ">" || f == ">>" || f == "2>" || f == "&>" {
			if i+1 < len(fields) {
				i++
				if !p.underRoot(fields[i]) {
					return false, "redirection outside " + p.MountRoot + ": " + fields[i]
				}
			}
			continue
		}
		if target, ok := redirTarget(f); ok {
			if !p.underRoot(target) {
				return false, "redirection outside " + p.MountRoot + ": " + target
			}
			continue
		}
		args = append(args, f)
	}
	if len(args) == 0 {
		return true, ""
	}
	prog := path.Base(args[0])
	if destructive[prog] || strings.HasPrefix(prog, "mkfs.") {
		return false, "destructive command: " + prog
	}
	if readOnly[prog] {
		return true, ""
	}
	// Everything else may mutate: each path-shaped argument must lie
	// under the mount root.
	for _, a := range args[1:] {
		if strings.HasPrefix(a, "-") {
			continue
		}
		if !looksLikePath(a) {
			continue
		}
		if !p.underRoot(a) {
			return false, "path outside " + p.MountRoot + ": " + a
		}
	}
	return true, ""
}

func redirTarget(field string) (string, bool) {
	for _, prefix := range []string{">>", ">", "2>", "&>"} {
		if strings.HasPrefix(field, prefix) && len(field) > len(prefix) {
			return field[len(prefix):], true
		}
	}
	return "", false
}

func looksLikePath(a string) bool {
	return strings.HasPrefix(a, "/") || strings.HasPrefix(a, "~") || strings.Contains(a, "..")
}

func (p Policy) underRoot(a string) bool {
	if strings.HasPrefix(a, "~") {
		return false
	}
	if strings.Contains(a, "..") {
		return false
	}
	if !strings.HasPrefix(a, "/") {
		// Relative paths resolve under the shell's cwd, which starts
		// at the mount root.
		return true
	}
	if p.MountRoot == "" {
		return false
	}
	cleaned := path.Clean(a)
	root := path.Clean(p.MountRoot)
	return cleaned == root || strings.HasPrefix(cleaned, root+"/")
}
