package sandbox

import (
	"testing"
	"testing/quick"
)

func TestPolicy(t *testing.T) {
	p := Policy{MountRoot: "/mnt/peribus"}
	testCases := []struct {
		name string
		cmd  string
		ok   bool
	}{
		{name: "read is unrestricted", cmd: "cat /etc/passwd", ok: true},
		{name: "ls anywhere", cmd: "ls -la /root", ok: true},
		{name: "rm always blocked", cmd: "rm -rf /", ok: false},
		{name: "rm blocked even under root", cmd: "rm /mnt/peribus/scene/state", ok: false},
		{name: "dd blocked", cmd: "dd if=/dev/zero of=/dev/sda", ok: false},
		{name: "mkfs variants blocked", cmd: "mkfs.ext4 /dev/sdb1", ok: false},
		{name: "fork bomb blocked", cmd: ":(){ :|:& };:", ok: false},
		{name: "shutdown blocked", cmd: "shutdown -h now", ok: false},
		{name: "umount blocked", cmd: "umount /mnt/peribus", ok: false},
		{name: "write under mount root", cmd: "cp notes.txt /mnt/peribus/scene/parse", ok: true},
		{name: "write outside mount root", cmd: "cp secrets /etc/cron.d/x", ok: false},
		{name: "touch under root", cmd: "touch /mnt/peribus/tmp", ok: true},
		{name: "touch outside root", cmd: "touch /etc/hosts", ok: false},
		{name: "redirection under root", cmd: "echo hi > /mnt/peribus/terms/t0/stdin", ok: true},
		{name: "redirection outside root", cmd: "echo pwned > /etc/passwd", ok: false},
		{name: "attached redirection outside root", cmd: "echo pwned >/etc/passwd", ok: false},
		{name: "dotdot escape", cmd: "cp x /mnt/peribus/../../etc/passwd", ok: false},
		{name: "compound blocked if any part is", cmd: "ls /; rm -rf /tmp", ok: false},
		{name: "compound allowed if all parts are", cmd: "ls / && cat /proc/cpuinfo", ok: true},
		{name: "relative paths allowed", cmd: "cp a.txt b.txt", ok: true},
		{name: "empty command", cmd: "", ok: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := p.Validate(tc.cmd)
			if ok != tc.ok {
				t.Fatalf("Validate(%q) = %v (%q), want %v", tc.cmd, ok, reason, tc.ok)
			}
			if !ok && reason == "" {
				t.Fatal("rejection without a reason")
			}
		})
	}
}

// The validator is total and idempotent: any input gets a verdict, and
// the verdict never changes between calls.
func TestValidateIsPureAndTotal(t *testing.T) {
	p := Policy{MountRoot: "/mnt/peribus"}
	f := func(cmd string) bool {
		ok1, reason1 := p.Validate(cmd)
		ok2, reason2 := p.Validate(cmd)
		return ok1 == ok2 && reason1 == reason2
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestPermissive(t *testing.T) {
	var v Validator = Permissive{}
	if ok, _ := v.Validate("rm -rf /"); !ok {
		t.Fatal("permissive validator rejected a command")
	}
}
