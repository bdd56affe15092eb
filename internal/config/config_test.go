package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	c, err := load(strings.NewReader(`
# peribus config
listen-net tcp
listen-addr 127.0.0.1:5640
mount-point /mnt/peribus
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.ListenNet != "tcp" || c.ListenAddr != "127.0.0.1:5640" {
		t.Fatalf("got %q %q", c.ListenNet, c.ListenAddr)
	}
	if c.MountPoint != "/mnt/peribus" {
		t.Fatalf("got %q", c.MountPoint)
	}
}

func TestLoadAllKeys(t *testing.T) {
	c, err := load(strings.NewReader(`listen-net unix
listen-addr /tmp/peribus.sock
mount-point /mnt/peribus
llmfs-mount /mnt/llm
shell /bin/bash
term-debounce-ms 200
sandbox off
storage s3
s3-profile default
s3-region eu-west-1
s3-bucket peribus-state
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.TermDebounceMs != 200 {
		t.Fatalf("got %d", c.TermDebounceMs)
	}
	if c.Sandbox != "off" {
		t.Fatalf("got %q", c.Sandbox)
	}
	if c.Storage != "s3" || c.S3Bucket != "peribus-state" {
		t.Fatalf("got %q %q", c.Storage, c.S3Bucket)
	}
}

func TestLoadRejects(t *testing.T) {
	testCases := []struct {
		name string
		in   string
	}{
		{name: "unknown key", in: "no-such-key 1\n"},
		{name: "missing separator", in: "listen-net\n"},
		{name: "bad debounce", in: "term-debounce-ms soon\n"},
		{name: "bad sandbox", in: "sandbox maybe\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := load(strings.NewReader(tc.in)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
