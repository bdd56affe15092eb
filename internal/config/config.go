package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	mathrand "math/rand"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseDirectoryPath is where peribusfs stores configuration and
// state. It defaults to $PERIBUS_BASE if it is set, otherwise to
// $HOME/lib/peribus. Commands override this via the -base flag.
var DefaultBaseDirectoryPath string

func init() {
	if base := os.Getenv("PERIBUS_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		// The portable way of doing this is by using the os/user package,
		// but I only intend to run this on Linux or NetBSD.
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/peribus")
	}
}

type C struct {
	// Listen on localhost or a local-only network. There is no
	// authentication nor TLS so the file server must not be exposed
	// on a public address.
	ListenNet  string
	ListenAddr string

	// Where the synthetic tree is mounted by the kernel client. The
	// sandbox confines shell mutations to this subtree and the routes
	// file expands relative paths against it.
	MountPoint string

	// Where the agent file system is mounted; terminal input files
	// forward to <LLMFSMount>/agents/<name>/input.
	LLMFSMount string

	// Shell command spawned for new terminals. Defaults to $SHELL,
	// then /bin/sh.
	Shell string

	// Quiet interval after which a terminal's captured output is
	// marked ready, in milliseconds. Zero means the default (120).
	TermDebounceMs int

	// Sandbox "on" (default) or "off". Off installs the permissive
	// validator, which is a development convenience.
	Sandbox string

	// Storage backend for ctl save/load without a path argument.
	// Can be "disk", "s3" or "null".
	Storage string

	// These only make sense if the storage type is "s3".
	S3Profile string
	S3Region  string
	S3Bucket  string

	// These only make sense if the storage type is "disk".
	// If the path is relative, it will be assumed relative to the base dir.
	DiskStoreDir string

	// Directory holding the peribus config file and other files.
	// Other paths are derived from this.
	base string
}

// Load loads the configuration from the file called "config" in the
// provided base directory.
func Load(base string) (*C, error) {
	filename := filepath.Join(base, "config")
	if fi, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	} else if fi.Mode()&0077 != 0 {
		return nil, fmt.Errorf("config.Load %q: mode is %#o, want at most %#o",
			filename, fi.Mode()&0777, fi.Mode()&0700)
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Ignore error closing file opened only for reading.
		_ = f.Close()
	}()
	c, err := load(f)
	if err != nil {
		return nil, err
	}
	c.base = base
	if c.DiskStoreDir != "" && !filepath.IsAbs(c.DiskStoreDir) {
		c.DiskStoreDir = filepath.Clean(filepath.Join(c.base, c.DiskStoreDir))
	}
	if c.ListenNet == "" && c.ListenAddr == "" {
		c.ListenNet = "unix"
	}
	if c.ListenNet == "unix" && c.ListenAddr == "" {
		c.ListenAddr = fmt.Sprintf("%s/peribus", clientNamespace())
	}
	if c.Shell == "" {
		if c.Shell = os.Getenv("SHELL"); c.Shell == "" {
			c.Shell = "/bin/sh"
		}
	}
	if c.TermDebounceMs == 0 {
		c.TermDebounceMs = 120
	}
	if c.Sandbox == "" {
		c.Sandbox = "on"
	}
	if c.Storage == "" {
		c.Storage = "disk"
	}
	return c, nil
}

func load(f io.Reader) (*C, error) {
	c := C{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		i := strings.IndexAny(line, " 	")
		if i == -1 {
			return nil, fmt.Errorf("load: no separator in %q", line)
		}
		key, val := line[:i], strings.TrimSpace(line[i:])
		switch key {
		case "listen-net":
			c.ListenNet = val
		case "listen-addr":
			c.ListenAddr = val
		case "mount-point":
			c.MountPoint = val
		case "llmfs-mount":
			c.LLMFSMount = val
		case "shell":
			c.Shell = val
		case "term-debounce-ms":
			ms, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("load: term-debounce-ms %q: %w", val, err)
			}
			c.TermDebounceMs = ms
		case "sandbox":
			if val != "on" && val != "off" {
				return nil, fmt.Errorf("load: sandbox must be on or off, got %q", val)
			}
			c.Sandbox = val
		case "storage":
			c.Storage = val
		case "disk-store-dir":
			c.DiskStoreDir = val
		case "s3-profile":
			c.S3Profile = val
		case "s3-region":
			c.S3Region = val
		case "s3-bucket":
			c.S3Bucket = val
		default:
			return nil, fmt.Errorf("load: unknown key %q", key)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return &c, nil
}

// StateDirectoryPath is where the disk storage backend keeps state
// envelopes when no disk-store-dir is configured.
func (c *C) StateDirectoryPath() string {
	return path.Join(c.base, "state")
}

func (c *C) Base() string { return c.base }

// See https://www.kernel.org/doc/Documentation/filesystems/9p.txt.
func linuxMountCommand(net string, addr string, mountpoint string) (string, error) {
	const method = "linuxMountCommand"
	uid, gid := os.Getuid(), os.Getgid()
	switch net {
	case "unix":
		return fmt.Sprintf("sudo mount -t 9p %v %v -o trans=unix,dfltuid=%d,dfltgid=%d,cache=none,noextend,msize=131072", addr, mountpoint, uid, gid), nil
	case "tcp":
		if parts := strings.Split(addr, ":"); len(parts) != 2 {
			return "", errorf(method, "malformed host-port pair: %q", addr)
		} else {
			return fmt.Sprintf("sudo mount -t 9p %v %v -o trans=tcp,port=%v,dfltuid=%d,dfltgid=%d,cache=none,noextend,msize=131072", parts[0], mountpoint, parts[1], uid, gid), nil
		}
	default:
		return "", errorf(method, "unhandled network type: %v", net)
	}
}

// See mount_9p(8).
func netbsdMountCommand(net string, addr string, mountpoint string) (string, error) {
	const method = "netbsdMountCommand"
	if net != "tcp" {
		return "", errorf(method, "unsupported network: %q", net)
	}
	if parts := strings.Split(addr, ":"); len(parts) != 2 {
		return "", errorf(method, "malformed host-port pair: %q", addr)
	} else {
		return fmt.Sprintf("sudo mount_9p -p %v %v %v", parts[1], parts[0], mountpoint), nil
	}
}

func (c *C) MountCommands() ([]string, error) {
	switch runtime.GOOS {
	case "linux":
		cmd, err := linuxMountCommand(c.ListenNet, c.ListenAddr, c.MountPoint)
		if err != nil {
			return nil, err
		}
		return []string{cmd}, nil
	case "netbsd":
		cmd, err := netbsdMountCommand(c.ListenNet, c.ListenAddr, c.MountPoint)
		if err != nil {
			return nil, err
		}
		return []string{cmd}, nil
	default:
		return nil, fmt.Errorf("don't know how to mount on %v", runtime.GOOS)
	}
}

// Initialize generates an initial configuration at the given directory.
func Initialize(baseDir string) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return fmt.Errorf("%q: could not mkdir: %w", baseDir, err)
	}
	path := filepath.Join(baseDir, "config")
	_, err := os.Stat(path)
	if err == nil {
		return fmt.Errorf("%q: already exists", path)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("%q: could not determine if it exists: %w", path, err)
	}

	var buf bytes.Buffer
	mathrand.Seed(time.Now().UnixNano())
	port := 49152 + mathrand.Intn(65535-49152)
	buf.WriteString("listen-net tcp\n")
	fmt.Fprintf(&buf, "listen-addr 127.0.0.1:%d\n", port)
	buf.WriteString("mount-point /mnt/peribus\n")
	buf.WriteString("storage disk\n")
	buf.WriteString("disk-store-dir permanent\n")
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("config.Initialize %q: %w", path, err)
	}
	return nil
}

var dotZero = regexp.MustCompile(`\A(.*:\d+)\.0\z`)

// clientNamespace returns the path to the name space directory.
func clientNamespace() string {
	ns := os.Getenv("NAMESPACE")
	if ns != "" {
		return ns
	}

	disp := os.Getenv("DISPLAY")
	if disp == "" {
		// No $DISPLAY? Use :0.0 for non-X11 GUI (OS X).
		disp = ":0.0"
	}

	// Canonicalize: xxx:0.0 => xxx:0.
	if m := dotZero.FindStringSubmatch(disp); m != nil {
		disp = m[1]
	}

	// Turn /tmp/launch/:0 into _tmp_launch_:0 (OS X 10.5).
	disp = strings.Replace(disp, "/", "_", -1)

	return fmt.Sprintf("/tmp/ns.%s.%s", os.Getenv("USER"), disp)
}
