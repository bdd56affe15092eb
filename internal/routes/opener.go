package routes

import (
	"io"
	"os"
	"strings"

	"github.com/peripherialabs/peribus/internal/fsys"
)

// TreeOpener resolves route endpoints. Paths are tried inside the
// synthetic tree first (with the mount-root prefix stripped if
// present); what does not resolve there is treated as a host path,
// which is how routes reach agent files on the llmfs mount.
type TreeOpener struct {
	Client    *fsys.Client
	MountRoot string
}

func (o *TreeOpener) Open(path string) (Handle, error) {
	tree := path
	if o.MountRoot != "" {
		root := strings.TrimSuffix(o.MountRoot, "/")
		if strings.HasPrefix(path, root+"/") {
			tree = strings.TrimPrefix(path, root)
		}
	}
	if fid, err := o.Client.Open(tree); err == nil {
		return &treeHandle{client: o.Client, fid: fid}, nil
	}
	return &hostHandle{path: path}, nil
}

type treeHandle struct {
	client *fsys.Client
	fid    *fsys.Fid
}

func (h *treeHandle) ReadAll() ([]byte, error) { return h.client.ReadAll(h.fid) }

func (h *treeHandle) WriteAll(p []byte) error { return h.client.WriteAll(h.fid, p) }

func (h *treeHandle) Close() { h.fid.Clunk() }

func (h *treeHandle) Polling() bool { return false }

type hostHandle struct {
	path   string
	offset int64
}

func (h *hostHandle) SetOffset(offset int64) { h.offset = offset }

func (h *hostHandle) ReadAll() ([]byte, error) {
	f, err := os.Open(h.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if h.offset > 0 {
		if _, err := f.Seek(h.offset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(f)
}

func (h *hostHandle) WriteAll(p []byte) error {
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(p)
	return err
}

func (h *hostHandle) Close() {}

func (h *hostHandle) Polling() bool { return true }
