package fsys

import "github.com/peripherialabs/peribus/internal/linuxerr"

// Client drives the tree in-process through the same walk/open/read/
// write/clunk contract 9P clients use. The routes manager builds its
// tail loops on it.
type Client struct {
	root *Node
}

func NewClient(root *Node) *Client { return &Client{root: root} }

// Open walks to path and returns a fresh fid on it.
func (c *Client) Open(path string) (*Fid, error) {
	node, err := c.root.Resolve(path)
	if err != nil {
		return nil, err
	}
	if node.IsDir() {
		return nil, linuxerr.EACCES
	}
	return NewFid(node), nil
}

// ReadAll reads from offset zero to EOF, blocking as the file dictates.
func (c *Client) ReadAll(f *Fid) ([]byte, error) {
	var all []byte
	var offset int64
	for {
		p, err := f.Node.File().Read(f, offset, 65536)
		if err != nil {
			return all, err
		}
		if len(p) == 0 {
			return all, nil
		}
		all = append(all, p...)
		offset += int64(len(p))
	}
}

// WriteAll writes the whole payload at offset zero.
func (c *Client) WriteAll(f *Fid, p []byte) error {
	_, err := f.Node.File().Write(f, 0, p)
	return err
}
