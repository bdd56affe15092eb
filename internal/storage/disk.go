package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) Get(k Key) (Value, error) {
	b, err := os.ReadFile(s.pathFor(k))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%q: %w", k, ErrNotFound)
	}
	return b, err
}

func (s *DiskStore) Put(k Key, v Value) error {
	p := s.pathFor(k)
	pnew := p + ".new"
	err := os.WriteFile(pnew, v, 0600)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err = os.MkdirAll(filepath.Dir(pnew), 0700); err != nil {
			return err
		}
		err = os.WriteFile(pnew, v, 0600)
	}
	if err != nil {
		return err
	}
	return syscall.Rename(pnew, p)
}

func (s *DiskStore) Delete(k Key) error {
	err := os.Remove(s.pathFor(k))
	if err != nil {
		perr, ok := err.(*os.PathError)
		if ok {
			serr, ok := perr.Err.(syscall.Errno)
			if ok && serr == syscall.ENOENT {
				return errors.Wrapf(ErrNotFound, "could not delete %v", k)
			}
		}
	}
	return err
}

func (s *DiskStore) Contains(k Key) (bool, error) {
	_, err := os.Stat(s.pathFor(k))
	if os.IsNotExist(err) {
		return false, nil
	}
	return true, err
}

// Keys are symbolic names like "state/latest"; slashes map to
// subdirectories, and nothing may climb out of the store root.
func (s *DiskStore) pathFor(key Key) string {
	clean := filepath.Clean("/" + filepath.FromSlash(string(key)))
	return filepath.Join(s.dir, strings.TrimPrefix(clean, "/"))
}
