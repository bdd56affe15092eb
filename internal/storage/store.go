// Package storage persists state envelopes (the payload of the root
// ctl save and load commands) under symbolic keys such as
// "state/latest". Backends: local disk, S3, or a null store that
// forgets everything.
package storage

import (
	"errors"
	"fmt"

	"github.com/peripherialabs/peribus/internal/config"
)

var ErrNotFound = errors.New("not found")

type Key string

type Value []byte

type Store interface {
	Get(Key) (Value, error)
	Put(Key, Value) error
	Delete(Key) error
}

// NewStore builds the backend selected by the configuration.
func NewStore(c *config.C) (Store, error) {
	switch c.Storage {
	case "disk":
		dir := c.DiskStoreDir
		if dir == "" {
			dir = c.StateDirectoryPath()
		}
		return NewDiskStore(dir), nil
	case "s3":
		return newS3Store(c)
	case "null":
		return NullStore{}, nil
	default:
		return nil, fmt.Errorf("storage.NewStore: unknown backend %q", c.Storage)
	}
}
