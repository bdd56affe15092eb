package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"disk":     NewDiskStore(t.TempDir()),
		"inmemory": &InMemory{},
	}
}

func TestGetPutDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("state/latest")
			assert.True(t, errors.Is(err, ErrNotFound))

			require.Nil(t, s.Put("state/latest", Value(`{"rio_state":1}`)))
			v, err := s.Get("state/latest")
			require.Nil(t, err)
			assert.Equal(t, `{"rio_state":1}`, string(v))

			require.Nil(t, s.Put("state/latest", Value("superseded")))
			v, err = s.Get("state/latest")
			require.Nil(t, err)
			assert.Equal(t, "superseded", string(v))

			require.Nil(t, s.Delete("state/latest"))
			_, err = s.Get("state/latest")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestDiskDeleteInexistent(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	err := s.Delete("never-put")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDiskKeyMayNotEscapeRoot(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	require.Nil(t, s.Put("../../escape", Value("x")))
	ok, err := s.Contains("escape")
	require.Nil(t, err)
	assert.True(t, ok)
}
