package mem

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestMemStore_SetGetRemove(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	assert.Nil(t, s.Set(ctx, "/session/", "sess-1", []byte("v1")))

	value, err := s.Get(ctx, "/session/", "sess-1")
	assert.Nil(t, err)
	assert.Equal(t, []byte("v1"), value)

	assert.Nil(t, s.Set(ctx, "/session/", "sess-1", []byte("v2")))
	value, _ = s.Get(ctx, "/session/", "sess-1")
	assert.Equal(t, []byte("v2"), value)

	// missing keys read as nil, not as an error
	value, err = s.Get(ctx, "/session/", "missing")
	assert.Nil(t, err)
	assert.Nil(t, value)

	assert.Nil(t, s.Remove(ctx, "/session/", "sess-1"))
	value, _ = s.Get(ctx, "/session/", "sess-1")
	assert.Nil(t, value)
}

func TestMemStore_PrefixIsolation(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	assert.Nil(t, s.Set(ctx, "/session/", "a", []byte("1")))
	assert.Nil(t, s.Set(ctx, "/other/", "a", []byte("2")))

	value, _ := s.Get(ctx, "/session/", "a")
	assert.Equal(t, []byte("1"), value)
	value, _ = s.Get(ctx, "/other/", "a")
	assert.Equal(t, []byte("2"), value)

	keys := make([]string, 0)
	err := s.List(ctx, "/session/", func(key string) bool {
		keys = append(keys, key)
		return true
	})
	assert.Nil(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

func TestMemStore_ListStopsEarly(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	assert.Nil(t, s.Set(ctx, "/session/", "a", []byte("1")))
	assert.Nil(t, s.Set(ctx, "/session/", "b", []byte("2")))

	count := 0
	err := s.List(ctx, "/session/", func(key string) bool {
		count++
		return false
	})
	assert.Nil(t, err)
	assert.Equal(t, 1, count)
}

func TestMemStore_ErrHandler(t *testing.T) {
	mockErr := errors.New("disk on fire")
	s := NewMemStoreWithErrHandler(func() error {
		return mockErr
	})
	ctx := context.Background()

	assert.Equal(t, mockErr, s.Set(ctx, "/session/", "a", []byte("1")))
	_, err := s.Get(ctx, "/session/", "a")
	assert.Equal(t, mockErr, err)
}
