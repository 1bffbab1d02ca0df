// Package storetest is a conformance suite every block.Store implementation
// must pass.
package storetest

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/pagesweep/pkg/store/block"
)

// Factory returns a fresh, empty store. It should register its own cleanup
// with t.Cleanup; the suite closes the store itself only in the Closed case.
type Factory func(t *testing.T) block.Store

// Run runs the conformance suite against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("WriteRead", func(t *testing.T) {
		s := factory(t)
		ctx := t.Context()

		key := block.PageKey("fs", 7, 3)
		require.NoError(t, s.WriteBlock(ctx, key, []byte("hello")))

		got, err := s.ReadBlock(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)

		require.NoError(t, s.WriteBlock(ctx, key, []byte("again")))
		got, err = s.ReadBlock(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("again"), got)
	})

	t.Run("ReadMissing", func(t *testing.T) {
		s := factory(t)
		_, err := s.ReadBlock(t.Context(), "nope")
		assert.ErrorIs(t, err, block.ErrBlockNotFound)
	})

	t.Run("BuffersAreCopied", func(t *testing.T) {
		s := factory(t)
		ctx := t.Context()

		buf := []byte("abc")
		require.NoError(t, s.WriteBlock(ctx, "k", buf))
		buf[0] = 'z'

		got, err := s.ReadBlock(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
	})

	t.Run("Delete", func(t *testing.T) {
		s := factory(t)
		ctx := t.Context()

		require.NoError(t, s.WriteBlock(ctx, "k", []byte("v")))
		require.NoError(t, s.DeleteBlock(ctx, "k"))
		require.NoError(t, s.DeleteBlock(ctx, "k"))

		_, err := s.ReadBlock(ctx, "k")
		assert.ErrorIs(t, err, block.ErrBlockNotFound)
	})

	t.Run("Prefixes", func(t *testing.T) {
		s := factory(t)
		ctx := t.Context()

		for _, k := range []string{
			block.PageKey("a", 1, 0),
			block.PageKey("a", 1, 1),
			block.PageKey("a", 12, 0),
			block.DeviceKey("a", 0),
			block.PageKey("b", 1, 0),
		} {
			require.NoError(t, s.WriteBlock(ctx, k, []byte(k)))
		}

		keys, err := s.ListByPrefix(ctx, block.InodePrefix("a", 1))
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"a/ino/1/0", "a/ino/1/1"}, keys)

		require.NoError(t, s.DeleteByPrefix(ctx, "a/"))

		keys, err = s.ListByPrefix(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"b/ino/1/0"}, keys)

		keys, err = s.ListByPrefix(ctx, "zzz/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("HealthCheck", func(t *testing.T) {
		s := factory(t)
		assert.NoError(t, s.HealthCheck(t.Context()))
	})

	t.Run("Closed", func(t *testing.T) {
		s := factory(t)
		ctx := t.Context()
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.WriteBlock(ctx, "k", nil), block.ErrStoreClosed)
		_, err := s.ReadBlock(ctx, "k")
		assert.ErrorIs(t, err, block.ErrStoreClosed)
		assert.Error(t, s.HealthCheck(ctx))
	})
}
