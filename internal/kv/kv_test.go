package kv_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/kv"
)

func backends(t *testing.T) map[string]kv.KV {
	t.Helper()
	sqlStore, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	return map[string]kv.KV{
		"memory": kv.NewMemory(),
		"sqlite": sqlStore,
	}
}

func TestKV_Contract(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "missing")
			require.ErrorIs(t, err, kv.ErrNotFound)

			require.NoError(t, store.Set(ctx, "b", []byte("one")))
			require.NoError(t, store.Set(ctx, "a", []byte("two")))
			require.NoError(t, store.Set(ctx, "b", []byte("three")))

			got, err := store.Get(ctx, "b")
			require.NoError(t, err)
			require.Equal(t, "three", string(got))

			keys, err := store.Keys(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b"}, keys)

			require.NoError(t, store.Delete(ctx, "a"))
			require.ErrorIs(t, store.Delete(ctx, "a"), kv.ErrNotFound)

			keys, err = store.Keys(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"b"}, keys)
		})
	}
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	value := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}
