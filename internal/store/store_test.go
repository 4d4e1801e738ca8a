package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalendo/pluginhub/internal/store"
	"github.com/kalendo/pluginhub/internal/testutil"
)

func TestKeyValueStore(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))

	t.Run("Missing key", func(t *testing.T) {
		var dest map[string]string
		found, err := st.GetValue(ctx, "missing", &dest)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, dest)
	})

	t.Run("Set then get", func(t *testing.T) {
		require.NoError(t, st.SetValue(ctx, "settings", map[string]any{"autoUpdate": true}))

		var dest map[string]bool
		found, err := st.GetValue(ctx, "settings", &dest)
		require.NoError(t, err)
		assert.True(t, found)
		assert.True(t, dest["autoUpdate"])
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, st.SetValue(ctx, "counter", 1))
		require.NoError(t, st.SetValue(ctx, "counter", 2))

		var n int
		_, err := st.GetValue(ctx, "counter", &n)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, st.SetValue(ctx, "gone", "x"))
		require.NoError(t, st.DeleteValue(ctx, "gone"))

		var s string
		found, err := st.GetValue(ctx, "gone", &s)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestNamespace(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	ns := st.Namespaced("plugin_system")

	require.NoError(t, ns.Set(ctx, "repositories", []string{"official"}))

	var raw []string
	found, err := st.GetValue(ctx, "plugin_system_repositories", &raw)
	require.NoError(t, err)
	assert.True(t, found, "namespaced key should be stored with its prefix")
	assert.Equal(t, []string{"official"}, raw)

	var viaNamespace []string
	found, err = ns.Get(ctx, "repositories", &viaNamespace)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, raw, viaNamespace)

	found, err = st.GetValue(ctx, "repositories", &raw)
	require.NoError(t, err)
	assert.False(t, found, "unprefixed key must not collide")
}
