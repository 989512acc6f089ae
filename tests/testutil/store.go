package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/teamdesk/internal/store"
)

// NewTestStore opens a migrated in-memory store, seeded with the given
// key/value pairs, and closes it when the test ends.
func NewTestStore(t *testing.T, seed ...store.Entry) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err, "opening test store")
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	ctx := context.Background()
	for _, e := range seed {
		require.NoError(t, s.Set(ctx, e.Key, e.Value), "seeding %s", e.Key)
	}
	return s
}
