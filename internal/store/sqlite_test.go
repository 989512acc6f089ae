package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/teamdesk/internal/store"
	"github.com/nhle/teamdesk/tests/testutil"
)

func TestGetMissingKey(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.Set(ctx, "a", "1"))
	require.NoError(t, s.Set(ctx, "a", "2"))

	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "2", v)

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))

	_, err = s.Get(ctx, "a")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListPrefixIsLiteral(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.Set(ctx, "shown_notification_7-15", "x"))
	require.NoError(t, s.Set(ctx, "shown_notification_8-0", "y"))
	require.NoError(t, s.Set(ctx, "shownXnotification_9-0", "z"))
	require.NoError(t, s.Set(ctx, "other", "w"))

	entries, err := s.List(ctx, "shown_notification_")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "shown_notification_7-15", entries[0].Key)
	require.Equal(t, "shown_notification_8-0", entries[1].Key)
	require.False(t, entries[0].UpdatedAt.IsZero())
}

func TestReopenKeepsValuesAndSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}
