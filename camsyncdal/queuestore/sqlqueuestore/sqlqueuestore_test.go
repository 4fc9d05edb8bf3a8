package sqlqueuestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	defer store.Close()

	items, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, items)

	queued := []*camsyncdal.QueuedEdit{
		{
			ID:        "b",
			Lat:       48.85,
			Lon:       2.35,
			Direction: 45,
			Profile:   *camsync.BuiltinProfiles()[2],
			Mode:      camsyncdal.UploadModeSandbox,
			State:     camsyncdal.QueuedEditStatePending,
			Attempts:  1,
			LastError: "timeout",
			CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		}, {
			ID:           "a",
			Lat:          48.86,
			Lon:          2.36,
			Profile:      *camsync.BuiltinProfiles()[0],
			Mode:         camsyncdal.UploadModeProduction,
			State:        camsyncdal.QueuedEditStateCompleting,
			RemoteNodeID: 123456789012,
			CreatedAt:    time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC),
		},
	}

	err = store.Save(queued)
	require.NoError(t, err)

	items, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, queued, items, "queue order is kept, not id order")

	err = store.Save(queued[1:])
	require.NoError(t, err)

	items, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, queued[1:], items)
}
