package boltqueuestore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "queue.bolt"))
	require.NoError(t, err)
	defer store.Close()

	items, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, items)

	// more than 256 items, so a little endian key would sort out of order
	var queued []*camsyncdal.QueuedEdit
	for i := 0; i < 300; i++ {
		queued = append(queued, &camsyncdal.QueuedEdit{
			ID:        fmt.Sprintf("edit-%d", i),
			Lat:       float64(i) / 10,
			Mode:      camsyncdal.UploadModeSimulate,
			State:     camsyncdal.QueuedEditStatePending,
			CreatedAt: time.Date(2024, 5, 1, 12, 0, i, 0, time.UTC),
		})
	}

	err = store.Save(queued)
	require.NoError(t, err)

	items, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, queued, items)

	err = store.Save(queued[:2])
	require.NoError(t, err)

	items, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, queued[:2], items)
}
