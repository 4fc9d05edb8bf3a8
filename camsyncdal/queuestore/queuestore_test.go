package queuestore

import (
	"testing"

	"github.com/jamesrr39/camsync-app/camsyncdal/queuestore/jsonqueuestore"
	"github.com/jamesrr39/goutil/gofs/mockfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	store, err := Open(mockfs.NewMockFs(), "json:///data/queue.json")
	require.NoError(t, err)
	assert.IsType(t, &jsonqueuestore.Store{}, store)

	_, err = Open(mockfs.NewMockFs(), "mongodb://localhost")
	assert.Error(t, err)
}
