package editsubmit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSubmitter struct {
	nodeID int64
	calls  int
}

func (s *fixedSubmitter) Submit(ctx context.Context, edit camsyncdal.QueuedEdit, accessToken string) (int64, errorsx.Error) {
	s.calls++
	return s.nodeID, nil
}

func TestRouter_Submit(t *testing.T) {
	production := &fixedSubmitter{nodeID: 1}
	sandbox := &fixedSubmitter{nodeID: 2}
	simulate := NewSimulatedSubmitter(logpkg.NewLogger(io.Discard, logpkg.LogLevelInfo), 0)

	router := NewRouter(production, sandbox, simulate)

	edit := newTestEdit()

	edit.Mode = camsyncdal.UploadModeProduction
	nodeID, err := router.Submit(context.Background(), edit, "token")
	require.NoError(t, err)
	assert.Equal(t, int64(1), nodeID)

	edit.Mode = camsyncdal.UploadModeSandbox
	nodeID, err = router.Submit(context.Background(), edit, "token")
	require.NoError(t, err)
	assert.Equal(t, int64(2), nodeID)

	edit.Mode = camsyncdal.UploadModeSimulate
	nodeID, err = router.Submit(context.Background(), edit, "token")
	require.NoError(t, err)
	assert.Equal(t, int64(0), nodeID)

	assert.Equal(t, 1, production.calls)
	assert.Equal(t, 1, sandbox.calls)

	edit.Mode = "staging"
	_, err = router.Submit(context.Background(), edit, "token")
	assert.Error(t, err)
}

func TestSimulatedSubmitter_cancelled(t *testing.T) {
	simulate := NewSimulatedSubmitter(logpkg.NewLogger(io.Discard, logpkg.LogLevelInfo), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := simulate.Submit(ctx, newTestEdit(), "")
	assert.Error(t, err)
}
