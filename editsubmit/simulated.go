package editsubmit

import (
	"context"
	"time"

	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

// SimulatedSubmitter accepts every edit after a fixed delay without touching the network.
// It assigns no remote id, so the queue drops the edit straight away.
type SimulatedSubmitter struct {
	logger *logpkg.Logger
	delay  time.Duration
}

func NewSimulatedSubmitter(logger *logpkg.Logger, delay time.Duration) *SimulatedSubmitter {
	return &SimulatedSubmitter{logger, delay}
}

func (s *SimulatedSubmitter) Submit(ctx context.Context, edit camsyncdal.QueuedEdit, accessToken string) (int64, errorsx.Error) {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return 0, errorsx.Wrap(ctx.Err())
	case <-timer.C:
	}

	s.logger.Info("simulated upload of queued edit %s at (%v, %v)", edit.ID, edit.Lat, edit.Lon)
	return 0, nil
}
