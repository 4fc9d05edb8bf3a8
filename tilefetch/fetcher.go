package tilefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/netstatus"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
)

var (
	ErrFetchFailed = errors.New("tile fetch failed")
	ErrCancelled   = errors.New("tile fetch cancelled")
)

type Config struct {
	MaxConcurrentFetches uint
	MaxAttempts          int
	RetryDelays          []time.Duration
	RetryJitter          time.Duration
	MaxRetryDelay        time.Duration
	UserAgent            string
}

type Fetcher struct {
	logger    *logpkg.Logger
	doer      httpextra.Doer
	status    netstatus.Reporter
	gate      *AdmissionGate
	retry     *RetryPolicy
	userAgent string
	epoch     int64
	sleepFunc func(ctx context.Context, d time.Duration) error
}

func NewFetcher(logger *logpkg.Logger, doer httpextra.Doer, status netstatus.Reporter, config Config) *Fetcher {
	return &Fetcher{
		logger:    logger,
		doer:      doer,
		status:    status,
		gate:      NewAdmissionGate(config.MaxConcurrentFetches),
		retry:     NewRetryPolicy(config.MaxAttempts, config.RetryDelays, config.RetryJitter, config.MaxRetryDelay),
		userAgent: config.UserAgent,
		sleepFunc: sleepContext,
	}
}

// FetchTile downloads one tile, retrying transport failures.
// It fails with ErrFetchFailed once all attempts are used up, and with ErrCancelled
// if CancelAll or DropOutsideViewport invalidated the request part way.
func (f *Fetcher) FetchTile(ctx context.Context, key camsync.TileKey) ([]byte, errorsx.Error) {
	epoch := atomic.LoadInt64(&f.epoch)

	var lastErr error
	for attempt := 0; attempt < f.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := f.retry.Delay(attempt - 1)

			if f.isStale(epoch) {
				return nil, f.cancelled(key)
			}

			f.logger.Debug("retrying tile %s in %s (attempt %d/%d)", key, delay, attempt+1, f.retry.MaxAttempts)
			err := f.sleepFunc(ctx, delay)
			if err != nil || f.isStale(epoch) {
				return nil, f.cancelled(key)
			}
		}

		if f.isStale(epoch) {
			return nil, f.cancelled(key)
		}

		release, err := f.gate.Acquire(ctx, key)
		if err != nil {
			return nil, f.cancelled(key)
		}

		if f.isStale(epoch) {
			release()
			return nil, f.cancelled(key)
		}

		body, err := f.get(ctx, key)
		release()

		if f.isStale(epoch) {
			return nil, f.cancelled(key)
		}

		if err == nil {
			f.status.ReportSuccess(netstatus.SourceTiles)
			f.logger.Debug("fetched tile %s (%s)", key, humanize.Bytes(uint64(len(body))))
			return body, nil
		}

		lastErr = err
		f.status.ReportIssue(netstatus.SourceTiles, netstatus.IssueTransport)
		f.logger.Warn("couldn't fetch tile %s (attempt %d/%d): %s", key, attempt+1, f.retry.MaxAttempts, err)
	}

	return nil, errorsx.Wrap(ErrFetchFailed, "tile", key.String(), "lastError", fmt.Sprint(lastErr))
}

// CancelAll invalidates every request started before the call, in flight or waiting for a slot
func (f *Fetcher) CancelAll() {
	atomic.AddInt64(&f.epoch, 1)
	dropped := f.gate.DropWaiters(func(key camsync.TileKey) bool {
		return true
	})

	f.logger.Debug("cancelled all tile requests (%d waiting dropped)", dropped)
}

// DropOutsideViewport drops waiting requests for tiles that no longer overlap the viewport.
// Requests already in flight are left alone.
func (f *Fetcher) DropOutsideViewport(viewport camsync.GeoRect) int {
	return f.gate.DropWaiters(func(key camsync.TileKey) bool {
		return !camsync.Overlaps(viewport, key.Bounds())
	})
}

// Stats returns the number of tile requests in flight and waiting for a slot
func (f *Fetcher) Stats() (inFlight, waiting int) {
	return f.gate.Stats()
}

func (f *Fetcher) isStale(epoch int64) bool {
	return atomic.LoadInt64(&f.epoch) != epoch
}

func (f *Fetcher) cancelled(key camsync.TileKey) errorsx.Error {
	return errorsx.Wrap(ErrCancelled, "tile", key.String())
}

func (f *Fetcher) get(ctx context.Context, key camsync.TileKey) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key.URL(), nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpextra.CheckResponseCode(http.StatusOK, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if len(body) == 0 {
		return nil, errors.New("empty tile body")
	}

	return body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
