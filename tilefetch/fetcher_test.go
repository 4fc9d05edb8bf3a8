package tilefetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/netstatus"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURLTemplate = "https://tiles.example.com/{z}/{x}/{y}.png"

type recordingReporter struct {
	mu        sync.Mutex
	successes int
	issues    int
}

func (r *recordingReporter) ReportSuccess(source netstatus.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes++
}

func (r *recordingReporter) ReportIssue(source netstatus.Source, issue netstatus.Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues++
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

var testConfig = Config{
	MaxConcurrentFetches: 4,
	MaxAttempts:          3,
	RetryDelays:          []time.Duration{200 * time.Millisecond, time.Second, 3 * time.Second},
	RetryJitter:          250 * time.Millisecond,
	MaxRetryDelay:        5 * time.Second,
}

func newTestFetcher(doFunc func(req *http.Request) (*http.Response, error), reporter netstatus.Reporter, config Config) (*Fetcher, *[]time.Duration) {
	var sleeps []time.Duration
	var mu sync.Mutex

	logger := logpkg.NewLogger(io.Discard, logpkg.LogLevelDebug)
	f := NewFetcher(logger, &httpextra.MockDoer{DoFunc: doFunc}, reporter, config)
	f.sleepFunc = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		sleeps = append(sleeps, d)
		return nil
	}

	return f, &sleeps
}

func tileKey(z, x, y int) camsync.TileKey {
	return camsync.TileKey{Z: z, X: x, Y: y, URLTemplate: testURLTemplate}
}

func isErr(err error, target error) bool {
	return errors.Is(errorsx.Cause(err), target)
}

func TestFetcher_FetchTile_failsTwiceThenSucceeds(t *testing.T) {
	var calls int32
	var requestedURL string
	doFunc := func(req *http.Request) (*http.Response, error) {
		switch atomic.AddInt32(&calls, 1) {
		case 1, 2:
			return nil, errors.New("connection reset by peer")
		default:
			requestedURL = req.URL.String()
			return okResponse("third response"), nil
		}
	}

	reporter := new(recordingReporter)
	f, sleeps := newTestFetcher(doFunc, reporter, testConfig)

	body, err := f.FetchTile(context.Background(), tileKey(10, 5, 5))
	require.NoError(t, err)

	assert.Equal(t, "third response", string(body))
	assert.Equal(t, "https://tiles.example.com/10/5/5.png", requestedURL)
	assert.Equal(t, int32(3), calls)

	require.Len(t, *sleeps, 2)
	assert.GreaterOrEqual(t, (*sleeps)[0], 200*time.Millisecond)
	assert.LessOrEqual(t, (*sleeps)[0], 450*time.Millisecond)
	assert.GreaterOrEqual(t, (*sleeps)[1], time.Second)
	assert.LessOrEqual(t, (*sleeps)[1], 1250*time.Millisecond)

	assert.Equal(t, 2, reporter.issues)
	assert.Equal(t, 1, reporter.successes)
}

func TestFetcher_FetchTile_exhaustsAttempts(t *testing.T) {
	var calls int32
	doFunc := func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Body:       io.NopCloser(strings.NewReader("unavailable")),
		}, nil
	}

	f, sleeps := newTestFetcher(doFunc, new(recordingReporter), testConfig)

	_, err := f.FetchTile(context.Background(), tileKey(3, 1, 2))
	require.Error(t, err)
	assert.True(t, isErr(err, ErrFetchFailed))
	assert.Equal(t, int32(3), calls)
	assert.Len(t, *sleeps, 2)
}

func TestFetcher_FetchTile_emptyBodyIsAFailure(t *testing.T) {
	doFunc := func(req *http.Request) (*http.Response, error) {
		return okResponse(""), nil
	}

	config := testConfig
	config.MaxAttempts = 1
	f, _ := newTestFetcher(doFunc, new(recordingReporter), config)

	_, err := f.FetchTile(context.Background(), tileKey(3, 1, 2))
	assert.True(t, isErr(err, ErrFetchFailed))
}

func TestFetcher_FetchTile_cancelledDuringRetryDelay(t *testing.T) {
	var calls int32
	doFunc := func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("timeout")
		}
		return okResponse("tile"), nil
	}

	f, _ := newTestFetcher(doFunc, new(recordingReporter), testConfig)
	f.sleepFunc = func(ctx context.Context, d time.Duration) error {
		f.CancelAll()
		return nil
	}

	_, err := f.FetchTile(context.Background(), tileKey(10, 5, 5))
	assert.True(t, isErr(err, ErrCancelled))
	assert.Equal(t, int32(1), calls, "no retry after the epoch moved on")

	// requests started after the cancellation proceed normally
	body, err := f.FetchTile(context.Background(), tileKey(10, 5, 5))
	require.NoError(t, err)
	assert.Equal(t, "tile", string(body))
}

func TestFetcher_FetchTile_admissionBound(t *testing.T) {
	const requestCount = 10

	var current, maxSeen int32
	unblock := make(chan struct{})
	doFunc := func(req *http.Request) (*http.Response, error) {
		now := atomic.AddInt32(&current, 1)
		for {
			seen := atomic.LoadInt32(&maxSeen)
			if now <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, now) {
				break
			}
		}

		<-unblock
		atomic.AddInt32(&current, -1)
		return okResponse("tile"), nil
	}

	f, _ := newTestFetcher(doFunc, new(recordingReporter), testConfig)

	var wg sync.WaitGroup
	errs := make([]error, requestCount)
	for i := 0; i < requestCount; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.FetchTile(context.Background(), tileKey(10, i, 0))
			errs[i] = err
		}(i)
	}

	require.Eventually(t, func() bool {
		inFlight, waiting := f.Stats()
		return inFlight == 4 && waiting == requestCount-4
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(4), atomic.LoadInt32(&current))

	close(unblock)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(4))

	inFlight, waiting := f.Stats()
	assert.Equal(t, 0, inFlight)
	assert.Equal(t, 0, waiting)
}

func TestFetcher_CancelAll(t *testing.T) {
	var calls int32
	unblock := make(chan struct{})
	doFunc := func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		<-unblock
		return okResponse("tile"), nil
	}

	config := testConfig
	config.MaxConcurrentFetches = 1
	f, _ := newTestFetcher(doFunc, new(recordingReporter), config)

	var wg sync.WaitGroup
	var inFlightErr, waitingErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, inFlightErr = f.FetchTile(context.Background(), tileKey(10, 1, 1))
	}()
	require.Eventually(t, func() bool {
		inFlight, _ := f.Stats()
		return inFlight == 1
	}, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, waitingErr = f.FetchTile(context.Background(), tileKey(10, 2, 2))
	}()
	require.Eventually(t, func() bool {
		_, waiting := f.Stats()
		return waiting == 1
	}, time.Second, time.Millisecond)

	f.CancelAll()
	close(unblock)
	wg.Wait()

	assert.True(t, isErr(inFlightErr, ErrCancelled))
	assert.True(t, isErr(waitingErr, ErrCancelled))
	assert.Equal(t, int32(1), calls, "the waiting request never reached the network")
}

func TestFetcher_DropOutsideViewport(t *testing.T) {
	unblock := make(chan struct{})
	doFunc := func(req *http.Request) (*http.Response, error) {
		<-unblock
		return okResponse("tile"), nil
	}

	config := testConfig
	config.MaxConcurrentFetches = 1
	f, _ := newTestFetcher(doFunc, new(recordingReporter), config)

	// zoom 1: tile (0,0) is the north-west quarter of the world, (1,1) the south-east
	northWest := tileKey(1, 0, 0)
	southEast := tileKey(1, 1, 1)
	viewport := camsync.GeoRect{South: 10, West: -20, North: 20, East: -10}

	var wg sync.WaitGroup
	errs := make(map[string]error)
	var mu sync.Mutex
	fetch := func(key camsync.TileKey) {
		defer wg.Done()
		_, err := f.FetchTile(context.Background(), key)
		mu.Lock()
		defer mu.Unlock()
		errs[key.String()] = err
	}

	wg.Add(1)
	go fetch(tileKey(2, 0, 0))
	require.Eventually(t, func() bool {
		inFlight, _ := f.Stats()
		return inFlight == 1
	}, time.Second, time.Millisecond)

	wg.Add(2)
	go fetch(northWest)
	go fetch(southEast)
	require.Eventually(t, func() bool {
		_, waiting := f.Stats()
		return waiting == 2
	}, time.Second, time.Millisecond)

	dropped := f.DropOutsideViewport(viewport)
	assert.Equal(t, 1, dropped)

	close(unblock)
	wg.Wait()

	assert.NoError(t, errs[tileKey(2, 0, 0).String()], "in-flight requests are not dropped")
	assert.NoError(t, errs[northWest.String()])
	assert.True(t, isErr(errs[southEast.String()], ErrCancelled))
}
