package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/camsync-app/camsyncdal/regionstore"
	"github.com/jamesrr39/camsync-app/camsyncengine"
	"github.com/jamesrr39/camsync-app/netstatus"
	"github.com/jamesrr39/camsync-app/overpass"
	"github.com/jamesrr39/camsync-app/tilefetch"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_boundsStrToGeoRect(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    camsync.GeoRect
		wantErr bool
	}{
		{
			name:  "valid",
			input: "52.53,-1.39, 52.80,-0.89",
			want:  camsync.GeoRect{South: 52.53, West: -1.39, North: 52.80, East: -0.89},
		},
		{
			name:    "too few",
			input:   "1,2",
			wantErr: true,
		},
		{
			name:    "not a number",
			input:   "1,2,3,x",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := boundsStrToGeoRect(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_isLocalhost(t *testing.T) {
	assert.True(t, isLocalhost("127.0.0.1:53412"))
	assert.True(t, isLocalhost("[::1]:53412"))
	assert.True(t, isLocalhost("127.0.0.1"))
	assert.False(t, isLocalhost("192.168.1.20:53412"))
}

const overpassBody = `{"elements": [
	{"type": "node", "id": 7001, "lat": 51.501, "lon": -0.121, "tags": {"man_made": "surveillance", "surveillance:type": "ALPR"}}
]}`

type downloadTestResponses struct {
	QueryStatusCode int
	QueryBody       string
	TileStatusCode  int
}

var downloadTestResponsesOK = downloadTestResponses{
	QueryStatusCode: http.StatusOK,
	QueryBody:       overpassBody,
	TileStatusCode:  http.StatusOK,
}

func newDownloadTestComponents(t *testing.T, responses downloadTestResponses) *components {
	logger = logpkg.NewLogger(io.Discard, logpkg.LogLevelInfo)

	doer := &httpextra.MockDoer{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			body := "tile " + req.URL.Path
			statusCode := responses.TileStatusCode
			if req.URL.Host == "overpass.test" {
				body = responses.QueryBody
				statusCode = responses.QueryStatusCode
			}

			return &http.Response{
				StatusCode: statusCode,
				Header:     make(http.Header),
				Body:       io.NopCloser(bytes.NewBufferString(body)),
			}, nil
		},
	}

	config := camsyncdal.DefaultEngineConfig()
	pathsConfig := camsyncdal.NewPathsConfigFromRoot(t.TempDir())
	require.NoError(t, pathsConfig.EnsurePaths())

	partitioner := overpass.NewPartitioner(
		logger,
		overpass.NewHTTPQueryClient("http://overpass.test/api/interpreter", doer, 0, "test"),
		netstatus.NopReporter{},
		nil,
		overpass.Config{MaxSplitDepth: 1, TimeoutSeconds: 25, MaxConcurrentQueries: 1},
	)

	tileFetcher := tilefetch.NewFetcher(logger, doer, netstatus.NopReporter{}, tilefetch.Config{
		MaxConcurrentFetches: 2,
		MaxAttempts:          1,
	})

	return &components{
		pathsConfig: pathsConfig,
		config:      config,
		partitioner: partitioner,
		tileFetcher: tileFetcher,
		engine: camsyncengine.NewEngine(
			logger,
			partitioner,
			tileFetcher,
			camsyncdal.NewRegionSet(logger, nil),
			nil,
			camsyncengine.NewProfileSet(),
			config.Overpass.ResultCap,
		),
	}
}

func Test_downloadRegion(t *testing.T) {
	c := newDownloadTestComponents(t, downloadTestResponsesOK)
	fs := gofs.NewOsFs()

	region := &camsyncdal.OfflineRegion{
		Name:    "westminster",
		Bounds:  camsync.GeoRect{South: 51.49, West: -0.14, North: 51.51, East: -0.11},
		MinZoom: 12,
		MaxZoom: 13,
	}

	err := downloadRegion(c, fs, region, "https://tiles.test/{z}/{x}/{y}.png")
	require.NoError(t, err)

	regionDir, err := regionstore.Open(fs, filepath.Join(c.pathsConfig.OfflineRegionsDir, "westminster"))
	require.NoError(t, err)
	assert.Equal(t, camsyncdal.OfflineRegionStatusComplete, regionDir.RegionInfo().Status)

	nodes, err := regionDir.NodesInBounds(context.Background(), region.Bounds)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, int64(7001), nodes[0].ID)

	for zoom := region.MinZoom; zoom <= region.MaxZoom; zoom++ {
		for _, xy := range camsync.TilesInRect(region.Bounds, zoom) {
			data, err := regionDir.TileBytes(zoom, xy[0], xy[1])
			require.NoError(t, err)
			assert.Contains(t, string(data), "tile /")
		}
	}
}

func Test_downloadRegion_failures(t *testing.T) {
	type testCase struct {
		Name      string
		Responses downloadTestResponses
	}

	testCases := []testCase{
		{
			Name: "tile not found",
			Responses: downloadTestResponses{
				QueryStatusCode: http.StatusOK,
				QueryBody:       overpassBody,
				TileStatusCode:  http.StatusNotFound,
			},
		}, {
			Name: "query rate limited",
			Responses: downloadTestResponses{
				QueryStatusCode: http.StatusTooManyRequests,
				QueryBody:       "rate_limited",
				TileStatusCode:  http.StatusOK,
			},
		}, {
			Name: "query server error",
			Responses: downloadTestResponses{
				QueryStatusCode: http.StatusInternalServerError,
				QueryBody:       "internal error",
				TileStatusCode:  http.StatusOK,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			c := newDownloadTestComponents(t, tc.Responses)
			fs := gofs.NewOsFs()

			region := &camsyncdal.OfflineRegion{
				Name:    "westminster",
				Bounds:  camsync.GeoRect{South: 51.49, West: -0.14, North: 51.51, East: -0.11},
				MinZoom: 12,
				MaxZoom: 12,
			}

			err := downloadRegion(c, fs, region, "https://tiles.test/{z}/{x}/{y}.png")
			require.Error(t, err)

			regionDir, openErr := regionstore.Open(fs, filepath.Join(c.pathsConfig.OfflineRegionsDir, "westminster"))
			require.NoError(t, openErr)
			assert.Equal(t, camsyncdal.OfflineRegionStatusFailed, regionDir.RegionInfo().Status)
		})
	}
}

func Test_createServer_closesTraceFile(t *testing.T) {
	c := newDownloadTestComponents(t, downloadTestResponsesOK)
	c.registry = prometheus.NewRegistry()
	c.tracker = netstatus.NewTracker(logger, c.registry)

	router, traceFile, err := createServer(c)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, traceFile.Close())
	assert.ErrorIs(t, traceFile.Close(), os.ErrClosed)
}
