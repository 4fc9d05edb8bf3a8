package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/camsync-app/camsyncdal/queuestore"
	"github.com/jamesrr39/camsync-app/camsyncdal/regionstore"
	"github.com/jamesrr39/camsync-app/camsyncengine"
	"github.com/jamesrr39/camsync-app/editsubmit"
	"github.com/jamesrr39/camsync-app/netstatus"
	"github.com/jamesrr39/camsync-app/overpass"
	"github.com/jamesrr39/camsync-app/tilefetch"
	"github.com/jamesrr39/camsync-app/webservices"
	tracing "github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/goutil/open"
	"github.com/jamesrr39/goutil/userextra"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	MAX_SERVER_RUNNING_ATTEMPTS = 50
	DEFAULT_PORT                = 9000
)

var (
	logger *logpkg.Logger

	rootDirFlag     *string
	configFileFlag  *string
	accessTokenFlag *string
)

func main() {
	if len(os.Args) == 1 {
		logger = logpkg.NewLogger(os.Stderr, logpkg.LogLevelInfo)
		// start in desktop "double-click" visual mode
		err := setupDesktopMode()
		if err != nil {
			log.Fatalf("failed to start server: %q\n%s\n", err.Error(), err.Stack())
		}
		return
	}

	verbose := kingpin.Flag("v", "verbose logging").Bool()
	rootDirFlag = kingpin.Flag("root-dir", "directory holding the upload queue, offline regions and traces").Default(camsyncdal.DefaultRootDir).String()
	configFileFlag = kingpin.Flag("config", "YAML engine config file. Keys missing from the file keep their default value").String()
	accessTokenFlag = kingpin.Flag("access-token", "OpenStreetMap OAuth2 access token used to upload edits").Envar("CAMSYNC_ACCESS_TOKEN").String()

	setupServe()
	setupFetchNodes()
	setupQueue()
	setupDownloadRegion()

	// the logger is needed by the command actions, which run inside Parse
	kingpin.CommandLine.PreAction(func(ctx *kingpin.ParseContext) error {
		logLevel := logpkg.LogLevelInfo
		if *verbose {
			logLevel = logpkg.LogLevelDebug
		}
		logger = logpkg.NewLogger(os.Stderr, logLevel)
		return nil
	})

	kingpin.Parse()
}

func loadPathsConfig(rootDir string) (*camsyncdal.PathsConfig, errorsx.Error) {
	expandedRootDir, err := userextra.ExpandUser(rootDir)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	pathsConfig := camsyncdal.NewPathsConfigFromRoot(expandedRootDir)

	err = pathsConfig.EnsurePaths()
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return pathsConfig, nil
}

func loadEngineConfig(fs gofs.Fs, configFilePath string) (*camsyncdal.EngineConfig, errorsx.Error) {
	if configFilePath == "" {
		return camsyncdal.DefaultEngineConfig(), nil
	}

	return camsyncdal.LoadEngineConfig(fs, configFilePath)
}

// components are the engine and everything the commands need around it
type components struct {
	pathsConfig  *camsyncdal.PathsConfig
	config       *camsyncdal.EngineConfig
	registry     *prometheus.Registry
	tracker      *netstatus.Tracker
	partitioner  *overpass.Partitioner
	tileFetcher  *tilefetch.Fetcher
	queue        *camsyncdal.UploadQueue
	queueStore   camsyncdal.QueueStore
	engine       *camsyncengine.Engine
	authProvider *camsyncdal.StaticTokenAuthProvider
}

func buildComponents(rootDir, configFilePath, accessToken string) (*components, errorsx.Error) {
	fs := gofs.NewOsFs()

	pathsConfig, err := loadPathsConfig(rootDir)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	config, err := loadEngineConfig(fs, configFilePath)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	registry := prometheus.NewRegistry()
	tracker := netstatus.NewTracker(logger, registry)

	httpClient := &http.Client{
		Timeout: config.Tiles.HTTPTimeout,
	}
	// slow broad queries end in a server-side timeout reply, which the client must wait long enough to read
	queryHTTPClient := &http.Client{
		Timeout: config.Overpass.HTTPTimeout,
	}

	queueStore, err := queuestore.Open(fs, pathsConfig.QueueStoreURL)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	authProvider := camsyncdal.NewStaticTokenAuthProvider(accessToken)

	submitter := editsubmit.NewRouter(
		editsubmit.NewOSMAPISubmitter(logger, httpClient, tracker, config.Uploads.ProductionAPI, config.UserAgent),
		editsubmit.NewOSMAPISubmitter(logger, httpClient, tracker, config.Uploads.SandboxAPI, config.UserAgent),
		editsubmit.NewSimulatedSubmitter(logger, config.Uploads.SimulateDelay),
	)

	queue, err := camsyncdal.NewUploadQueue(logger, queueStore, submitter, authProvider, camsyncdal.UploadQueueConfig{
		MaxAttempts:     config.Uploads.MaxAttempts,
		FailureCooldown: config.Uploads.FailureCooldown,
		DrainInterval:   config.Uploads.DrainInterval,
	})
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	// nodes seen by the partitioner complete queued edits, so the queue is built first
	partitioner := overpass.NewPartitioner(
		logger,
		overpass.NewHTTPQueryClient(config.Overpass.Endpoint, queryHTTPClient, config.Overpass.RequestsPerMinute, config.UserAgent),
		tracker,
		queue,
		overpass.Config{
			MaxSplitDepth:        config.Overpass.MaxSplitDepth,
			TimeoutSeconds:       config.Overpass.TimeoutSeconds,
			RateLimitCooldown:    config.Overpass.RateLimitCooldown,
			MaxConcurrentQueries: config.Overpass.MaxConcurrentQueries,
		},
	)

	tileFetcher := tilefetch.NewFetcher(logger, httpClient, tracker, tilefetch.Config{
		MaxConcurrentFetches: config.Tiles.MaxConcurrentFetches,
		MaxAttempts:          config.Tiles.MaxAttempts,
		RetryDelays:          config.Tiles.RetryDelays,
		RetryJitter:          config.Tiles.RetryJitter,
		MaxRetryDelay:        config.Tiles.MaxRetryDelay,
		UserAgent:            config.UserAgent,
	})

	regionConns, err := regionstore.LoadAll(logger, fs, pathsConfig.OfflineRegionsDir)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	logger.Info("loaded %d offline region(s) from %q", len(regionConns), pathsConfig.OfflineRegionsDir)

	engine := camsyncengine.NewEngine(
		logger,
		partitioner,
		tileFetcher,
		camsyncdal.NewRegionSet(logger, regionConns),
		queue,
		camsyncengine.NewProfileSet(),
		config.Overpass.ResultCap,
	)

	return &components{
		pathsConfig:  pathsConfig,
		config:       config,
		registry:     registry,
		tracker:      tracker,
		partitioner:  partitioner,
		tileFetcher:  tileFetcher,
		queue:        queue,
		queueStore:   queueStore,
		engine:       engine,
		authProvider: authProvider,
	}, nil
}

// close releases the queue store's file or database handle, if it has one
func (c *components) close() {
	closer, ok := c.queueStore.(interface{ Close() errorsx.Error })
	if !ok {
		return
	}

	err := closer.Close()
	if err != nil {
		logger.Error("couldn't close the upload queue store: %s", err.Error())
	}
}

func setupDesktopMode() errorsx.Error {
	c, err := buildComponents(camsyncdal.DefaultRootDir, "", os.Getenv("CAMSYNC_ACCESS_TOKEN"))
	if err != nil {
		return errorsx.Wrap(err)
	}
	defer c.close()

	router, traceFile, err := createServer(c)
	if err != nil {
		return errorsx.Wrap(err)
	}
	defer closeTraceFile(traceFile)

	server := httpextra.NewServerWithTimeouts()
	server.Addr = fmt.Sprintf("localhost:%d", DEFAULT_PORT)
	server.Handler = router

	c.queue.Start(context.Background())
	defer c.queue.Stop()

	errChan := make(chan errorsx.Error)

	go func() {
		err := server.ListenAndServe()
		if err != nil {
			errChan <- errorsx.Wrap(err)
			return
		}
	}()

	go func() {
		// test server is running
		for i := 0; i < MAX_SERVER_RUNNING_ATTEMPTS; i++ {
			r, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s/api/info", server.Addr), nil)
			if err != nil {
				errChan <- errorsx.Wrap(err)
				return
			}

			client := http.Client{
				Timeout: time.Second * 10,
			}
			resp, err := client.Do(r)
			if err != nil {
				// retry after wait
				time.Sleep(time.Millisecond * 500)
				continue
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errChan <- errorsx.Errorf("expected response code %d from /api/info call, but got %d", http.StatusOK, resp.StatusCode)
				return
			}

			errChan <- nil
			return
		}

		errChan <- errorsx.Errorf("server did not start after %d attempts", MAX_SERVER_RUNNING_ATTEMPTS)
	}()

	err = <-errChan
	if err != nil {
		return errorsx.Wrap(err)
	}

	openErr := open.OpenURL(fmt.Sprintf("http://%s/%s/", server.Addr, adminPath))
	if openErr != nil {
		return errorsx.Wrap(openErr)
	}

	return waitForShutdown(server)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then shuts the server down
func waitForShutdown(server *http.Server) errorsx.Error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return errorsx.Wrap(err)
	}

	return nil
}

var addrHelp = fmt.Sprintf(
	`address to serve on. Ex: ':%d' listen on port %d to traffic from anywhere. 'localhost:%d' listen on port %d to traffic from localhost`,
	DEFAULT_PORT, DEFAULT_PORT, DEFAULT_PORT, DEFAULT_PORT,
)

func setupServe() {
	cmd := kingpin.Command("serve", "run the sync engine behind an HTTP API")
	addr := cmd.Flag("addr", addrHelp).Default(fmt.Sprintf(":%d", DEFAULT_PORT)).String()
	startOffline := cmd.Flag("offline", "start with the offline switch on").Bool()
	shouldProfile := cmd.Flag("profile", "write a CPU profile to the trace dir").Bool()
	cmd.Action(func(ctx *kingpin.ParseContext) error {
		run := func() errorsx.Error {
			c, err := buildComponents(*rootDirFlag, *configFileFlag, *accessTokenFlag)
			if err != nil {
				return errorsx.Wrap(err)
			}
			defer c.close()

			if *shouldProfile {
				defer profile.Start(profile.ProfilePath(c.pathsConfig.TraceDir), profile.CPUProfile).Stop()
			}

			if *startOffline {
				c.engine.SetOffline(true)
			}

			router, traceFile, err := createServer(c)
			if err != nil {
				return errorsx.Wrap(err)
			}
			defer closeTraceFile(traceFile)

			server := httpextra.NewServerWithTimeouts()
			server.Addr = *addr
			server.Handler = router

			c.queue.Start(context.Background())
			defer c.queue.Stop()

			go func() {
				logger.Info("about to start serving on %q", *addr)

				err := server.ListenAndServe()
				if err != nil && err != http.ErrServerClosed {
					logger.Error("server stopped: %s", err)
					os.Exit(1)
				}
			}()

			return waitForShutdown(server)
		}

		err := run()
		if err != nil {
			return fmt.Errorf("error: %q\nStack trace:\n%s", err.Error(), err.Stack())
		}
		return nil
	})
}

func isLocalhost(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	return host == "::1" || host == "127.0.0.1"
}

func createLocalhostMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if !isLocalhost(r.RemoteAddr) {
				http.Error(w, "connections only allowed from the same computer the server is running on", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}

const (
	adminPath   = "admin"
	uploadsPath = "/api/uploads"
)

// createServer builds the router. The returned closer closes the trace file and must be called once the server has stopped.
func createServer(c *components) (chi.Router, io.Closer, errorsx.Error) {
	traceFilePath := filepath.Join(c.pathsConfig.TraceDir, fmt.Sprintf("trace_%s.pbf", time.Now().Format("2006-01-02__03_04_05")))
	logger.Info("tracing at %q", traceFilePath)

	traceFile, err := os.Create(traceFilePath)
	if err != nil {
		return nil, nil, errorsx.Wrap(err)
	}

	tracer := tracing.NewTracer(traceFile)

	router := chi.NewRouter()
	router.Use(middleware.DefaultLogger)
	router.Use(tracing.Middleware(tracer))
	router.Route("/api/", func(r chi.Router) {
		r.Mount("/", webservices.NewInfoService(logger, c.engine, c.tracker, c.config))
		r.Mount("/nodes", webservices.NewNodesWebService(logger, c.engine))
		r.Mount("/tiles", webservices.NewTileService(logger, c.engine, c.config.Tiles.Sources))
		r.Mount("/uploads", webservices.NewUploadService(logger, c.engine, c.config.Uploads.Mode))
		r.Mount("/profiles", webservices.NewProfileService(logger, c.engine.Profiles()))
	})
	router.Route(fmt.Sprintf("/%s/", adminPath), func(r chi.Router) {
		r.Use(createLocalhostMiddleware())
		r.Mount("/", webservices.NewAdminService(logger, c.pathsConfig, c.engine, c.tracker, uploadsPath))
	})
	router.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	return router, traceFile, nil
}

func closeTraceFile(traceFile io.Closer) {
	err := traceFile.Close()
	if err != nil {
		logger.Error("couldn't close the trace file: %s", err.Error())
	}
}
