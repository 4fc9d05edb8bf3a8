package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/camsync-app/camsyncdal/regionstore"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/semaphore"
	"gopkg.in/alecthomas/kingpin.v2"
)

const boundsHelp = "bounds in the format S,W,N,E. Example: 52.53,-1.39,52.80,-0.89"

func boundsStrToGeoRect(boundsStr string) (camsync.GeoRect, errorsx.Error) {
	bounds := camsync.GeoRect{}

	fragments := strings.Split(boundsStr, ",")
	if len(fragments) != 4 {
		return bounds, errorsx.Errorf("expected 4 bounds, but found %d", len(fragments))
	}

	for idx, boundStr := range fragments {
		boundFloat, err := strconv.ParseFloat(strings.TrimSpace(boundStr), 64)
		if err != nil {
			return bounds, errorsx.Wrap(err)
		}
		switch idx {
		case 0:
			bounds.South = boundFloat
		case 1:
			bounds.West = boundFloat
		case 2:
			bounds.North = boundFloat
		case 3:
			bounds.East = boundFloat
		}
	}

	return bounds, nil
}

// errorsxAction logs the stack of a failed command before kingpin prints the message
func errorsxAction(run func() errorsx.Error) kingpin.Action {
	return func(ctx *kingpin.ParseContext) error {
		err := run()
		if err != nil {
			logger.Error("%s\nStack trace:\n%s", err.Error(), err.Stack())
			return err
		}
		return nil
	}
}

func setupFetchNodes() {
	cmd := kingpin.Command("fetch-nodes", "query the remote database for cameras in a rect and print them as JSON")
	boundsStr := cmd.Arg("bounds", boundsHelp).Required().String()
	cmd.Action(errorsxAction(func() errorsx.Error {
		bounds, err := boundsStrToGeoRect(*boundsStr)
		if err != nil {
			return errorsx.Wrap(err)
		}

		c, err := buildComponents(*rootDirFlag, *configFileFlag, *accessTokenFlag)
		if err != nil {
			return errorsx.Wrap(err)
		}
		defer c.close()

		result, err := c.engine.NodesInViewport(context.Background(), bounds)
		if err != nil {
			return errorsx.Wrap(err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "\t")
		encodeErr := encoder.Encode(result)
		if encodeErr != nil {
			return errorsx.Wrap(encodeErr)
		}

		return nil
	}))
}

func setupQueue() {
	cmd := kingpin.Command("queue", "inspect and manage the upload queue")

	listCmd := cmd.Command("list", "list the queued edits").Default()
	listCmd.Action(errorsxAction(func() errorsx.Error {
		c, err := buildComponents(*rootDirFlag, *configFileFlag, *accessTokenFlag)
		if err != nil {
			return errorsx.Wrap(err)
		}
		defer c.close()

		items := c.queue.Items()
		for _, item := range items {
			line := fmt.Sprintf("%s\t%s\t%s\t(%v, %v)\tattempts: %d", item.ID, item.State, item.Mode, item.Lat, item.Lon, item.Attempts)
			if item.LastError != "" {
				line += "\tlast error: " + item.LastError
			}
			fmt.Println(line)
		}
		logger.Info("%d queued edit(s)", len(items))
		return nil
	}))

	retryCmd := cmd.Command("retry", "move a failed edit back to pending")
	retryID := retryCmd.Arg("id", "queued edit id").Required().String()
	retryCmd.Action(errorsxAction(func() errorsx.Error {
		c, err := buildComponents(*rootDirFlag, *configFileFlag, *accessTokenFlag)
		if err != nil {
			return errorsx.Wrap(err)
		}
		defer c.close()

		return c.queue.Retry(*retryID)
	}))

	deleteCmd := cmd.Command("delete", "discard a queued edit")
	deleteID := deleteCmd.Arg("id", "queued edit id").Required().String()
	deleteCmd.Action(errorsxAction(func() errorsx.Error {
		c, err := buildComponents(*rootDirFlag, *configFileFlag, *accessTokenFlag)
		if err != nil {
			return errorsx.Wrap(err)
		}
		defer c.close()

		return c.queue.Delete(*deleteID)
	}))

	drainCmd := cmd.Command("drain", "submit queued edits until the queue is idle or a submission fails")
	drainCmd.Action(errorsxAction(func() errorsx.Error {
		c, err := buildComponents(*rootDirFlag, *configFileFlag, *accessTokenFlag)
		if err != nil {
			return errorsx.Wrap(err)
		}
		defer c.close()

		for {
			result := c.queue.DrainOnce(context.Background())
			logger.Info("drain: %s", result)
			if result != camsyncdal.DrainResultSubmitted {
				return nil
			}
		}
	}))
}

func setupDownloadRegion() {
	cmd := kingpin.Command("download-region", "download the cameras and tiles of a rect for offline use")
	name := cmd.Arg("name", "region name, also used as its directory name").Required().String()
	boundsStr := cmd.Arg("bounds", boundsHelp).Required().String()
	minZoom := cmd.Flag("min-zoom", "lowest zoom level to download tiles for").Default("10").Int()
	maxZoom := cmd.Flag("max-zoom", "highest zoom level to download tiles for").Default("15").Int()
	tileSource := cmd.Flag("tile-source", "name of the tile source in the config").Default("osm").String()
	cmd.Action(errorsxAction(func() errorsx.Error {
		bounds, err := boundsStrToGeoRect(*boundsStr)
		if err != nil {
			return errorsx.Wrap(err)
		}

		if *minZoom < 0 || *maxZoom < *minZoom {
			return errorsx.Errorf("invalid zoom range %d to %d", *minZoom, *maxZoom)
		}

		c, err := buildComponents(*rootDirFlag, *configFileFlag, *accessTokenFlag)
		if err != nil {
			return errorsx.Wrap(err)
		}
		defer c.close()

		urlTemplate, ok := c.config.Tiles.Sources[*tileSource]
		if !ok {
			return errorsx.Errorf("unknown tile source %q", *tileSource)
		}

		return downloadRegion(c, gofs.NewOsFs(), &camsyncdal.OfflineRegion{
			Name:    *name,
			Bounds:  bounds.Normalize(),
			MinZoom: *minZoom,
			MaxZoom: *maxZoom,
		}, urlTemplate)
	}))
}

// downloadRegion writes the region directory. The region is marked complete only once
// every node and tile is on disk, so a half written region is never used.
func downloadRegion(c *components, fs gofs.Fs, region *camsyncdal.OfflineRegion, urlTemplate string) errorsx.Error {
	startTime := time.Now()

	writer, err := regionstore.NewWriter(fs, filepath.Join(c.pathsConfig.OfflineRegionsDir, region.Name))
	if err != nil {
		return errorsx.Wrap(err)
	}

	region.Status = camsyncdal.OfflineRegionStatusDownloading
	err = writer.WriteRegionInfo(region)
	if err != nil {
		return errorsx.Wrap(err)
	}

	downloadErr := downloadRegionData(c, writer, region, urlTemplate)
	if downloadErr != nil {
		region.Status = camsyncdal.OfflineRegionStatusFailed
		err = writer.WriteRegionInfo(region)
		if err != nil {
			logger.Error("couldn't mark region %q as failed: %s", region.Name, err.Error())
		}
		return errorsx.Wrap(downloadErr, "region", region.Name)
	}

	region.Status = camsyncdal.OfflineRegionStatusComplete
	err = writer.WriteRegionInfo(region)
	if err != nil {
		return errorsx.Wrap(err)
	}

	logger.Info("downloaded region %q in %s", region.Name, time.Since(startTime))
	return nil
}

func downloadRegionData(c *components, writer *regionstore.Writer, region *camsyncdal.OfflineRegion, urlTemplate string) errorsx.Error {
	ctx := context.Background()

	report := c.partitioner.FetchNodesReport(ctx, region.Bounds, c.engine.Profiles().Enabled(), 0)
	if !report.IsComplete() {
		// an incomplete snapshot would hide cameras from every viewport the region covers
		return errorsx.Errorf("couldn't fetch all nodes: %d branch(es) of the query failed", report.FailedBranches)
	}

	err := writer.WriteNodes(report.Nodes)
	if err != nil {
		return errorsx.Wrap(err)
	}
	logger.Info("wrote %d node(s)", len(report.Nodes))

	var keys []camsync.TileKey
	for zoom := region.MinZoom; zoom <= region.MaxZoom; zoom++ {
		for _, xy := range camsync.TilesInRect(region.Bounds, zoom) {
			keys = append(keys, camsync.TileKey{Z: zoom, X: xy[0], Y: xy[1], URLTemplate: urlTemplate})
		}
	}
	logger.Info("downloading %d tile(s) from zoom %d to %d", len(keys), region.MinZoom, region.MaxZoom)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		firstErr   errorsx.Error
		doneCount  int
		totalBytes uint64
	)

	// the fetcher bounds network concurrency, this only bounds goroutines
	sema := semaphore.NewSemaphore(c.config.Tiles.MaxConcurrentFetches * 2)

	for _, key := range keys {
		sema.Add()
		wg.Add(1)
		go func(key camsync.TileKey) {
			defer sema.Done()
			defer wg.Done()

			data, err := c.tileFetcher.FetchTile(ctx, key)
			if err == nil {
				err = writer.WriteTile(key.Z, key.X, key.Y, data)
			}

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if firstErr == nil {
					firstErr = errorsx.Wrap(err, "tile", key.String())
					c.tileFetcher.CancelAll()
				}
				return
			}

			doneCount++
			totalBytes += uint64(len(data))
			if doneCount%100 == 0 {
				logger.Info("downloaded %d/%d tiles (%s)", doneCount, len(keys), humanize.Bytes(totalBytes))
			}
		}(key)
	}

	wg.Wait()

	return firstErr
}
