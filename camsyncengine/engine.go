package camsyncengine

import (
	"context"
	"errors"
	"sync"

	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

type NodeFetcher interface {
	FetchNodes(ctx context.Context, region camsync.GeoRect, profiles []*camsync.AttributeProfile, resultCap int) []*camsync.RemoteNode
}

type TileFetcher interface {
	FetchTile(ctx context.Context, key camsync.TileKey) ([]byte, errorsx.Error)
	CancelAll()
	DropOutsideViewport(viewport camsync.GeoRect) int
}

type NodeSource string

const (
	NodeSourceOffline NodeSource = "offline"
	NodeSourceRemote  NodeSource = "remote"
)

// ViewportNode is a node with the ids of the enabled profiles it matches
type ViewportNode struct {
	*camsync.RemoteNode
	ProfileIDs []string `json:"profileIds"`
}

type NodesResult struct {
	Source NodeSource      `json:"source"`
	Nodes  []*ViewportNode `json:"nodes"`
}

// Engine answers the map's node and tile requests, local data first, and owns the upload queue
type Engine struct {
	logger    *logpkg.Logger
	nodes     NodeFetcher
	tiles     TileFetcher
	regions   *camsyncdal.RegionSet
	queue     *camsyncdal.UploadQueue
	profiles  *ProfileSet
	resultCap int

	mu      sync.RWMutex
	offline bool
}

func NewEngine(logger *logpkg.Logger, nodes NodeFetcher, tiles TileFetcher, regions *camsyncdal.RegionSet, queue *camsyncdal.UploadQueue, profiles *ProfileSet, resultCap int) *Engine {
	return &Engine{
		logger:    logger,
		nodes:     nodes,
		tiles:     tiles,
		regions:   regions,
		queue:     queue,
		profiles:  profiles,
		resultCap: resultCap,
	}
}

func (e *Engine) Queue() *camsyncdal.UploadQueue {
	return e.queue
}

func (e *Engine) Profiles() *ProfileSet {
	return e.profiles
}

func (e *Engine) Regions() *camsyncdal.RegionSet {
	return e.regions
}

func (e *Engine) IsOffline() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.offline
}

// SetOffline flips the manual offline switch. Going offline cancels outstanding tile requests.
func (e *Engine) SetOffline(offline bool) {
	e.mu.Lock()
	e.offline = offline
	e.mu.Unlock()

	e.queue.SetOffline(offline)
	if offline {
		e.tiles.CancelAll()
	}

	e.logger.Info("offline mode: %v", offline)
}

// NodesInViewport returns the nodes matching the enabled profiles inside rect.
// Offline regions are used when the engine is offline or one region covers all of rect;
// otherwise the query service is asked.
func (e *Engine) NodesInViewport(ctx context.Context, rect camsync.GeoRect) (*NodesResult, errorsx.Error) {
	rect = rect.Normalize()
	enabled := e.profiles.Enabled()

	if e.IsOffline() || e.regions.HasFullCoverage(rect) {
		requireFull := !e.IsOffline()
		nodes, err := e.regions.NodesInBounds(ctx, rect, requireFull)
		if err != nil {
			if !errors.Is(errorsx.Cause(err), camsyncdal.ErrNoDataAvailable) {
				return nil, errorsx.Wrap(err)
			}
			nodes = nil
		}

		return &NodesResult{
			Source: NodeSourceOffline,
			Nodes:  classifyNodes(nodes, enabled, true),
		}, nil
	}

	nodes := e.nodes.FetchNodes(ctx, rect, enabled, e.resultCap)

	return &NodesResult{
		Source: NodeSourceRemote,
		Nodes:  classifyNodes(nodes, enabled, false),
	}, nil
}

// classifyNodes attaches matching profile ids. Snapshot nodes may include cameras
// no enabled profile asks for, so dropUnmatched filters those out.
func classifyNodes(nodes []*camsync.RemoteNode, profiles []*camsync.AttributeProfile, dropUnmatched bool) []*ViewportNode {
	viewportNodes := []*ViewportNode{}
	for _, node := range nodes {
		matching := camsync.MatchingProfiles(profiles, node.Tags)
		if dropUnmatched && len(matching) == 0 {
			continue
		}

		profileIDs := []string{}
		for _, profile := range matching {
			profileIDs = append(profileIDs, profile.ID)
		}

		viewportNodes = append(viewportNodes, &ViewportNode{
			RemoteNode: node,
			ProfileIDs: profileIDs,
		})
	}
	return viewportNodes
}

// Tile returns a raster tile from an offline region if one holds it, otherwise from the tile server.
// While offline, a tile missing locally fails with ErrNoDataAvailable.
func (e *Engine) Tile(ctx context.Context, key camsync.TileKey) ([]byte, errorsx.Error) {
	data, err := e.regions.TileBytes(key)
	if err == nil {
		return data, nil
	}

	if !errors.Is(errorsx.Cause(err), camsyncdal.ErrNoDataAvailable) {
		e.logger.Warn("couldn't read tile %s from offline regions: %s", key, err.Error())
	}

	if e.IsOffline() {
		return nil, errorsx.Wrap(camsyncdal.ErrNoDataAvailable, "tile", key.String())
	}

	return e.tiles.FetchTile(ctx, key)
}

// ViewportChanged drops queued tile requests that fell out of view
func (e *Engine) ViewportChanged(viewport camsync.GeoRect) int {
	dropped := e.tiles.DropOutsideViewport(viewport.Normalize())
	if dropped > 0 {
		e.logger.Debug("dropped %d queued tile request(s) outside the viewport", dropped)
	}
	return dropped
}

// CancelTiles invalidates every outstanding tile request
func (e *Engine) CancelTiles() {
	e.tiles.CancelAll()
}
