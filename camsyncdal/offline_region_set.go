package camsyncdal

import (
	"context"
	"errors"
	"sync"

	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

type OfflineRegionStatus string

const (
	OfflineRegionStatusComplete    OfflineRegionStatus = "complete"
	OfflineRegionStatusDownloading OfflineRegionStatus = "downloading"
	OfflineRegionStatusFailed      OfflineRegionStatus = "failed"
)

// OfflineRegion describes a downloaded area: the node snapshot covers Bounds, tiles cover MinZoom to MaxZoom
type OfflineRegion struct {
	Name    string              `json:"name"`
	Bounds  camsync.GeoRect     `json:"bounds"`
	MinZoom int                 `json:"minZoom"`
	MaxZoom int                 `json:"maxZoom"`
	Status  OfflineRegionStatus `json:"status"`
}

func (r *OfflineRegion) HasZoom(zoom int) bool {
	return zoom >= r.MinZoom && zoom <= r.MaxZoom
}

type OfflineRegionConn interface {
	Name() string
	RegionInfo() *OfflineRegion
	NodesInBounds(ctx context.Context, bounds camsync.GeoRect) ([]*camsync.RemoteNode, errorsx.Error)
	// TileBytes returns ErrNoDataAvailable if the tile is not in the region
	TileBytes(z, x, y int) ([]byte, errorsx.Error)
}

type RegionSet struct {
	logger *logpkg.Logger
	conns  []OfflineRegionConn
	mu     *sync.RWMutex
}

func NewRegionSet(logger *logpkg.Logger, conns []OfflineRegionConn) *RegionSet {
	return &RegionSet{logger, conns, new(sync.RWMutex)}
}

func (rs *RegionSet) GetConns() []OfflineRegionConn {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.conns
}

func (rs *RegionSet) AddRegion(conn OfflineRegionConn) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.conns = append(rs.conns, conn)
}

type MatchLevel int

const (
	MatchLevelNone MatchLevel = iota
	MatchLevelPartial
	MatchLevelFull
)

var matchLevelNames = []string{
	"None",
	"Partial",
	"Full",
}

func (m MatchLevel) String() string {
	return matchLevelNames[m]
}

type ChosenRegionForBounds struct {
	MatchLevel MatchLevel
	OfflineRegionConn
}

func getMatchLevel(region *OfflineRegion, bounds camsync.GeoRect) MatchLevel {
	atLeastPartialMatch := camsync.Overlaps(region.Bounds, bounds)
	if !atLeastPartialMatch {
		return MatchLevelNone
	}

	isFullMatch := camsync.IsTotallyInside(region.Bounds, bounds)
	if isFullMatch {
		return MatchLevelFull
	}

	return MatchLevelPartial
}

// GetRegionsForBounds selects the complete regions that cover at least part of bounds
func (rs *RegionSet) GetRegionsForBounds(bounds camsync.GeoRect) []*ChosenRegionForBounds {
	var chosen []*ChosenRegionForBounds

	for _, conn := range rs.GetConns() {
		region := conn.RegionInfo()
		if region.Status != OfflineRegionStatusComplete {
			continue
		}

		matchLevel := getMatchLevel(region, bounds)
		if matchLevel == MatchLevelNone {
			continue
		}

		rs.logger.Debug("matchlevel: %s, region: %v", matchLevel, conn.Name())

		chosen = append(chosen, &ChosenRegionForBounds{
			OfflineRegionConn: conn,
			MatchLevel:        matchLevel,
		})
	}

	return chosen
}

// NodesInBounds returns the cached nodes inside bounds.
// When requireFull is set, only a region that covers all of bounds is used; otherwise partial matches are merged too.
// It returns ErrNoDataAvailable when no suitable region exists.
func (rs *RegionSet) NodesInBounds(ctx context.Context, bounds camsync.GeoRect, requireFull bool) ([]*camsync.RemoteNode, errorsx.Error) {
	chosen := rs.GetRegionsForBounds(bounds)

	var nodeLists [][]*camsync.RemoteNode
	for _, region := range chosen {
		if requireFull && region.MatchLevel != MatchLevelFull {
			continue
		}

		nodes, err := region.NodesInBounds(ctx, bounds)
		if err != nil {
			return nil, errorsx.Wrap(err, "region", region.Name())
		}

		nodeLists = append(nodeLists, nodes)
	}

	if len(nodeLists) == 0 {
		return nil, errorsx.Wrap(ErrNoDataAvailable, "bounds", bounds.String())
	}

	return mergeNodesByID(nodeLists...), nil
}

// HasFullCoverage reports whether some complete region contains all of bounds
func (rs *RegionSet) HasFullCoverage(bounds camsync.GeoRect) bool {
	for _, region := range rs.GetRegionsForBounds(bounds) {
		if region.MatchLevel == MatchLevelFull {
			return true
		}
	}
	return false
}

// TileBytes looks the tile up in every complete region that holds its zoom level
func (rs *RegionSet) TileBytes(key camsync.TileKey) ([]byte, errorsx.Error) {
	for _, chosen := range rs.GetRegionsForBounds(key.Bounds()) {
		if !chosen.RegionInfo().HasZoom(key.Z) {
			continue
		}

		data, err := chosen.TileBytes(key.Z, key.X, key.Y)
		if err != nil {
			if errors.Is(errorsx.Cause(err), ErrNoDataAvailable) {
				continue
			}
			return nil, errorsx.Wrap(err, "region", chosen.Name())
		}

		return data, nil
	}

	return nil, errorsx.Wrap(ErrNoDataAvailable, "tile", key.String())
}

func mergeNodesByID(nodeLists ...[]*camsync.RemoteNode) []*camsync.RemoteNode {
	seen := make(map[int64]bool)
	var merged []*camsync.RemoteNode
	for _, nodes := range nodeLists {
		for _, node := range nodes {
			if seen[node.ID] {
				continue
			}
			seen[node.ID] = true
			merged = append(merged, node)
		}
	}
	return merged
}
