package camsync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/osm"
)

// GeoRect is an axis-aligned latitude/longitude rectangle
type GeoRect struct {
	South float64 `json:"south" yaml:"south"`
	West  float64 `json:"west" yaml:"west"`
	North float64 `json:"north" yaml:"north"`
	East  float64 `json:"east" yaml:"east"`
}

func NewGeoRectFromOSMBounds(bounds osm.Bounds) GeoRect {
	return GeoRect{
		South: bounds.MinLat,
		West:  bounds.MinLon,
		North: bounds.MaxLat,
		East:  bounds.MaxLon,
	}
}

func (r GeoRect) ToOSMBounds() osm.Bounds {
	return osm.Bounds{
		MinLat: r.South,
		MaxLat: r.North,
		MinLon: r.West,
		MaxLon: r.East,
	}
}

// String returns the rect in (S,W,N,E) order, the order the query service expects
func (r GeoRect) String() string {
	return fmt.Sprintf("%s,%s,%s,%s", formatCoord(r.South), formatCoord(r.West), formatCoord(r.North), formatCoord(r.East))
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type TagMap map[string]string

// RemoteNode is a point entity as held by the remote database.
type RemoteNode struct {
	ID   int64   `json:"id"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Tags TagMap  `json:"tags"`
	// Constrained is set when a way or relation references the node
	Constrained bool `json:"constrained"`
}

// TileKey identifies one raster tile on one tile source
type TileKey struct {
	Z           int    `json:"z"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	URLTemplate string `json:"urlTemplate"`
}

// URL substitutes {z}, {x} and {y} in the URL template
func (k TileKey) URL() string {
	replacer := strings.NewReplacer(
		"{z}", strconv.Itoa(k.Z),
		"{x}", strconv.Itoa(k.X),
		"{y}", strconv.Itoa(k.Y),
	)
	return replacer.Replace(k.URLTemplate)
}

func (k TileKey) Bounds() GeoRect {
	return XYZToBounds(k.X, k.Y, k.Z)
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d@%s", k.Z, k.X, k.Y, k.URLTemplate)
}
