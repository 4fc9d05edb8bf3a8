package camsync

import (
	"math"
)

func Deg2num(lat, lon float64, zoomLevel int) (x, y int) {
	x = int(
		math.Floor((lon + 180.0) / 360.0 * (math.Exp2(float64(zoomLevel)))),
	)
	y = int(
		math.Floor(
			(1.0 - math.Log(
				math.Tan(lat*math.Pi/180.0)+1.0/math.Cos(lat*math.Pi/180.0))/math.Pi) / 2.0 * (math.Exp2(float64(zoomLevel))),
		),
	)
	return
}

func Num2deg(x, y, zoomLevel int) (lat, long float64) {
	n := math.Pi - 2.0*math.Pi*float64(y)/math.Exp2(float64(zoomLevel))
	lat = 180.0 / math.Pi * math.Atan(0.5*(math.Exp(n)-math.Exp(-n)))
	long = float64(x)/math.Exp2(float64(zoomLevel))*360.0 - 180.0
	return lat, long
}

// XYZToBounds converts a slippy map tile coordinate into its lat/lon bounding box
func XYZToBounds(x, y, zoomLevel int) GeoRect {
	n := math.Pow(2, float64(zoomLevel))
	longitudeMin := float64(x)/n*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	latitudeMax := latRad * 180 / math.Pi

	longitudeMax := float64(x+1)/n*360 - 180
	latRad = math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y+1)/n)))
	latitudeMin := latRad * 180 / math.Pi

	return GeoRect{
		South: latitudeMin,
		North: latitudeMax,
		West:  longitudeMin,
		East:  longitudeMax,
	}
}

// TilesInRect lists the x/y coordinates of every tile at the zoom level that touches the rect
func TilesInRect(rect GeoRect, zoomLevel int) [][2]int {
	maxIndex := int(math.Exp2(float64(zoomLevel))) - 1

	minX, minY := Deg2num(clampMercatorLat(rect.North), rect.West, zoomLevel)
	maxX, maxY := Deg2num(clampMercatorLat(rect.South), rect.East, zoomLevel)

	minX, maxX = clampTileIndex(minX, maxIndex), clampTileIndex(maxX, maxIndex)
	minY, maxY = clampTileIndex(minY, maxIndex), clampTileIndex(maxY, maxIndex)

	var tiles [][2]int
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, [2]int{x, y})
		}
	}
	return tiles
}

// web mercator is undefined at the poles
const maxMercatorLat = 85.0511

func clampMercatorLat(lat float64) float64 {
	return math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
}

func clampTileIndex(i, maxIndex int) int {
	if i < 0 {
		return 0
	}
	if i > maxIndex {
		return maxIndex
	}
	return i
}
