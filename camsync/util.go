package camsync

import "math"

// Overlaps checks whether an item is at least partially inside a container
func Overlaps(container GeoRect, item GeoRect) bool {
	if container.South > item.North {
		// container is wholly above item
		return false
	}

	if container.North < item.South {
		// container is wholly below item
		return false
	}

	if container.West > item.East {
		// container is wholly to the right of item
		return false
	}

	if container.East < item.West {
		// container is wholly to the left of item
		return false
	}

	return true
}

func IsTotallyInside(container GeoRect, item GeoRect) bool {
	return item.North <= container.North && item.East <= container.East && item.South >= container.South && item.West >= container.West
}

func GetWholeWorldBounds() GeoRect {
	return GeoRect{
		North: 90,
		South: -90,
		East:  180,
		West:  -180,
	}
}

// IsInBounds tests if a point is inside a container. Points on the edge count as inside.
func IsInBounds(bounds GeoRect, pointLat, pointLon float64) bool {
	isInLatBounds := pointLat <= bounds.North && pointLat >= bounds.South
	if !isInLatBounds {
		return false
	}

	isInLonBounds := pointLon <= bounds.East && pointLon >= bounds.West
	if !isInLonBounds {
		return false
	}

	return true
}

// Normalize wraps longitudes into [-180, 180], clamps latitudes into [-90, 90] and orders the pairs.
// A rect whose west edge is east of its east edge after wrapping crosses the antimeridian;
// it is widened to the full longitude range.
func (r GeoRect) Normalize() GeoRect {
	south, north := clampLat(r.South), clampLat(r.North)
	if south > north {
		south, north = north, south
	}

	if r.East-r.West >= 360 {
		return GeoRect{South: south, West: -180, North: north, East: 180}
	}

	west, east := wrapLon(r.West), wrapLon(r.East)
	if west > east {
		west, east = -180, 180
	}

	return GeoRect{South: south, West: west, North: north, East: east}
}

// SplitAntimeridian normalizes the rect. A rect crossing the antimeridian comes back as
// its two halves either side of it, instead of the full longitude range Normalize gives.
func (r GeoRect) SplitAntimeridian() []GeoRect {
	if r.East-r.West >= 360 {
		return []GeoRect{r.Normalize()}
	}

	west, east := wrapLon(r.West), wrapLon(r.East)
	if west <= east {
		return []GeoRect{r.Normalize()}
	}

	south, north := clampLat(r.South), clampLat(r.North)
	if south > north {
		south, north = north, south
	}

	return []GeoRect{
		{South: south, West: west, North: north, East: 180},
		{South: south, West: -180, North: north, East: east},
	}
}

// Quarter splits the rect into four equal sub-rects at its midpoint,
// ordered SW, SE, NW, NE.
func (r GeoRect) Quarter() [4]GeoRect {
	midLat := (r.South + r.North) / 2
	midLon := (r.West + r.East) / 2

	return [4]GeoRect{
		{South: r.South, West: r.West, North: midLat, East: midLon},
		{South: r.South, West: midLon, North: midLat, East: r.East},
		{South: midLat, West: r.West, North: r.North, East: midLon},
		{South: midLat, West: midLon, North: r.North, East: r.East},
	}
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func wrapLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}

	wrapped := math.Mod(lon+180, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	return wrapped - 180
}
