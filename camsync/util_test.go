package camsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlaps(t *testing.T) {
	container := GeoRect{South: -1, West: -1, North: 1, East: 1}

	tests := []struct {
		name string
		item GeoRect
		want bool
	}{
		{"item above container", GeoRect{South: 89, West: -1, North: 90, East: 1}, false},
		{"item below container", GeoRect{South: -51, West: -1, North: -50, East: 1}, false},
		{"item to the left of container", GeoRect{South: -1, West: -3, North: 1, East: -2}, false},
		{"item to the right of container", GeoRect{South: -1, West: 2, North: 1, East: 3}, false},
		{"item fully inside container", GeoRect{South: -0.5, West: -0.5, North: 0.5, East: 0.5}, true},
		{"item sharing the top edge", GeoRect{South: 1, West: 0.2, North: 2, East: 0.8}, true},
		{"item over the bottom-left corner", GeoRect{South: -1.5, West: -1.5, North: -0.5, East: -0.5}, true},
		{"item over the top-right corner", GeoRect{South: 0.5, West: 0.5, North: 1.5, East: 1.5}, true},
		{"item == container", container, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(container, tt.item))
		})
	}
}

func TestIsTotallyInside(t *testing.T) {
	container := GeoRect{South: -1, West: -1, North: 1, East: 1}

	tests := []struct {
		name string
		item GeoRect
		want bool
	}{
		{"is totally inside", GeoRect{South: -0.5, West: -0.5, North: 0.5, East: 0.5}, true},
		{"is the same as the container", container, true},
		{"is out to the west", GeoRect{South: -1, West: -1.1, North: 1, East: 1}, false},
		{"is out to the north", GeoRect{South: -1, West: -1, North: 1.1, East: 1}, false},
		{"is totally outside", GeoRect{South: 2, West: 2, North: 3, East: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTotallyInside(container, tt.item))
		})
	}
}

func TestIsInBounds(t *testing.T) {
	bounds := GeoRect{South: -1, West: -1, North: 1, East: 1}

	assert.True(t, IsInBounds(bounds, 0.5, -0.5))
	assert.True(t, IsInBounds(bounds, 1, 1), "edges count as inside")
	assert.False(t, IsInBounds(bounds, 1.5, -0.5))
	assert.False(t, IsInBounds(bounds, 0.5, -1.5))
	assert.False(t, IsInBounds(bounds, -1.5, -0.5))
	assert.False(t, IsInBounds(bounds, 0.5, 1.5))
}

func TestGeoRect_Quarter(t *testing.T) {
	rect := GeoRect{South: 0, West: 10, North: 2, East: 14}

	quarters := rect.Quarter()

	assert.Equal(t, GeoRect{South: 0, West: 10, North: 1, East: 12}, quarters[0])
	assert.Equal(t, GeoRect{South: 0, West: 12, North: 1, East: 14}, quarters[1])
	assert.Equal(t, GeoRect{South: 1, West: 10, North: 2, East: 12}, quarters[2])
	assert.Equal(t, GeoRect{South: 1, West: 12, North: 2, East: 14}, quarters[3])

	for _, quarter := range quarters {
		assert.True(t, IsTotallyInside(rect, quarter))
	}
}

func TestGeoRect_Normalize(t *testing.T) {
	tests := []struct {
		name string
		rect GeoRect
		want GeoRect
	}{
		{
			"already normal",
			GeoRect{South: 1, West: 2, North: 3, East: 4},
			GeoRect{South: 1, West: 2, North: 3, East: 4},
		}, {
			"swapped latitudes",
			GeoRect{South: 3, West: 2, North: 1, East: 4},
			GeoRect{South: 1, West: 2, North: 3, East: 4},
		}, {
			"longitudes past the antimeridian are wrapped",
			GeoRect{South: 1, West: 190, North: 3, East: 200},
			GeoRect{South: 1, West: -170, North: 3, East: -160},
		}, {
			"rect crossing the antimeridian widens to the whole longitude range",
			GeoRect{South: 1, West: 170, North: 3, East: 190},
			GeoRect{South: 1, West: -180, North: 3, East: 180},
		}, {
			"latitudes are clamped",
			GeoRect{South: -95, West: 0, North: 95, East: 1},
			GeoRect{South: -90, West: 0, North: 90, East: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rect.Normalize())
		})
	}
}

func TestGeoRect_SplitAntimeridian(t *testing.T) {
	tests := []struct {
		name string
		rect GeoRect
		want []GeoRect
	}{
		{
			"rect not crossing stays whole",
			GeoRect{South: 3, West: 2, North: 1, East: 4},
			[]GeoRect{{South: 1, West: 2, North: 3, East: 4}},
		}, {
			"small viewport across the antimeridian",
			GeoRect{South: -17, West: 179.9, North: -16, East: -179.9},
			[]GeoRect{
				{South: -17, West: 179.9, North: -16, East: 180},
				{South: -17, West: -180, North: -16, East: -179.9},
			},
		}, {
			"unwrapped east edge",
			GeoRect{South: 1, West: 170, North: 3, East: 190},
			[]GeoRect{
				{South: 1, West: 170, North: 3, East: 180},
				{South: 1, West: -180, North: 3, East: -170},
			},
		}, {
			"whole world",
			GeoRect{South: -10, West: -200, North: 10, East: 200},
			[]GeoRect{{South: -10, West: -180, North: 10, East: 180}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rect.SplitAntimeridian())
		})
	}
}

func TestGeoRect_String(t *testing.T) {
	assert.Equal(t, "52.5,-1.25,52.75,-0.5", GeoRect{South: 52.5, West: -1.25, North: 52.75, East: -0.5}.String())
}
