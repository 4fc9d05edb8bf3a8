package overpass

import (
	"testing"

	"github.com/jamesrr39/camsync-app/camsync"
	snapshot "github.com/jamesrr39/go-snapshot-testing"
	"github.com/stretchr/testify/assert"
)

func profileIDs(profiles []*camsync.AttributeProfile) []string {
	var ids []string
	for _, profile := range profiles {
		ids = append(ids, profile.ID)
	}
	return ids
}

func TestDedupeProfiles(t *testing.T) {
	broad := &camsync.AttributeProfile{
		ID:   "broad",
		Tags: []camsync.Tag{{Key: "man_made", Value: "surveillance"}},
	}
	narrow := &camsync.AttributeProfile{
		ID: "narrow",
		Tags: []camsync.Tag{
			{Key: "man_made", Value: "surveillance"},
			{Key: "surveillance:type", Value: "ALPR"},
		},
	}
	narrowDuplicate := &camsync.AttributeProfile{
		ID: "narrow-duplicate",
		Tags: []camsync.Tag{
			{Key: "surveillance:type", Value: "ALPR"},
			{Key: "man_made", Value: "surveillance"},
		},
	}
	unrelated := &camsync.AttributeProfile{
		ID:   "unrelated",
		Tags: []camsync.Tag{{Key: "highway", Value: "speed_camera"}},
	}
	wildcardsOnly := &camsync.AttributeProfile{
		ID:                  "wildcards-only",
		Tags:                []camsync.Tag{{Key: "manufacturer", Value: ""}},
		WildcardEmptyValues: true,
	}

	tests := []struct {
		name     string
		profiles []*camsync.AttributeProfile
		want     []string
	}{
		{"no profiles", nil, nil},
		{"narrow profile covered by broad one", []*camsync.AttributeProfile{narrow, broad}, []string{"broad"}},
		{"identical constraints keep the first", []*camsync.AttributeProfile{narrowDuplicate, narrow}, []string{"narrow-duplicate"}},
		{"disjoint profiles are kept", []*camsync.AttributeProfile{narrow, unrelated}, []string{"narrow", "unrelated"}},
		{"profile matching everything is excluded", []*camsync.AttributeProfile{wildcardsOnly, unrelated}, []string{"unrelated"}},
		{"builtins collapse to the generic profile", camsync.BuiltinProfiles(), []string{camsync.BuiltinProfileIDGenericALPR}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, profileIDs(DedupeProfiles(tt.profiles)))
		})
	}
}

func TestBuildQuery(t *testing.T) {
	profiles := []*camsync.AttributeProfile{
		camsync.BuiltinProfiles()[0],
		{
			ID:   "quoted",
			Tags: []camsync.Tag{{Key: "name", Value: `say "cheese"`}},
		},
	}
	region := camsync.GeoRect{South: 52.5, West: -1.25, North: 52.75, East: -0.5}

	query := BuildQuery(region, profiles, 50000, 25)

	snapshot.AssertMatchesSnapshot(t, "BuildQuery", snapshot.NewTextSnapshot(query))
}

func TestBuildQuery_uncapped(t *testing.T) {
	region := camsync.GeoRect{South: 1, West: 2, North: 3, East: 4}

	query := BuildQuery(region, camsync.BuiltinProfiles()[1:2], 0, 25)

	assert.Contains(t, query, ".cams out body;\n")
	assert.NotContains(t, query, "out body 0")
}
