package camsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttributeProfile_Matches(t *testing.T) {
	profile := &AttributeProfile{
		Tags: []Tag{
			{Key: "man_made", Value: "surveillance"},
			{Key: "camera:mount", Value: ""},
		},
		WildcardEmptyValues: true,
	}

	assert.True(t, profile.Matches(TagMap{"man_made": "surveillance"}))
	assert.True(t, profile.Matches(TagMap{"man_made": "surveillance", "camera:mount": "pole"}))
	assert.False(t, profile.Matches(TagMap{"man_made": "mast"}))

	profile.WildcardEmptyValues = false
	assert.False(t, profile.Matches(TagMap{"man_made": "surveillance", "camera:mount": "pole"}))
	assert.True(t, profile.Matches(TagMap{"man_made": "surveillance", "camera:mount": ""}))
}

func TestAttributeProfile_IsQueryable(t *testing.T) {
	onlyWildcards := &AttributeProfile{
		Tags:                []Tag{{Key: "manufacturer", Value: ""}},
		WildcardEmptyValues: true,
	}
	assert.False(t, onlyWildcards.IsQueryable())
	assert.False(t, (&AttributeProfile{}).IsQueryable())

	for _, profile := range BuiltinProfiles() {
		assert.True(t, profile.IsQueryable(), profile.ID)
		assert.True(t, profile.Builtin, profile.ID)
	}
}

func TestAttributeProfile_IsAtLeastAsBroadAs(t *testing.T) {
	profiles := BuiltinProfiles()
	generic, flock := profiles[0], profiles[1]

	assert.True(t, generic.IsAtLeastAsBroadAs(flock))
	assert.False(t, flock.IsAtLeastAsBroadAs(generic))
	assert.True(t, flock.IsAtLeastAsBroadAs(flock))
}

func TestMatchingProfiles(t *testing.T) {
	tags := TagMap{
		"man_made":              "surveillance",
		"surveillance:type":     "ALPR",
		"manufacturer":          "Flock Safety",
		"manufacturer:wikidata": "Q108485435",
	}

	matching := MatchingProfiles(BuiltinProfiles(), tags)

	var ids []string
	for _, profile := range matching {
		ids = append(ids, profile.ID)
	}
	assert.Equal(t, []string{BuiltinProfileIDGenericALPR, BuiltinProfileIDFlock}, ids)
}
