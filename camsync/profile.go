package camsync

// Tag is one required attribute of a profile
type Tag struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// AttributeProfile is a named, ordered set of attribute key/value requirements.
// Identity is by ID, not by value.
type AttributeProfile struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Tags    []Tag  `json:"tags" yaml:"tags"`
	Builtin bool   `json:"builtin" yaml:"builtin"`
	// WildcardEmptyValues marks empty-valued tags as placeholders that match anything
	WildcardEmptyValues bool `json:"wildcardEmptyValues" yaml:"wildcardEmptyValues"`
	Enabled             bool `json:"enabled" yaml:"enabled"`
}

// NonWildcardTags returns the tags that actually constrain a match, in profile order
func (p *AttributeProfile) NonWildcardTags() []Tag {
	var tags []Tag
	for _, tag := range p.Tags {
		if p.WildcardEmptyValues && tag.Value == "" {
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}

// IsQueryable reports whether the profile constrains anything at all.
// A profile without constraining tags would match every node.
func (p *AttributeProfile) IsQueryable() bool {
	return len(p.NonWildcardTags()) > 0
}

// Matches reports whether a node carrying the tags satisfies the profile
func (p *AttributeProfile) Matches(tags TagMap) bool {
	for _, tag := range p.NonWildcardTags() {
		value, ok := tags[tag.Key]
		if !ok || value != tag.Value {
			return false
		}
	}
	return true
}

// IsAtLeastAsBroadAs reports whether every node matched by other is also matched by p,
// i.e. p's constraining tags are a subset of other's.
func (p *AttributeProfile) IsAtLeastAsBroadAs(other *AttributeProfile) bool {
	otherTags := make(TagMap)
	for _, tag := range other.NonWildcardTags() {
		otherTags[tag.Key] = tag.Value
	}

	return p.Matches(otherTags)
}

// TagMap returns the profile's tags as a map, e.g. for building an edit from the profile
func (p *AttributeProfile) TagMap() TagMap {
	m := make(TagMap)
	for _, tag := range p.Tags {
		m[tag.Key] = tag.Value
	}
	return m
}

func EnabledProfiles(profiles []*AttributeProfile) []*AttributeProfile {
	var enabled []*AttributeProfile
	for _, profile := range profiles {
		if profile.Enabled {
			enabled = append(enabled, profile)
		}
	}
	return enabled
}

// MatchingProfiles classifies a node against a profile list
func MatchingProfiles(profiles []*AttributeProfile, tags TagMap) []*AttributeProfile {
	var matching []*AttributeProfile
	for _, profile := range profiles {
		if profile.IsQueryable() && profile.Matches(tags) {
			matching = append(matching, profile)
		}
	}
	return matching
}

const (
	BuiltinProfileIDGenericALPR = "builtin-generic-alpr"
	BuiltinProfileIDFlock       = "builtin-flock"
	BuiltinProfileIDMotorola    = "builtin-motorola"
	BuiltinProfileIDGenetec     = "builtin-genetec"
)

// BuiltinProfiles are seeded at first run. They can be disabled but never deleted.
func BuiltinProfiles() []*AttributeProfile {
	alprTags := []Tag{
		{Key: "man_made", Value: "surveillance"},
		{Key: "surveillance:type", Value: "ALPR"},
	}

	withALPRTags := func(extra ...Tag) []Tag {
		tags := append([]Tag{}, alprTags...)
		return append(tags, extra...)
	}

	return []*AttributeProfile{
		{
			ID:      BuiltinProfileIDGenericALPR,
			Name:    "Generic ALPR",
			Tags:    withALPRTags(Tag{Key: "camera:mount", Value: ""}),
			Builtin: true,
			// camera:mount is filled in by the user when submitting
			WildcardEmptyValues: true,
			Enabled:             true,
		},
		{
			ID:   BuiltinProfileIDFlock,
			Name: "Flock Safety",
			Tags: withALPRTags(
				Tag{Key: "manufacturer", Value: "Flock Safety"},
				Tag{Key: "manufacturer:wikidata", Value: "Q108485435"},
			),
			Builtin: true,
			Enabled: true,
		},
		{
			ID:   BuiltinProfileIDMotorola,
			Name: "Motorola Solutions",
			Tags: withALPRTags(
				Tag{Key: "manufacturer", Value: "Motorola Solutions"},
				Tag{Key: "manufacturer:wikidata", Value: "Q634815"},
			),
			Builtin: true,
			Enabled: true,
		},
		{
			ID:   BuiltinProfileIDGenetec,
			Name: "Genetec",
			Tags: withALPRTags(
				Tag{Key: "manufacturer", Value: "Genetec"},
				Tag{Key: "manufacturer:wikidata", Value: "Q30295174"},
			),
			Builtin: true,
			Enabled: true,
		},
	}
}
