package overpass

import (
	"fmt"
	"strings"

	"github.com/jamesrr39/camsync-app/camsync"
)

// DedupeProfiles drops profiles that cannot contribute to a query:
// profiles with no constraining tags, and profiles for which a broader profile is also present.
// Of two profiles with identical constraints, the first is kept.
func DedupeProfiles(profiles []*camsync.AttributeProfile) []*camsync.AttributeProfile {
	var queryable []*camsync.AttributeProfile
	for _, profile := range profiles {
		if profile.IsQueryable() {
			queryable = append(queryable, profile)
		}
	}

	var deduped []*camsync.AttributeProfile
	for i, profile := range queryable {
		covered := false
		for j, other := range queryable {
			if i == j || !other.IsAtLeastAsBroadAs(profile) {
				continue
			}

			isStrictlyBroader := !profile.IsAtLeastAsBroadAs(other)
			if isStrictlyBroader || j < i {
				covered = true
				break
			}
		}

		if !covered {
			deduped = append(deduped, profile)
		}
	}

	return deduped
}

const nodeSetName = "cams"

// BuildQuery creates an Overpass QL query returning every node matching any of the profiles inside the region,
// followed by the skeletons of the ways and relations that reference those nodes.
// A resultCap of 0 means no limit.
func BuildQuery(region camsync.GeoRect, profiles []*camsync.AttributeProfile, resultCap int, timeoutSeconds int) string {
	sb := new(strings.Builder)

	fmt.Fprintf(sb, "[out:json][timeout:%d];\n", timeoutSeconds)
	sb.WriteString("(\n")
	for _, profile := range profiles {
		sb.WriteString("  node")
		for _, tag := range profile.NonWildcardTags() {
			fmt.Fprintf(sb, `["%s"="%s"]`, escapeQLString(tag.Key), escapeQLString(tag.Value))
		}
		fmt.Fprintf(sb, "(%s);\n", region.String())
	}
	fmt.Fprintf(sb, ")->.%s;\n", nodeSetName)

	if resultCap > 0 {
		fmt.Fprintf(sb, ".%s out body %d;\n", nodeSetName, resultCap)
	} else {
		fmt.Fprintf(sb, ".%s out body;\n", nodeSetName)
	}

	fmt.Fprintf(sb, "(way(bn.%s);rel(bn.%s););\n", nodeSetName, nodeSetName)
	sb.WriteString("out skel qt;")

	return sb.String()
}

func escapeQLString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
