package overpass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	body := []byte(`{
		"version": 0.6,
		"elements": [
			{"type": "node", "id": 1, "lat": 52.1, "lon": -1.1, "tags": {"man_made": "surveillance"}},
			{"type": "node", "id": 2, "lat": 52.2, "lon": -1.2, "tags": {"man_made": "surveillance"}},
			{"type": "node", "id": 3, "lat": 52.3, "lon": -1.3},
			{"type": "way", "id": 100, "nodes": [2, 999]},
			{"type": "relation", "id": 200, "members": [
				{"type": "node", "ref": 3, "role": "device"},
				{"type": "way", "ref": 1, "role": "outer"}
			]}
		]
	}`)

	parsed, err := parseResponse(body)
	require.NoError(t, err)

	require.Len(t, parsed.Nodes, 3)
	assert.Empty(t, parsed.Remark)

	assert.Equal(t, int64(1), parsed.Nodes[0].ID)
	assert.Equal(t, 52.1, parsed.Nodes[0].Lat)
	assert.Equal(t, "surveillance", parsed.Nodes[0].Tags["man_made"])
	assert.False(t, parsed.Nodes[0].Constrained, "way member with the same id as a node is not a node reference")

	assert.True(t, parsed.Nodes[1].Constrained, "referenced by a way")
	assert.True(t, parsed.Nodes[2].Constrained, "referenced by a relation")
}

func TestParseResponse_remark(t *testing.T) {
	parsed, err := parseResponse([]byte(`{"elements": [], "remark": "runtime error: Query timed out in \"query\" at line 3 after 26 seconds."}`))
	require.NoError(t, err)

	assert.Empty(t, parsed.Nodes)
	assert.Contains(t, parsed.Remark, "timed out")
}

func TestParseResponse_malformed(t *testing.T) {
	_, err := parseResponse([]byte(`<html>`))
	require.Error(t, err)
}
