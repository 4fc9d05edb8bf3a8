package overpass

import (
	"github.com/goccy/go-json"
	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/paulmach/osm"
)

type elementMember struct {
	Type osm.Type `json:"type"`
	Ref  int64    `json:"ref"`
	Role string   `json:"role"`
}

type element struct {
	Type    osm.Type          `json:"type"`
	ID      int64             `json:"id"`
	Lat     float64           `json:"lat"`
	Lon     float64           `json:"lon"`
	Tags    map[string]string `json:"tags"`
	Nodes   []int64           `json:"nodes"`
	Members []elementMember   `json:"members"`
}

type queryResponse struct {
	Elements []element `json:"elements"`
	// Remark is set when the service stopped part way, e.g. on a timeout after output started
	Remark string `json:"remark"`
}

type parsedResponse struct {
	Nodes  []*camsync.RemoteNode
	Remark string
}

// parseResponse decodes a query service JSON body into nodes.
// A node referenced by any way or relation in the body is flagged as constrained.
func parseResponse(body []byte) (*parsedResponse, errorsx.Error) {
	resp := new(queryResponse)
	err := json.Unmarshal(body, resp)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	referenced := make(map[int64]bool)
	for _, el := range resp.Elements {
		switch el.Type {
		case osm.TypeWay:
			for _, nodeID := range el.Nodes {
				referenced[nodeID] = true
			}
		case osm.TypeRelation:
			for _, member := range el.Members {
				if member.Type == osm.TypeNode {
					referenced[member.Ref] = true
				}
			}
		}
	}

	var nodes []*camsync.RemoteNode
	for _, el := range resp.Elements {
		if el.Type != osm.TypeNode {
			continue
		}

		nodes = append(nodes, &camsync.RemoteNode{
			ID:          el.ID,
			Lat:         el.Lat,
			Lon:         el.Lon,
			Tags:        camsync.TagMap(el.Tags),
			Constrained: referenced[el.ID],
		})
	}

	return &parsedResponse{nodes, resp.Remark}, nil
}
