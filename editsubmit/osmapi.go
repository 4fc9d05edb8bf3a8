package editsubmit

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/camsync-app/netstatus"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/paulmach/osm"
)

// ErrRejected means the destination understood the request and refused it
var ErrRejected = errors.New("edit rejected by the destination")

const DirectionTagKey = "direction"

type changesetXML struct {
	Tags osm.Tags `xml:"tag"`
}

type nodeXML struct {
	ChangesetID osm.ChangesetID `xml:"changeset,attr"`
	Lat         float64         `xml:"lat,attr"`
	Lon         float64         `xml:"lon,attr"`
	Tags        osm.Tags        `xml:"tag"`
}

type osmXML struct {
	XMLName   xml.Name      `xml:"osm"`
	Changeset *changesetXML `xml:"changeset,omitempty"`
	Node      *nodeXML      `xml:"node,omitempty"`
}

// OSMAPISubmitter creates nodes through the OSM editing API (v0.6):
// open a changeset, create the node in it, close the changeset.
type OSMAPISubmitter struct {
	logger    *logpkg.Logger
	doer      httpextra.Doer
	status    netstatus.Reporter
	baseURL   string
	userAgent string
}

// NewOSMAPISubmitter creates a submitter for an API root such as "https://api.openstreetmap.org"
func NewOSMAPISubmitter(logger *logpkg.Logger, doer httpextra.Doer, status netstatus.Reporter, baseURL, userAgent string) *OSMAPISubmitter {
	return &OSMAPISubmitter{
		logger:    logger,
		doer:      doer,
		status:    status,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
	}
}

func (s *OSMAPISubmitter) Submit(ctx context.Context, edit camsyncdal.QueuedEdit, accessToken string) (int64, errorsx.Error) {
	nodeID, err := s.submit(ctx, edit, accessToken)
	if err != nil {
		issue := netstatus.IssueTransport
		if errors.Is(errorsx.Cause(err), ErrRejected) {
			issue = netstatus.IssueRejected
		}
		s.status.ReportIssue(netstatus.SourceUpload, issue)
		return 0, err
	}

	s.status.ReportSuccess(netstatus.SourceUpload)
	return int64(nodeID), nil
}

func (s *OSMAPISubmitter) submit(ctx context.Context, edit camsyncdal.QueuedEdit, accessToken string) (osm.NodeID, errorsx.Error) {
	changesetBody := osmXML{
		Changeset: &changesetXML{
			Tags: osm.Tags{
				{Key: "created_by", Value: s.userAgent},
				{Key: "comment", Value: fmt.Sprintf("Add %s", profileLabel(edit))},
			},
		},
	}

	changesetIDStr, err := s.put(ctx, "/api/0.6/changeset/create", changesetBody, accessToken)
	if err != nil {
		return 0, errorsx.Wrap(err, "step", "create changeset")
	}

	changesetID, parseErr := strconv.ParseInt(changesetIDStr, 10, 64)
	if parseErr != nil {
		return 0, errorsx.Wrap(parseErr, "changesetResponse", changesetIDStr)
	}

	nodeBody := osmXML{
		Node: &nodeXML{
			ChangesetID: osm.ChangesetID(changesetID),
			Lat:         edit.Lat,
			Lon:         edit.Lon,
			Tags:        NodeTags(edit),
		},
	}

	nodeIDStr, err := s.put(ctx, "/api/0.6/node/create", nodeBody, accessToken)
	if err != nil {
		return 0, errorsx.Wrap(err, "step", "create node", "changesetID", changesetID)
	}

	nodeID, parseErr := strconv.ParseInt(nodeIDStr, 10, 64)
	if parseErr != nil {
		return 0, errorsx.Wrap(parseErr, "nodeResponse", nodeIDStr)
	}

	_, err = s.put(ctx, fmt.Sprintf("/api/0.6/changeset/%d/close", changesetID), nil, accessToken)
	if err != nil {
		// the node exists either way; the server closes idle changesets itself
		s.logger.Warn("couldn't close changeset %d: %s", changesetID, err.Error())
	}

	s.logger.Info("created node %d in changeset %d for queued edit %s", nodeID, changesetID, edit.ID)

	return osm.NodeID(nodeID), nil
}

func (s *OSMAPISubmitter) put(ctx context.Context, path string, body interface{}, accessToken string) (string, errorsx.Error) {
	var reqBody io.Reader
	if body != nil {
		data, err := xml.Marshal(body)
		if err != nil {
			return "", errorsx.Wrap(err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+path, reqBody)
	if err != nil {
		return "", errorsx.Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "text/xml")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.doer.Do(req)
	if err != nil {
		return "", errorsx.Wrap(err, "path", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errorsx.Wrap(err, "path", path)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return strings.TrimSpace(string(respBody)), nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return "", errorsx.Wrap(ErrRejected, "path", path, "statusCode", resp.StatusCode, "body", string(respBody))
	default:
		return "", errorsx.Errorf("unexpected status code %d from %s: %s", resp.StatusCode, path, string(respBody))
	}
}

// NodeTags builds the tags of the node to create: the profile's constraining tags plus the camera direction
func NodeTags(edit camsyncdal.QueuedEdit) osm.Tags {
	var tags osm.Tags
	for _, tag := range edit.Profile.NonWildcardTags() {
		tags = append(tags, osm.Tag{Key: tag.Key, Value: tag.Value})
	}
	tags = append(tags, osm.Tag{Key: DirectionTagKey, Value: strconv.FormatFloat(edit.Direction, 'f', -1, 64)})

	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Key < tags[j].Key
	})

	return tags
}

func profileLabel(edit camsyncdal.QueuedEdit) string {
	if edit.Profile.Name != "" {
		return edit.Profile.Name
	}
	return "surveillance camera"
}
