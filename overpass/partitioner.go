package overpass

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/netstatus"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/semaphore"
)

// PendingEditCleaner is told which node ids are confirmed present in the remote database,
// so that pending local edits that produced them can be dropped
type PendingEditCleaner interface {
	ConfirmPresent(nodeIDs []int64)
}

type Config struct {
	// MaxSplitDepth bounds the worst case to 4^MaxSplitDepth leaf queries
	MaxSplitDepth        int
	TimeoutSeconds       int
	RateLimitCooldown    time.Duration
	MaxConcurrentQueries uint
}

type Partitioner struct {
	logger    *logpkg.Logger
	client    QueryClient
	status    netstatus.Reporter
	cleaner   PendingEditCleaner
	config    Config
	classify  ClassifierFunc
	sema      *semaphore.Semaphore
	sleepFunc func(ctx context.Context, d time.Duration)
}

// NewPartitioner creates a Partitioner. cleaner may be nil.
func NewPartitioner(logger *logpkg.Logger, client QueryClient, status netstatus.Reporter, cleaner PendingEditCleaner, config Config) *Partitioner {
	maxConcurrentQueries := config.MaxConcurrentQueries
	if maxConcurrentQueries == 0 {
		maxConcurrentQueries = 1
	}

	return &Partitioner{
		logger:    logger,
		client:    client,
		status:    status,
		cleaner:   cleaner,
		config:    config,
		classify:  DefaultClassifier,
		sema:      semaphore.NewSemaphore(maxConcurrentQueries),
		sleepFunc: sleepContext,
	}
}

// SetClassifier replaces the failure classifier, e.g. for a query service with different wording
func (p *Partitioner) SetClassifier(classify ClassifierFunc) {
	p.classify = classify
}

// FetchReport is the outcome of a partitioned fetch.
// FailedBranches counts the (sub-)regions that contributed no nodes because of a failure;
// when it is non-zero, Nodes may be missing nodes.
type FetchReport struct {
	Nodes          []*camsync.RemoteNode
	FailedBranches int
}

func (r FetchReport) IsComplete() bool {
	return r.FailedBranches == 0
}

// FetchNodes returns every node inside region matching any of the profiles.
// It never fails: expected failures are reported to the status observer and
// the affected branches contribute no nodes.
// resultCap applies to the top-level request only; 0 means unlimited.
func (p *Partitioner) FetchNodes(ctx context.Context, region camsync.GeoRect, profiles []*camsync.AttributeProfile, resultCap int) []*camsync.RemoteNode {
	return p.FetchNodesReport(ctx, region, profiles, resultCap).Nodes
}

// FetchNodesReport is FetchNodes, also reporting how many branches failed
func (p *Partitioner) FetchNodesReport(ctx context.Context, region camsync.GeoRect, profiles []*camsync.AttributeProfile, resultCap int) FetchReport {
	profiles = DedupeProfiles(profiles)
	if len(profiles) == 0 {
		return FetchReport{}
	}

	var report FetchReport
	parts := region.SplitAntimeridian()
	for _, part := range parts {
		partReport := p.fetchBranch(ctx, part, profiles, resultCap, 0)
		report.Nodes = mergeByID(report.Nodes, partReport.Nodes)
		report.FailedBranches += partReport.FailedBranches
	}
	region = region.Normalize()

	p.logger.Info("fetched %d nodes for (%s) with %d profile(s), %d failed branch(es)", len(report.Nodes), region, len(profiles), report.FailedBranches)

	if len(report.Nodes) > 0 && p.cleaner != nil {
		nodeIDs := make([]int64, len(report.Nodes))
		for i, node := range report.Nodes {
			nodeIDs[i] = node.ID
		}
		p.cleaner.ConfirmPresent(nodeIDs)
	}

	return report
}

func (p *Partitioner) fetchBranch(ctx context.Context, region camsync.GeoRect, profiles []*camsync.AttributeProfile, resultCap int, depth int) FetchReport {
	failed := FetchReport{FailedBranches: 1}

	if ctx.Err() != nil {
		return failed
	}

	result := p.dispatch(ctx, region, profiles, resultCap)

	switch result.kind {
	case FailureKindNone:
		return FetchReport{Nodes: result.nodes}
	case FailureKindQueryTooBroad:
		if depth >= p.config.MaxSplitDepth {
			p.logger.Warn("query for (%s) still too broad at split depth %d. Giving up on this branch", region, depth)
			return failed
		}

		p.logger.Debug("query for (%s) too broad, splitting (depth %d)", region, depth+1)
		return p.fetchQuarters(ctx, region, profiles, depth+1)
	case FailureKindRateLimited:
		cooldown := p.config.RateLimitCooldown
		if result.retryAfter > cooldown {
			cooldown = result.retryAfter
		}

		p.logger.Warn("query service rate limited the request for (%s). Cooling down for %s", region, cooldown)
		p.sleepFunc(ctx, cooldown)
		return failed
	default:
		return failed
	}
}

// fetchQuarters fetches the four quarters of region concurrently.
// Sub-requests are never capped: the cap only matters for the original, oversized request.
func (p *Partitioner) fetchQuarters(ctx context.Context, region camsync.GeoRect, profiles []*camsync.AttributeProfile, depth int) FetchReport {
	var results [4]FetchReport

	var wg sync.WaitGroup
	for i, quarter := range region.Quarter() {
		wg.Add(1)
		go func(i int, quarter camsync.GeoRect) {
			defer wg.Done()
			results[i] = p.fetchBranch(ctx, quarter, profiles, 0, depth)
		}(i, quarter)
	}
	wg.Wait()

	var report FetchReport
	nodeLists := make([][]*camsync.RemoteNode, len(results))
	for i, result := range results {
		nodeLists[i] = result.Nodes
		report.FailedBranches += result.FailedBranches
	}
	report.Nodes = mergeByID(nodeLists...)

	return report
}

// mergeByID unions node lists by id; the first occurrence of an id wins
func mergeByID(nodeLists ...[]*camsync.RemoteNode) []*camsync.RemoteNode {
	seen := make(map[int64]bool)
	var merged []*camsync.RemoteNode
	for _, nodes := range nodeLists {
		for _, node := range nodes {
			if seen[node.ID] {
				continue
			}
			seen[node.ID] = true
			merged = append(merged, node)
		}
	}
	return merged
}

type dispatchResult struct {
	kind       FailureKind
	nodes      []*camsync.RemoteNode
	retryAfter time.Duration
}

func (p *Partitioner) dispatch(ctx context.Context, region camsync.GeoRect, profiles []*camsync.AttributeProfile, resultCap int) dispatchResult {
	query := BuildQuery(region, profiles, resultCap, p.config.TimeoutSeconds)

	p.sema.Add()
	resp, err := p.client.Query(ctx, query)
	p.sema.Done()

	if err != nil {
		p.logger.Warn("query for (%s) failed: %s", region, err.Error())
		p.status.ReportIssue(netstatus.SourceQuery, netstatus.IssueTransport)
		return dispatchResult{kind: FailureKindTransport}
	}

	kind := p.classify(resp.StatusCode, string(resp.Body))
	if kind != FailureKindNone {
		p.logger.Debug("query for (%s) failed with status %d: %s", region, resp.StatusCode, kind)
		p.status.ReportIssue(netstatus.SourceQuery, kind.issue())
		return dispatchResult{kind: kind, retryAfter: resp.RetryAfter}
	}

	parsed, err := parseResponse(resp.Body)
	if err != nil {
		p.logger.Warn("couldn't parse query response for (%s): %s", region, err.Error())
		p.status.ReportIssue(netstatus.SourceQuery, netstatus.IssueTransport)
		return dispatchResult{kind: FailureKindTransport}
	}

	if parsed.Remark != "" {
		// a remark on a 200 reply means the output may be incomplete
		remarkKind := p.classify(http.StatusInternalServerError, parsed.Remark)
		if remarkKind == FailureKindQueryTooBroad || remarkKind == FailureKindRateLimited {
			p.status.ReportIssue(netstatus.SourceQuery, remarkKind.issue())
			return dispatchResult{kind: remarkKind, retryAfter: resp.RetryAfter}
		}
	}

	if resultCap > 0 && len(parsed.Nodes) >= resultCap {
		// the service truncated the output at the cap
		p.status.ReportIssue(netstatus.SourceQuery, netstatus.IssueQueryTooBroad)
		return dispatchResult{kind: FailureKindQueryTooBroad}
	}

	p.status.ReportSuccess(netstatus.SourceQuery)
	return dispatchResult{kind: FailureKindNone, nodes: parsed.Nodes}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
