package netstatus

import (
	"sync"
	"time"

	"github.com/jamesrr39/goutil/logpkg"
	"github.com/prometheus/client_golang/prometheus"
)

type Source string

const (
	SourceQuery  Source = "query"
	SourceTiles  Source = "tiles"
	SourceUpload Source = "upload"
)

type Issue string

const (
	IssueQueryTooBroad Issue = "query_too_broad"
	IssueRateLimited   Issue = "rate_limited"
	IssueTransport     Issue = "transport"
	IssueRejected      Issue = "rejected"
)

// Reporter receives fire-and-forget connectivity signals from the engine
type Reporter interface {
	ReportSuccess(source Source)
	ReportIssue(source Source, issue Issue)
}

// SourceStatus is the last known health of one remote endpoint
type SourceStatus struct {
	Source            Source    `json:"source"`
	Degraded          bool      `json:"degraded"`
	LastIssue         Issue     `json:"lastIssue,omitempty"`
	ConsecutiveIssues int       `json:"consecutiveIssues"`
	LastSuccessAt     time.Time `json:"lastSuccessAt"`
	LastIssueAt       time.Time `json:"lastIssueAt"`
}

var _ Reporter = &Tracker{}

// Tracker keeps per-source status for the UI and counts outcomes in Prometheus.
// A source is degraded from its first issue until its next success.
type Tracker struct {
	logger   *logpkg.Logger
	nowFunc  func() time.Time
	mu       *sync.RWMutex
	statuses map[Source]*SourceStatus
	outcomes *prometheus.CounterVec
}

func NewTracker(logger *logpkg.Logger, registerer prometheus.Registerer) *Tracker {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camsync",
		Name:      "remote_requests_total",
		Help:      "Outcomes of requests to remote endpoints, by source and outcome",
	}, []string{"source", "outcome"})

	if registerer != nil {
		registerer.MustRegister(outcomes)
	}

	return &Tracker{
		logger:   logger,
		nowFunc:  time.Now,
		mu:       new(sync.RWMutex),
		statuses: make(map[Source]*SourceStatus),
		outcomes: outcomes,
	}
}

func (t *Tracker) getOrCreate(source Source) *SourceStatus {
	status, ok := t.statuses[source]
	if !ok {
		status = &SourceStatus{Source: source}
		t.statuses[source] = status
	}
	return status
}

func (t *Tracker) ReportSuccess(source Source) {
	t.outcomes.WithLabelValues(string(source), "success").Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	status := t.getOrCreate(source)
	if status.Degraded {
		t.logger.Info("%s: connectivity restored after %d issue(s)", source, status.ConsecutiveIssues)
	}
	status.Degraded = false
	status.ConsecutiveIssues = 0
	status.LastSuccessAt = t.nowFunc()
}

func (t *Tracker) ReportIssue(source Source, issue Issue) {
	t.outcomes.WithLabelValues(string(source), string(issue)).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	status := t.getOrCreate(source)
	status.Degraded = true
	status.LastIssue = issue
	status.ConsecutiveIssues++
	status.LastIssueAt = t.nowFunc()

	t.logger.Debug("%s: reported issue %q (%d in a row)", source, issue, status.ConsecutiveIssues)
}

// Snapshot returns a copy of every known source status, ordered by source name
func (t *Tracker) Snapshot() []SourceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var statuses []SourceStatus
	for _, source := range []Source{SourceQuery, SourceTiles, SourceUpload} {
		status, ok := t.statuses[source]
		if !ok {
			continue
		}
		statuses = append(statuses, *status)
	}
	return statuses
}

// IsDegraded reports whether any source is currently degraded
func (t *Tracker) IsDegraded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, status := range t.statuses {
		if status.Degraded {
			return true
		}
	}
	return false
}

// NopReporter discards every report
type NopReporter struct{}

func (NopReporter) ReportSuccess(source Source)            {}
func (NopReporter) ReportIssue(source Source, issue Issue) {}
