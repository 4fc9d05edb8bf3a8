package overpass

import (
	"net/http"
	"strings"

	"github.com/jamesrr39/camsync-app/netstatus"
)

type FailureKind int

const (
	FailureKindNone FailureKind = iota
	// FailureKindQueryTooBroad covers both the result-size ceiling and processing timeouts.
	// Recoverable by splitting the region.
	FailureKindQueryTooBroad
	// FailureKindRateLimited is recoverable only by waiting, never by splitting
	FailureKindRateLimited
	// FailureKindTransport is any other failure: network errors, unexpected statuses, unparseable bodies
	FailureKindTransport
)

var failureKindNames = []string{
	"None",
	"Query Too Broad",
	"Rate Limited",
	"Transport Failure",
}

func (k FailureKind) String() string {
	return failureKindNames[k]
}

func (k FailureKind) issue() netstatus.Issue {
	switch k {
	case FailureKindQueryTooBroad:
		return netstatus.IssueQueryTooBroad
	case FailureKindRateLimited:
		return netstatus.IssueRateLimited
	default:
		return netstatus.IssueTransport
	}
}

// ClassifierFunc maps a non-200 query service response to a failure kind.
// The query service only signals its failure modes through wording in the body,
// so the matching lives here and nowhere else.
type ClassifierFunc func(statusCode int, body string) FailureKind

// SubstringClassifier matches literal phrases in the response body
type SubstringClassifier struct {
	CapacityPhrases  []string
	TimeoutPhrases   []string
	RateLimitPhrases []string
}

// DefaultSubstringClassifier holds the phrases the public Overpass instances use
var DefaultSubstringClassifier = SubstringClassifier{
	CapacityPhrases: []string{
		"too many nodes",
		"50000",
		"runtime error: Query run out of memory",
	},
	TimeoutPhrases: []string{
		"runtime error: Query timed out",
		"timeout",
	},
	RateLimitPhrases: []string{
		"rate_limited",
		"Too Many Requests",
		"Please check /api/status for the quota of your IP address",
	},
}

var DefaultClassifier ClassifierFunc = DefaultSubstringClassifier.Classify

func (c SubstringClassifier) Classify(statusCode int, body string) FailureKind {
	if statusCode == http.StatusOK {
		return FailureKindNone
	}

	// rate limiting is checked first: a throttled request must never be split
	if statusCode == http.StatusTooManyRequests || containsAny(body, c.RateLimitPhrases) {
		return FailureKindRateLimited
	}

	if containsAny(body, c.CapacityPhrases) || containsAny(body, c.TimeoutPhrases) {
		return FailureKindQueryTooBroad
	}

	return FailureKindTransport
}

func containsAny(s string, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(s, phrase) {
			return true
		}
	}
	return false
}
