package overpass

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"golang.org/x/time/rate"
)

// RawResponse is a query service reply before classification
type RawResponse struct {
	StatusCode int
	Body       []byte
	// RetryAfter is the server's requested wait, if it sent one
	RetryAfter time.Duration
}

// QueryClient sends one query to the query service.
// An error means the service could not be reached at all; any HTTP reply is a RawResponse.
type QueryClient interface {
	Query(ctx context.Context, query string) (*RawResponse, errorsx.Error)
}

type HTTPQueryClient struct {
	endpoint  string
	doer      httpextra.Doer
	limiter   *rate.Limiter
	userAgent string
}

// NewHTTPQueryClient creates a client for an Overpass-compatible endpoint.
// requestsPerMinute <= 0 disables the client-side rate limit.
func NewHTTPQueryClient(endpoint string, doer httpextra.Doer, requestsPerMinute int, userAgent string) *HTTPQueryClient {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}

	return &HTTPQueryClient{
		endpoint:  endpoint,
		doer:      doer,
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: userAgent,
	}
}

func (c *HTTPQueryClient) Query(ctx context.Context, query string) (*RawResponse, errorsx.Error) {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	form := url.Values{}
	form.Set("data", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept-Encoding", "gzip")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, errorsx.Wrap(err, "endpoint", c.endpoint)
	}
	defer resp.Body.Close()

	bodyReader, err := httpextra.RemoveGzip(resp)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	defer bodyReader.Close()

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, errorsx.Wrap(err, "endpoint", c.endpoint)
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}, nil
}

// parseRetryAfter understands the delay-seconds form of the header only
func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
