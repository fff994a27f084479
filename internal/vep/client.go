// Package vep implements the external variant-effect prediction service
// client: a single batch HTTP call, throttled against the service's rate
// limits, plus the response parser (see parser.go).
package vep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joeycumines/go-catrate"
)

// ErrTransient marks a whole-batch failure the caller should retry:
// connection errors, timeouts, and 5xx responses all wrap this.
var ErrTransient = errors.New(`vep: transient upstream failure`)

// Descriptor is one requested variant, as sent to the external service.
type Descriptor struct {
	VariantKey string `json:"variant_key"`
	Chrom      string `json:"chrom"`
	Pos        int64  `json:"pos"`
	Ref        string `json:"ref"`
	Alt        string `json:"alt"`
}

// Client issues batch annotation requests against the external VEP service.
// It's shared (stateless) across all workers, matching spec.md §5's shared
// HTTP client policy.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
	// Limiter throttles outbound batch requests so the service stays
	// within the upstream API's rate limits (spec.md §1). A nil Limiter
	// disables throttling.
	Limiter *catrate.Limiter
}

// NewClient constructs a Client with sane defaults: a single window rate
// limit of 10 batch requests per second, and the provided per-request
// timeout applied via context in Call.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		Endpoint:   endpoint,
		HTTPClient: httpClient,
		Limiter:    catrate.NewLimiter(map[time.Duration]int{time.Second: 10}),
	}
}

// Call issues one batch POST request carrying descriptors, applying timeout
// as the per-request deadline. The whole call is all-or-nothing: any
// connection-level or 5xx failure wraps ErrTransient.
func (c *Client) Call(ctx context.Context, descriptors []Descriptor, timeout time.Duration) ([]RawResult, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(descriptors)
	if err != nil {
		return nil, fmt.Errorf(`vep: encode request: %w`, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf(`vep: build request: %w`, err)
	}
	req.Header.Set(`Content-Type`, `application/json`)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(`%w: %v`, ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf(`%w: upstream status %d`, ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf(`vep: upstream rejected batch: status %d`, resp.StatusCode)
	}

	var results []RawResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf(`vep: decode response: %w`, err)
	}

	return results, nil
}

// throttle blocks until the rate limiter admits one more outbound batch
// request, or ctx is done.
func (c *Client) throttle(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}

	for {
		next, ok := c.Limiter.Allow(`vep-batch`)
		if ok {
			return nil
		}

		wait := time.Until(next)
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
