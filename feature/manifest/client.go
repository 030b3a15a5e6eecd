package manifest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"catalog-sync/core/retry"

	"go.uber.org/zap"
)

// ErrUnexpectedResponse marks a malformed or unknown server payload.
// It is fatal: the retry policy never reschedules it.
var ErrUnexpectedResponse = errors.New("unexpected manifest response")

// Client talks to the remote manifest store. Every request runs through the
// retry policy.
type Client struct {
	base   string
	http   *http.Client
	retry  retry.Options
	logger *zap.Logger
}

// NewClient creates a manifest client for the given base URL.
func NewClient(base string, httpClient *http.Client, retryOpts retry.Options, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if retryOpts.ShouldRetry == nil {
		retryOpts.ShouldRetry = func(err error) bool {
			return !errors.Is(err, ErrUnexpectedResponse)
		}
	}
	return &Client{
		base:   strings.TrimSuffix(base, "/"),
		http:   httpClient,
		retry:  retryOpts,
		logger: logger,
	}
}

// FetchPlan requests an update plan for kind, passing the locally persisted
// hash as a cursor. An empty from means first sync.
func (c *Client) FetchPlan(ctx context.Context, kind, from string) (*SyncPlan, error) {
	endpoint := fmt.Sprintf("%s/%s-update", c.base, kind)
	if from != "" {
		endpoint += "?from=" + url.QueryEscape(from)
	}

	return retry.DoWithResult(ctx, c.retry, func(ctx context.Context) (*SyncPlan, error) {
		body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		var plan SyncPlan
		if err := json.NewDecoder(body).Decode(&plan); err != nil {
			return nil, fmt.Errorf("%w: decode plan: %v", ErrUnexpectedResponse, err)
		}
		if err := validatePlan(&plan); err != nil {
			return nil, err
		}
		return &plan, nil
	})
}

// FetchFull downloads the complete manifest body: a JSON array of raw
// cloud-schema records.
func (c *Client) FetchFull(ctx context.Context, fullURL string) ([]json.RawMessage, error) {
	return retry.DoWithResult(ctx, c.retry, func(ctx context.Context) ([]json.RawMessage, error) {
		body, err := c.get(ctx, fullURL)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		var records []json.RawMessage
		if err := json.NewDecoder(body).Decode(&records); err != nil {
			return nil, fmt.Errorf("%w: decode full manifest: %v", ErrUnexpectedResponse, err)
		}
		return records, nil
	})
}

// FetchDelta downloads one delta body: newline-delimited JSON operation
// records, returned in line order. Each delta is retried independently.
func (c *Client) FetchDelta(ctx context.Context, deltaURL string) ([]DeltaOp, error) {
	return retry.DoWithResult(ctx, c.retry, func(ctx context.Context) ([]DeltaOp, error) {
		body, err := c.get(ctx, deltaURL)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		var ops []DeltaOp
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var op DeltaOp
			if err := json.Unmarshal([]byte(line), &op); err != nil {
				return nil, fmt.Errorf("%w: decode delta op: %v", ErrUnexpectedResponse, err)
			}
			ops = append(ops, op)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read delta body: %w", err)
		}
		return ops, nil
	})
}

func (c *Client) get(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return resp.Body, nil
}

// validatePlan rejects plan shapes the engine cannot act on.
func validatePlan(plan *SyncPlan) error {
	if plan.Latest == "" {
		return fmt.Errorf("%w: plan missing latest hash", ErrUnexpectedResponse)
	}
	switch plan.Mode {
	case ModeFull:
		if plan.Full == nil || plan.Full.URL == "" {
			return fmt.Errorf("%w: full plan missing url", ErrUnexpectedResponse)
		}
	case ModeDeltas:
		for i, d := range plan.Deltas {
			if d.URL == "" {
				return fmt.Errorf("%w: delta %d missing url", ErrUnexpectedResponse, i)
			}
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrUnexpectedResponse, plan.Mode)
	}
	return nil
}
