// Package source fetches dataset CSV files over HTTP or from the local
// filesystem and parses them into raw tables.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
	"github.com/couchcryptid/aq-dashboard-service/internal/observability"
)

// defaultMaxBody caps a single source download.
const defaultMaxBody = 64 << 20

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// errTransient marks failures worth another attempt.
var errTransient = errors.New("transient")

// Client fetches CSV sources. Locations with an http or https scheme are
// downloaded; everything else is read from disk.
type Client struct {
	httpClient *http.Client
	retries    int
	backoff    time.Duration
	maxBody    int64
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a fetcher whose requests are bounded by timeout. Remote
// downloads are retried up to retries more times on transport errors, 429, and 5xx.
func NewClient(timeout time.Duration, retries int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retries: retries,
		backoff: initialBackoff,
		maxBody: defaultMaxBody,
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch retrieves and parses one source. Any transport failure, timeout, or
// non-200 response is a *domain.SourceUnavailableError; an unparseable body is
// a *domain.SchemaMismatchError.
func (c *Client) Fetch(ctx context.Context, src domain.SourceDescriptor) (domain.RawTable, error) {
	kind := "file"
	if isRemote(src.Location) {
		kind = "http"
	}
	start := time.Now()
	defer func() {
		c.metrics.FetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	var (
		body io.ReadCloser
		err  error
	)
	if kind == "http" {
		body, err = c.getWithRetry(ctx, src)
	} else {
		body, err = os.Open(src.Location)
	}
	if err != nil {
		return domain.RawTable{}, &domain.SourceUnavailableError{Source: src.ID, Err: err}
	}
	defer body.Close()

	// One byte past the cap tells an oversized source from one that fits exactly.
	lr := &io.LimitedReader{R: body, N: c.maxBody + 1}
	raw, err := ReadCSV(src.ID, lr)
	if lr.N == 0 {
		return domain.RawTable{}, &domain.SourceUnavailableError{
			Source: src.ID,
			Err:    fmt.Errorf("source exceeds %d bytes", c.maxBody),
		}
	}
	if err != nil {
		var sm *domain.SchemaMismatchError
		if errors.As(err, &sm) {
			return domain.RawTable{}, err
		}
		// A body cut off mid-read is a transport failure, not a schema problem.
		return domain.RawTable{}, &domain.SourceUnavailableError{Source: src.ID, Err: err}
	}
	c.logger.Debug("source fetched", "source", src.ID, "kind", kind, "rows", len(raw.Rows),
		"duration", time.Since(start))
	return raw, nil
}

func (c *Client) getWithRetry(ctx context.Context, src domain.SourceDescriptor) (io.ReadCloser, error) {
	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		body, err := c.get(ctx, src.Location)
		if err == nil || !errors.Is(err, errTransient) || attempt >= c.retries {
			return body, err
		}
		c.logger.Warn("source fetch failed, retrying", "source", src.ID, "attempt", attempt+1,
			"backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

func (c *Client) get(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request: %w", err)
		}
		return nil, fmt.Errorf("request: %w: %w", errTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			err = fmt.Errorf("%w: %w", errTransient, err)
		}
		return nil, err
	}
	return resp.Body, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
