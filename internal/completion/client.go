// Package completion talks to the remote text-generation endpoint. It shapes
// request bodies per profile dialect, shares a process-wide concurrency
// limiter, retries rate limits and transport failures in place, and records
// every attempt to a request log.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"

	"oblique/internal/logger"
	"oblique/internal/version"
	"oblique/pkg/obliquetypes"
)

const (
	// DefaultMaxAttempts bounds the attempts made for one call.
	DefaultMaxAttempts = 10
	// DefaultRateLimitBackoff is the pause after an in-band rate-limit error.
	DefaultRateLimitBackoff = time.Second
	// DefaultTransportBackoff is the pause after a network-level failure.
	DefaultTransportBackoff = 5 * time.Second
	// DefaultConcurrency is the capacity of the shared limiter.
	DefaultConcurrency = 5
	// DefaultTitle is sent as X-Title.
	DefaultTitle = "Oblique"
)

// Request is one completion request for a formatted prompt.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
	N           int
}

// Config configures a Client.
type Config struct {
	APIKey string
	Title  string
	// HTTPClient defaults to a client with a 120s timeout.
	HTTPClient *http.Client
	// Limiter is shared by every client in the process. Nil disables limiting.
	Limiter *semaphore.Weighted
	// RequestLog receives one event per attempt. Nil discards events.
	RequestLog       obliquetypes.RequestLogger
	MaxAttempts      int
	RateLimitBackoff time.Duration
	TransportBackoff time.Duration
	// Sleep waits between attempts; it must return early with ctx.Err() on
	// cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client issues completion requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *log.Logger
}

// NewLimiter creates the process-wide limiter shared across agents.
func NewLimiter(capacity int) *semaphore.Weighted {
	if capacity <= 0 {
		capacity = DefaultConcurrency
	}
	return semaphore.NewWeighted(int64(capacity))
}

// NewClient creates a Client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = DefaultRateLimitBackoff
	}
	if cfg.TransportBackoff <= 0 {
		cfg.TransportBackoff = DefaultTransportBackoff
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		log:        logger.NewStyledLogger("Completion"),
	}
}

// Close releases idle connections held by the underlying HTTP client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Complete returns exactly max(req.N, 1) candidates. A candidate is the empty
// string when its call failed irrecoverably. The only error returned is the
// context error when ctx is cancelled.
func (c *Client) Complete(ctx context.Context, req Request, profile obliquetypes.ModelProfile) ([]string, error) {
	n := req.N
	if n < 1 {
		n = 1
	}

	if profile.SupportsMultiChoice {
		texts, err := c.call(ctx, req, profile, n)
		if err != nil {
			return nil, err
		}
		return fit(texts, n), nil
	}

	results := make([]string, n)
	p := pool.New().WithErrors().WithContext(ctx)
	for i := 0; i < n; i++ {
		p.Go(func(ctx context.Context) error {
			texts, err := c.call(ctx, req, profile, 1)
			if err != nil {
				return err
			}
			if len(texts) > 0 {
				results[i] = texts[0]
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return results, nil
}

// call runs the retry loop for one HTTP call asking for n choices. Failures
// other than cancellation are absorbed and reported as an empty result.
func (c *Client) call(ctx context.Context, req Request, profile obliquetypes.ModelProfile, n int) ([]string, error) {
	payload, err := json.Marshal(buildBody(req, profile, n))
	if err != nil {
		c.log.Error("failed to encode request", "model", profile.ModelID, "error", err)
		return nil, nil
	}

	requestKey := time.Now().UTC().Format("20060102T150405.000000000")
	params := map[string]any{
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"n":           n,
	}
	if len(req.Stop) > 0 {
		params["stop"] = req.Stop
	}

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		event := obliquetypes.RequestLogEvent{
			RequestKey: requestKey,
			Time:       time.Now().UTC(),
			Attempt:    attempt,
			Endpoint:   profile.Endpoint,
			Model:      profile.ModelID,
			Params:     params,
			Prompt:     req.Prompt,
		}

		status, body, err := c.send(ctx, profile, payload)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			event.Error = fmt.Errorf("%w: %v", obliquetypes.ErrTransport, err).Error()
			c.record(event)
			c.log.Warn("transport failure, retrying", "model", profile.ModelID, "attempt", attempt, "error", err)
			if err := c.cfg.Sleep(ctx, c.cfg.TransportBackoff); err != nil {
				return nil, err
			}
			continue
		}

		event.Status = status
		event.RawResponse = string(body)

		if status != http.StatusOK {
			event.Error = fmt.Sprintf("%v: status %d", obliquetypes.ErrUpstream, status)
			c.record(event)
			c.log.Error("upstream returned non-200", "model", profile.ModelID, "status", status)
			return nil, nil
		}

		if err := classify(body); err != nil {
			event.Error = err.Error()
			c.record(event)
			if errors.Is(err, obliquetypes.ErrRateLimited) {
				c.log.Warn("rate limited, retrying", "model", profile.ModelID, "attempt", attempt)
				if err := c.cfg.Sleep(ctx, c.cfg.RateLimitBackoff); err != nil {
					return nil, err
				}
				continue
			}
			c.log.Error("upstream error", "model", profile.ModelID, "error", err)
			return nil, nil
		}

		texts := extractChoices(body, profile.Type)
		event.Extracted = texts
		c.record(event)
		c.log.Debug("completion received", "model", profile.ModelID, "attempt", attempt, "choices", len(texts))
		return texts, nil
	}

	c.log.Error("attempts exhausted", "model", profile.ModelID, "attempts", c.cfg.MaxAttempts)
	return nil, nil
}

// send performs one HTTP exchange while holding a slot of the shared limiter.
func (c *Client) send(ctx context.Context, profile obliquetypes.ModelProfile, payload []byte) (int, []byte, error) {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Acquire(ctx, 1); err != nil {
			return 0, nil, err
		}
		defer c.cfg.Limiter.Release(1)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, profile.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("X-Title", c.cfg.Title)
	httpReq.Header.Set("User-Agent", version.UserAgent())
	for k, v := range profile.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) record(event obliquetypes.RequestLogEvent) {
	if c.cfg.RequestLog != nil {
		c.cfg.RequestLog.Log(event)
	}
}

// fit pads or truncates texts to exactly n entries.
func fit(texts []string, n int) []string {
	out := make([]string, n)
	copy(out, texts)
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
