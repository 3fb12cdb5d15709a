package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"fieldops.dev/tabletwatch/pkg/metrics"
	"fieldops.dev/tabletwatch/pkg/telemetry"
)

// Submission retry policy.
const (
	submitInitialBackoff = 1 * time.Second
	submitMaxBackoff     = 30 * time.Second
	submitMaxAttempts    = 5
)

// ErrSubmitExhausted is returned when every retry attempt failed; the
// tick's payload is abandoned and the next tick submits fresh data.
var ErrSubmitExhausted = errors.New("submission retry attempts exhausted")

// Submitter POSTs telemetry submissions to the gateway with capped
// exponential backoff. Validation rejections are not retried: the same
// payload would only be rejected again.
type Submitter struct {
	logger  *slog.Logger
	client  *http.Client
	url     string
	token   string
	metrics *metrics.AgentMetrics // Optional metrics

	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxAttempts    int
}

// SubmitterConfig holds the configuration for the Submitter.
type SubmitterConfig struct {
	Logger *slog.Logger
	// ServerURL is the gateway base URL, e.g. http://monitor:8080.
	ServerURL string
	// Token, when set, is sent as a bearer token.
	Token   string
	Client  *http.Client
	Metrics *metrics.AgentMetrics

	// Retry overrides, used by tests. Zero values take the defaults.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// NewSubmitter creates a new Submitter instance.
func NewSubmitter(cfg *SubmitterConfig) (*Submitter, error) {
	if cfg == nil {
		return nil, errors.New("submitter config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("server URL cannot be empty")
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	s := &Submitter{
		logger:         cfg.Logger,
		client:         client,
		url:            cfg.ServerURL + "/tablet-metrics",
		token:          cfg.Token,
		metrics:        cfg.Metrics,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		maxAttempts:    cfg.MaxAttempts,
	}
	if s.initialBackoff <= 0 {
		s.initialBackoff = submitInitialBackoff
	}
	if s.maxBackoff <= 0 {
		s.maxBackoff = submitMaxBackoff
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = submitMaxAttempts
	}
	return s, nil
}

// Submit sends one submission, retrying transient failures with capped
// exponential backoff until the attempt budget is spent.
func (s *Submitter) Submit(ctx context.Context, sub *telemetry.Submission) (*telemetry.Receipt, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission: %w", err)
	}

	var start time.Time
	if s.metrics != nil {
		start = time.Now()
		defer func() {
			s.metrics.SubmitDuration.Observe(time.Since(start).Seconds())
		}()
	}

	backoff := s.initialBackoff
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		receipt, retryable, err := s.post(ctx, payload)
		if err == nil {
			if s.metrics != nil {
				s.metrics.SubmissionsTotal.WithLabelValues("success").Inc()
			}
			if attempt > 1 {
				s.logger.Info("submission accepted after retries",
					"device_id", sub.DeviceID,
					"attempt", attempt,
				)
			}
			return receipt, nil
		}
		lastErr = err
		if !retryable {
			if s.metrics != nil {
				s.metrics.SubmissionsTotal.WithLabelValues("error").Inc()
			}
			return nil, err
		}

		s.logger.Warn("submission failed, retrying",
			"device_id", sub.DeviceID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}

	if s.metrics != nil {
		s.metrics.SubmissionsTotal.WithLabelValues("error").Inc()
	}
	return nil, fmt.Errorf("%w: %w", ErrSubmitExhausted, lastErr)
}

// post performs one HTTP attempt. It reports whether a failure is worth
// retrying: network errors and 5xx are, validation rejections are not.
func (s *Submitter) post(ctx context.Context, payload []byte) (*telemetry.Receipt, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var receipt telemetry.Receipt
		if err := json.Unmarshal(body, &receipt); err != nil {
			return nil, false, fmt.Errorf("failed to decode receipt: %w", err)
		}
		return &receipt, false, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, false, fmt.Errorf("submission rejected: %s", body)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, fmt.Errorf("submission unauthorized: %s", body)
	default:
		return nil, true, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}
