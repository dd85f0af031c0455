package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/claimdesk/internal/logging"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/util"
	"github.com/ppiankov/claimdesk/internal/worker"
)

// backendSleepFunc is the sleep function used between retries (injectable for tests)
var backendSleepFunc = sleepContext

// sleepContext waits for d or until ctx ends, whichever comes first.
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

// Client calls the claims backend over HTTP
type Client struct {
	httpClient *http.Client
	baseURL    string
	paths      model.EndpointPaths
	userAgent  string
	maxBytes   int64
	maxRetries int
	limiter    *worker.Limiter
	log        *logging.Logger
}

// NewClient creates a backend client. limiter may be nil.
func NewClient(cfg model.BackendConfig, limiter *worker.Limiter, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = model.DefaultConfig().Backend.MaxBodyBytes
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		paths:      cfg.Paths,
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		maxRetries: cfg.MaxRetries,
		limiter:    limiter,
		log:        log.With("component", "backend"),
	}
}

// ExtractFacts sends the uploaded files for fact and conflict extraction.
func (c *Client) ExtractFacts(ctx context.Context, files []model.UploadedFile) (*model.ExtractionResult, error) {
	body, err := c.post(ctx, c.paths.ExtractFacts, map[string]interface{}{"files": files}, "facts")
	if err != nil {
		return nil, err
	}
	var res model.ExtractionResult
	if err := decode(c.paths.ExtractFacts, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AnalyzeLiabilitySignals derives liability signals from the facts.
func (c *Client) AnalyzeLiabilitySignals(ctx context.Context, facts []model.Fact) ([]model.Signal, error) {
	body, err := c.post(ctx, c.paths.AnalyzeSignals, map[string]interface{}{"facts": facts}, "signals")
	if err != nil {
		return nil, err
	}
	var res struct {
		Signals []model.Signal `json:"signals"`
	}
	if err := decode(c.paths.AnalyzeSignals, body, &res); err != nil {
		return nil, err
	}
	return res.Signals, nil
}

// GenerateTimeline reconstructs the incident timeline. Responses may carry
// the events under "timeline" or "events".
func (c *Client) GenerateTimeline(ctx context.Context, facts []model.Fact) (*model.Timeline, error) {
	body, err := c.post(ctx, c.paths.GenerateTimeline, map[string]interface{}{"facts": facts}, "timeline", "events")
	if err != nil {
		return nil, err
	}
	var res struct {
		Timeline []model.TimelineEvent `json:"timeline"`
		Events   []model.TimelineEvent `json:"events"`
	}
	if err := decode(c.paths.GenerateTimeline, body, &res); err != nil {
		return nil, err
	}
	events := res.Timeline
	if events == nil {
		events = res.Events
	}
	return &model.Timeline{Events: events}, nil
}

// GetLiabilityRecommendation asks for a liability split.
func (c *Client) GetLiabilityRecommendation(ctx context.Context, facts []model.Fact, signals []model.Signal) (*model.Recommendation, error) {
	req := map[string]interface{}{"facts": facts, "signals": signals}
	body, err := c.post(ctx, c.paths.Recommendation, req, "claimant_liability_percent")
	if err != nil {
		return nil, err
	}
	var res struct {
		model.Recommendation
		Reasoning  string   `json:"reasoning"`
		Confidence *float64 `json:"confidence"`
	}
	if err := decode(c.paths.Recommendation, body, &res); err != nil {
		return nil, err
	}
	rec := res.Recommendation
	if rec.Explanation == "" {
		rec.Explanation = res.Reasoning
	}
	rec.Confidence = 0.5
	if res.Confidence != nil {
		rec.Confidence = *res.Confidence
	}
	return &rec, nil
}

// GenerateClaimRationale drafts the written claim rationale.
func (c *Client) GenerateClaimRationale(ctx context.Context, req model.RationaleRequest) (*model.Rationale, error) {
	body, err := c.post(ctx, c.paths.ClaimRationale, req, "rationale")
	if err != nil {
		return nil, err
	}
	var res struct {
		Rationale model.Rationale `json:"rationale"`
	}
	if err := decode(c.paths.ClaimRationale, body, &res); err != nil {
		return nil, err
	}
	return &res.Rationale, nil
}

// CheckEvidenceCompleteness grades the uploaded files against the evidence a
// claim file needs.
func (c *Client) CheckEvidenceCompleteness(ctx context.Context, files []model.UploadedFile) (*model.EvidenceReport, error) {
	body, err := c.post(ctx, c.paths.EvidenceCompleteness, map[string]interface{}{"files": files}, "checks")
	if err != nil {
		return nil, err
	}
	var res model.EvidenceReport
	if err := decode(c.paths.EvidenceCompleteness, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GenerateEscalationPackage builds the supervisor escalation summary.
func (c *Client) GenerateEscalationPackage(ctx context.Context, req model.EscalationRequest) (*model.EscalationPackage, error) {
	body, err := c.post(ctx, c.paths.EscalationPackage, req, "escalation_package")
	if err != nil {
		return nil, err
	}
	var res struct {
		Package model.EscalationPackage `json:"escalation_package"`
	}
	if err := decode(c.paths.EscalationPackage, body, &res); err != nil {
		return nil, err
	}
	return &res.Package, nil
}

// post sends payload to endpoint, retrying transient failures with
// exponential backoff, and returns the body once it carries one of keys.
func (c *Client) post(ctx context.Context, endpoint string, payload interface{}, keys ...string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	attempts := c.maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		body, err := c.postOnce(ctx, endpoint, data)
		if err == nil {
			return body, requirePayload(endpoint, body, keys)
		}
		lastErr = err

		var callErr *ExternalCallError
		if !errors.As(err, &callErr) || !callErr.Retryable() || ctx.Err() != nil {
			return nil, err
		}
		if attempt < attempts-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn("retrying backend call", "endpoint", endpoint, "attempt", attempt+1, "backoff", backoff, "error", err)
			if err := backendSleepFunc(ctx, backoff); err != nil {
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}

func (c *Client) postOnce(ctx context.Context, endpoint string, data []byte) ([]byte, error) {
	target := c.baseURL + endpoint
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return nil, &ExternalCallError{Endpoint: endpoint, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExternalCallError{Endpoint: endpoint, Err: fmt.Errorf("post: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, &ExternalCallError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	c.log.Debug("backend call", "endpoint", endpoint, "status", resp.StatusCode, "bytes", len(body), "duration", time.Since(start))

	msg := serverMessage(body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ExternalCallError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Err:        fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status),
		}
	}
	if msg != "" {
		return nil, &ExternalCallError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: msg, Err: errors.New("error in response body")}
	}
	return body, nil
}

// serverMessage returns the "error" field of a JSON body, if any.
func serverMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(envelope.Error, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &obj); err == nil {
		return obj.Message
	}
	return ""
}

func requirePayload(endpoint string, body []byte, keys []string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return &ExternalCallError{Endpoint: endpoint, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if len(keys) == 0 {
		return nil
	}
	for _, k := range keys {
		if v, ok := fields[k]; ok && string(v) != "null" {
			return nil
		}
	}
	return &ExternalCallError{Endpoint: endpoint, Err: fmt.Errorf("response missing %q", keys[0])}
}

func decode(endpoint string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &ExternalCallError{Endpoint: endpoint, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}
