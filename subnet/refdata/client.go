package refdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

// ClientConfig configures the reference API client.
type ClientConfig struct {
	BaseURL            string
	APIKey             string
	CompaniesEndpoint  string        // e.g. /validator/companies
	ValidationEndpoint string        // e.g. /validator/<ticker>/types/<category>
	Timeout            time.Duration // per-request timeout
	CacheTTL           time.Duration // companies list cache, wall-clock
	MaxRetries         int
	RetryDelay         time.Duration
}

// Client talks to the external reference data service over HTTP. Companies
// list responses are cached for CacheTTL; validation POSTs are never cached.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	log        *logrus.Entry

	mu        sync.Mutex
	cached    []Company
	cachedAt  time.Time
}

// NewClient creates a reference API client.
func NewClient(cfg ClientConfig, log *logrus.Entry) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// backoffDelay computes the pause before retry attempt n (1-based), doubling
// each time and capped at 5s.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// ListCompanies fetches the company universe, serving a cached copy while it
// is younger than the configured TTL.
func (c *Client) ListCompanies(ctx context.Context) ([]Company, error) {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.cachedAt) < c.cfg.CacheTTL {
		out := c.cached
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	raw, err := c.doWithRetry(ctx, http.MethodGet, c.cfg.CompaniesEndpoint, nil)
	if err != nil {
		return nil, err
	}

	companies, err := decodeCompanies(raw)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = companies
	c.cachedAt = time.Now()
	c.mu.Unlock()

	c.log.WithField("companies", len(companies)).Info("refreshed company universe")
	return companies, nil
}

// Score posts a miner payload to the reference validation endpoint and
// returns the per-field verdict. Missing optional signals become neutral.
func (c *Client) Score(ctx context.Context, ticker string, category protocol.Category, payload map[string]any) (*ScoreReport, error) {
	endpoint := strings.NewReplacer(
		"<ticker>", ticker,
		"<category>", string(category),
	).Replace(c.cfg.ValidationEndpoint)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	raw, err := c.doWithRetry(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}

	return decodeScoreReport(raw)
}

// doWithRetry issues one HTTP request with bounded exponential backoff.
// Non-2xx statuses other than 429 are terminal; 429 and transport errors are
// retried.
func (c *Client) doWithRetry(ctx context.Context, method, endpoint string, body []byte) (json.RawMessage, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.cfg.RetryDelay, attempt)
			c.log.WithFields(logrus.Fields{"endpoint": endpoint, "attempt": attempt, "delay": delay}).
				Warn("retrying reference API request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		raw, retryable, err := c.do(ctx, method, endpoint, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("reference API %s %s failed after %d attempts: %w",
		method, endpoint, c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (json.RawMessage, bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, reader)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("rate limited by reference API")
	default:
		return nil, false, fmt.Errorf("reference API returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	if envelope.Result == nil {
		return nil, false, fmt.Errorf("missing result in reference API response")
	}

	return envelope.Result, false, nil
}

// decodeCompanies accepts either a bare array or {"companies": [...]}.
func decodeCompanies(raw json.RawMessage) ([]Company, error) {
	var list []Company
	if err := json.Unmarshal(raw, &list); err == nil {
		return normalizeCompanies(list), nil
	}

	var wrapped struct {
		Companies []Company `json:"companies"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected companies payload shape: %w", err)
	}
	return normalizeCompanies(wrapped.Companies), nil
}

func normalizeCompanies(list []Company) []Company {
	out := make([]Company, 0, len(list))
	for _, co := range list {
		co.Ticker = strings.ToUpper(strings.TrimSpace(co.Ticker))
		if co.Ticker == "" {
			continue
		}
		if co.Sector == "" {
			co.Sector = "Unknown"
		}
		if co.Exchange == "" {
			co.Exchange = "Unknown"
		}
		co.LastUpdated = time.Now().UTC()
		co.Source = "api"
		out = append(out, co)
	}
	return out
}

func decodeScoreReport(raw json.RawMessage) (*ScoreReport, error) {
	var body struct {
		FieldScores map[string]float64 `json:"fieldScores"`
		Freshness   *float64           `json:"freshnessScore"`
		Complete    *float64           `json:"completenessScore"`
		Summary     *struct {
			ValidationConfidence *float64 `json:"validationConfidence"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode score report: %w", err)
	}

	report := &ScoreReport{
		Valid:                len(body.FieldScores) > 0,
		FieldScores:          body.FieldScores,
		FreshnessScore:       NeutralSignal,
		CompletenessScore:    NeutralSignal,
		ValidationConfidence: NeutralSignal,
	}
	if body.Freshness != nil {
		report.FreshnessScore = *body.Freshness
	}
	if body.Complete != nil {
		report.CompletenessScore = *body.Complete
	}
	if body.Summary != nil && body.Summary.ValidationConfidence != nil {
		report.ValidationConfidence = *body.Summary.ValidationConfidence
	}
	return report, nil
}
