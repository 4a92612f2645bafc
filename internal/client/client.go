// Package client talks to the prediction and statistics services over HTTP.
package client

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/fraud-detection/internal/api"
	"github.com/JakeFAU/fraud-detection/internal/stats"
)

const (
	defaultTimeout = 5 * time.Second
	maxErrorBody   = 64 << 10
)

// Config points a client at one service.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// APIKey is sent as X-API-Key when non-empty.
	APIKey string
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

// StatusError is a non-2xx answer. Message carries the service's "error" field
// when the body had one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// ClientError reports whether err is a 4xx StatusError.
func ClientError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
		return se, true
	}
	return nil, false
}

type base struct {
	url    string
	apiKey string
	http   *http.Client
}

func newBase(cfg Config) (base, error) {
	u := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if u == "" {
		return base{}, errors.New("client: base url is required")
	}
	if cfg.Timeout < 0 {
		return base{}, errors.New("client: timeout must be >= 0")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return base{url: u, apiKey: cfg.APIKey, http: hc}, nil
}

func (b base) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.url+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(raw, &payload) == nil {
			se.Message = payload.Error
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Stats reads the statistics service.
type Stats struct {
	base
}

// NewStats validates cfg.
func NewStats(cfg Config) (*Stats, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Stats{base: b}, nil
}

// Summary fetches /api/summary.
func (c *Stats) Summary(ctx context.Context) (stats.Summary, error) {
	var out stats.Summary
	err := c.do(ctx, http.MethodGet, "/api/summary", nil, &out)
	return out, err
}

// FraudTrends fetches /api/fraud_trends.
func (c *Stats) FraudTrends(ctx context.Context) (map[string]int, error) {
	out := map[string]int{}
	err := c.do(ctx, http.MethodGet, "/api/fraud_trends", nil, &out)
	return out, err
}

// FraudBrowserSource fetches /api/fraud_browser_source.
func (c *Stats) FraudBrowserSource(ctx context.Context) (stats.BrowserSource, error) {
	var out stats.BrowserSource
	err := c.do(ctx, http.MethodGet, "/api/fraud_browser_source", nil, &out)
	return out, err
}

// Predict calls the prediction service.
type Predict struct {
	base
}

// NewPredict validates cfg.
func NewPredict(cfg Config) (*Predict, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Predict{base: b}, nil
}

// Predict posts payload to /predict. A 4xx answer comes back as *StatusError.
func (c *Predict) Predict(ctx context.Context, payload map[string]any) (api.PredictResponse, error) {
	var out api.PredictResponse
	err := c.do(ctx, http.MethodPost, "/predict", payload, &out)
	return out, err
}
