// Package analyzer is an HTTP client for an external PII analyzer
// service (Presidio-style): POST /analyze with a text blob, get entity
// spans with scores back. It satisfies pii.Recognizer, so the scanner's
// fail-closed wrapper handles every failure mode — this client only has
// to surface errors honestly.
package analyzer

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

	"go.uber.org/zap"

	"cachegate/internal/pii"
	"cachegate/pkg/logging"
)

const maxTextSize = 512 * 1024 // 512KB per scan payload

type Config struct {
	// BaseURL of the analyzer service. Required.
	BaseURL string
	// APIKey is sent as a bearer token when set.
	APIKey string

	Timeout     time.Duration // per-request timeout (default: 2s)
	MaxRetries  int           // retry attempts on transient failures (default: 2)
	BaseBackoff time.Duration // initial backoff (default: 50ms)

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("analyzer: BaseURL is required")
	}
	return nil
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 50 * time.Millisecond
	}
	return cfg
}

// Client calls the remote analyzer. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
		}
	}

	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeEntity struct {
	Type  string  `json:"entity_type"`
	Score float64 `json:"score"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// canonical analyzer entity types; anything else passes through as a
// lower-cased category so a new entity type still blocks caching.
var entityCategories = map[string]pii.Category{
	"PERSON":        pii.CategoryPersonName,
	"LOCATION":      pii.CategoryAddress,
	"ADDRESS":       pii.CategoryAddress,
	"EMAIL_ADDRESS": pii.CategoryEmail,
	"PHONE_NUMBER":  pii.CategoryPhone,
	"CREDIT_CARD":   pii.CategoryCreditCard,
	"US_SSN":        pii.CategorySSN,
	"IP_ADDRESS":    pii.CategoryIPAddress,
}

// Recognize implements pii.Recognizer against the remote service.
func (c *Client) Recognize(parentCtx context.Context, text string) ([]pii.Finding, error) {
	if len(text) > maxTextSize {
		return nil, fmt.Errorf("analyzer: text too large (%d bytes, max %d)", len(text), maxTextSize)
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.Timeout)
	defer cancel()

	bodyBytes, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("analyzer: marshal request: %w", err)
	}

	url := c.cfg.BaseURL + "/analyze"

	// doOnce builds a fresh *http.Request for each attempt
	doOnce := func(ctx context.Context, body []byte) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("analyzer: build HTTP request: %w", err)
		}
		if c.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(httpReq)
	}

	start := time.Now()
	resp, err := c.doWithRetry(ctx, bodyBytes, doOnce)
	if err != nil {
		logging.L(parentCtx).Warn("analyzer request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("analyzer: upstream %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var entities []analyzeEntity
	if err := json.NewDecoder(resp.Body).Decode(&entities); err != nil {
		return nil, fmt.Errorf("analyzer: decode response: %w", err)
	}

	findings := make([]pii.Finding, 0, len(entities))
	for _, e := range entities {
		category, ok := entityCategories[e.Type]
		if !ok {
			category = pii.Category(strings.ToLower(e.Type))
		}
		findings = append(findings, pii.Finding{
			Start:      e.Start,
			End:        e.End,
			Category:   category,
			Confidence: e.Score,
			Source:     pii.SourceStatistical,
		})
	}

	logging.L(parentCtx).Debug("analyzer scan completed",
		zap.Int("entities", len(findings)),
		zap.Duration("duration", time.Since(start)),
	)

	return findings, nil
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
