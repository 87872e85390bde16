// Package sdk is a slim Go client for the guardrail HTTP API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Corpus names the two baseline corpora.
type Corpus string

const (
	CorpusAnomaly   Corpus = "anomaly"
	CorpusMalicious Corpus = "malicious"
)

// Client talks to a guardrail server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("guardrail: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Chat runs the full guardrail pipeline on text.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	err := c.do(ctx, http.MethodPost, "/chat", nil, req, &resp)
	return resp, err
}

// Detect evaluates text against one corpus without generating a response.
func (c *Client) Detect(ctx context.Context, corpus Corpus, req DetectRequest) (DetectResponse, error) {
	var resp DetectResponse
	err := c.do(ctx, http.MethodPost, "/"+string(corpus)+"/detect", nil, req, &resp)
	return resp, err
}

// BaselineAdd stores a single baseline entry.
func (c *Client) BaselineAdd(ctx context.Context, corpus Corpus, entry BaselineEntry) (BaselineMutation, error) {
	var resp BaselineMutation
	err := c.do(ctx, http.MethodPost, "/"+string(corpus)+"/baseline/add", nil, entry, &resp)
	return resp, err
}

// BaselineUpload stores a batch of baseline entries.
func (c *Client) BaselineUpload(ctx context.Context, corpus Corpus, entries []BaselineEntry) (BaselineMutation, error) {
	var resp BaselineMutation
	body := struct {
		Records []BaselineEntry `json:"records"`
	}{Records: entries}
	err := c.do(ctx, http.MethodPost, "/"+string(corpus)+"/baseline/upload", nil, body, &resp)
	return resp, err
}

// BaselineList returns entries in the given time range; nil bounds are open.
func (c *Client) BaselineList(ctx context.Context, corpus Corpus, before, after *time.Time) (BaselineList, error) {
	var resp BaselineList
	err := c.do(ctx, http.MethodGet, "/"+string(corpus)+"/baseline", rangeQuery(before, after), nil, &resp)
	return resp, err
}

// BaselineClear removes entries in the given time range; nil bounds on
// both sides wipe the corpus.
func (c *Client) BaselineClear(ctx context.Context, corpus Corpus, before, after *time.Time) (BaselineMutation, error) {
	var resp BaselineMutation
	err := c.do(ctx, http.MethodPost, "/"+string(corpus)+"/baseline/clear", rangeQuery(before, after), nil, &resp)
	return resp, err
}

// BaselineStats reports the corpus record count.
func (c *Client) BaselineStats(ctx context.Context, corpus Corpus) (BaselineStats, error) {
	var resp BaselineStats
	err := c.do(ctx, http.MethodGet, "/"+string(corpus)+"/baseline/stats", nil, nil, &resp)
	return resp, err
}

// Health returns the server health report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
	return resp, err
}

func rangeQuery(before, after *time.Time) url.Values {
	q := url.Values{}
	if before != nil {
		q.Set("before", before.Format(time.RFC3339))
	}
	if after != nil {
		q.Set("after", after.Format(time.RFC3339))
	}
	if len(q) == 0 {
		return nil
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Code = "unknown"
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
