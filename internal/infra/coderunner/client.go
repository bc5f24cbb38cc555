// Package coderunner talks to the external sandboxed code-execution service.
// The quiz service never executes submitted code itself; it ships source and
// test cases out and gets per-case pass/fail back.
package coderunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/scoring"
)

type runRequest struct {
	Language  string            `json:"language"`
	Source    string            `json:"source"`
	TestCases []domain.TestCase `json:"testCases"`
}

type runResponse struct {
	Results []scoring.TestResult `json:"results"`
}

// Client implements scoring.CodeRunner over HTTP. A timeout or non-2xx
// answer surfaces as an error; the coordinator treats that as all tests
// failed so the quiz keeps moving.
type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Run(ctx context.Context, language, source string, cases []domain.TestCase) ([]scoring.TestResult, error) {
	body, err := json.Marshal(runRequest{Language: language, Source: source, TestCases: cases})
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("code runner returned status %d", resp.StatusCode)
	}

	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode run response: %w", err)
	}
	return out.Results, nil
}
