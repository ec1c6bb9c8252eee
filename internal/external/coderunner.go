package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RunResult is the outcome of executing submitted source once against a
// single stdin.
type RunResult struct {
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// CodeRunner executes submitted source code in a sandbox. One call per
// test case.
type CodeRunner interface {
	Run(ctx context.Context, code, language, stdin string) (*RunResult, error)
}

// HTTPCodeRunner calls a sandboxed execution service over HTTP.
type HTTPCodeRunner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCodeRunner creates a runner with a bounded request timeout.
func NewHTTPCodeRunner(baseURL string, timeout time.Duration) *HTTPCodeRunner {
	return &HTTPCodeRunner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type runRequest struct {
	Source   string `json:"source"`
	Language string `json:"language"`
	Stdin    string `json:"stdin"`
}

// Run submits one execution and returns its captured output.
func (r *HTTPCodeRunner) Run(ctx context.Context, code, language, stdin string) (*RunResult, error) {
	body, err := json.Marshal(runRequest{Source: code, Language: language, Stdin: stdin})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/run", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrServiceTimeout
		}
		return nil, fmt.Errorf("run request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("execution service returned %d", resp.StatusCode)
	}

	var out RunResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode run result: %w", err)
	}
	return &out, nil
}
