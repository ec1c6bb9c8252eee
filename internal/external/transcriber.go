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

// ErrServiceTimeout marks a collaborator call that exceeded its deadline.
// The grading engine wraps it into a per-question grading error; it is
// never surfaced as a top-level submit failure.
var ErrServiceTimeout = errors.New("external service timeout")

// Transcriber converts a stored audio asset into text. Implementations
// may fail transiently; callers must treat failures as per-question
// grading errors, not fatal conditions.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// HTTPTranscriber calls a transcription service over HTTP. The request
// carries the resolved audio URL; the service fetches and decodes it.
type HTTPTranscriber struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTranscriber creates a transcriber with a bounded request timeout.
func NewHTTPTranscriber(baseURL string, timeout time.Duration) *HTTPTranscriber {
	return &HTTPTranscriber{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type transcribeRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe posts the audio URL and returns the transcript text.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(transcribeRequest{AudioURL: audioURL})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/transcribe", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrServiceTimeout
		}
		return "", fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe service returned %d", resp.StatusCode)
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	return out.Text, nil
}
