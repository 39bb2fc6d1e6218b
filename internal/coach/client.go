// Package coach talks to the external coaching backend that turns a session
// summary into short written advice.
package coach

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

	"github.com/ayusman/spotter/internal/session"
)

// DefaultTimeout bounds a single coaching request.
const DefaultTimeout = 30 * time.Second

// RoutePath is the backend endpoint, relative to the base URL.
const RoutePath = "/api/v1/route"

// ErrEmptyAdvice is returned when the backend answers without text.
var ErrEmptyAdvice = errors.New("coach returned no advice")

// Advice is the backend's answer.
type Advice struct {
	Text string `json:"text"`
}

type routeRequest struct {
	SessionData session.Summary `json:"session_data"`
	Instruction string          `json:"instruction"`
}

// Client sends session summaries to the coaching backend. Requests are made
// once; failures are returned to the caller without retrying.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL. A non-positive
// timeout selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Analyze posts the summary and returns the coaching text.
func (c *Client) Analyze(ctx context.Context, s session.Summary) (Advice, error) {
	body, err := json.Marshal(routeRequest{SessionData: s, Instruction: Prompt(s)})
	if err != nil {
		return Advice{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RoutePath, bytes.NewReader(body))
	if err != nil {
		return Advice{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Advice{}, fmt.Errorf("coach request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Advice{}, fmt.Errorf("coach returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var advice Advice
	if err := json.NewDecoder(resp.Body).Decode(&advice); err != nil {
		return Advice{}, fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(advice.Text) == "" {
		return Advice{}, ErrEmptyAdvice
	}

	return advice, nil
}
