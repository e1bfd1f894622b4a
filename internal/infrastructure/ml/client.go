package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
)

// Client talks to an external sentiment inference service. Every Load opens a
// server-side session holding the model weights; closing the session frees them.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.ModelLoader = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// Load opens an inference session.
func (c *Client) Load(ctx context.Context) (ports.Model, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/sessions", map[string]any{}, &resp); err != nil {
		return nil, errors.Wrap(err, "open inference session")
	}
	if resp.SessionID == "" {
		return nil, errors.New("inference service returned an empty session id")
	}
	return &session{client: c, id: resp.SessionID}, nil
}

type session struct {
	client *Client
	id     string
}

// Predict sends one batch of normalized texts and expects one label per text.
func (s *session) Predict(ctx context.Context, texts []string) ([]domain.Label, error) {
	var resp struct {
		Labels []domain.Label `json:"labels"`
	}
	path := "/sessions/" + url.PathEscape(s.id) + "/predict"
	if err := s.client.do(ctx, http.MethodPost, path, map[string]any{"texts": texts}, &resp); err != nil {
		return nil, errors.Wrap(err, "predict batch")
	}
	return resp.Labels, nil
}

// Close uses its own short deadline so a cancelled analysis still frees the session.
func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(s.id), nil, nil); err != nil {
		return errors.Wrap(err, "close inference session")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, v any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "marshal payload")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Newf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
