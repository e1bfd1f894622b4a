package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"ReviewInsights/internal/config"
	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
)

const (
	defaultChatGPTEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultChatGPTModel    = "gpt-4o-mini"
)

// ChatGPTSummarizer implements ports.Summarizer backed by OpenAI-compatible APIs.
type ChatGPTSummarizer struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.Summarizer = (*ChatGPTSummarizer)(nil)

// NewChatGPTSummarizer builds a client from configuration.
func NewChatGPTSummarizer(cfg config.SummarizerConfig) *ChatGPTSummarizer {
	s := &ChatGPTSummarizer{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: systemPrompt(cfg.SystemPrompt),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	if s.endpoint == "" {
		s.endpoint = defaultChatGPTEndpoint
	}
	if s.model == "" {
		s.model = defaultChatGPTModel
	}
	return s
}

// Summarize posts the review text as a user message and decodes the JSON reply.
func (c *ChatGPTSummarizer) Summarize(ctx context.Context, text string) (domain.Summary, error) {
	if c == nil {
		return domain.Summary{}, errors.New("chatgpt summarizer is nil")
	}
	if c.apiKey == "" {
		return domain.Summary{}, errors.New("chatgpt summarizer misconfigured: missing api key")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": c.systemPrompt},
			{"role": "user", "content": text},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     0.2,
	})
	if err != nil {
		return domain.Summary{}, errors.Wrap(err, "marshal chatgpt payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Summary{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Summary{}, errors.Wrap(err, "send chatgpt request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Summary{}, errors.Newf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return domain.Summary{}, errors.Wrap(err, "decode chatgpt response")
	}
	if len(completion.Choices) == 0 {
		return domain.Summary{}, contractError(errors.New("chatgpt returned no choices"))
	}

	return decodeSummary(completion.Choices[0].Message.Content)
}
