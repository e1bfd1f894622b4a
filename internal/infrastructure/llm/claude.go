package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"

	"ReviewInsights/internal/config"
	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
)

const (
	defaultClaudeModel     = "claude-3-5-haiku-latest"
	defaultClaudeMaxTokens = 1024
)

// ClaudeSummarizer implements ports.Summarizer on the Anthropic Messages API.
type ClaudeSummarizer struct {
	client       anthropic.Client
	model        string
	systemPrompt string
}

var _ ports.Summarizer = (*ClaudeSummarizer)(nil)

// NewClaudeSummarizer builds a client from configuration.
func NewClaudeSummarizer(cfg config.SummarizerConfig) (*ClaudeSummarizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.WithHint(errors.New("claude summarizer misconfigured: missing api key"),
			"set ANTHROPIC_API_KEY or summarizer.apiKey")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	model := cfg.Model
	if model == "" {
		model = defaultClaudeModel
	}

	return &ClaudeSummarizer{
		client:       anthropic.NewClient(opts...),
		model:        model,
		systemPrompt: systemPrompt(cfg.SystemPrompt),
	}, nil
}

func (c *ClaudeSummarizer) Summarize(ctx context.Context, text string) (domain.Summary, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultClaudeMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: c.systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
		Temperature: anthropic.Float(0.2),
	})
	if err != nil {
		return domain.Summary{}, errors.Wrap(err, "claude api call failed")
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return decodeSummary(reply.String())
}
