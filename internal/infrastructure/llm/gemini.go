package llm

import (
	"context"

	"github.com/cockroachdb/errors"
	"google.golang.org/genai"

	"ReviewInsights/internal/config"
	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiSummarizer asks a Gemini model for a schema-constrained JSON reply.
type GeminiSummarizer struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

var _ ports.Summarizer = (*GeminiSummarizer)(nil)

// NewGeminiSummarizer initializes the genai client; it does not contact the API.
func NewGeminiSummarizer(ctx context.Context, cfg config.SummarizerConfig) (*GeminiSummarizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.WithHint(errors.New("gemini summarizer misconfigured: missing api key"),
			"set GENAI_API_KEY or summarizer.apiKey")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, errors.Wrap(err, "initialize genai client")
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiSummarizer{
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature:       genai.Ptr[float32](0.2),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    summarySchema(),
			SystemInstruction: genai.NewContentFromText(systemPrompt(cfg.SystemPrompt), genai.RoleUser),
		},
	}, nil
}

func (g *GeminiSummarizer) Summarize(ctx context.Context, text string) (domain.Summary, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), g.config)
	if err != nil {
		return domain.Summary{}, errors.Wrap(err, "gemini generation failed")
	}
	if resp == nil {
		return domain.Summary{}, contractError(errors.New("gemini returned no response"))
	}
	return decodeSummary(resp.Text())
}

func summarySchema() *genai.Schema {
	list := &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"pros":    list,
			"cons":    list,
			"summary": {Type: genai.TypeString},
		},
		Required: []string{"pros", "cons", "summary"},
	}
}
