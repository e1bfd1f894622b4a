package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ReviewInsights/internal/config"
	"ReviewInsights/internal/infrastructure/llm"
	"ReviewInsights/internal/infrastructure/ml"
)

func TestNewSummarizerByProvider(t *testing.T) {
	t.Parallel()

	s, err := newSummarizer(context.Background(), config.SummarizerConfig{Provider: config.ProviderChatGPT, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &llm.ChatGPTSummarizer{}, s)

	s, err = newSummarizer(context.Background(), config.SummarizerConfig{Provider: config.ProviderClaude, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &llm.ClaudeSummarizer{}, s)

	_, err = newSummarizer(context.Background(), config.SummarizerConfig{Provider: config.ProviderGemini})
	assert.Error(t, err, "gemini needs a key")

	_, err = newSummarizer(context.Background(), config.SummarizerConfig{Provider: "oracle"})
	assert.Error(t, err)
}

func TestNewModelLoaderFallsBackToLexicon(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &ml.Lexicon{}, newModelLoader(config.ClassifierConfig{}))
	assert.IsType(t, &ml.Client{}, newModelLoader(config.ClassifierConfig{InferenceURL: "http://localhost:8000"}))
}

func TestNewWiresPipeline(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Summarizer: config.SummarizerConfig{Provider: config.ProviderChatGPT, APIKey: "k", TopK: 10},
		Classifier: config.ClassifierConfig{BatchSize: 8},
		Extraction: config.ExtractionConfig{WorkerCommand: []string{"/bin/false"}},
	}

	application, err := New(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.NotNil(t, application.Pipeline())
	assert.NotNil(t, NewSource(cfg, zap.NewNop().Sugar()))
}
