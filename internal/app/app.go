package app

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"ReviewInsights/internal/classifier"
	"ReviewInsights/internal/config"
	"ReviewInsights/internal/infrastructure/llm"
	"ReviewInsights/internal/infrastructure/ml"
	"ReviewInsights/internal/infrastructure/parser"
	"ReviewInsights/internal/insight"
	"ReviewInsights/internal/logging"
	"ReviewInsights/internal/ports"
	"ReviewInsights/internal/scanner"
	"ReviewInsights/internal/server"
	"ReviewInsights/internal/usecase"
	"ReviewInsights/internal/worker"
)

// WorkerCommand is the hidden subcommand that runs one extraction in a child process.
const WorkerCommand = "extract-worker"

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *zap.SugaredLogger
	pipeline *usecase.Pipeline
}

// New builds the analysis pipeline: a worker boundary for extraction, the configured
// classifier backend and the configured summarizer.
func New(ctx context.Context, cfg config.Config, baseLogger *zap.SugaredLogger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	command := cfg.Extraction.WorkerCommand
	if len(command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "resolve worker executable")
		}
		command = []string{exe, WorkerCommand}
	}

	extractor := worker.NewBoundary(worker.Config{
		Command:     command,
		Timeout:     cfg.Extraction.WorkerTimeout(),
		MemoryLimit: uint64(cfg.Extraction.MemoryLimitMB) << 20,
	}, baseLogger.With("component", "worker"))

	summarizer, err := newSummarizer(ctx, cfg.Summarizer)
	if err != nil {
		return nil, err
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Extractor:  extractor,
		Classifier: classifier.New(newModelLoader(cfg.Classifier), baseLogger.With("component", "classifier")),
		Aggregator: insight.NewAggregator(summarizer, cfg.Summarizer.TopK, baseLogger.With("component", "aggregator")),
		BatchSize:  cfg.Classifier.BatchSize,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	return &Application{cfg: cfg, logger: baseLogger, pipeline: pipeline}, nil
}

// Pipeline exposes the wired pipeline for one-shot CLI runs.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Serve runs the streaming HTTP front door until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	srv := server.New(a.cfg.Server.Address, a.pipeline, a.logger.With("component", "server"))
	return srv.Serve(ctx, a.cfg.Server.Shutdown())
}

// NewSource builds the scraping strategies that run inside the extraction worker.
func NewSource(cfg config.Config, log *zap.SugaredLogger) ports.ReviewSource {
	var fetcher parser.Fetcher
	if cfg.Extraction.Render {
		fetcher = parser.NewBrowserFetcher(cfg.Extraction.UserAgent, cfg.Extraction.FetchTimeout())
	} else {
		fetcher = parser.NewHTTPFetcher(&http.Client{Timeout: cfg.Extraction.FetchTimeout()}, cfg.Extraction.UserAgent)
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewReviewScanner(fetcher, cfg.Extraction.Delay(), log.With("component", "scanner.reviews")))

	return parser.NewStrategySource(registry, cfg.Sites, cfg.Extraction.MaxPages, log.With("component", "source"))
}

// RunWorker is the body of the extraction child: scrape locator and write the envelope to w.
func RunWorker(ctx context.Context, cfg config.Config, locator string, w io.Writer, log *zap.SugaredLogger) error {
	return worker.Serve(ctx, NewSource(cfg, log), locator, w)
}

func newModelLoader(cfg config.ClassifierConfig) ports.ModelLoader {
	if cfg.InferenceURL == "" {
		return ml.NewLexicon()
	}
	return ml.NewClient(cfg.InferenceURL, cfg.APIKey)
}

func newSummarizer(ctx context.Context, cfg config.SummarizerConfig) (ports.Summarizer, error) {
	switch cfg.Provider {
	case config.ProviderChatGPT:
		return llm.NewChatGPTSummarizer(cfg), nil
	case config.ProviderClaude:
		return llm.NewClaudeSummarizer(cfg)
	case config.ProviderGemini, "":
		return llm.NewGeminiSummarizer(ctx, cfg)
	default:
		return nil, errors.Newf("unknown summarizer provider %q", cfg.Provider)
	}
}
