package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// PathEnv names the variable holding the config file location; the worker child inherits it.
	PathEnv = "REVIEW_INSIGHTS_CONFIG"
	// LogLevelEnv overrides logging.level.
	LogLevelEnv = "LOG_LEVEL"

	listenAddrEnv       = "LISTEN_ADDR"
	inferenceURLEnv     = "INFERENCE_URL"
	inferenceAPIKeyEnv  = "INFERENCE_API_KEY"
	summarizerEnv       = "SUMMARIZER_PROVIDER"
	genaiAPIKeyEnv      = "GENAI_API_KEY"
	chatGPTAPIKeyEnv    = "CHATGPT_API_KEY"
	anthropicAPIKeyEnv  = "ANTHROPIC_API_KEY"
	defaultShutdown     = "10s"
	defaultWorkerLimit  = "3m"
	defaultPageDelay    = "1s"
	defaultFetchTimeout = "30s"
)

// Summarizer providers.
const (
	ProviderGemini  = "gemini"
	ProviderChatGPT = "chatgpt"
	ProviderClaude  = "claude"
)

// Config holds high-level settings required across the application.
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Extraction ExtractionConfig `yaml:"extraction" toml:"extraction"`
	Sites      []SiteConfig     `yaml:"sites" toml:"sites" validate:"min=1,dive"`
	Classifier ClassifierConfig `yaml:"classifier" toml:"classifier"`
	Summarizer SummarizerConfig `yaml:"summarizer" toml:"summarizer"`
}

// ServerConfig describes the streaming HTTP front door.
type ServerConfig struct {
	Address         string        `yaml:"address" toml:"address" validate:"required"`
	ShutdownTimeout string        `yaml:"shutdownTimeout" toml:"shutdownTimeout"`
	shutdown        time.Duration `yaml:"-" toml:"-"`
}

// Shutdown is the grace period for in-flight streams when the server stops.
func (s ServerConfig) Shutdown() time.Duration {
	if s.shutdown > 0 {
		return s.shutdown
	}
	d, _ := time.ParseDuration(defaultShutdown)
	return d
}

// LoggingConfig selects the log level (error, warn, info, debug).
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// ExtractionConfig controls the isolated scraping worker.
type ExtractionConfig struct {
	Timeout        string   `yaml:"timeout" toml:"timeout"`
	MemoryLimitMB  int      `yaml:"memoryLimitMB" toml:"memoryLimitMB" validate:"gte=0"`
	WorkerCommand  []string `yaml:"workerCommand" toml:"workerCommand"`
	Render         bool     `yaml:"render" toml:"render"`
	UserAgent      string   `yaml:"userAgent" toml:"userAgent"`
	MaxPages       int      `yaml:"maxPages" toml:"maxPages" validate:"gte=1"`
	PageDelay      string   `yaml:"pageDelay" toml:"pageDelay"`
	RequestTimeout string   `yaml:"requestTimeout" toml:"requestTimeout"`

	timeout        time.Duration
	pageDelay      time.Duration
	requestTimeout time.Duration
}

// WorkerTimeout bounds the lifetime of one extraction worker.
func (e ExtractionConfig) WorkerTimeout() time.Duration { return e.timeout }

// Delay is the minimum spacing between two page requests of one crawl.
func (e ExtractionConfig) Delay() time.Duration { return e.pageDelay }

// FetchTimeout bounds a single page request.
func (e ExtractionConfig) FetchTimeout() time.Duration { return e.requestTimeout }

// SiteConfig maps locator hosts to a scanner strategy.
type SiteConfig struct {
	Name    string            `yaml:"name" toml:"name" validate:"required"`
	Scanner string            `yaml:"scanner" toml:"scanner" validate:"required"`
	Hosts   []string          `yaml:"hosts" toml:"hosts"`
	Options map[string]string `yaml:"options" toml:"options"`
}

// ClassifierConfig describes the sentiment inference service.
// An empty InferenceURL selects the built-in lexicon model.
type ClassifierConfig struct {
	InferenceURL string `yaml:"inferenceUrl" toml:"inferenceUrl" validate:"omitempty,url"`
	APIKey       string `yaml:"apiKey" toml:"apiKey"`
	BatchSize    int    `yaml:"batchSize" toml:"batchSize" validate:"gte=1"`
}

// SummarizerConfig defines how to contact the pros/cons summarization model.
// An empty Model lets each provider pick its own default.
type SummarizerConfig struct {
	Provider     string `yaml:"provider" toml:"provider" validate:"oneof=gemini chatgpt claude"`
	Model        string `yaml:"model" toml:"model"`
	APIKey       string `yaml:"apiKey" toml:"apiKey"`
	Endpoint     string `yaml:"endpoint" toml:"endpoint" validate:"omitempty,url"`
	TopK         int    `yaml:"topK" toml:"topK" validate:"gte=1"`
	SystemPrompt string `yaml:"systemPrompt" toml:"systemPrompt"`
}

// Load reads YAML or TOML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(PathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := decode(path, raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindDurations()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

// Validate checks the merged configuration before any component is built.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.WithHint(errors.Wrap(err, "invalid configuration"),
			"check the file named by "+PathEnv+" and the environment overrides")
	}
	return nil
}

func decode(path string, raw []byte, into *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(raw, into)
	default:
		return yaml.Unmarshal(raw, into)
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(LogLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(listenAddrEnv); v != "" {
		c.Server.Address = v
	}

	if v := os.Getenv(inferenceURLEnv); v != "" {
		c.Classifier.InferenceURL = v
	}

	if v := os.Getenv(inferenceAPIKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}

	if v := os.Getenv(summarizerEnv); v != "" {
		c.Summarizer.Provider = strings.ToLower(v)
	}

	// The key variable is chosen by provider; GENAI_API_KEY matches the historic deployment.
	var keyEnv string
	switch c.Summarizer.Provider {
	case ProviderGemini:
		keyEnv = genaiAPIKeyEnv
	case ProviderChatGPT:
		keyEnv = chatGPTAPIKeyEnv
	case ProviderClaude:
		keyEnv = anthropicAPIKeyEnv
	}
	if v := os.Getenv(keyEnv); keyEnv != "" && v != "" {
		c.Summarizer.APIKey = v
	}
}

func (c *Config) bindDurations() {
	c.Server.shutdown = parseDuration("server.shutdownTimeout", c.Server.ShutdownTimeout, defaultShutdown)
	c.Extraction.timeout = parseDuration("extraction.timeout", c.Extraction.Timeout, defaultWorkerLimit)
	c.Extraction.pageDelay = parseDuration("extraction.pageDelay", c.Extraction.PageDelay, defaultPageDelay)
	c.Extraction.requestTimeout = parseDuration("extraction.requestTimeout", c.Extraction.RequestTimeout, defaultFetchTimeout)
}

func parseDuration(field, value, fallback string) time.Duration {
	if value == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		log.Printf("config: invalid duration %s=%q, reverting to %s", field, value, fallback)
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func mergeConfig(base, override Config) Config {
	if override.Server.Address != "" {
		base.Server.Address = override.Server.Address
	}
	if override.Server.ShutdownTimeout != "" {
		base.Server.ShutdownTimeout = override.Server.ShutdownTimeout
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Extraction.Timeout != "" {
		base.Extraction.Timeout = override.Extraction.Timeout
	}
	if override.Extraction.MemoryLimitMB != 0 {
		base.Extraction.MemoryLimitMB = override.Extraction.MemoryLimitMB
	}
	if len(override.Extraction.WorkerCommand) > 0 {
		base.Extraction.WorkerCommand = override.Extraction.WorkerCommand
	}
	if override.Extraction.Render {
		base.Extraction.Render = true
	}
	if override.Extraction.UserAgent != "" {
		base.Extraction.UserAgent = override.Extraction.UserAgent
	}
	if override.Extraction.MaxPages != 0 {
		base.Extraction.MaxPages = override.Extraction.MaxPages
	}
	if override.Extraction.PageDelay != "" {
		base.Extraction.PageDelay = override.Extraction.PageDelay
	}
	if override.Extraction.RequestTimeout != "" {
		base.Extraction.RequestTimeout = override.Extraction.RequestTimeout
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	if override.Classifier.InferenceURL != "" {
		base.Classifier.InferenceURL = override.Classifier.InferenceURL
	}
	if override.Classifier.APIKey != "" {
		base.Classifier.APIKey = override.Classifier.APIKey
	}
	if override.Classifier.BatchSize != 0 {
		base.Classifier.BatchSize = override.Classifier.BatchSize
	}

	if override.Summarizer.Provider != "" {
		base.Summarizer.Provider = strings.ToLower(override.Summarizer.Provider)
	}
	if override.Summarizer.Model != "" {
		base.Summarizer.Model = override.Summarizer.Model
	}
	if override.Summarizer.APIKey != "" {
		base.Summarizer.APIKey = override.Summarizer.APIKey
	}
	if override.Summarizer.Endpoint != "" {
		base.Summarizer.Endpoint = override.Summarizer.Endpoint
	}
	if override.Summarizer.TopK != 0 {
		base.Summarizer.TopK = override.Summarizer.TopK
	}
	if override.Summarizer.SystemPrompt != "" {
		base.Summarizer.SystemPrompt = override.Summarizer.SystemPrompt
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Server:  ServerConfig{Address: ":5000", ShutdownTimeout: defaultShutdown},
		Logging: LoggingConfig{Level: "info"},
		Extraction: ExtractionConfig{
			Timeout:        defaultWorkerLimit,
			MemoryLimitMB:  1024,
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxPages:       5,
			PageDelay:      defaultPageDelay,
			RequestTimeout: defaultFetchTimeout,
		},
		Sites: []SiteConfig{
			{
				Name:    "amazon",
				Scanner: "amazon-reviews",
				Hosts:   []string{"amazon.com", "www.amazon.com", "amazon.co.uk", "www.amazon.co.uk"},
			},
		},
		Classifier: ClassifierConfig{BatchSize: 32},
		Summarizer: SummarizerConfig{
			Provider: ProviderGemini,
			TopK:     10,
		},
	}
}
