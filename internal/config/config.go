package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Provider   ProviderConfig   `yaml:"provider" mapstructure:"provider"`
	Classify   ClassifyConfig   `yaml:"classify" mapstructure:"classify"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Workflow   WorkflowConfig   `yaml:"workflow" mapstructure:"workflow"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ProviderConfig selects and guards the classification provider.
type ProviderConfig struct {
	Name             string  `yaml:"name" mapstructure:"name"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ClassifyConfig bounds the text sent to the provider.
type ClassifyConfig struct {
	MaxInputChars       int    `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	SentimentInputChars int    `yaml:"sentiment_input_chars" mapstructure:"sentiment_input_chars"`
	SummaryMaxChars     int    `yaml:"summary_max_chars" mapstructure:"summary_max_chars"`
	TaxonomyPath        string `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
}

// ScoringConfig holds the priority weight tables and tier ARR estimates.
type ScoringConfig struct {
	TierWeights      map[string]float64 `yaml:"tier_weights" mapstructure:"tier_weights"`
	SeverityWeights  map[string]float64 `yaml:"severity_weights" mapstructure:"severity_weights"`
	SentimentWeights map[string]float64 `yaml:"sentiment_weights" mapstructure:"sentiment_weights"`
	TierFactor       float64            `yaml:"tier_factor" mapstructure:"tier_factor"`
	SeverityFactor   float64            `yaml:"severity_factor" mapstructure:"severity_factor"`
	SentimentFactor  float64            `yaml:"sentiment_factor" mapstructure:"sentiment_factor"`
	AgeFactor        float64            `yaml:"age_factor" mapstructure:"age_factor"`
	AgeRate          float64            `yaml:"age_rate" mapstructure:"age_rate"`
	AgeCap           float64            `yaml:"age_cap" mapstructure:"age_cap"`
	ARR              map[string]int64   `yaml:"arr" mapstructure:"arr"`
}

// WorkflowConfig selects the execution engine for enrichment runs.
type WorkflowConfig struct {
	Engine                string `yaml:"engine" mapstructure:"engine"`
	Concurrency           int    `yaml:"concurrency" mapstructure:"concurrency"`
	QueueSize             int    `yaml:"queue_size" mapstructure:"queue_size"`
	RetryMaxAttempts      int    `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs int    `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int    `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

// TemporalConfig configures the Temporal-hosted engine.
type TemporalConfig struct {
	HostPort        string `yaml:"host_port" mapstructure:"host_port"`
	Namespace       string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue       string `yaml:"task_queue" mapstructure:"task_queue"`
	StepTimeoutSecs int    `yaml:"step_timeout_secs" mapstructure:"step_timeout_secs"`
	StepMaxAttempts int    `yaml:"step_max_attempts" mapstructure:"step_max_attempts"`
}

// ImportConfig configures the ingestion importer and its schedule.
type ImportConfig struct {
	Schedule string         `yaml:"schedule" mapstructure:"schedule"`
	Sheets   SheetsConfig   `yaml:"sheets" mapstructure:"sheets"`
	Sources  []SourceConfig `yaml:"sources" mapstructure:"sources"`
}

// SheetsConfig holds Google Sheets API credentials.
type SheetsConfig struct {
	APIKey        string `yaml:"api_key" mapstructure:"api_key"`
	SpreadsheetID string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	PageSize      int    `yaml:"page_size" mapstructure:"page_size"`
}

// SourceConfig describes one external feedback source.
type SourceConfig struct {
	Name       string    `yaml:"name" mapstructure:"name"`
	Kind       string    `yaml:"kind" mapstructure:"kind"`
	Channel    string    `yaml:"channel" mapstructure:"channel"`
	Sheet      string    `yaml:"sheet" mapstructure:"sheet"`
	Path       string    `yaml:"path" mapstructure:"path"`
	URL        string    `yaml:"url" mapstructure:"url"`
	DatabaseID string    `yaml:"database_id" mapstructure:"database_id"`
	SOQL       string    `yaml:"soql" mapstructure:"soql"`
	Columns    ColumnMap `yaml:"columns" mapstructure:"columns"`
	Fields     FieldMap  `yaml:"fields" mapstructure:"fields"`
}

// ColumnMap maps grid columns to feedback attributes. An empty map selects
// content 0, author 1, tier 2. Once any column is set, an unset author or
// tier is absent and an unset content is column 0.
type ColumnMap struct {
	Content *int `yaml:"content" mapstructure:"content"`
	Author  *int `yaml:"author" mapstructure:"author"`
	Tier    *int `yaml:"tier" mapstructure:"tier"`
}

// Col returns a column index for use in a ColumnMap.
func Col(i int) *int { return &i }

// FieldMap names the record fields (Notion properties, Salesforce fields)
// that hold each feedback attribute.
type FieldMap struct {
	Content string `yaml:"content" mapstructure:"content"`
	Author  string `yaml:"author" mapstructure:"author"`
	Tier    string `yaml:"tier" mapstructure:"tier"`
}

// NotionConfig holds Notion API credentials.
type NotionConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the background run health checker. The
// checker is disabled when CheckIntervalSecs is zero.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StalledAfterMins     int     `yaml:"stalled_after_mins" mapstructure:"stalled_after_mins"`
	CriticalThreshold    int     `yaml:"critical_threshold" mapstructure:"critical_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FEEDBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "feedback.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("provider.rate_limit", 5.0)
	v.SetDefault("provider.burst", 5)
	v.SetDefault("provider.timeout_secs", 30)
	v.SetDefault("provider.failure_threshold", 5)
	v.SetDefault("provider.reset_timeout_secs", 30)
	v.SetDefault("classify.max_input_chars", 500)
	v.SetDefault("classify.sentiment_input_chars", 512)
	v.SetDefault("classify.summary_max_chars", 120)
	v.SetDefault("scoring.tier_weights", map[string]float64{"enterprise": 10, "pro": 5, "free": 1})
	v.SetDefault("scoring.severity_weights", map[string]float64{"critical": 10, "high": 7, "medium": 4, "low": 1})
	v.SetDefault("scoring.sentiment_weights", map[string]float64{"negative": 10, "neutral": 5, "positive": 1})
	v.SetDefault("scoring.tier_factor", 0.4)
	v.SetDefault("scoring.severity_factor", 0.3)
	v.SetDefault("scoring.sentiment_factor", 0.2)
	v.SetDefault("scoring.age_factor", 0.1)
	v.SetDefault("scoring.age_rate", 0.5)
	v.SetDefault("scoring.age_cap", 5.0)
	v.SetDefault("scoring.arr", map[string]int64{"enterprise": 50000, "pro": 6000, "free": 0})
	v.SetDefault("workflow.engine", "local")
	v.SetDefault("workflow.concurrency", 4)
	v.SetDefault("workflow.queue_size", 256)
	v.SetDefault("workflow.retry_max_attempts", 3)
	v.SetDefault("workflow.retry_initial_backoff_ms", 500)
	v.SetDefault("workflow.retry_max_backoff_ms", 10000)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "feedback-enrichment")
	v.SetDefault("temporal.step_timeout_secs", 60)
	v.SetDefault("temporal.step_max_attempts", 5)
	v.SetDefault("import.schedule", "@every 1h")
	v.SetDefault("import.sheets.base_url", "https://sheets.googleapis.com/v4")
	v.SetDefault("import.sheets.page_size", 500)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.stalled_after_mins", 30)
	v.SetDefault("monitoring.critical_threshold", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts. Mode is one
// of "serve", "import", "resume" or "worker".
func (c *Config) Validate(mode string) error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required for postgres (FEEDBACK_STORE_DATABASE_URL)")
	}

	switch mode {
	case "serve", "import", "resume", "worker":
	default:
		return nil
	}

	switch c.Provider.Name {
	case "anthropic":
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic key is required (FEEDBACK_ANTHROPIC_KEY)")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			return eris.New("config: gemini key is required (FEEDBACK_GEMINI_KEY)")
		}
	default:
		return eris.Errorf("config: unsupported provider %q", c.Provider.Name)
	}

	switch c.Workflow.Engine {
	case "local":
	case "temporal":
		if c.Temporal.HostPort == "" || c.Temporal.TaskQueue == "" {
			return eris.New("config: temporal.host_port and temporal.task_queue are required for the temporal engine")
		}
	default:
		return eris.Errorf("config: unsupported workflow engine %q", c.Workflow.Engine)
	}
	if mode == "worker" && c.Workflow.Engine != "temporal" {
		return eris.New("config: worker requires workflow.engine=temporal")
	}
	if c.Workflow.Concurrency < 1 {
		return eris.New("config: workflow.concurrency must be >= 1")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		return eris.New("config: server.port must be > 0")
	}

	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
