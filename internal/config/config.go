package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the immutable configuration snapshot handed to each component
// constructor. Every recognized option lives here; nothing reads ambient
// globals.
type Config struct {
	// PDFRoot is the directory tree walked for candidate documents.
	PDFRoot string `mapstructure:"pdf_root"`

	// LogDir, when set, overrides the home directory as the location of the
	// outcome CSV log and the rotating application log.
	LogDir string `mapstructure:"log_dir"`

	Rules      Rules      `mapstructure:"rules"`
	Limits     Limits     `mapstructure:"limits"`
	Translator Translator `mapstructure:"translator"`
	Labeler    Labeler    `mapstructure:"labeler"`
	Cleanup    Cleanup    `mapstructure:"cleanup"`
}

// Rules toggles the individual exclusion rules. Priority order is fixed in
// the evaluator; these only switch rules on or off.
type Rules struct {
	SkipTranslatedByMetadata    bool     `mapstructure:"skip_translated_by_metadata"`
	SkipMaxFileSize             bool     `mapstructure:"skip_max_file_size"`
	SkipMaxPages                bool     `mapstructure:"skip_max_pages"`
	SkipFilenameFormatCheck     bool     `mapstructure:"skip_filename_format_check"`
	SkipFilenameContainsChinese bool     `mapstructure:"skip_filename_contains_chinese"`
	SkipContainsKeywords        bool     `mapstructure:"skip_contains_keywords"`
	SkipChineseByLabel          bool     `mapstructure:"skip_chinese_by_label"`
	Keywords                    []string `mapstructure:"keywords"`
}

// Limits bound which documents are eligible for processing.
type Limits struct {
	MaxPages     int   `mapstructure:"max_pages"`
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
	MaxFailures  int   `mapstructure:"max_failures"`
}

// Translator configures the external translator subprocess.
type Translator struct {
	Exe     string `mapstructure:"exe"`
	LangIn  string `mapstructure:"lang_in"`
	LangOut string `mapstructure:"lang_out"`

	// Service selects the backing translation service: "free", "pro" or
	// "auto". "pro" sends the API credentials below.
	Service string `mapstructure:"service"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`

	QPS            int           `mapstructure:"qps"`
	Timeout        time.Duration `mapstructure:"timeout"`
	GapPt          float64       `mapstructure:"gap_pt"`
	DefaultModelID string        `mapstructure:"default_model_id"`
}

// RecordedModel returns the model identifier written into translation
// records: the configured model for the pro service, the free tier's fixed
// model otherwise.
func (t Translator) RecordedModel() string {
	if t.Service == "pro" && t.Model != "" {
		return t.Model
	}
	return t.DefaultModelID
}

// Labeler configures the vision language-labeling collaborator.
type Labeler struct {
	// Client selects the implementation: "sdk" (OpenAI SDK) or "http"
	// (raw OpenAI-compatible endpoint).
	Client  string `mapstructure:"client"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`

	SamplePages    int           `mapstructure:"sample_pages"`
	DPI            int           `mapstructure:"dpi"`
	Detail         string        `mapstructure:"detail"`
	PerPageTimeout time.Duration `mapstructure:"per_page_timeout"`
	QPS            float64       `mapstructure:"qps"`
}

// Cleanup controls post-success artifact handling and console verbosity.
type Cleanup struct {
	DeleteMono           bool `mapstructure:"delete_mono"`
	DeleteAllExceptFinal bool `mapstructure:"delete_all_except_final"`
	SuppressSkipped      bool `mapstructure:"suppress_skipped"`
}

// Validate checks values that would otherwise fail deep inside a batch run.
func (c *Config) Validate() error {
	if c.Translator.Exe == "" {
		return errors.New("translator.exe is required")
	}
	if c.Limits.MaxFailures <= 0 {
		return errors.New("limits.max_failures must be positive")
	}
	switch c.Labeler.Detail {
	case "low", "high", "auto":
	default:
		return fmt.Errorf("labeler.detail must be low, high or auto, got %q", c.Labeler.Detail)
	}
	switch c.Labeler.Client {
	case "sdk", "http":
	default:
		return fmt.Errorf("labeler.client must be sdk or http, got %q", c.Labeler.Client)
	}
	return nil
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("pdf_root", defaults.PDFRoot)
	viper.SetDefault("log_dir", defaults.LogDir)
	viper.SetDefault("rules", defaults.Rules)
	viper.SetDefault("limits", defaults.Limits)
	viper.SetDefault("translator", defaults.Translator)
	viper.SetDefault("labeler", defaults.Labeler)
	viper.SetDefault("cleanup", defaults.Cleanup)

	// Environment variables with PDFDUO_ prefix
	viper.SetEnvPrefix("PDFDUO")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.pdfduo")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// API keys support ${ENV_VAR} references.
	cfg.Translator.APIKey = ResolveEnvVars(cfg.Translator.APIKey)
	cfg.Labeler.APIKey = ResolveEnvVars(cfg.Labeler.APIKey)

	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}
