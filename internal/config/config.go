// Package config provides configuration management for the adland ingest agent.
// Configuration is loaded from an optional YAML file and environment variables,
// with environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort       = 8790
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultDataDir    = ".adland"
	DefaultCollection = "superbowl"

	DefaultFeedURL     = "https://adland.tv/rss.xml"
	DefaultFeedBaseURL = "https://adland.tv/"
	DefaultAPIBaseURL  = "https://api.twelvelabs.io/v1.3"
	DefaultYtDlpPath   = "yt-dlp"

	DefaultAcquireTimeout  = 120 * time.Second
	DefaultPollInterval    = 5 * time.Second
	DefaultIndexTimeout    = 30 * time.Minute
	DefaultAnalyzeTimeout  = 120 * time.Second
	DefaultFeedTimeout     = 30 * time.Second
	DefaultAnalyzePrompt   = "Analyze this advertisement and generate structured metadata tags."
	DefaultAnalyzeTemp     = 0.2
	DefaultMaxPollAttempts = 0

	// Environment variable names
	EnvConfigPath     = "ADLAND_CONFIG"
	EnvPort           = "ADLAND_PORT"
	EnvLogLevel       = "ADLAND_LOG_LEVEL"
	EnvLogFormat      = "ADLAND_LOG_FORMAT"
	EnvDataDir        = "ADLAND_DATA_DIR"
	EnvCollection     = "ADLAND_COLLECTION"
	EnvFeedURL        = "ADLAND_FEED_URL"
	EnvFeedBaseURL    = "ADLAND_FEED_BASE_URL"
	EnvYtDlpPath      = "ADLAND_YTDLP_PATH"
	EnvAcquireTimeout = "ADLAND_ACQUIRE_TIMEOUT"
	EnvPollInterval   = "ADLAND_POLL_INTERVAL"
	EnvIndexTimeout   = "ADLAND_INDEX_TIMEOUT"
	EnvAPIToken       = "ADLAND_API_TOKEN"
	EnvSubmitByURL    = "ADLAND_SUBMIT_BY_URL"

	// Remote service environment variable names
	EnvAPIKey        = "TWELVELABS_API_KEY"
	EnvIndexID       = "TWELVELABS_INDEX_ID"
	EnvLegacyIndexID = "NEXT_PUBLIC_INDEX_ID"
	EnvAPIBaseURL    = "TWELVELABS_BASE_URL"

	// Database filename
	DBFilename = "adland.db"
)

// TagRule is the configured form of a tag inference rule.
type TagRule struct {
	Label         string `yaml:"label"`
	TitlePattern  string `yaml:"title_pattern"`
	MarkerPattern string `yaml:"marker_pattern"`
}

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	ProgressDir() string
	DownloadDir() string
	Collection() string

	FeedURL() string
	FeedBaseURL() string
	FeedTimeout() time.Duration
	Stopwords() []string
	TagRules() []TagRule

	APIKey() string
	IndexID() string
	APIBaseURL() string
	APIToken() string

	YtDlpPath() string
	AcquireTimeout() time.Duration
	PollInterval() time.Duration
	IndexTimeout() time.Duration
	MaxPollAttempts() int
	SubmitByURL() bool

	AnalyzePrompt() string
	AnalyzeTemperature() float64
	AnalyzeTimeout() time.Duration
	AnalyzeIncludeBrand() bool
}

// EnvConfig reads configuration from a YAML file and environment variables
type EnvConfig struct {
	port       int
	logLevel   string
	logFormat  string
	dataDir    string
	collection string

	feedURL     string
	feedBaseURL string
	feedTimeout time.Duration
	stopwords   []string
	tagRules    []TagRule

	apiKey     string
	indexID    string
	apiBaseURL string
	apiToken   string

	ytDlpPath       string
	acquireTimeout  time.Duration
	pollInterval    time.Duration
	indexTimeout    time.Duration
	maxPollAttempts int
	submitByURL     bool

	analyzePrompt       string
	analyzeTemperature  float64
	analyzeTimeout      time.Duration
	analyzeIncludeBrand bool
}

// fileConfig mirrors the YAML layout of the optional config file.
type fileConfig struct {
	Port       int    `yaml:"port"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	DataDir    string `yaml:"data_dir"`
	Collection string `yaml:"collection"`

	Feed struct {
		URL       string   `yaml:"url"`
		BaseURL   string   `yaml:"base_url"`
		Timeout   string   `yaml:"timeout"`
		Stopwords []string `yaml:"stopwords"`
	} `yaml:"feed"`

	Index struct {
		ID              string `yaml:"id"`
		BaseURL         string `yaml:"base_url"`
		PollInterval    string `yaml:"poll_interval"`
		Timeout         string `yaml:"timeout"`
		MaxPollAttempts int    `yaml:"max_poll_attempts"`
		SubmitByURL     *bool  `yaml:"submit_by_url"`
	} `yaml:"index"`

	Acquire struct {
		YtDlpPath string `yaml:"ytdlp_path"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"acquire"`

	Analysis struct {
		Prompt       string   `yaml:"prompt"`
		Temperature  *float64 `yaml:"temperature"`
		Timeout      string   `yaml:"timeout"`
		IncludeBrand *bool    `yaml:"include_brand"`
	} `yaml:"analysis"`

	TagRules []TagRule `yaml:"tag_rules"`
}

// New creates a new EnvConfig with defaults, the optional config file named by
// ADLAND_CONFIG and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:                DefaultPort,
		logLevel:            DefaultLogLevel,
		logFormat:           DefaultLogFormat,
		dataDir:             DefaultDataDir,
		collection:          DefaultCollection,
		feedURL:             DefaultFeedURL,
		feedBaseURL:         DefaultFeedBaseURL,
		feedTimeout:         DefaultFeedTimeout,
		stopwords:           []string{"commercials", "the", "and"},
		apiBaseURL:          DefaultAPIBaseURL,
		ytDlpPath:           DefaultYtDlpPath,
		acquireTimeout:      DefaultAcquireTimeout,
		pollInterval:        DefaultPollInterval,
		indexTimeout:        DefaultIndexTimeout,
		maxPollAttempts:     DefaultMaxPollAttempts,
		submitByURL:         true,
		analyzePrompt:       DefaultAnalyzePrompt,
		analyzeTemperature:  DefaultAnalyzeTemp,
		analyzeTimeout:      DefaultAnalyzeTimeout,
		analyzeIncludeBrand: true,
	}

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		c.port = fc.Port
	}
	setString(&c.logLevel, fc.LogLevel)
	setString(&c.logFormat, fc.LogFormat)
	setString(&c.dataDir, fc.DataDir)
	setString(&c.collection, fc.Collection)

	setString(&c.feedURL, fc.Feed.URL)
	setString(&c.feedBaseURL, fc.Feed.BaseURL)
	if len(fc.Feed.Stopwords) > 0 {
		c.stopwords = fc.Feed.Stopwords
	}

	setString(&c.indexID, fc.Index.ID)
	setString(&c.apiBaseURL, fc.Index.BaseURL)
	if fc.Index.MaxPollAttempts > 0 {
		c.maxPollAttempts = fc.Index.MaxPollAttempts
	}

	if fc.Index.SubmitByURL != nil {
		c.submitByURL = *fc.Index.SubmitByURL
	}

	setString(&c.ytDlpPath, fc.Acquire.YtDlpPath)

	setString(&c.analyzePrompt, fc.Analysis.Prompt)
	if fc.Analysis.Temperature != nil {
		c.analyzeTemperature = *fc.Analysis.Temperature
	}
	if fc.Analysis.IncludeBrand != nil {
		c.analyzeIncludeBrand = *fc.Analysis.IncludeBrand
	}

	if len(fc.TagRules) > 0 {
		c.tagRules = fc.TagRules
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"feed.timeout", fc.Feed.Timeout, &c.feedTimeout},
		{"index.poll_interval", fc.Index.PollInterval, &c.pollInterval},
		{"index.timeout", fc.Index.Timeout, &c.indexTimeout},
		{"acquire.timeout", fc.Acquire.Timeout, &c.acquireTimeout},
		{"analysis.timeout", fc.Analysis.Timeout, &c.analyzeTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", d.name, path, err)
		}
		*d.dst = v
	}

	return nil
}

func (c *EnvConfig) applyEnvOverrides() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.logFormat, os.Getenv(EnvLogFormat))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.collection, os.Getenv(EnvCollection))
	setString(&c.feedURL, os.Getenv(EnvFeedURL))
	setString(&c.feedBaseURL, os.Getenv(EnvFeedBaseURL))
	setString(&c.ytDlpPath, os.Getenv(EnvYtDlpPath))
	setString(&c.apiToken, os.Getenv(EnvAPIToken))

	setString(&c.apiKey, os.Getenv(EnvAPIKey))
	setString(&c.apiBaseURL, os.Getenv(EnvAPIBaseURL))

	// The web app names the index NEXT_PUBLIC_INDEX_ID; accept it as a fallback
	if id := os.Getenv(EnvIndexID); id != "" {
		c.indexID = id
	} else if id := os.Getenv(EnvLegacyIndexID); id != "" && c.indexID == "" {
		c.indexID = id
	}

	if v := os.Getenv(EnvSubmitByURL); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSubmitByURL, err)
		}
		c.submitByURL = b
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{EnvAcquireTimeout, &c.acquireTimeout},
		{EnvPollInterval, &c.pollInterval},
		{EnvIndexTimeout, &c.indexTimeout},
	}
	for _, d := range durations {
		raw := os.Getenv(d.env)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.env, err)
		}
		*d.dst = v
	}

	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: port must be between 1 and 65535", c.port)
	}
	switch strings.ToLower(c.logFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q: want json or text", c.logFormat)
	}
	if c.pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.pollInterval)
	}
	if c.indexTimeout <= 0 {
		return fmt.Errorf("index timeout must be positive, got %s", c.indexTimeout)
	}
	if c.acquireTimeout <= 0 {
		return fmt.Errorf("acquire timeout must be positive, got %s", c.acquireTimeout)
	}
	if c.feedBaseURL != "" && !strings.HasSuffix(c.feedBaseURL, "/") {
		c.feedBaseURL += "/"
	}
	c.apiBaseURL = strings.TrimRight(c.apiBaseURL, "/")
	return nil
}

// RequireRemote reports an error when remote credentials are missing.
// Dry runs can proceed without them.
func (c *EnvConfig) RequireRemote() error {
	var missing []string
	if c.apiKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.indexID == "" {
		missing = append(missing, EnvIndexID)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns the log handler format (json or text)
func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ProgressDir returns the directory holding checkpoint and handoff files
func (c *EnvConfig) ProgressDir() string {
	return filepath.Join(c.dataDir, "progress")
}

// DownloadDir returns the local media cache directory
func (c *EnvConfig) DownloadDir() string {
	return filepath.Join(c.dataDir, "downloads")
}

func (c *EnvConfig) Collection() string {
	return c.collection
}

func (c *EnvConfig) FeedURL() string {
	return c.feedURL
}

func (c *EnvConfig) FeedBaseURL() string {
	return c.feedBaseURL
}

func (c *EnvConfig) FeedTimeout() time.Duration {
	return c.feedTimeout
}

func (c *EnvConfig) Stopwords() []string {
	return append([]string(nil), c.stopwords...)
}

// TagRules returns configured tag rules; nil means use the built-in table
func (c *EnvConfig) TagRules() []TagRule {
	return append([]TagRule(nil), c.tagRules...)
}

func (c *EnvConfig) APIKey() string {
	return c.apiKey
}

func (c *EnvConfig) IndexID() string {
	return c.indexID
}

func (c *EnvConfig) APIBaseURL() string {
	return c.apiBaseURL
}

// APIToken returns the bearer token for the operator API, if set explicitly
func (c *EnvConfig) APIToken() string {
	return c.apiToken
}

func (c *EnvConfig) YtDlpPath() string {
	return c.ytDlpPath
}

func (c *EnvConfig) AcquireTimeout() time.Duration {
	return c.acquireTimeout
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

func (c *EnvConfig) IndexTimeout() time.Duration {
	return c.indexTimeout
}

// MaxPollAttempts returns the poll attempt cap; 0 means only the deadline applies
func (c *EnvConfig) MaxPollAttempts() int {
	return c.maxPollAttempts
}

// SubmitByURL reports whether entries with a direct media URL are indexed by
// reference instead of being downloaded and uploaded
func (c *EnvConfig) SubmitByURL() bool {
	return c.submitByURL
}

func (c *EnvConfig) AnalyzePrompt() string {
	return c.analyzePrompt
}

func (c *EnvConfig) AnalyzeTemperature() float64 {
	return c.analyzeTemperature
}

func (c *EnvConfig) AnalyzeTimeout() time.Duration {
	return c.analyzeTimeout
}

func (c *EnvConfig) AnalyzeIncludeBrand() bool {
	return c.analyzeIncludeBrand
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
