package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"kvitto/internal/core"
)

const (
	SourceKivra  = "kivra"
	SourceMemory = "memory"

	defaultConfigFile = "kvitto.toml"
)

type Config struct {
	// Remote source
	BaseURL           string
	Sender            string
	SourceBackend     string
	SeedDir           string
	APIToken          string
	ActorKey          string
	PageSize          int
	DetailWorkers     int
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	// RetryInterval is how often the worker retries failed details.
	RetryInterval     time.Duration

	// Cache
	CacheRoot     string
	GroupCacheTTL time.Duration

	// HTTP Server
	Port string

	// Chart file written by the chart verb
	ChartFile string

	// Fetch journal (SQLite). Empty disables it.
	JournalPath string

	// AMQP. Empty URL disables the bus.
	AMQPURL             string
	AMQPExchange        string
	FetchRequestQueue   string
	FetchCompletedQueue string

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetRange         string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

// SourceConfig is the view handed to the fetch pipeline.
type SourceConfig struct {
	BaseURL   string
	Sender    string
	CacheRoot string
	PageSize  int
}

// fileConfig mirrors kvitto.toml. Zero values leave defaults in place.
type fileConfig struct {
	BaseURL           string  `toml:"base_url"`
	Sender            string  `toml:"sender"`
	Source            string  `toml:"source"`
	SeedDir           string  `toml:"seed_dir"`
	PageSize          int     `toml:"page_size"`
	DetailWorkers     int     `toml:"detail_workers"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	RequestTimeout    string  `toml:"request_timeout"`
	RetryInterval     string  `toml:"retry_interval"`
	CacheDir          string  `toml:"cache_dir"`
	GroupCacheTTL     string  `toml:"group_cache_ttl"`
	Port              string  `toml:"port"`
	ChartFile         string  `toml:"chart_file"`
	JournalPath       string  `toml:"journal_path"`

	AMQP struct {
		URL            string `toml:"url"`
		Exchange       string `toml:"exchange"`
		RequestQueue   string `toml:"request_queue"`
		CompletedQueue string `toml:"completed_queue"`
	} `toml:"amqp"`

	Sheets struct {
		SpreadsheetID      string `toml:"spreadsheet_id"`
		Range              string `toml:"range"`
		ServiceAccountFile string `toml:"service_account_file"`
	} `toml:"sheets"`
}

func defaults() *Config {
	return &Config{
		BaseURL:           "https://bff.kivra.com/graphql",
		SourceBackend:     SourceKivra,
		SeedDir:           "data",
		PageSize:          200,
		DetailWorkers:     4,
		RequestsPerSecond: 5,
		RequestTimeout:    30 * time.Second,
		RetryInterval:     time.Hour,
		CacheRoot:         "cache",
		GroupCacheTTL:     5 * time.Minute,
		Port:              "8080",
		ChartFile:         "graph.html",
		JournalPath:       "./data/kvitto.db",

		AMQPExchange:        "kvitto",
		FetchRequestQueue:   "fetch_requests",
		FetchCompletedQueue: "fetch_completed",

		GoogleSheetRange: "Receipts!A1",
	}
}

// Load builds the configuration from defaults, then the TOML file named by
// KVITTO_CONFIG (default ./kvitto.toml, optional), then the environment.
// Credentials are only read from the environment.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("KVITTO_CONFIG")
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	if err := cfg.applyFile(path, explicit); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string, required bool) error {
	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", core.ErrConfig, path, err)
	}
	defer f.Close()

	var fc fileConfig
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&fc); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s: unknown keys:\n%s", core.ErrConfig, path, strict.String())
		}
		return fmt.Errorf("%w: %s: %v", core.ErrConfig, path, err)
	}

	setString(&c.BaseURL, fc.BaseURL)
	setString(&c.Sender, fc.Sender)
	setString(&c.SourceBackend, fc.Source)
	setString(&c.SeedDir, fc.SeedDir)
	setString(&c.CacheRoot, fc.CacheDir)
	setString(&c.Port, fc.Port)
	setString(&c.ChartFile, fc.ChartFile)
	setString(&c.JournalPath, fc.JournalPath)
	setString(&c.AMQPURL, fc.AMQP.URL)
	setString(&c.AMQPExchange, fc.AMQP.Exchange)
	setString(&c.FetchRequestQueue, fc.AMQP.RequestQueue)
	setString(&c.FetchCompletedQueue, fc.AMQP.CompletedQueue)
	setString(&c.GoogleSpreadsheetID, fc.Sheets.SpreadsheetID)
	setString(&c.GoogleSheetRange, fc.Sheets.Range)
	setString(&c.GoogleServiceAccountFile, fc.Sheets.ServiceAccountFile)
	if fc.PageSize != 0 {
		c.PageSize = fc.PageSize
	}
	if fc.DetailWorkers != 0 {
		c.DetailWorkers = fc.DetailWorkers
	}
	if fc.RequestsPerSecond != 0 {
		c.RequestsPerSecond = fc.RequestsPerSecond
	}
	if err := setDuration(&c.RequestTimeout, fc.RequestTimeout); err != nil {
		return fmt.Errorf("%w: %s: request_timeout: %v", core.ErrConfig, path, err)
	}
	if err := setDuration(&c.RetryInterval, fc.RetryInterval); err != nil {
		return fmt.Errorf("%w: %s: retry_interval: %v", core.ErrConfig, path, err)
	}
	if err := setDuration(&c.GroupCacheTTL, fc.GroupCacheTTL); err != nil {
		return fmt.Errorf("%w: %s: group_cache_ttl: %v", core.ErrConfig, path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.BaseURL = getEnv("KVITTO_BASE_URL", c.BaseURL)
	c.Sender = getEnv("KVITTO_SENDER", c.Sender)
	c.SourceBackend = getEnv("KVITTO_SOURCE", c.SourceBackend)
	c.SeedDir = getEnv("KVITTO_SEED_DIR", c.SeedDir)
	c.APIToken = getEnv("KIVRA_API_TOKEN", c.APIToken)
	c.ActorKey = getEnv("KIVRA_ACTOR_KEY", c.ActorKey)
	c.PageSize = getEnvInt("KVITTO_PAGE_SIZE", c.PageSize)
	c.DetailWorkers = getEnvInt("KVITTO_DETAIL_WORKERS", c.DetailWorkers)
	c.RequestsPerSecond = getEnvFloat("KVITTO_REQUESTS_PER_SECOND", c.RequestsPerSecond)
	c.RequestTimeout = getEnvDuration("KVITTO_REQUEST_TIMEOUT", c.RequestTimeout)
	c.RetryInterval = getEnvDuration("KVITTO_RETRY_INTERVAL", c.RetryInterval)

	c.CacheRoot = getEnv("KVITTO_CACHE_DIR", c.CacheRoot)
	c.GroupCacheTTL = getEnvDuration("KVITTO_GROUP_CACHE_TTL", c.GroupCacheTTL)
	c.Port = getEnv("PORT", c.Port)
	c.ChartFile = getEnv("KVITTO_CHART_FILE", c.ChartFile)
	c.JournalPath = getEnv("KVITTO_JOURNAL_PATH", c.JournalPath)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.FetchRequestQueue = getEnv("AMQP_FETCH_REQUEST_QUEUE", c.FetchRequestQueue)
	c.FetchCompletedQueue = getEnv("AMQP_FETCH_COMPLETED_QUEUE", c.FetchCompletedQueue)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleSheetRange = getEnv("GOOGLE_SHEET_RANGE", c.GoogleSheetRange)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
	c.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleServiceAccountJSON)
}

// Source returns the settings the fetch pipeline is constructed with.
func (c *Config) Source() SourceConfig {
	return SourceConfig{
		BaseURL:   c.BaseURL,
		Sender:    c.Sender,
		CacheRoot: c.CacheRoot,
		PageSize:  c.PageSize,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	problems := c.problems()
	return combine(problems)
}

// ValidateFetch additionally requires the credentials needed to talk to the
// remote source. It runs before any I/O in the fetch and worker commands.
func (c *Config) ValidateFetch() error {
	problems := c.problems()
	if c.SourceBackend == SourceKivra {
		if strings.TrimSpace(c.APIToken) == "" {
			problems = append(problems, "KIVRA_API_TOKEN is required to fetch receipts")
		}
		if strings.TrimSpace(c.ActorKey) == "" {
			problems = append(problems, "KIVRA_ACTOR_KEY is required to fetch receipts")
		}
	}
	return combine(problems)
}

// ValidateExport requires a spreadsheet and service account credentials.
func (c *Config) ValidateExport() error {
	problems := c.problems()
	if c.GoogleSpreadsheetID == "" {
		problems = append(problems, "GOOGLE_SPREADSHEET_ID is required to export")
	}
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		problems = append(problems, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided to export")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	return combine(problems)
}

func (c *Config) problems() []string {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.SourceBackend {
	case SourceKivra:
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("invalid base URL '%s'", c.BaseURL))
		}
	case SourceMemory:
		if c.SeedDir == "" {
			problems = append(problems, "seed directory cannot be empty when using memory source")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid source '%s': must be one of [%s %s]", c.SourceBackend, SourceKivra, SourceMemory))
	}

	if strings.TrimSpace(c.CacheRoot) == "" {
		problems = append(problems, "cache directory cannot be empty")
	}
	if c.PageSize < 1 || c.PageSize > 1000 {
		problems = append(problems, fmt.Sprintf("invalid page size %d: must be between 1 and 1000", c.PageSize))
	}
	if c.DetailWorkers < 1 || c.DetailWorkers > 64 {
		problems = append(problems, fmt.Sprintf("invalid detail workers %d: must be between 1 and 64", c.DetailWorkers))
	}
	if c.RequestsPerSecond < 0 {
		problems = append(problems, fmt.Sprintf("invalid requests per second %v: must not be negative", c.RequestsPerSecond))
	}
	if c.RequestTimeout < time.Second {
		problems = append(problems, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}
	if c.RetryInterval < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid retry interval %v: must be at least 1 minute", c.RetryInterval))
	}
	if c.GroupCacheTTL <= 0 {
		problems = append(problems, fmt.Sprintf("invalid group cache TTL %v: must be positive", c.GroupCacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.FetchRequestQueue == "" || c.FetchCompletedQueue == "" {
			problems = append(problems, "AMQP queue names cannot be empty when AMQP URL is provided")
		}
	}

	return problems
}

func combine(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: validation failed:\n- %s", core.ErrConfig, strings.Join(problems, "\n- "))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
