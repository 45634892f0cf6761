package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultInput      = "data/Sample_Support_Emails_Dataset.csv"
	DefaultOutput     = "output/processed_emails.csv"
	DefaultConfigFile = "triage.yaml"
	DefaultModel      = "gpt-4o-mini"

	defaultTimeoutSec      = 20
	defaultMaxTokens       = 400
	defaultTemperature     = 0.2
	defaultSummaryWords    = 25
	defaultSummaryMaxChars = 300
	defaultSignature       = "Support Team"
)

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s holds credentials and has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

type Config struct {
	Input       string    `yaml:"input"`  // .csv, .tsv, .xlsx, a directory of .eml files or an imap[s]:// folder
	Output      string    `yaml:"output"` // .csv, .tsv, .xlsx, .db or .sqlite
	Rules       string    `yaml:"rules,omitempty"`
	MetricsFile string    `yaml:"metrics_file,omitempty"`
	Columns     Columns   `yaml:"columns"`
	Generator   Generator `yaml:"generator"`
	Reply       Reply     `yaml:"reply"`
	IMAP        IMAP      `yaml:"imap"`
	Log         Log       `yaml:"log"`
}

// Columns names the source table columns the pipeline reads
type Columns struct {
	ID      string `yaml:"id"`
	Sender  string `yaml:"sender"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"` // Required in the source table
}

// Generator holds settings for the external text-generation service
type Generator struct {
	Disabled          bool    `yaml:"disabled"`
	APIKey            string  `yaml:"api_key,omitempty"` // Usually supplied through OPENAI_API_KEY
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	RequestsPerMinute int     `yaml:"requests_per_minute"` // 0 means unlimited
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float32 `yaml:"temperature"`
}

// Reply holds settings for the template replies and summaries
type Reply struct {
	Signature       string `yaml:"signature"`
	SummaryWords    int    `yaml:"summary_words"`
	SummaryMaxChars int    `yaml:"summary_max_chars"`
}

// IMAP holds credentials for imap:// inputs; the server and folder come from the input URL
type IMAP struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"` // Usually supplied through IMAP_PASSWORD
	Days     int    `yaml:"days"`               // 0 reads the whole folder
}

type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// Default returns the configuration used when no config file exists
func Default() *Config {
	cfg := &Config{Generator: Generator{Temperature: defaultTemperature}}
	applyDefaults(cfg)
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Temperature is preset because 0 is a valid explicit value
	cfg := Config{Generator: Generator{Temperature: defaultTemperature}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Generator.APIKey != "" || cfg.IMAP.Password != "" {
		if err := checkFilePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Input == "" {
		cfg.Input = DefaultInput
	}
	if cfg.Output == "" {
		cfg.Output = DefaultOutput
	}

	if cfg.Columns.ID == "" {
		cfg.Columns.ID = "id"
	}
	if cfg.Columns.Sender == "" {
		cfg.Columns.Sender = "sender"
	}
	if cfg.Columns.Subject == "" {
		cfg.Columns.Subject = "subject"
	}
	if cfg.Columns.Body == "" {
		cfg.Columns.Body = "body"
	}

	if cfg.Generator.Model == "" {
		cfg.Generator.Model = DefaultModel
	}
	if cfg.Generator.TimeoutSec == 0 {
		cfg.Generator.TimeoutSec = defaultTimeoutSec
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = defaultMaxTokens
	}

	if cfg.Reply.Signature == "" {
		cfg.Reply.Signature = defaultSignature
	}
	if cfg.Reply.SummaryWords == 0 {
		cfg.Reply.SummaryWords = defaultSummaryWords
	}
	if cfg.Reply.SummaryMaxChars == 0 {
		cfg.Reply.SummaryMaxChars = defaultSummaryMaxChars
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// OverrideFromEnv applies OPENAI_* and IMAP_* environment variables, which take precedence over the file
func OverrideFromEnv(cfg *Config) {
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		cfg.Generator.APIKey = key
	}
	if model := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); model != "" {
		cfg.Generator.Model = model
	}
	if baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); baseURL != "" {
		cfg.Generator.BaseURL = baseURL
	}
	if user := strings.TrimSpace(os.Getenv("IMAP_USERNAME")); user != "" {
		cfg.IMAP.Username = user
	}
	if password := os.Getenv("IMAP_PASSWORD"); password != "" {
		cfg.IMAP.Password = password
	}
}

func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// ExternalEnabled reports whether the external generator should be used
func (c *Config) ExternalEnabled() bool {
	return !c.Generator.Disabled && c.Generator.APIKey != ""
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Input) == "" {
		return fmt.Errorf("input: path is required")
	}
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("output: path is required")
	}
	if strings.TrimSpace(c.Columns.Body) == "" {
		return fmt.Errorf("columns: body column name is required")
	}

	if c.Generator.TimeoutSec < 0 {
		return fmt.Errorf("generator: timeout_sec must not be negative")
	}
	if c.Generator.RequestsPerMinute < 0 {
		return fmt.Errorf("generator: requests_per_minute must not be negative")
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("generator: temperature must be between 0 and 2")
	}

	if c.IMAP.Days < 0 {
		return fmt.Errorf("imap: days must not be negative")
	}

	if c.Reply.SummaryWords < 0 {
		return fmt.Errorf("reply: summary_words must not be negative")
	}
	if c.Reply.SummaryMaxChars < 0 {
		return fmt.Errorf("reply: summary_max_chars must not be negative")
	}

	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log: unknown format %q (console or json)", c.Log.Format)
	}
	return nil
}
