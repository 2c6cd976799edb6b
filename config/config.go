// Package config provides CLI configuration management for the vexa command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultAPIURL            = "https://gateway.dev.vexa.ai"
	DefaultTimeout           = 30 * time.Second
	DefaultOutputFormat      = OutputFormatText
	DefaultPollInterval      = 800 * time.Millisecond
	DefaultMaxRetries        = 3
	DefaultHighlightDuration = 3 * time.Second
	DefaultLanguage          = "auto"
	DefaultBotName           = "Vexa"
	DefaultRedisChannel      = "vexa.transcripts"
	DefaultListenAddress     = "127.0.0.1:8765"
	DefaultConfigDir         = ".vexa"
	DefaultConfigFile        = "config.yaml"
	DefaultCertDir           = ".config/vexa/certs"
)

// TLSConfig holds client TLS settings.
type TLSConfig struct {
	// Enabled indicates whether a custom TLS configuration is used.
	Enabled bool `yaml:"enabled"`

	// CACert is the path to the CA certificate for verifying the server.
	CACert string `yaml:"ca_cert,omitempty"`

	// ClientCert is the path to an optional client certificate.
	ClientCert string `yaml:"client_cert,omitempty"`

	// ClientKey is the path to the client private key.
	ClientKey string `yaml:"client_key,omitempty"`

	// CertDir is a directory containing ca.crt, client.crt, and client.key files.
	// If set, it provides default paths for CACert, ClientCert, and ClientKey.
	CertDir string `yaml:"cert_dir,omitempty"`

	// SkipVerify disables server certificate verification (insecure, for testing only).
	SkipVerify bool `yaml:"skip_verify,omitempty"`
}

// ResolvePaths expands ~ in paths and sets defaults from CertDir if configured.
func (c *TLSConfig) ResolvePaths() {
	if c.CertDir != "" {
		c.CertDir = expandPath(c.CertDir)
		if c.CACert == "" {
			c.CACert = filepath.Join(c.CertDir, "ca.crt")
		}
		if c.ClientCert == "" {
			c.ClientCert = filepath.Join(c.CertDir, "client.crt")
		}
		if c.ClientKey == "" {
			c.ClientKey = filepath.Join(c.CertDir, "client.key")
		}
		return
	}
	c.CACert = expandPath(c.CACert)
	c.ClientCert = expandPath(c.ClientCert)
	c.ClientKey = expandPath(c.ClientKey)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// RedisConfig configures the transcript update publisher.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	// Channel is the prefix for published channels.
	Channel string `yaml:"channel,omitempty"`
}

// ArchiveConfig holds the PostgreSQL transcript archive settings.
// Either URL or the discrete fields may be given.
type ArchiveConfig struct {
	URL      string `yaml:"url,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	User     string `yaml:"user,omitempty"`
	// SSLMode is the SSL connection mode (disable, require, verify-ca, verify-full).
	SSLMode string `yaml:"sslmode,omitempty"`
	// SSLRootCert defaults to ~/.postgresql/root.crt when sslmode requires verification.
	SSLRootCert string `yaml:"sslrootcert,omitempty"`
	MaxConns    int32  `yaml:"max_conns,omitempty"`
}

// ConnectionString returns the PostgreSQL connection string, or "" when the
// archive is not configured.
func (c *ArchiveConfig) ConnectionString() string {
	if c == nil {
		return ""
	}
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" || c.Database == "" || c.User == "" {
		return ""
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}

	connStr := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		c.Host, port, c.Database, c.User, sslmode)

	if sslmode == "verify-ca" || sslmode == "verify-full" {
		rootCert := c.SSLRootCert
		if rootCert == "" {
			if home, err := os.UserHomeDir(); err == nil {
				defaultCert := filepath.Join(home, ".postgresql", "root.crt")
				if _, err := os.Stat(defaultCert); err == nil {
					rootCert = defaultCert
				}
			}
		}
		if rootCert != "" {
			connStr += " sslrootcert=" + expandPath(rootCert)
		}
	}
	return connStr
}

// IsConfigured reports whether an archive database is set.
func (c *ArchiveConfig) IsConfigured() bool {
	return c.ConnectionString() != ""
}

// ServeConfig configures the browser live view server.
type ServeConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// APIURL is the base URL of the transcription gateway.
	APIURL string `yaml:"api_url"`

	// Timeout bounds each API request.
	Timeout time.Duration `yaml:"timeout"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// PollInterval is the live transcript polling cadence.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxRetries is the number of consecutive poll failures tolerated.
	MaxRetries int `yaml:"max_retries"`

	// HighlightDuration is how long new or changed segments stay highlighted.
	HighlightDuration time.Duration `yaml:"highlight_duration"`

	// DefaultLanguage is the transcription language requested for new bots.
	DefaultLanguage string `yaml:"default_language"`

	// BotName is the display name of the bot in the meeting.
	BotName string `yaml:"bot_name"`

	// MockMode replaces the remote service with seeded in-memory data.
	MockMode bool `yaml:"mock_mode,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// LogJSON switches logs to JSON.
	LogJSON bool `yaml:"log_json,omitempty"`

	TLS     TLSConfig      `yaml:"tls"`
	Redis   RedisConfig    `yaml:"redis"`
	Archive *ArchiveConfig `yaml:"archive,omitempty"`
	Serve   ServeConfig    `yaml:"serve"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		APIURL:            DefaultAPIURL,
		Timeout:           DefaultTimeout,
		OutputFormat:      DefaultOutputFormat,
		PollInterval:      DefaultPollInterval,
		MaxRetries:        DefaultMaxRetries,
		HighlightDuration: DefaultHighlightDuration,
		DefaultLanguage:   DefaultLanguage,
		BotName:           DefaultBotName,
		Redis:             RedisConfig{Addr: "localhost:6379", Channel: DefaultRedisChannel},
		Serve:             ServeConfig{Listen: DefaultListenAddress},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $VEXA_CONFIG_DIR if set, otherwise ~/.vexa
func ConfigDir() (string, error) {
	if dir := os.Getenv("VEXA_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.vexa/config.yaml or $VEXA_CONFIG_DIR/config.yaml)
// 3. Environment variables (VEXA_*)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// configFile mirrors CLIConfig with durations as strings.
type configFile struct {
	APIURL            string         `yaml:"api_url"`
	Timeout           string         `yaml:"timeout"`
	OutputFormat      OutputFormat   `yaml:"output_format"`
	PollInterval      string         `yaml:"poll_interval,omitempty"`
	MaxRetries        int            `yaml:"max_retries,omitempty"`
	HighlightDuration string         `yaml:"highlight_duration,omitempty"`
	DefaultLanguage   string         `yaml:"default_language,omitempty"`
	BotName           string         `yaml:"bot_name,omitempty"`
	MockMode          bool           `yaml:"mock_mode,omitempty"`
	Debug             bool           `yaml:"debug,omitempty"`
	LogJSON           bool           `yaml:"log_json,omitempty"`
	TLS               TLSConfig      `yaml:"tls,omitempty"`
	Redis             *RedisConfig   `yaml:"redis,omitempty"`
	Archive           *ArchiveConfig `yaml:"archive,omitempty"`
	Serve             *ServeConfig   `yaml:"serve,omitempty"`
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.APIURL != "" {
		cfg.APIURL = fileCfg.APIURL
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeout", fileCfg.Timeout, &cfg.Timeout},
		{"poll_interval", fileCfg.PollInterval, &cfg.PollInterval},
		{"highlight_duration", fileCfg.HighlightDuration, &cfg.HighlightDuration},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", d.name, err)
		}
		*d.dst = v
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.MaxRetries != 0 {
		cfg.MaxRetries = fileCfg.MaxRetries
	}
	if fileCfg.DefaultLanguage != "" {
		cfg.DefaultLanguage = fileCfg.DefaultLanguage
	}
	if fileCfg.BotName != "" {
		cfg.BotName = fileCfg.BotName
	}
	if fileCfg.Redis != nil {
		cfg.Redis = *fileCfg.Redis
		if cfg.Redis.Channel == "" {
			cfg.Redis.Channel = DefaultRedisChannel
		}
	}
	if fileCfg.Archive != nil {
		cfg.Archive = fileCfg.Archive
	}
	if fileCfg.Serve != nil && fileCfg.Serve.Listen != "" {
		cfg.Serve = *fileCfg.Serve
	}
	cfg.MockMode = fileCfg.MockMode
	cfg.Debug = fileCfg.Debug
	cfg.LogJSON = fileCfg.LogJSON
	cfg.TLS = fileCfg.TLS

	return nil
}

func envBool(name string) bool {
	v := os.Getenv(name)
	return v == "true" || v == "1"
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("VEXA_API_URL"); v != "" {
		cfg.APIURL = v
	}

	if v := os.Getenv("VEXA_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}

	if v := os.Getenv("VEXA_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("VEXA_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}

	if v := os.Getenv("VEXA_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}

	if v := os.Getenv("VEXA_LANGUAGE"); v != "" {
		cfg.DefaultLanguage = v
	}

	if v := os.Getenv("VEXA_BOT_NAME"); v != "" {
		cfg.BotName = v
	}

	if envBool("VEXA_MOCK_MODE") {
		cfg.MockMode = true
	}

	if envBool("VEXA_DEBUG") {
		cfg.Debug = true
	}

	if envBool("VEXA_LOG_JSON") {
		cfg.LogJSON = true
	}

	// TLS environment variables.
	if envBool("VEXA_TLS_ENABLED") {
		cfg.TLS.Enabled = true
	}
	if v := os.Getenv("VEXA_TLS_CA_CERT"); v != "" {
		cfg.TLS.CACert = v
	}
	if v := os.Getenv("VEXA_TLS_CERT_DIR"); v != "" {
		cfg.TLS.CertDir = v
	}
	if envBool("VEXA_TLS_SKIP_VERIFY") {
		cfg.TLS.SkipVerify = true
	}

	// Redis publisher.
	if v := os.Getenv("VEXA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("VEXA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Archive database.
	if v := os.Getenv("VEXA_ARCHIVE_URL"); v != "" {
		if cfg.Archive == nil {
			cfg.Archive = &ArchiveConfig{}
		}
		cfg.Archive.URL = v
	}

	if v := os.Getenv("VEXA_LISTEN"); v != "" {
		cfg.Serve.Listen = v
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api_url: %q (must be an http or https URL)", c.APIURL)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	if c.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive")
	}

	if c.HighlightDuration <= 0 {
		return fmt.Errorf("highlight_duration must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	redis := cfg.Redis
	serve := cfg.Serve
	fileCfg := configFile{
		APIURL:            cfg.APIURL,
		Timeout:           cfg.Timeout.String(),
		OutputFormat:      cfg.OutputFormat,
		PollInterval:      cfg.PollInterval.String(),
		MaxRetries:        cfg.MaxRetries,
		HighlightDuration: cfg.HighlightDuration.String(),
		DefaultLanguage:   cfg.DefaultLanguage,
		BotName:           cfg.BotName,
		MockMode:          cfg.MockMode,
		Debug:             cfg.Debug,
		LogJSON:           cfg.LogJSON,
		TLS:               cfg.TLS,
		Redis:             &redis,
		Archive:           cfg.Archive,
		Serve:             &serve,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}
