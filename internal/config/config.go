package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfigFailed marks any problem reading or parsing the configuration.
var ErrConfigFailed = errors.New("config: failed to load")

const (
	// DefaultAPIURL is used when neither the environment nor config.yaml name a backend.
	DefaultAPIURL = "http://localhost:4000"
	// DefaultNotificationMs is how long a notification stays visible.
	DefaultNotificationMs = 5000
	// DefaultSessionTTLDays is the lifetime of the token cookie.
	DefaultSessionTTLDays = 1

	EnvAPIURL   = "FARMACIA_API_URL"
	EnvMode     = "FARMACIA_ENV"
	EnvLogLevel = "FARMACIA_LOG_LEVEL"
)

// Config holds user settings plus derived paths.
type Config struct {
	APIURL            string  `yaml:"api_url"`
	Env               string  `yaml:"env"`
	LogLevel          string  `yaml:"log_level"`
	LogFile           string  `yaml:"log_file"`
	SessionFile       string  `yaml:"session_file"`
	SessionTTLDays    int     `yaml:"session_ttl_days"`
	NotificationMs    int     `yaml:"notification_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MetricsAddr       string  `yaml:"metrics_addr"`

	AppDir string `yaml:"-"`
}

// Error carries context about a failed load.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ErrConfigFailed.Error()
	}
	return fmt.Sprintf("%v: %s: %v", ErrConfigFailed, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match ErrConfigFailed as well as the wrapped cause.
func (e *Error) Is(target error) bool {
	return target == ErrConfigFailed
}

// DetectAppDir returns the directory holding the executable.
func DetectAppDir() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("detect executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exePath)
	if err == nil {
		exePath = resolved
	}
	return filepath.Dir(exePath), nil
}

// DefaultPath returns config.yaml next to the executable.
func DefaultPath(appDir string) string {
	return filepath.Join(appDir, "config.yaml")
}

// Load reads config.yaml (optional), then .env files from appDir, then the
// process environment. Later sources override earlier ones.
func Load(path string, appDir string) (*Config, error) {
	if appDir == "" {
		return nil, &Error{Path: path, Err: errors.New("app directory is empty")}
	}
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, &Error{Path: path, Err: err}
			}
		case errors.Is(err, os.ErrNotExist):
			// running on defaults and environment only
		default:
			return nil, &Error{Path: path, Err: err}
		}
	}
	if err := loadDotEnv(appDir); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	cfg.AppDir = filepath.Clean(appDir)
	cfg.LogLevel = normalizeLogLevel(cfg.LogLevel)
	cfg.applyAppDir()
	if err := cfg.validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	if err := cfg.ensureDirectories(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return cfg, nil
}

// IsProduction reports whether cookies must carry the Secure flag.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func defaults() *Config {
	return &Config{
		APIURL:         DefaultAPIURL,
		Env:            "development",
		LogLevel:       "info",
		LogFile:        filepath.Join("logs", "client.log"),
		SessionFile:    "session.yaml",
		SessionTTLDays: DefaultSessionTTLDays,
		NotificationMs: DefaultNotificationMs,
	}
}

// loadDotEnv reads .env.local then .env; godotenv never overrides variables
// that are already set, so the real environment always wins.
func loadDotEnv(appDir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(appDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		c.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMode)); v != "" {
		c.Env = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("FARMACIA_NOTIFICATION_MS")); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FARMACIA_NOTIFICATION_MS must be a number: %w", err)
		}
		c.NotificationMs = ms
	}
	return nil
}

func (c *Config) applyAppDir() {
	c.LogFile = makeAbsolute(c.LogFile, c.AppDir)
	c.SessionFile = makeAbsolute(c.SessionFile, c.AppDir)
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
}

func (c *Config) validate() error {
	parsed, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("api_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api_url must be http or https, got %q", c.APIURL)
	}
	switch {
	case c.LogFile == "":
		return errors.New("log_file is required")
	case c.SessionTTLDays <= 0:
		return fmt.Errorf("session_ttl_days must be positive, got %d", c.SessionTTLDays)
	case c.NotificationMs < 0:
		return fmt.Errorf("notification_ms must not be negative, got %d", c.NotificationMs)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("requests_per_second must not be negative, got %v", c.RequestsPerSecond)
	}
	if c.NotificationMs == 0 {
		c.NotificationMs = DefaultNotificationMs
	}
	if _, ok := allowedLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unsupported log_level %q", c.LogLevel)
	}
	return nil
}

func (c *Config) ensureDirectories() error {
	for _, dir := range []string{filepath.Dir(c.LogFile), filepath.Dir(c.SessionFile)} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func makeAbsolute(path string, base string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if base == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func normalizeLogLevel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "info"
	}
	return value
}

var allowedLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}
