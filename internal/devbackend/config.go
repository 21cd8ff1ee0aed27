// Package devbackend is an in-memory stand-in for the pharmacy REST API, meant
// for local development and end-to-end tests of the client.
package devbackend

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr    = "127.0.0.1:4000"
	DefaultTokenTTL      = 24 * time.Hour
	DefaultPruneInterval = 10 * time.Minute
)

// Config is the dev backend configuration, usually devbackend.yaml.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr"`
	SigningKey    string        `yaml:"signing_key"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	PruneInterval time.Duration `yaml:"prune_interval"`
	Users         []UserSeed    `yaml:"users"`
	// Records seeds collections keyed by resource name ("paciente", ...),
	// using the backend's own field names.
	Records map[string][]map[string]any `yaml:"records"`
}

// UserSeed is one account that can log in.
type UserSeed struct {
	Email  string `yaml:"email"`
	Nome   string `yaml:"nome"`
	Perfil string `yaml:"perfil"`
	Senha  string `yaml:"senha"`
}

// LoadConfig reads the yaml file at path and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	out := cfg.withDefaults()
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return out, nil
}

// withDefaults returns a copy with unset durations and address filled in.
func (c *Config) withDefaults() *Config {
	out := *c
	out.fill()
	return &out
}

func (c *Config) fill() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = DefaultPruneInterval
	}
}

// Validate checks the settings New relies on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return errors.New("signing_key is required")
	}
	if len(c.Users) == 0 {
		return errors.New("at least one user is required")
	}
	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		email := normalizeEmail(u.Email)
		if email == "" || u.Senha == "" {
			return fmt.Errorf("user %d: email and senha are required", i)
		}
		if seen[email] {
			return fmt.Errorf("user %d: duplicate email %s", i, email)
		}
		seen[email] = true
	}
	for name := range c.Records {
		if _, ok := resourceByName(name); !ok {
			return fmt.Errorf("records: unknown resource %q", name)
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
