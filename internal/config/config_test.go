package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// unsetenv clears key for the duration of the test; godotenv treats an empty
// but present variable as already set.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	prev, had := os.LookupEnv(key)
	os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	})
}

func clearEnv(t *testing.T) {
	for _, key := range []string{EnvAPIURL, EnvMode, EnvLogLevel, "FARMACIA_NOTIFICATION_MS"} {
		unsetenv(t, key)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, DefaultAPIURL)
	}
	if cfg.NotificationMs != DefaultNotificationMs {
		t.Errorf("NotificationMs = %d", cfg.NotificationMs)
	}
	if cfg.SessionTTLDays != 1 {
		t.Errorf("SessionTTLDays = %d", cfg.SessionTTLDays)
	}
	if cfg.LogFile != filepath.Join(dir, "logs", "client.log") {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
	if cfg.IsProduction() {
		t.Errorf("default env must not be production")
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); err != nil {
		t.Errorf("log directory not created: %v", err)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "api_url: http://backend.local:9000/\nenv: production\nlog_level: DEBUG\nnotification_ms: 3000\nrequests_per_second: 5\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://backend.local:9000" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if !cfg.IsProduction() || cfg.LogLevel != "debug" || cfg.NotificationMs != 3000 || cfg.RequestsPerSecond != 5 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	t.Setenv(EnvAPIURL, "https://api.clinica.example")
	cfg, err = Load(path, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "https://api.clinica.example" {
		t.Errorf("env override ignored: %q", cfg.APIURL)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvAPIURL+"=http://10.0.0.5:4000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("", dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://10.0.0.5:4000" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"scheme":    "api_url: ftp://backend\n",
		"level":     "log_level: trace\n",
		"ttl":       "session_ttl_days: -1\n",
		"duration":  "notification_ms: -5\n",
		"rate":      "requests_per_second: -2\n",
		"malformed": "api_url: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path, dir)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrConfigFailed) {
				t.Fatalf("error %v does not match ErrConfigFailed", err)
			}
			var cfgErr *Error
			if !errors.As(err, &cfgErr) || cfgErr.Path != path {
				t.Fatalf("expected *Error with path, got %#v", err)
			}
		})
	}
}

func TestLoadRequiresAppDir(t *testing.T) {
	if _, err := Load("config.yaml", ""); err == nil {
		t.Fatal("expected error for empty app directory")
	}
}
