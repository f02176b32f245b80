package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/popvault/pricewatch/internal/catalog"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
db:
  dsn: postgres://pricewatch@localhost:5432/pricewatch
  max_conns: 16
scheduler:
  staleness_window_hours: 12
  discovery_limit: 25
  dispatch_limit: 5
  retry_backoff_minutes: 30
  max_retries: 3
  adapter_timeout_seconds: 45
aggregator:
  window_days: 14
sources:
  enabled: ["ebay", "funko_store", "hobbydb"]
  success_interval_days:
    ebay: 3
    hobbydb: 10
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.DB.MaxConns != 16 {
		t.Fatalf("expected db overrides to apply, got %+v", cfg.DB)
	}
	if got := cfg.StalenessWindow(); got != 12*time.Hour {
		t.Fatalf("expected staleness window 12h, got %v", got)
	}
	if got := cfg.RetryBackoff(); got != 30*time.Minute {
		t.Fatalf("expected retry backoff 30m, got %v", got)
	}
	if got := cfg.AdapterTimeout(); got != 45*time.Second {
		t.Fatalf("expected adapter timeout 45s, got %v", got)
	}
	if got := cfg.AggregationWindow(); got != 14*24*time.Hour {
		t.Fatalf("expected aggregation window 14d, got %v", got)
	}
	sources := cfg.EnabledSources()
	if len(sources) != 3 || sources[0] != catalog.SourceEbay {
		t.Fatalf("expected typed source list, got %v", sources)
	}
	if got := cfg.SuccessInterval(catalog.SourceEbay); got != 3*24*time.Hour {
		t.Fatalf("expected ebay success interval 3d, got %v", got)
	}
	if got := cfg.SuccessInterval(catalog.SourceID("unlisted")); got != 7*24*time.Hour {
		t.Fatalf("expected default success interval 7d, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scheduler.DiscoveryLimit != 50 || cfg.Scheduler.DispatchLimit != 10 {
		t.Fatalf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.MaxRetries != 0 {
		t.Fatalf("expected unbounded retries by default, got %d", cfg.Scheduler.MaxRetries)
	}
	if cfg.Aggregator.WindowDays != 30 {
		t.Fatalf("unexpected aggregator default: %+v", cfg.Aggregator)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Scheduler: SchedulerConfig{
			StalenessWindowHours:  24,
			DiscoveryLimit:        50,
			DispatchLimit:         10,
			AdapterTimeoutSeconds: 30,
		},
		Aggregator: AggregatorConfig{WindowDays: 30},
		Sources:    SourcesConfig{Enabled: []string{"ebay"}},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid staleness window",
			cfg: func() Config {
				c := base
				c.Scheduler.StalenessWindowHours = 0
				return c
			}(),
			want: "scheduler.staleness_window_hours",
		},
		{
			name: "invalid dispatch limit",
			cfg: func() Config {
				c := base
				c.Scheduler.DispatchLimit = 0
				return c
			}(),
			want: "scheduler.dispatch_limit",
		},
		{
			name: "invalid adapter timeout",
			cfg: func() Config {
				c := base
				c.Scheduler.AdapterTimeoutSeconds = 0
				return c
			}(),
			want: "scheduler.adapter_timeout_seconds",
		},
		{
			name: "no sources",
			cfg: func() Config {
				c := base
				c.Sources.Enabled = nil
				return c
			}(),
			want: "sources.enabled",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
