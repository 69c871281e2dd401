package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
	"github.com/La100/vibeplanner-sub001/internal/planner/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vibeplanner.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := config.Default()
	if cfg.Database.Path != def.Database.Path || cfg.HTTP.Addr != def.HTTP.Addr {
		t.Errorf("got %+v, want defaults", cfg)
	}
	if cfg.Matrix.Enabled() {
		t.Error("matrix notices should be off by default")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
database:
  path: /var/lib/vibeplanner/planner.db
http:
  addr: 127.0.0.1:9000
log:
  level: debug
  format: json
feed:
  poll_interval: 500ms
ack:
  max_attempts: 5
  timeout: 10s
matrix:
  homeserver: https://matrix.example.org
  user_id: "@planner:example.org"
  access_token: secret
  audit_room: "!ops:example.org"
tool_aliases:
  add_chore:
    type: task
    operation: create
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/var/lib/vibeplanner/planner.db" {
		t.Errorf("database.path: got %q", cfg.Database.Path)
	}
	if cfg.Feed.PollInterval != 500*time.Millisecond {
		t.Errorf("feed.poll_interval: got %s", cfg.Feed.PollInterval)
	}
	if cfg.HTTP.IdempotencyTTL != 60*time.Second {
		t.Errorf("http.idempotency_ttl should keep its default, got %s", cfg.HTTP.IdempotencyTTL)
	}
	if !cfg.Matrix.Enabled() {
		t.Error("matrix notices should be on")
	}

	ack := cfg.AckSettings()
	if ack.Retry.MaxAttempts != 5 || ack.Timeout != 10*time.Second {
		t.Errorf("ack: got %+v", ack)
	}

	kind, ok := cfg.Normalizer().Lookup("add_chore")
	if !ok || kind.Type != actions.TypeTask || kind.Operation != actions.OpCreate {
		t.Errorf("alias: got %+v, %v", kind, ok)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "log:\n  level: info\n")
	t.Setenv("VIBEPLANNER_LOG_LEVEL", "warn")
	t.Setenv("VIBEPLANNER_DB_PATH", "/tmp/env.db")
	t.Setenv("VIBEPLANNER_FEED_POLL_INTERVAL", "5s")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" || cfg.Database.Path != "/tmp/env.db" || cfg.Feed.PollInterval != 5*time.Second {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("VIBEPLANNER_FEED_POLL_INTERVAL", "soon")
	if _, err := config.Load(""); err == nil {
		t.Fatal("expected an error")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeFile(t, "databse:\n  path: x.db\n")
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected an error for a misspelled key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty db path", func(c *config.Config) { c.Database.Path = " " }, "database.path"},
		{"bad level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"fast polling", func(c *config.Config) { c.Feed.PollInterval = time.Millisecond }, "feed.poll_interval"},
		{"no attempts", func(c *config.Config) { c.Ack.MaxAttempts = 0 }, "ack.max_attempts"},
		{"half matrix", func(c *config.Config) { c.Matrix.Homeserver = "https://m.example.org" }, "matrix.homeserver"},
		{"matrix without token", func(c *config.Config) {
			c.Matrix.Homeserver = "https://m.example.org"
			c.Matrix.AuditRoom = "!r:example.org"
		}, "matrix.access_token"},
		{"bad alias type", func(c *config.Config) {
			c.ToolAliases = map[string]actions.ToolKind{"x": {Type: "invoice"}}
		}, "unknown type"},
		{"empty alias", func(c *config.Config) {
			c.ToolAliases = map[string]actions.ToolKind{"x": {}}
		}, "type or operation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if err := config.Default().Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}
