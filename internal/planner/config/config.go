// Package config loads the planner configuration: a YAML file, then
// VIBEPLANNER_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/La100/vibeplanner-sub001/common/environment"
	"github.com/La100/vibeplanner-sub001/common/retry"
	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
	"github.com/La100/vibeplanner-sub001/internal/planner/confirm"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VIBEPLANNER_"

// Config is the full planner configuration.
type Config struct {
	Database    DatabaseConfig              `yaml:"database"`
	HTTP        HTTPConfig                  `yaml:"http"`
	Log         LogConfig                   `yaml:"log"`
	Feed        FeedConfig                  `yaml:"feed"`
	Ack         AckConfig                   `yaml:"ack"`
	Matrix      MatrixConfig                `yaml:"matrix"`
	ToolAliases map[string]actions.ToolKind `yaml:"tool_aliases"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type FeedConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// AckConfig controls acknowledgment delivery retries.
type AckConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Timeout      time.Duration `yaml:"timeout"`
}

// MatrixConfig enables audit notices in a Matrix room. Notices are off
// unless Homeserver and AuditRoom are both set.
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"access_token"`
	AuditRoom   string `yaml:"audit_room"`
}

// Enabled reports whether audit notices should be sent.
func (m MatrixConfig) Enabled() bool {
	return m.Homeserver != "" && m.AuditRoom != ""
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "vibeplanner.db"},
		HTTP:     HTTPConfig{Addr: ":8080", IdempotencyTTL: 60 * time.Second},
		Log:      LogConfig{Level: "info", Format: "text"},
		Feed:     FeedConfig{PollInterval: 2 * time.Second},
		Ack: AckConfig{
			MaxAttempts:  retry.DefaultConfig.MaxAttempts,
			InitialDelay: retry.DefaultConfig.InitialDelay,
			MaxDelay:     retry.DefaultConfig.MaxDelay,
			Timeout:      30 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies the
// environment. A missing file is not an error; an empty path skips the
// file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := cfg.decode(data); err != nil {
				return Config{}, err
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	env := environment.NewOverlay(EnvPrefix)
	env.String("DB_PATH", &c.Database.Path)
	env.String("HTTP_ADDR", &c.HTTP.Addr)
	env.Duration("IDEMPOTENCY_TTL", &c.HTTP.IdempotencyTTL)
	env.String("LOG_LEVEL", &c.Log.Level)
	env.String("LOG_FORMAT", &c.Log.Format)
	env.Duration("FEED_POLL_INTERVAL", &c.Feed.PollInterval)
	env.Int("ACK_MAX_ATTEMPTS", &c.Ack.MaxAttempts)
	env.Duration("ACK_TIMEOUT", &c.Ack.Timeout)
	env.String("MATRIX_HOMESERVER", &c.Matrix.Homeserver)
	env.String("MATRIX_USER_ID", &c.Matrix.UserID)
	env.String("MATRIX_ACCESS_TOKEN", &c.Matrix.AccessToken)
	env.String("MATRIX_AUDIT_ROOM", &c.Matrix.AuditRoom)
	if err := env.Err(); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	// ── Storage and transport ──
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr must not be empty"))
	}
	if c.HTTP.IdempotencyTTL < 0 {
		errs = append(errs, errors.New("http.idempotency_ttl must not be negative"))
	}

	// ── Logging ──
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}

	// ── Feed and acknowledgments ──
	if c.Feed.PollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("feed.poll_interval %s is below 100ms", c.Feed.PollInterval))
	}
	if c.Ack.MaxAttempts < 1 {
		errs = append(errs, errors.New("ack.max_attempts must be at least 1"))
	}
	if c.Ack.Timeout <= 0 {
		errs = append(errs, errors.New("ack.timeout must be positive"))
	}

	// ── Matrix ──
	if (c.Matrix.Homeserver == "") != (c.Matrix.AuditRoom == "") {
		errs = append(errs, errors.New("matrix.homeserver and matrix.audit_room must be set together"))
	}
	if c.Matrix.Enabled() && c.Matrix.AccessToken == "" {
		errs = append(errs, errors.New("matrix.access_token is required when notices are enabled"))
	}

	// ── Tool aliases ──
	for name, kind := range c.ToolAliases {
		if kind.Type == "" && kind.Operation == "" {
			errs = append(errs, fmt.Errorf("tool_aliases.%s: type or operation is required", name))
			continue
		}
		if kind.Type != "" && !kind.Type.Valid() {
			errs = append(errs, fmt.Errorf("tool_aliases.%s: unknown type %q", name, kind.Type))
		}
		if kind.Operation != "" && !kind.Operation.Valid() {
			errs = append(errs, fmt.Errorf("tool_aliases.%s: unknown operation %q", name, kind.Operation))
		}
	}

	return errors.Join(errs...)
}

// AckSettings converts the ack section for the confirmation engine.
func (c Config) AckSettings() confirm.AckConfig {
	return confirm.AckConfig{
		Retry: retry.Config{
			MaxAttempts:  c.Ack.MaxAttempts,
			InitialDelay: c.Ack.InitialDelay,
			MaxDelay:     c.Ack.MaxDelay,
			Label:        "ack",
		},
		Timeout: c.Ack.Timeout,
	}
}

// Normalizer returns a normalizer that knows the configured tool aliases.
func (c Config) Normalizer() *actions.Normalizer {
	return actions.NewNormalizer(c.ToolAliases)
}
