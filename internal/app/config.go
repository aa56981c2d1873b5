package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StoreSnapshot = "snapshot"
	StoreBridge   = "bridge"
)

// Config holds everything an App needs. Fields are filled from FLOWSYNC_*
// environment variables first and from command-line flags second.
type Config struct {
	LogFormat string `env:"FLOWSYNC_LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
	LogLevel  string `env:"FLOWSYNC_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// SchemaPath is an optional file or directory of .hcl section overrides.
	SchemaPath string `env:"FLOWSYNC_SCHEMA_PATH"`
	// UnitsPath is an optional HCL unit table replacing the built-in one.
	UnitsPath string `env:"FLOWSYNC_UNITS_PATH"`

	Store        string `env:"FLOWSYNC_STORE" envDefault:"memory" validate:"oneof=memory snapshot bridge"`
	FixturePath  string `env:"FLOWSYNC_FIXTURE"`
	SnapshotPath string `env:"FLOWSYNC_SNAPSHOT_PATH" validate:"required_if=Store snapshot"`

	BridgeURL          string        `env:"FLOWSYNC_BRIDGE_URL" validate:"required_if=Store bridge"`
	BridgeNamespace    string        `env:"FLOWSYNC_BRIDGE_NAMESPACE" envDefault:"/"`
	BridgeTimeout      time.Duration `env:"FLOWSYNC_BRIDGE_TIMEOUT" envDefault:"60s" validate:"gt=0"`
	InsecureSkipVerify bool          `env:"FLOWSYNC_INSECURE_SKIP_VERIFY"`

	// HistoryPath is the SQLite file that keeps run reports. Empty disables
	// history and with it retry.
	HistoryPath string `env:"FLOWSYNC_HISTORY_PATH"`

	ListenAddr      string `env:"FLOWSYNC_LISTEN_ADDR" envDefault:":8080" validate:"required"`
	HealthcheckPort int    `env:"FLOWSYNC_HEALTHCHECK_PORT" validate:"gte=0,lte=65535"`
}

// LoadConfig returns a Config populated from the environment and its
// defaults. It is not validated yet, since flags may still override it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewConfig normalizes and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Store = strings.ToLower(cfg.Store)

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return nil, fmt.Errorf("config validation failed:\n- %s", strings.Join(msgs, "\n- "))
	}
	return &cfg, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	default:
		return fmt.Sprintf("%s failed '%s' (value %v)", fe.Field(), fe.Tag(), fe.Value())
	}
}
