package tablemap

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultDB is the database used when neither the config nor the call names one.
const DefaultDB = "test"

// Config contains adapter-wide defaults. Per-call Options override the
// matching fields.
type Config struct {
	DB         string     `yaml:"db"`         // Default database
	Debug      bool       `yaml:"debug"`      // Log pipeline stages at debug level
	Raw        bool       `yaml:"raw"`        // Return envelopes with counts and native metadata
	InsertOpts NativeOpts `yaml:"insertOpts"` // Default native insert options
	UpdateOpts NativeOpts `yaml:"updateOpts"` // Default native update options
	DeleteOpts NativeOpts `yaml:"deleteOpts"` // Default native delete options
	RunOpts    NativeOpts `yaml:"runOpts"`    // Default native read options

	Operators   Operators    `yaml:"-"` // Adapter-level operator overrides
	Hooks       Hooks        `yaml:"-"` // Lifecycle hooks; nil slots are no-ops
	Logger      *slog.Logger `yaml:"-"` // Defaults to a text logger on stderr
	Provisioner *Provisioner `yaml:"-"` // Shared schema cache; one is created if nil
}

// DefaultConfig returns the configuration used by New before options apply.
func DefaultConfig() Config {
	return Config{
		DB:         DefaultDB,
		InsertOpts: NativeOpts{},
		UpdateOpts: NativeOpts{},
		DeleteOpts: NativeOpts{},
		RunOpts:    NativeOpts{},
	}
}

// LoadConfig reads a YAML document over DefaultConfig.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.DB == "" {
		cfg.DB = DefaultDB
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) func(*Config) {
	return func(cfg *Config) { *cfg = c }
}

// WithDB sets the default database.
func WithDB(db string) func(*Config) {
	return func(cfg *Config) { cfg.DB = db }
}

// WithDebug toggles debug logging.
func WithDebug(debug bool) func(*Config) {
	return func(cfg *Config) { cfg.Debug = debug }
}

// WithRaw makes every operation return envelopes by default.
func WithRaw(raw bool) func(*Config) {
	return func(cfg *Config) { cfg.Raw = raw }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) func(*Config) {
	return func(cfg *Config) { cfg.Logger = logger }
}

// WithOperators installs adapter-level operator overrides.
func WithOperators(ops Operators) func(*Config) {
	return func(cfg *Config) { cfg.Operators = ops }
}

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) func(*Config) {
	return func(cfg *Config) { cfg.Hooks = h }
}

// WithProvisioner shares a schema cache between adapters.
func WithProvisioner(p *Provisioner) func(*Config) {
	return func(cfg *Config) { cfg.Provisioner = p }
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("adapter", "tablemap")
}
