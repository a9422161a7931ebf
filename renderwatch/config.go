package renderwatch

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/renderwatch/renderwatch/internal/config"
)

// Config is the file configuration of renderwatch. Re-exported from internal.
type Config = config.Config

// ProfilerConfig holds the profiler options expressible in a file.
type ProfilerConfig = config.ProfilerConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// OptionsFromConfig builds profiler Options from file configuration. Sinks
// of type "store" are bound to st, which may be nil when no store sink is
// configured.
func OptionsFromConfig(cfg *Config, st *Store, logger *slog.Logger) (Options, error) {
	opts := Options{
		SnapshotDOM:    cfg.Profiler.SnapshotDOM,
		Sanitize:       cfg.Profiler.Sanitize,
		DefaultTimeout: cfg.Profiler.DefaultTimeout,
		Session:        cfg.Profiler.Session,
		Logger:         logger,
	}
	for i, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			opts.Sinks = append(opts.Sinks, NewStdoutSink(nil))
		case "webhook":
			var wopts []WebhookOption
			if sc.Backoff > 0 {
				wopts = append(wopts, WithWebhookBackoff(sc.Backoff))
			}
			if sc.Timeout > 0 {
				wopts = append(wopts, WithWebhookTimeout(sc.Timeout))
			}
			opts.Sinks = append(opts.Sinks, NewWebhookSink(sc.URL, sc.Retries, logger, wopts...))
		case "store":
			if st == nil {
				return Options{}, fmt.Errorf("renderwatch: sinks[%d]: store sink without a store", i)
			}
			opts.Sinks = append(opts.Sinks, st)
		default:
			return Options{}, fmt.Errorf("renderwatch: sinks[%d]: unknown type %q", i, sc.Type)
		}
	}
	return opts, nil
}
