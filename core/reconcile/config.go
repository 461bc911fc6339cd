package reconcile

import "time"

// Config is the environment-facing tuning surface for reconciliation runs.
// Flags may still override individual values per invocation.
type Config struct {
	// Workers bounds concurrent orders in one pass.
	Workers int `mapstructure:"workers" default:"5"`
	// UnitWorkers bounds concurrent unit creates under a fresh container.
	UnitWorkers int `mapstructure:"unit_workers" default:"4"`
	// MaxRetries caps attempts per remote write.
	MaxRetries int `mapstructure:"max_retries" default:"4"`
	// BackoffBaseMS is the first retry delay in milliseconds.
	BackoffBaseMS int `mapstructure:"backoff_base_ms" default:"500"`
	// BackoffCapMS caps the retry delay in milliseconds.
	BackoffCapMS int `mapstructure:"backoff_cap_ms" default:"15000"`
	// ContainerType is the tracker item type used for order containers.
	ContainerType string `mapstructure:"container_type" default:"Epic"`
	// UnitType is the tracker item type used for quantity units.
	UnitType string `mapstructure:"unit_type" default:"User story"`
}

// Options converts the config into run options. Zero values fall through to
// the option defaults via Normalize.
func (c Config) Options() Options {
	return Options{
		WorkerCount:   c.Workers,
		UnitWorkers:   c.UnitWorkers,
		MaxRetries:    c.MaxRetries,
		BackoffBase:   time.Duration(c.BackoffBaseMS) * time.Millisecond,
		BackoffCap:    time.Duration(c.BackoffCapMS) * time.Millisecond,
		ContainerType: c.ContainerType,
		UnitType:      c.UnitType,
	}
}
