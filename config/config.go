package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/discovery"
	"github.com/effective-security/toolgate/probe"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

// Config is the engine configuration loaded from a YAML file.
type Config struct {
	// Probe overrides the probing deadlines.
	Probe ProbeConfig `json:"probe" yaml:"probe"`

	// WellKnown maps a namespace hint to a server-specific listing
	// alias, merged over the built-in table.
	WellKnown map[string]string `json:"well_known,omitempty" yaml:"well_known,omitempty"`

	// Store configures the Redis backing for server and probe records.
	// Without it, discovered servers live only in process memory.
	Store *StoreConfig `json:"store,omitempty" yaml:"store,omitempty"`
}

// ProbeConfig carries probing deadlines as duration strings ("20s",
// "500ms"). Empty fields keep the package defaults.
type ProbeConfig struct {
	// ResponseTimeout bounds an entire stream probe attempt.
	ResponseTimeout string `json:"response_timeout,omitempty" yaml:"response_timeout,omitempty"`
	// AttemptTimeout bounds a single HTTP candidate request.
	AttemptTimeout string `json:"attempt_timeout,omitempty" yaml:"attempt_timeout,omitempty"`
	// TotalBudget caps elapsed HTTP probing time across all candidates.
	TotalBudget string `json:"total_budget,omitempty" yaml:"total_budget,omitempty"`
	// SniffTimeout bounds the HTTP content pre-check.
	SniffTimeout string `json:"sniff_timeout,omitempty" yaml:"sniff_timeout,omitempty"`
}

// StoreConfig for the Redis record store.
type StoreConfig struct {
	Server   string `json:"server" yaml:"server" validate:"required"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

var validate = validator.New()

// LoadConfig from file, expanding environment variables. An empty file
// name yields a zero Config with all defaults.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and the duration formats.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	_, err := c.ProbeOptions()
	return err
}

// ProbeOptions renders the configured deadlines as prober options.
func (c *Config) ProbeOptions() ([]probe.Option, error) {
	var opts []probe.Option
	add := func(name, raw string, opt func(time.Duration) probe.Option) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return errors.WithMessagef(err, "invalid probe.%s", name)
		}
		opts = append(opts, opt(d))
		return nil
	}

	if err := add("response_timeout", c.Probe.ResponseTimeout, probe.WithResponseTimeout); err != nil {
		return nil, err
	}
	if err := add("attempt_timeout", c.Probe.AttemptTimeout, probe.WithAttemptTimeout); err != nil {
		return nil, err
	}
	if err := add("total_budget", c.Probe.TotalBudget, probe.WithTotalBudget); err != nil {
		return nil, err
	}
	if err := add("sniff_timeout", c.Probe.SniffTimeout, probe.WithSniffTimeout); err != nil {
		return nil, err
	}
	return opts, nil
}

// DiscoveryOptions renders the whole configuration as discovery service
// options: probe deadlines, extra well-known aliases, and the Redis
// record store when one is configured.
func (c *Config) DiscoveryOptions() ([]discovery.Option, error) {
	popts, err := c.ProbeOptions()
	if err != nil {
		return nil, err
	}

	var opts []discovery.Option
	if len(popts) > 0 {
		opts = append(opts, discovery.WithProbeOptions(popts...))
	}
	if len(c.WellKnown) > 0 {
		opts = append(opts, discovery.WithWellKnown(c.WellKnown))
	}
	if c.Store != nil {
		client := redis.NewClient(&redis.Options{
			Addr:     c.Store.Server,
			Password: c.Store.Password,
			DB:       c.Store.DB,
		})
		opts = append(opts, discovery.WithRecordStore(registry.NewRedisStore(client, c.Store.Prefix)))
	}
	return opts, nil
}
