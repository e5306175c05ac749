// Package config provides configuration loading and validation for bisector.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Sentinel run validation errors.
var (
	ErrNoItemSource        = errors.New("one of get_initial_items or git_repo is required")
	ErrAmbiguousItemSource = errors.New("get_initial_items and git_repo are mutually exclusive")
	ErrMissingScript       = errors.New("required script not configured")
)

var validate = validator.New()

// Config holds all configuration for a bisection run.
type Config struct {
	Items         ItemsConfig         `mapstructure:"items"`
	Scripts       ScriptsConfig       `mapstructure:"scripts"`
	Search        SearchConfig        `mapstructure:"search"`
	State         StateConfig         `mapstructure:"state"`
	Env           EnvConfig           `mapstructure:"env"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Output        OutputConfig        `mapstructure:"output"`
}

// ItemsConfig selects where the item universe comes from.
type ItemsConfig struct {
	// Command prints the items, whitespace separated, on stdout.
	Command string `mapstructure:"get_initial_items"`
	GitRepo string `mapstructure:"git_repo"`
	// GitRange is GOOD..BAD.
	GitRange string `mapstructure:"git_range" validate:"required_with=GitRepo"`
}

// ScriptsConfig holds the caller's scripts.
type ScriptsConfig struct {
	SwitchToGood string        `mapstructure:"switch_to_good"`
	SwitchToBad  string        `mapstructure:"switch_to_bad"`
	TestSetup    string        `mapstructure:"test_setup"`
	Test         string        `mapstructure:"test"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// SearchConfig holds the search policy.
type SearchConfig struct {
	Iterations      int  `mapstructure:"iterations"       validate:"min=1"`
	PruneIterations int  `mapstructure:"prune_iterations" validate:"min=1"`
	Prune           bool `mapstructure:"prune"`
	Incremental     bool `mapstructure:"incremental"`
	FileArgs        bool `mapstructure:"file_args"`
	Verify          bool `mapstructure:"verify"`
	CheckMonotonic  bool `mapstructure:"check_monotonic"`
	Resume          bool `mapstructure:"resume"`
}

// StateConfig locates and encodes the persisted state.
type StateConfig struct {
	File     string `mapstructure:"file"     validate:"required"`
	Codec    string `mapstructure:"codec"    validate:"oneof=json gob"`
	Compress bool   `mapstructure:"compress"`
}

// EnvConfig names the variables exposing the current split to scripts.
type EnvConfig struct {
	GoodSetEnv string `mapstructure:"good_set_env" validate:"required,nefield=BadSetEnv"`
	BadSetEnv  string `mapstructure:"bad_set_env"  validate:"required"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"   validate:"oneof=debug info warn error"`
	JSON    bool   `mapstructure:"json"`
	Verbose bool   `mapstructure:"verbose"`
}

// ObservabilityConfig holds tracing and metrics configuration.
type ObservabilityConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
	Environment  string  `mapstructure:"environment"`
	MetricsAddr  string  `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
}

// OutputConfig controls result rendering.
type OutputConfig struct {
	Format string `mapstructure:"format" validate:"oneof=text json yaml"`
}

// Validate checks field constraints shared by every command.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// ValidateRun checks the settings a run needs on top of Validate. A resumed
// run takes its items from the saved state and needs no item source.
func (c *Config) ValidateRun() error {
	err := c.Validate()
	if err != nil {
		return err
	}

	if !c.Search.Resume {
		hasCommand := c.Items.Command != ""
		hasRepo := c.Items.GitRepo != ""

		switch {
		case hasCommand && hasRepo:
			return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrAmbiguousItemSource)
		case !hasCommand && !hasRepo:
			return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrNoItemSource)
		}
	}

	required := []struct {
		name  string
		value string
	}{
		{"switch_to_good", c.Scripts.SwitchToGood},
		{"switch_to_bad", c.Scripts.SwitchToBad},
		{"test", c.Scripts.Test},
	}

	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrMissingScript, r.name)
		}
	}

	return nil
}
