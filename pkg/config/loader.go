package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".bisector"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for bisector settings.
const envPrefix = "BISECTOR"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"get-initial-items": "items.get_initial_items",
	"git-repo":          "items.git_repo",
	"git-range":         "items.git_range",
	"switch-to-good":    "scripts.switch_to_good",
	"switch-to-bad":     "scripts.switch_to_bad",
	"test-setup-script": "scripts.test_setup",
	"test-script":       "scripts.test",
	"script-timeout":    "scripts.timeout",
	"iterations":        "search.iterations",
	"prune-iterations":  "search.prune_iterations",
	"prune":             "search.prune",
	"file-args":         "search.file_args",
	"verify":            "search.verify",
	"check-monotonic":   "search.check_monotonic",
	"resume":            "search.resume",
	"state-file":        "state.file",
	"state-codec":       "state.codec",
	"state-compress":    "state.compress",
	"good-set-env":      "env.good_set_env",
	"bad-set-env":       "env.bad_set_env",
	"log-level":         "logging.level",
	"log-json":          "logging.json",
	"verbose":           "logging.verbose",
	"otlp-endpoint":     "observability.otlp_endpoint",
	"metrics-addr":      "observability.metrics_addr",
	"format":            "output.format",
}

// negatedFlags maps boolean flags that switch a setting off when given.
var negatedFlags = map[string]string{
	"noincremental": "search.incremental",
	"noverify":      "search.verify",
}

// LoadConfig loads configuration from file, env vars, flags and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
// Flags that were set on the command line override every other source; flags
// may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	bindErr := bindFlags(viperCfg, flags)
	if bindErr != nil {
		return nil, bindErr
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func bindFlags(viperCfg *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}

		err := viperCfg.BindPFlag(key, flag)
		if err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}

	for name, key := range negatedFlags {
		flag := flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}

		off, err := flags.GetBool(name)
		if err != nil {
			return fmt.Errorf("read flag --%s: %w", name, err)
		}

		if off {
			viperCfg.Set(key, false)
		}
	}

	return nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("items.get_initial_items", "")
	viperCfg.SetDefault("items.git_repo", "")
	viperCfg.SetDefault("items.git_range", "")

	viperCfg.SetDefault("scripts.switch_to_good", "")
	viperCfg.SetDefault("scripts.switch_to_bad", "")
	viperCfg.SetDefault("scripts.test_setup", "")
	viperCfg.SetDefault("scripts.test", "")
	viperCfg.SetDefault("scripts.timeout", "0s")

	viperCfg.SetDefault("search.iterations", DefaultIterations)
	viperCfg.SetDefault("search.prune_iterations", DefaultPruneIterations)
	viperCfg.SetDefault("search.prune", DefaultPrune)
	viperCfg.SetDefault("search.incremental", DefaultIncremental)
	viperCfg.SetDefault("search.file_args", DefaultFileArgs)
	viperCfg.SetDefault("search.verify", DefaultVerify)
	viperCfg.SetDefault("search.check_monotonic", DefaultCheckMonotonic)
	viperCfg.SetDefault("search.resume", false)

	viperCfg.SetDefault("state.file", DefaultStateFile)
	viperCfg.SetDefault("state.codec", DefaultStateCodec)
	viperCfg.SetDefault("state.compress", DefaultStateCompress)

	viperCfg.SetDefault("env.good_set_env", DefaultGoodSetEnv)
	viperCfg.SetDefault("env.bad_set_env", DefaultBadSetEnv)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.json", DefaultLogJSON)
	viperCfg.SetDefault("logging.verbose", false)

	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", DefaultOTLPInsecure)
	viperCfg.SetDefault("observability.sample_ratio", DefaultSampleRatio)
	viperCfg.SetDefault("observability.environment", DefaultEnvironment)
	viperCfg.SetDefault("observability.metrics_addr", "")

	viperCfg.SetDefault("output.format", DefaultOutputFormat)
}
