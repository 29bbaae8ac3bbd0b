package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/rcloadenv/internal/runtimeconfig"
	"github.com/eugenenazirov/rcloadenv/internal/transform"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultRetries        = 3
	defaultRateLimitRPS   = 10.0
	defaultRateLimitBurst = 10
)

// Log formats accepted by LogFormat.
const (
	LogFormatAuto    = "auto"
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Project         string
	Exclude         []string
	Include         []string
	Override        bool
	Debug           bool
	LegacyAliasKeys bool
	KeyStyle        transform.KeyStyle
	EnvFile         string
	LogFormat       string
	Endpoint        string
	Timeout         time.Duration
	Retries         int
	RateLimitRPS    float64
	RateLimitBurst  int
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Project         string        `yaml:"project"`
	Except          []string      `yaml:"except"`
	Only            []string      `yaml:"only"`
	Override        *bool         `yaml:"override"`
	Debug           *bool         `yaml:"debug"`
	LegacyAliasKeys *bool         `yaml:"legacy_alias_keys"`
	KeyStyle        string        `yaml:"key_style"`
	EnvFile         string        `yaml:"env_file"`
	LogFormat       string        `yaml:"log_format"`
	Endpoint        string        `yaml:"endpoint"`
	Timeout         string        `yaml:"timeout"`
	Retries         *int          `yaml:"retries"`
	RateLimit       yamlRateLimit `yaml:"rate_limit"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides. Nil pointers and empty
// slices mean the flag was not given.
type CLIOverrides struct {
	ConfigFile      string
	Project         *string
	Exclude         []string
	Include         []string
	Override        *bool
	Debug           *bool
	LegacyAliasKeys *bool
	KeyStyle        *string
	EnvFile         *string
	LogFormat       *string
	Endpoint        *string
	Timeout         *time.Duration
	Retries         *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Environment first so the YAML file can override it
	applyEnvConfig(&cfg)

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, err
		}
	}

	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		KeyStyle:       transform.StyleDash,
		LogFormat:      LogFormatAuto,
		Endpoint:       runtimeconfig.DefaultEndpoint,
		Timeout:        defaultTimeout,
		Retries:        defaultRetries,
		RateLimitRPS:   defaultRateLimitRPS,
		RateLimitBurst: defaultRateLimitBurst,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Project != "" {
		cfg.Project = yamlCfg.Project
	}
	if len(yamlCfg.Except) > 0 {
		cfg.Exclude = yamlCfg.Except
	}
	if len(yamlCfg.Only) > 0 {
		cfg.Include = yamlCfg.Only
	}
	if yamlCfg.Override != nil {
		cfg.Override = *yamlCfg.Override
	}
	if yamlCfg.Debug != nil {
		cfg.Debug = *yamlCfg.Debug
	}
	if yamlCfg.LegacyAliasKeys != nil {
		cfg.LegacyAliasKeys = *yamlCfg.LegacyAliasKeys
	}
	if yamlCfg.KeyStyle != "" {
		style, err := transform.ParseKeyStyle(yamlCfg.KeyStyle)
		if err != nil {
			return fmt.Errorf("parse key_style: %w", err)
		}
		cfg.KeyStyle = style
	}
	if yamlCfg.EnvFile != "" {
		cfg.EnvFile = yamlCfg.EnvFile
	}
	if yamlCfg.LogFormat != "" {
		cfg.LogFormat = yamlCfg.LogFormat
	}
	if yamlCfg.Endpoint != "" {
		cfg.Endpoint = yamlCfg.Endpoint
	}
	if yamlCfg.Timeout != "" {
		d, err := time.ParseDuration(yamlCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yamlCfg.Retries != nil {
		cfg.Retries = *yamlCfg.Retries
	}
	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}
	return nil
}

// applyEnvConfig applies environment variable configuration. Malformed
// values are ignored.
func applyEnvConfig(cfg *Config) {
	if endpoint := strings.TrimSpace(os.Getenv("RCLOADENV_ENDPOINT")); endpoint != "" {
		cfg.Endpoint = endpoint
	}

	if timeout := strings.TrimSpace(os.Getenv("RCLOADENV_TIMEOUT")); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}

	if retries := strings.TrimSpace(os.Getenv("RCLOADENV_RETRIES")); retries != "" {
		if value, err := strconv.Atoi(retries); err == nil && value >= 0 {
			cfg.Retries = value
		}
	}

	if rps := strings.TrimSpace(os.Getenv("RCLOADENV_RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RCLOADENV_RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if debug := strings.TrimSpace(os.Getenv("RCLOADENV_DEBUG")); debug != "" {
		if value, err := strconv.ParseBool(debug); err == nil {
			cfg.Debug = value
		}
	}

	if style := strings.TrimSpace(os.Getenv("RCLOADENV_KEY_STYLE")); style != "" {
		if value, err := transform.ParseKeyStyle(style); err == nil {
			cfg.KeyStyle = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.Project != nil && *overrides.Project != "" {
		cfg.Project = *overrides.Project
	}
	if exclude := SplitList(overrides.Exclude); len(exclude) > 0 {
		cfg.Exclude = exclude
	}
	if include := SplitList(overrides.Include); len(include) > 0 {
		cfg.Include = include
	}
	if overrides.Override != nil {
		cfg.Override = *overrides.Override
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
	if overrides.LegacyAliasKeys != nil {
		cfg.LegacyAliasKeys = *overrides.LegacyAliasKeys
	}
	if overrides.KeyStyle != nil && *overrides.KeyStyle != "" {
		style, err := transform.ParseKeyStyle(*overrides.KeyStyle)
		if err != nil {
			return fmt.Errorf("parse key style: %w", err)
		}
		cfg.KeyStyle = style
	}
	if overrides.EnvFile != nil && *overrides.EnvFile != "" {
		cfg.EnvFile = *overrides.EnvFile
	}
	if overrides.LogFormat != nil && *overrides.LogFormat != "" {
		cfg.LogFormat = *overrides.LogFormat
	}
	if overrides.Endpoint != nil && *overrides.Endpoint != "" {
		cfg.Endpoint = *overrides.Endpoint
	}
	if overrides.Timeout != nil && *overrides.Timeout > 0 {
		cfg.Timeout = *overrides.Timeout
	}
	if overrides.Retries != nil && *overrides.Retries >= 0 {
		cfg.Retries = *overrides.Retries
	}
	return nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("RCLOADENV_RETRIES must be >= 0")
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RCLOADENV_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RCLOADENV_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	switch cfg.LogFormat {
	case LogFormatAuto, LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	return nil
}

// SplitList flattens comma-delimited entries into a list of names, dropping
// blanks. Flags may be repeated and each occurrence may hold several names.
func SplitList(raw []string) []string {
	var out []string
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
