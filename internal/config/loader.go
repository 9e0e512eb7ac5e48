package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the prefix of environment variables read by Load.
const DefaultEnvPrefix = "SYNCBOARD_"

// Loader loads a Config from, in increasing priority: defaults, a YAML
// file, environment variables, and explicit overrides (CLI flags).
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML configuration file path. An empty path skips
// the file.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOverrides sets dotted-key values applied last, e.g. "log.level".
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		l.overrides = values
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every source and returns the sanitized result.
func (l *Loader) Load() (*Config, error) {
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}

	if err := l.k.Load(env.ProviderWithValue(l.envPrefix, ".", l.envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, value := range l.overrides {
		if err := l.k.Set(key, value); err != nil {
			return nil, fmt.Errorf("apply override %s: %w", key, err)
		}
	}

	cfg := Default()
	if err := l.k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// envKey maps SYNCBOARD_RATE_LIMIT__BURST to rate_limit.burst. A double
// underscore separates levels so single underscores can stay inside keys.
func (l *Loader) envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, l.envPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	if key == "allowed_origins" {
		return key, parseOrigins(value)
	}
	return key, value
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
