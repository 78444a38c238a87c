package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a batch_config.yaml file and returns a Config with all
// environment variable references resolved and defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvironmentVariables(&cfg)
	resolveEnvVars(&cfg)
	setDefaults(&cfg)
	Validate(&cfg)

	if err := checkRequired(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvironmentVariables sets OS env vars from the config's
// environment_variables section before anything else resolves.
func applyEnvironmentVariables(cfg *Config) {
	for k, v := range cfg.EnvironmentVariables {
		resolved := ResolveEnvVar(v)
		os.Setenv(k, resolved)
	}
}

func resolveEnvVars(cfg *Config) {
	cfg.Backend.APIKey = ResolveEnvVar(cfg.Backend.APIKey)
	cfg.Backend.BaseURL = ResolveEnvVarPtr(cfg.Backend.BaseURL)
	if cfg.Redis != nil {
		cfg.Redis.Addr = ResolveEnvVar(cfg.Redis.Addr)
		cfg.Redis.Password = ResolveEnvVar(cfg.Redis.Password)
	}
}

func setDefaults(cfg *Config) {
	if cfg.Run.PollIntervalSeconds == 0 {
		cfg.Run.PollIntervalSeconds = 60
	}
	if cfg.Run.RetrieveRetries == 0 {
		cfg.Run.RetrieveRetries = 3
	}
}

func checkRequired(cfg *Config) error {
	if cfg.Backend.Name == "" {
		return fmt.Errorf("config: backend.name is required")
	}
	if cfg.Backend.APIKey == "" {
		return fmt.Errorf("config: backend.api_key is required (set it directly or via os.environ/)")
	}
	if cfg.Redis != nil && cfg.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when the redis section is present")
	}
	return nil
}
