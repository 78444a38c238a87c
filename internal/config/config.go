package config

import "time"

// Config represents the top-level batch_config.yaml structure.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Run     RunSettings   `yaml:"run_settings"`
	Redis   *RedisConfig  `yaml:"redis,omitempty"`

	// EnvironmentVariables are exported into the process environment
	// before any other value is resolved.
	EnvironmentVariables map[string]string `yaml:"environment_variables,omitempty"`

	// Overflow captures any unknown top-level YAML fields.
	Overflow map[string]any `yaml:",inline"`
}

// BackendConfig selects and configures the vendor batch backend.
type BackendConfig struct {
	Name    string  `yaml:"name"`
	Model   string  `yaml:"model"`
	APIKey  string  `yaml:"api_key"`
	BaseURL *string `yaml:"base_url,omitempty"`

	// Overflow captures backend-specific params not explicitly modeled.
	Overflow map[string]any `yaml:",inline"`
}

// RunSettings tunes the lifecycle driver.
type RunSettings struct {
	PollIntervalSeconds int               `yaml:"poll_interval_seconds,omitempty"`
	RetrieveRetries     int               `yaml:"retrieve_retries,omitempty"`
	MaxConcurrent       int               `yaml:"max_concurrent,omitempty"`
	Metadata            map[string]string `yaml:"metadata,omitempty"`

	// Overflow captures any run_settings fields not explicitly modeled.
	Overflow map[string]any `yaml:",inline"`
}

// PollInterval returns the configured interval as a duration.
func (r RunSettings) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// RedisConfig enables the resumable run store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`

	// Overflow captures redis fields not explicitly modeled.
	Overflow map[string]any `yaml:",inline"`
}
