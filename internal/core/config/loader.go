package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Source.ConnectRetries == 0 {
		c.Source.ConnectRetries = 3
	}
	if c.Source.RetryDelay == 0 {
		c.Source.RetryDelay = 5 * time.Second
	}
	if c.Pipeline.PollInterval == 0 {
		c.Pipeline.PollInterval = 10 * time.Second
	}
	if c.Pipeline.OnFailure == "" {
		c.Pipeline.OnFailure = "drop"
	}
	if c.Pipeline.MaxRetries == 0 {
		c.Pipeline.MaxRetries = 3
	}
	if c.Executor.Type == "" {
		c.Executor.Type = "simulated"
	}
	if c.State.Path == "" {
		c.State.Path = "processed_events_db.json"
	}
}

// Validate checks required values. Missing required configuration is a
// fatal startup error, not a runtime fault.
func (c *AppConfig) Validate() error {
	if c.Source.RPCURL == "" {
		return fmt.Errorf("config: source.rpc_url is required")
	}
	if c.Source.ContractAddress == "" {
		return fmt.Errorf("config: source.contract_address is required")
	}
	switch c.Pipeline.OnFailure {
	case "drop", "retry", "deadletter":
	default:
		return fmt.Errorf("config: pipeline.on_failure must be drop, retry or deadletter, got %q", c.Pipeline.OnFailure)
	}
	switch c.Executor.Type {
	case "simulated":
	case "grpc":
		if c.Executor.Endpoint == "" {
			return fmt.Errorf("config: executor.endpoint is required for the grpc executor")
		}
	default:
		return fmt.Errorf("config: executor.type must be simulated or grpc, got %q", c.Executor.Type)
	}
	return nil
}
