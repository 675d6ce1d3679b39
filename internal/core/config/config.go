package config

import (
	"time"

	redisclient "github.com/vietddude/relayer/internal/infra/redis"
	"github.com/vietddude/relayer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Source   SourceConfig       `yaml:"source"`
	Pipeline PipelineConfig     `yaml:"pipeline"`
	Executor ExecutorConfig     `yaml:"executor"`
	State    StateConfig        `yaml:"state"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds the health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SourceConfig holds settings for the source-chain endpoint.
type SourceConfig struct {
	RPCURL          string        `yaml:"rpc_url"`
	ContractAddress string        `yaml:"contract_address"`
	ConnectRetries  int           `yaml:"connect_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// PipelineConfig holds relay loop settings.
type PipelineConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	// OnFailure selects what happens when the executor fails for an
	// event: "drop", "retry" or "deadletter".
	OnFailure  string `yaml:"on_failure"`
	MaxRetries int    `yaml:"max_retries"` // bounds in-process retries for on_failure=retry
}

// ExecutorConfig selects the relay executor implementation.
type ExecutorConfig struct {
	Type     string        `yaml:"type"` // "simulated" or "grpc"
	Endpoint string        `yaml:"endpoint"`
	Delay    time.Duration `yaml:"delay"` // artificial latency for the simulated executor
}

// StateConfig holds the file-backed state store settings. Ignored when a
// database URL is configured.
type StateConfig struct {
	Path string `yaml:"path"`
}
