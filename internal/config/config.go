package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultAgentID is the development agent seeded by the migrations.
	DefaultAgentID = "55555555-5555-5555-5555-555555555555"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverMemory   = "memory"
)

// Supported runner kinds.
const (
	RunnerClaude     = "claude"
	RunnerCodex      = "codex"
	RunnerGemini     = "gemini"
	RunnerCodeReview = "code-review"
	RunnerShell      = "shell"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Limits   LimitsConfig   `yaml:"limits"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQL connection configuration. Path is used by sqlite3.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds the worker's wake-up queue configuration. An empty name
// lets the broker generate one.
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// RedisConfig holds the optional Redis used for rate limiting
type RedisConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Addr      string          `yaml:"addr"`
	Password  string          `yaml:"password"`
	DB        int             `yaml:"db"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a fixed window limit applied per API key
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// StorageConfig holds the result object store configuration
type StorageConfig struct {
	RootDir       string        `yaml:"root_dir"`
	PublicBaseURL string        `yaml:"public_base_url"`
	SigningSecret string        `yaml:"signing_secret"`
	PresignTTL    time.Duration `yaml:"presign_ttl"`
}

// AuthConfig holds the accepted API keys per caller role
type AuthConfig struct {
	BuyerAPIKeys    []string `yaml:"buyer_api_keys"`
	ExecutorAPIKeys []string `yaml:"executor_api_keys"`
}

// LimitsConfig bounds job completion uploads
type LimitsConfig struct {
	MaxFiles    int   `yaml:"max_files"`
	MaxFileSize int64 `yaml:"max_file_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	TimeFormat   string `yaml:"time_format"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	AgentID        string        `yaml:"agent_id"`
	APIBaseURL     string        `yaml:"api_base_url"`
	APIKey         string        `yaml:"api_key"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UploadTimeout  time.Duration `yaml:"upload_timeout"`
	WorkRoot       string        `yaml:"work_root"`
	MaxJobsPerPoll int           `yaml:"max_jobs_per_poll"`
	WakeOnEvents   bool          `yaml:"wake_on_events"`
	Runner         RunnerConfig  `yaml:"runner"`
}

// RunnerConfig selects and tunes the task runner flavor
type RunnerConfig struct {
	Kind             string   `yaml:"kind"`
	Binary           string   `yaml:"binary"`
	MaxTurns         int      `yaml:"max_turns"`
	SystemPromptFile string   `yaml:"system_prompt_file"`
	Command          []string `yaml:"command"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "topic"
	}
	if c.Storage.PresignTTL <= 0 {
		c.Storage.PresignTTL = time.Hour
	}
	if c.Limits.MaxFiles <= 0 {
		c.Limits.MaxFiles = 20
	}
	if c.Limits.MaxFileSize <= 0 {
		c.Limits.MaxFileSize = 50 * 1024 * 1024
	}
	if c.Redis.RateLimit.Window <= 0 {
		c.Redis.RateLimit.Window = time.Minute
	}

	w := &c.Worker
	if w.AgentID == "" {
		w.AgentID = DefaultAgentID
	}
	if w.PollInterval <= 0 {
		w.PollInterval = 5 * time.Second
	}
	if w.JobTimeout <= 0 {
		w.JobTimeout = 300 * time.Second
	}
	if w.RequestTimeout <= 0 {
		w.RequestTimeout = 10 * time.Second
	}
	if w.UploadTimeout <= 0 {
		w.UploadTimeout = 60 * time.Second
	}
	if w.WorkRoot == "" {
		w.WorkRoot = filepath.Join(os.TempDir(), "agent-jobs")
	}
	if w.MaxJobsPerPoll <= 0 {
		w.MaxJobsPerPoll = 50
	}
	if w.Runner.Kind == "" {
		w.Runner.Kind = RunnerClaude
	}
	if w.Runner.MaxTurns <= 0 {
		w.Runner.MaxTurns = 25
	}
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required when redis is enabled")
		}
		if c.Redis.RateLimit.Requests <= 0 {
			return fmt.Errorf("redis rate_limit.requests must be greater than 0")
		}
	}

	if c.Storage.RootDir == "" {
		return fmt.Errorf("storage root_dir is required")
	}

	if c.Storage.SigningSecret == "" {
		return fmt.Errorf("storage signing_secret is required")
	}

	if len(c.Auth.BuyerAPIKeys) == 0 {
		return fmt.Errorf("at least one buyer api key is required")
	}

	if len(c.Auth.ExecutorAPIKeys) == 0 {
		return fmt.Errorf("at least one executor api key is required")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	w := c.Worker

	if w.APIBaseURL == "" {
		return fmt.Errorf("worker api_base_url is required")
	}

	if w.APIKey == "" {
		return fmt.Errorf("worker api_key is required")
	}

	if w.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be greater than 0")
	}

	if w.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if w.RequestTimeout <= 0 || w.UploadTimeout <= 0 {
		return fmt.Errorf("worker request_timeout and upload_timeout must be greater than 0")
	}

	if w.MaxJobsPerPoll <= 0 || w.MaxJobsPerPoll > 100 {
		return fmt.Errorf("worker max_jobs_per_poll must be between 1 and 100")
	}

	switch w.Runner.Kind {
	case RunnerClaude, RunnerCodex, RunnerGemini, RunnerCodeReview:
	case RunnerShell:
		if len(w.Runner.Command) == 0 {
			return fmt.Errorf("worker runner command is required for the shell runner")
		}
	default:
		return fmt.Errorf("unsupported worker runner kind: %q", w.Runner.Kind)
	}

	if w.WakeOnEvents {
		if err := c.validateRabbitMQ(); err != nil {
			return fmt.Errorf("wake_on_events needs rabbitmq: %w", err)
		}
	}

	return nil
}
