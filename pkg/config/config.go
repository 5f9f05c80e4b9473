package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for sundaygraph.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
// The value is constructed once at startup and read-only thereafter.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8460"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL version store)
	Database DatabaseConfig `yaml:"database"`

	// Warehouse adapter configuration
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Versioning policy
	Versioning VersioningConfig `yaml:"versioning"`

	// Async runner configuration
	Runner RunnerConfig `yaml:"runner"`

	// Artifact bundle output
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// Optional ODL draft generator (LLM collaborator)
	Generator GeneratorConfig `yaml:"generator"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"sundaygraph"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"sundaygraph"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// WarehouseConfig holds warehouse adapter settings.
// Mode "mock" runs against the in-memory adapter; "snowflake" renders
// SYSTEM$ calls through the configured statement executor.
type WarehouseConfig struct {
	Mode           string        `yaml:"mode" env:"WAREHOUSE_MODE" env-default:"mock"`
	Account        string        `yaml:"account" env:"SNOWFLAKE_ACCOUNT" env-default:""`
	User           string        `yaml:"user" env:"SNOWFLAKE_USER" env-default:""`
	Password       string        `yaml:"-" env:"SNOWFLAKE_PASSWORD"` // Secret - not in YAML
	VerifyTimeout  time.Duration `yaml:"verify_timeout" env:"WAREHOUSE_VERIFY_TIMEOUT" env-default:"30s"`
	DeployTimeout  time.Duration `yaml:"deploy_timeout" env:"WAREHOUSE_DEPLOY_TIMEOUT" env-default:"120s"`
	AskTimeout     time.Duration `yaml:"ask_timeout" env:"WAREHOUSE_ASK_TIMEOUT" env-default:"60s"`
	MaxConnections int           `yaml:"max_connections" env:"WAREHOUSE_MAX_CONNECTIONS" env-default:"8"`
}

// VersioningConfig controls version-store policy.
type VersioningConfig struct {
	// RejectDuplicateContent makes create_version fail with
	// DUPLICATE_CONTENT when the normalized payload hash already exists
	// for the ontology. Default true so versions stay meaningful.
	RejectDuplicateContent bool `yaml:"reject_duplicate_content" env:"REJECT_DUPLICATE_CONTENT" env-default:"true"`
}

// RunnerConfig holds async runner settings.
type RunnerConfig struct {
	// MaxConcurrent caps tasks running at once across all workspaces.
	// Within a workspace, tasks always run FIFO one at a time.
	MaxConcurrent int `yaml:"max_concurrent" env:"RUNNER_MAX_CONCURRENT" env-default:"4"`
}

// ArtifactsConfig controls where compiled bundles are written.
type ArtifactsConfig struct {
	Dir string `yaml:"dir" env:"ARTIFACTS_DIR" env-default:"artifacts"`
}

// GeneratorConfig configures the out-of-core ODL draft generator.
type GeneratorConfig struct {
	Enabled bool   `yaml:"enabled" env:"GENERATOR_ENABLED" env-default:"false"`
	Model   string `yaml:"model" env:"GENERATOR_MODEL" env-default:"claude-sonnet-4-20250514"`
	APIKey  string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Warehouse.Mode {
	case "mock":
	case "snowflake":
		if c.Warehouse.Account == "" {
			return fmt.Errorf("warehouse.account is required in snowflake mode")
		}
	default:
		return fmt.Errorf("unknown warehouse mode %q", c.Warehouse.Mode)
	}

	if c.Runner.MaxConcurrent < 1 {
		return fmt.Errorf("runner.max_concurrent must be at least 1")
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
