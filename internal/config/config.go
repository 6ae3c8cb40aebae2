package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	CoreAPI   CoreAPIConfig   `yaml:"core_api"`
	Snap      SnapConfig      `yaml:"snap"`
	Database  DatabaseConfig  `yaml:"database"`
	SendGrid  SendGridConfig  `yaml:"sendgrid"`
	JWT       JWTConfig       `yaml:"jwt"`
	Session   SessionConfig   `yaml:"session"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CoreAPIConfig contains settings for the core rental API (the system of
// record for rentals, stock and codes; this gateway never bypasses it)
type CoreAPIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SnapConfig contains settings for the Snap payment gateway
type SnapConfig struct {
	BaseURL   string `yaml:"base_url"`   // checkout redirection base
	ServerKey string `yaml:"server_key"` // used to verify webhook signatures
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// SendGridConfig contains support alert email settings
type SendGridConfig struct {
	APIKey       string `yaml:"api_key"`
	FromEmail    string `yaml:"from_email"`
	FromName     string `yaml:"from_name"`
	SupportEmail string `yaml:"support_email"`
}

// JWTConfig contains settings for validating renter bearer tokens
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// SessionConfig contains return-session settings
type SessionConfig struct {
	TTLMinutes           int `yaml:"ttl_minutes"`
	PenaltyWindowSeconds int `yaml:"penalty_window_seconds"`
	ResumeRetentionDays  int `yaml:"resume_retention_days"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	SweepDeadSessions string `yaml:"sweep_dead_sessions"`
	PruneResumeCache  string `yaml:"prune_resume_cache"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Core API
	if val := os.Getenv("CORE_API_BASE_URL"); val != "" {
		c.CoreAPI.BaseURL = val
	}

	// Snap
	if val := os.Getenv("SNAP_BASE_URL"); val != "" {
		c.Snap.BaseURL = val
	}
	if val := os.Getenv("SNAP_SERVER_KEY"); val != "" {
		c.Snap.ServerKey = val
	}

	// SendGrid
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}
	if val := os.Getenv("SUPPORT_EMAIL"); val != "" {
		c.SendGrid.SupportEmail = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Core API validation
	if c.CoreAPI.BaseURL == "" {
		return fmt.Errorf("core API base URL is required")
	}
	if c.CoreAPI.TimeoutSeconds <= 0 {
		c.CoreAPI.TimeoutSeconds = 15
	}

	// Snap validation
	if c.Snap.BaseURL == "" {
		return fmt.Errorf("snap base URL is required")
	}
	if c.Snap.ServerKey == "" {
		return fmt.Errorf("snap server key is required")
	}

	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	// Session defaults
	if c.Session.TTLMinutes <= 0 {
		c.Session.TTLMinutes = 30
	}
	if c.Session.PenaltyWindowSeconds <= 0 {
		c.Session.PenaltyWindowSeconds = 300 // 5 minute payment window
	}
	if c.Session.ResumeRetentionDays <= 0 {
		c.Session.ResumeRetentionDays = 14
	}

	// Scheduler defaults
	if c.Scheduler.SweepDeadSessions == "" {
		c.Scheduler.SweepDeadSessions = "0 */5 * * * *" // every 5 minutes
	}
	if c.Scheduler.PruneResumeCache == "" {
		c.Scheduler.PruneResumeCache = "0 0 2 * * *" // 2 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
