package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	Terminal  TerminalConfig  `mapstructure:"terminal" yaml:"terminal"`
	Process   ProcessConfig   `mapstructure:"process" yaml:"process"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot" yaml:"snapshot"`
	Install   InstallConfig   `mapstructure:"install" yaml:"install"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	LogStream LogStreamConfig `mapstructure:"log_stream" yaml:"log_stream"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	Mode            string        `mapstructure:"mode" yaml:"mode"` // "development" or "production"
	MaxUploadMB     int64         `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// WorkspaceConfig locates the workspace tree
type WorkspaceConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// TerminalConfig holds shared terminal and command runner configuration
type TerminalConfig struct {
	Shell       string        `mapstructure:"shell" yaml:"shell"` // empty means $SHELL, then bash
	Cols        uint16        `mapstructure:"cols" yaml:"cols"`
	Rows        uint16        `mapstructure:"rows" yaml:"rows"`
	BufferSize  int           `mapstructure:"buffer_size" yaml:"buffer_size"` // chunks queued per subscriber
	Completion  string        `mapstructure:"completion" yaml:"completion"`   // "sentinel" or "idle"
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	Ceiling     time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
}

// ProcessConfig holds application process supervision configuration
type ProcessConfig struct {
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	LogLines    int           `mapstructure:"log_lines" yaml:"log_lines"`
}

// SnapshotConfig holds snapshot configuration
type SnapshotConfig struct {
	Target      string   `mapstructure:"target" yaml:"target"`             // "local" or "remote"
	InstanceURL string   `mapstructure:"instance_url" yaml:"instance_url"` // base URL of the remote instance
	Ignore      []string `mapstructure:"ignore" yaml:"ignore"`
}

// InstallConfig holds the dependency install step configuration
type InstallConfig struct {
	Command  string `mapstructure:"command" yaml:"command"`
	Manifest string `mapstructure:"manifest" yaml:"manifest"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" yaml:"driver"`                       // "sqlite" or "postgres"
	DSN             string `mapstructure:"dsn" yaml:"dsn"`                             // Connection string
	MaxIdleConns    int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`       // Maximum idle connections (Postgres)
	MaxOpenConns    int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`       // Maximum open connections (Postgres)
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"` // Connection max lifetime in minutes (Postgres)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Format string `mapstructure:"format" yaml:"format"` // "json" or "text"
	Level  string `mapstructure:"level" yaml:"level"`   // "debug", "info", "warn", "error"
}

// LogStreamConfig holds the optional Valkey publisher for app output
type LogStreamConfig struct {
	ValkeyAddr    string `mapstructure:"valkey_addr" yaml:"valkey_addr"` // empty disables publishing
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for local development
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.max_upload_mb", 200)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("workspace.root", "./app")
	v.SetDefault("terminal.shell", "")
	v.SetDefault("terminal.cols", 80)
	v.SetDefault("terminal.rows", 24)
	v.SetDefault("terminal.buffer_size", 256)
	v.SetDefault("terminal.completion", "sentinel")
	v.SetDefault("terminal.idle_timeout", time.Second)
	v.SetDefault("terminal.ceiling", 5*time.Second)
	v.SetDefault("process.stop_timeout", 10*time.Second)
	v.SetDefault("process.log_lines", 500)
	v.SetDefault("snapshot.target", "local")
	v.SetDefault("snapshot.instance_url", "")
	v.SetDefault("snapshot.ignore", []string{"**/node_modules", "**/.next"})
	v.SetDefault("install.command", "npm install")
	v.SetDefault("install.manifest", "package.json")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./rose.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60) // 60 minutes
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
	v.SetDefault("log_stream.valkey_addr", "")
	v.SetDefault("log_stream.channel_prefix", "rose:logs")

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/rose/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	// Environment variables override
	v.SetEnvPrefix("ROSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have a fixed set of choices.
func (c *Config) Validate() error {
	switch c.Terminal.Completion {
	case "sentinel", "idle":
	default:
		return fmt.Errorf("invalid terminal.completion %q: must be sentinel or idle", c.Terminal.Completion)
	}
	switch c.Snapshot.Target {
	case "local":
	case "remote":
		if c.Snapshot.InstanceURL == "" {
			return fmt.Errorf("snapshot.instance_url is required when snapshot.target is remote")
		}
	default:
		return fmt.Errorf("invalid snapshot.target %q: must be local or remote", c.Snapshot.Target)
	}
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root is required")
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Mode == "development"
}
