package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendMemory     = "memory"
	BackendRedis      = "redis"
	BackendRemote     = "remote"
	BackendRelational = "relational"
)

type Config struct {
	Server       ServerConfig   `yaml:"server"`
	Database     DatabaseConfig `yaml:"database"`
	Redis        RedisConfig    `yaml:"redis"`
	Storage      StorageConfig  `yaml:"storage"`
	RemoteStore  ClientConfig   `yaml:"remote_store"`
	Refinement   ClientConfig   `yaml:"refinement_api"`
	Notification ClientConfig   `yaml:"notification_api"`
	JWT          JWTConfig      `yaml:"jwt"`
	Jobs         JobsConfig     `yaml:"jobs"`
	Logger       LoggerConfig   `yaml:"logger"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Mode            string        `yaml:"mode"`
	BasePath        string        `yaml:"base_path"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	// Driver is postgres or sqlite; sqlite reads URL as a file path
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// GetDSN returns URL when set, otherwise a key/value postgres DSN
func (d DatabaseConfig) GetDSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type StorageConfig struct {
	// Backend is one of memory, redis, remote or relational
	Backend string `yaml:"backend"`
	// ServeAPIKey enables the /store endpoints for other deployments when set
	ServeAPIKey string `yaml:"serve_api_key"`
}

// ClientConfig configures an outbound HTTP dependency. An empty BaseURL
// disables it.
type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type JobsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	StatsSchedule   string `yaml:"stats_schedule"`
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file or environment is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Mode:            "debug",
			BasePath:        "/api/crm",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Name:            "crm",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "crm",
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		RemoteStore:  ClientConfig{Timeout: 10 * time.Second},
		Refinement:   ClientConfig{Timeout: 60 * time.Second},
		Notification: ClientConfig{Timeout: 5 * time.Second},
		Jobs: JobsConfig{
			Enabled:         true,
			StatsSchedule:   "@every 1m",
			CleanupSchedule: "0 3 * * *",
		},
		Logger: LoggerConfig{Level: "info"},
	}
}

// Load reads path if it exists, then applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.Mode, "GIN_MODE")
	setString(&cfg.Server.BasePath, "SERVER_BASE_PATH")
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = strings.Split(origins, ",")
	}
	setString(&cfg.Logger.Level, "LOG_LEVEL")

	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")

	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")

	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.ServeAPIKey, "STORE_SERVE_API_KEY")
	setString(&cfg.RemoteStore.BaseURL, "REMOTE_STORE_URL")
	setString(&cfg.RemoteStore.APIKey, "REMOTE_STORE_API_KEY")
	setString(&cfg.Refinement.BaseURL, "REFINEMENT_API_URL")
	setString(&cfg.Refinement.APIKey, "REFINEMENT_API_KEY")
	setString(&cfg.Notification.BaseURL, "NOTIFICATION_API_URL")
	setString(&cfg.Notification.APIKey, "INTERNAL_API_KEY")

	setString(&cfg.JWT.Secret, "JWT_SECRET")
	if v := os.Getenv("JOBS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Jobs.Enabled = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate rejects combinations the server cannot start with
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendRelational:
	case BackendRemote:
		if c.RemoteStore.BaseURL == "" {
			return fmt.Errorf("storage backend %q requires remote_store.base_url", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	return nil
}
