package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Directory modes select where course and student metadata come from.
const (
	DirectoryStatic   = "static"
	DirectoryHTTP     = "http"
	DirectoryDatabase = "database"
)

// Config is decoded from flat, upper-case environment keys. Each sub-config
// is squashed so DatabaseConfig.Host reads DB_HOST.
type Config struct {
	Env       string `mapstructure:"env"`
	Port      int    `mapstructure:"port"`
	APIPrefix string `mapstructure:"api_prefix"`

	Database      DatabaseConfig     `mapstructure:",squash"`
	Redis         RedisConfig        `mapstructure:",squash"`
	CORS          CORSConfig         `mapstructure:",squash"`
	Log           LogConfig          `mapstructure:",squash"`
	Admission     AdmissionConfig    `mapstructure:",squash"`
	Directory     DirectoryConfig    `mapstructure:",squash"`
	Notifications NotificationConfig `mapstructure:",squash"`
	CourseCache   CourseCacheConfig  `mapstructure:",squash"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"db_host"`
	Port         int    `mapstructure:"db_port"`
	User         string `mapstructure:"db_user"`
	Password     string `mapstructure:"db_password"`
	Name         string `mapstructure:"db_name"`
	SSLMode      string `mapstructure:"db_ssl_mode"`
	MaxOpenConns int    `mapstructure:"db_max_open_conns"`
	MaxIdleConns int    `mapstructure:"db_max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"db_auto_migrate"`

	// SectionTimeout bounds one course section transaction.
	SectionTimeout time.Duration `mapstructure:"db_section_timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"redis_host"`
	Port     int    `mapstructure:"redis_port"`
	Password string `mapstructure:"redis_password"`
	DB       int    `mapstructure:"redis_db"`
	PoolSize int    `mapstructure:"redis_pool_size"`
}

type CORSConfig struct {
	RawOrigins     string        `mapstructure:"allowed_origins"`
	MaxAge         time.Duration `mapstructure:"cors_max_age"`
	AllowedOrigins []string      `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"log_level"`
	Format string `mapstructure:"log_format"`
}

// AdmissionConfig selects the backing store for ledgers, logs and queues.
type AdmissionConfig struct {
	StoreDriver string `mapstructure:"store_driver"`
}

// DirectoryConfig describes how to reach the course and student directories.
type DirectoryConfig struct {
	Mode        string        `mapstructure:"directory_mode"`
	CatalogFile string        `mapstructure:"catalog_file"`
	CourseURL   string        `mapstructure:"course_directory_url"`
	StudentURL  string        `mapstructure:"student_directory_url"`
	Timeout     time.Duration `mapstructure:"directory_timeout"`
	MaxRetries  int           `mapstructure:"directory_max_retries"`
}

// NotificationConfig tunes the event dispatch worker pool.
type NotificationConfig struct {
	Workers      int           `mapstructure:"notify_workers"`
	BufferSize   int           `mapstructure:"notify_buffer"`
	MaxRetries   int           `mapstructure:"notify_retries"`
	RetryDelay   time.Duration `mapstructure:"notify_retry_delay"`
	RedisEnabled bool          `mapstructure:"enable_redis_events"`
	Channel      string        `mapstructure:"events_channel"`
}

// CourseCacheConfig governs caching of course metadata (never capacity).
type CourseCacheConfig struct {
	Enabled bool          `mapstructure:"enable_course_cache"`
	TTL     time.Duration `mapstructure:"course_cache_ttl"`
}

var defaults = map[string]interface{}{
	"env":        EnvDevelopment,
	"port":       8080,
	"api_prefix": "/api/v1",

	"db_host":            "localhost",
	"db_port":            5432,
	"db_user":            "postgres",
	"db_password":        "postgres",
	"db_name":            "course_admission",
	"db_ssl_mode":        "disable",
	"db_max_open_conns":  20,
	"db_max_idle_conns":  5,
	"db_auto_migrate":    true,
	"db_section_timeout": "5s",

	"redis_host":      "localhost",
	"redis_port":      6379,
	"redis_password":  "",
	"redis_db":        0,
	"redis_pool_size": 10,

	"allowed_origins": "",
	"cors_max_age":    "10m",
	"log_level":       "info",
	"log_format":      "json",

	"store_driver": StoreMemory,

	"directory_mode":        DirectoryStatic,
	"catalog_file":          "./catalog.yaml",
	"course_directory_url":  "",
	"student_directory_url": "",
	"directory_timeout":     "2s",
	"directory_max_retries": 3,

	"notify_workers":      2,
	"notify_buffer":       256,
	"notify_retries":      3,
	"notify_retry_delay":  "1s",
	"enable_redis_events": false,
	"events_channel":      "admission.events",

	"enable_course_cache": false,
	"course_cache_ttl":    "5m",
}

// Load reads configuration from the environment, a .env file in the working
// directory, and the optional file named by CONFIG_FILE, in that precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Admission.StoreDriver = strings.ToLower(c.Admission.StoreDriver)
	c.Directory.Mode = strings.ToLower(c.Directory.Mode)
	c.Directory.CourseURL = strings.TrimRight(c.Directory.CourseURL, "/")
	c.Directory.StudentURL = strings.TrimRight(c.Directory.StudentURL, "/")
	c.CORS.AllowedOrigins = splitAndTrim(c.CORS.RawOrigins)
}

// NeedsDatabase reports whether any configured component talks to Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.Admission.StoreDriver == StorePostgres || c.Directory.Mode == DirectoryDatabase
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Notifications.RedisEnabled || c.CourseCache.Enabled
}

func (c *Config) validate() error {
	switch c.Admission.StoreDriver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Admission.StoreDriver)
	}
	switch c.Directory.Mode {
	case DirectoryStatic:
		if c.Directory.CatalogFile == "" {
			return fmt.Errorf("CATALOG_FILE is required when DIRECTORY_MODE=%s", DirectoryStatic)
		}
	case DirectoryHTTP:
		if c.Directory.CourseURL == "" || c.Directory.StudentURL == "" {
			return fmt.Errorf("COURSE_DIRECTORY_URL and STUDENT_DIRECTORY_URL are required when DIRECTORY_MODE=%s", DirectoryHTTP)
		}
	case DirectoryDatabase:
		if c.Admission.StoreDriver != StorePostgres {
			return fmt.Errorf("DIRECTORY_MODE=%s requires STORE_DRIVER=%s", DirectoryDatabase, StorePostgres)
		}
	default:
		return fmt.Errorf("unsupported DIRECTORY_MODE %q", c.Directory.Mode)
	}
	return nil
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
