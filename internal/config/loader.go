package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Harness  HarnessConfig  `mapstructure:"harness"`
	PPT      PPTConfig      `mapstructure:"ppt"`
	Features FeaturesConfig `mapstructure:"features"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// HarnessConfig points the console at the external agent harness backend.
type HarnessConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
}

type PPTConfig struct {
	AutosaveDelay time.Duration `mapstructure:"autosave_delay"`
	HistoryLimit  int           `mapstructure:"history_limit"`
	SecretKey     string        `mapstructure:"secret_key"`
}

type FeaturesConfig struct {
	RequestIDHeader      string `mapstructure:"request_id_header"`
	EnableRequestLogging bool   `mapstructure:"enable_request_logging"`
	LocalTaskCache       bool   `mapstructure:"local_task_cache"`
}

type AuthConfig struct {
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Harness runs and the outline stream hold responses open for minutes.
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stdout"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})

	v.SetDefault("harness.base_url", "http://localhost:8000")
	v.SetDefault("harness.timeout", 30*time.Second)
	v.SetDefault("harness.poll_interval", 3*time.Second)
	v.SetDefault("harness.retry_delay", 10*time.Second)

	v.SetDefault("ppt.autosave_delay", 800*time.Millisecond)
	v.SetDefault("ppt.history_limit", 20)
	v.SetDefault("ppt.secret_key", "")

	v.SetDefault("features.request_id_header", "X-Request-ID")
	v.SetDefault("features.enable_request_logging", false)
	v.SetDefault("features.local_task_cache", true)

	// Unmarshal only sees environment values for keys viper already knows.
	v.SetDefault("auth.admin_api_key", "")
	v.SetDefault("auth.allowed_origins", []string{})
}

// Load reads the YAML file at path and applies NANOBEE_* environment overrides.
// An empty path loads defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("NANOBEE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Harness.BaseURL == "" {
		return errors.New("config: harness.base_url is required")
	}
	if c.Harness.PollInterval <= 0 {
		return errors.New("config: harness.poll_interval must be positive")
	}
	if c.Harness.RetryDelay <= 0 {
		return errors.New("config: harness.retry_delay must be positive")
	}
	if c.PPT.AutosaveDelay < 0 {
		return errors.New("config: ppt.autosave_delay must not be negative")
	}
	if c.PPT.HistoryLimit <= 0 {
		return errors.New("config: ppt.history_limit must be positive")
	}
	return nil
}
