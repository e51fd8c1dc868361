package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`
	// LogOutput is stdout or stderr. Key output owns stdout in the CLI.
	LogOutput string `mapstructure:"log_output"`

	Hostname   string `mapstructure:"keyserver_hostname"`
	Port       string `mapstructure:"keyserver_port"`
	Username   string `mapstructure:"keyserver_username"`
	Password   string `mapstructure:"keyserver_password"`
	KeyIDParam string `mapstructure:"keyserver_key_id_param"`

	TransportTimeoutSeconds int64         `mapstructure:"transport_timeout_seconds"`
	TransportTimeout        time.Duration `mapstructure:"-"`
	ChainIntervalMillis     int64         `mapstructure:"chain_interval_ms"`
	ChainInterval           time.Duration `mapstructure:"-"`

	NotifiersFile string `mapstructure:"notifiers_file"`
	ErrorLogDir   string `mapstructure:"error_log_dir"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// LoadWith reads configuration from environment variables and configs/.env
// into v. Command-line flags bound to v take precedence over the environment.
// A nil v starts from a fresh viper instance.
func LoadWith(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load("configs/.env")
	if v == nil {
		v = viper.New()
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("app_name", "keytrans-client")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_output", "stderr")
	v.SetDefault("keyserver_hostname", "localhost")
	v.SetDefault("keyserver_port", "8000")
	v.SetDefault("keyserver_username", "user")
	v.SetDefault("keyserver_password", "password")
	v.SetDefault("keyserver_key_id_param", "keyId")
	v.SetDefault("transport_timeout_seconds", 15)
	v.SetDefault("chain_interval_ms", 0)
	v.SetDefault("notifiers_file", "")
	v.SetDefault("error_log_dir", "./logs")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/failures.db")
	v.SetDefault("storage_ttl_seconds", int64((7*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((6*time.Hour)/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.LogOutput = strings.ToLower(strings.TrimSpace(cfg.LogOutput))
	if cfg.LogOutput != "stdout" && cfg.LogOutput != "stderr" {
		return nil, fmt.Errorf("invalid log_output %q (must be stdout or stderr)", cfg.LogOutput)
	}

	cfg.Hostname = strings.TrimSpace(cfg.Hostname)
	cfg.Port = strings.TrimSpace(cfg.Port)
	if cfg.Hostname == "" {
		return nil, fmt.Errorf("invalid keyserver_hostname (must not be empty)")
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("invalid keyserver_port (must not be empty)")
	}

	if cfg.TransportTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid transport_timeout_seconds (must be positive seconds)")
	}
	cfg.TransportTimeout = time.Duration(cfg.TransportTimeoutSeconds) * time.Second

	if cfg.ChainIntervalMillis < 0 {
		return nil, fmt.Errorf("invalid chain_interval_ms (must not be negative)")
	}
	cfg.ChainInterval = time.Duration(cfg.ChainIntervalMillis) * time.Millisecond

	if cfg.StorageTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	return &cfg, nil
}
