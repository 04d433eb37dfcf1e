// Package config loads Edil-Check settings from a config file, a .env file
// and EDIL_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Account   string          `mapstructure:"account"`
	Mode      string          `mapstructure:"mode"`
	DataPath  string          `mapstructure:"data_path"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`

	// File is the config file that was read, or "" when none was found.
	File string `mapstructure:"-"`
}

type RemoteConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Email    string        `mapstructure:"email"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	DSN            string        `mapstructure:"dsn"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type DashboardConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	OriginPatterns []string `mapstructure:"origin_patterns"`
}

type SnapshotConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
	// Dir stores snapshots in a local directory when Bucket is empty.
	Dir string `mapstructure:"dir"`
}

// Dir returns the per-user state directory, $HOME/.edilcheck.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".edilcheck"
	}
	return filepath.Join(home, ".edilcheck")
}

func setDefaults(v *viper.Viper) {
	dir := Dir()

	v.SetDefault("account", "")
	v.SetDefault("mode", "local-only")
	v.SetDefault("data_path", filepath.Join(dir, "edil.db"))

	v.SetDefault("remote.host", "localhost")
	v.SetDefault("remote.port", 3002)
	v.SetDefault("remote.email", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.timeout", "0s")

	v.SetDefault("log.file", filepath.Join(dir, "edil.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("server.addr", ":3002")
	v.SetDefault("server.dsn", filepath.Join(dir, "server.db"))
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.token_ttl", "24h")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("dashboard.host", "127.0.0.1")
	v.SetDefault("dashboard.origin_patterns", []string{})

	v.SetDefault("snapshot.bucket", "")
	v.SetDefault("snapshot.prefix", "edilcheck")
	v.SetDefault("snapshot.region", "eu-south-1")
	v.SetDefault("snapshot.dir", filepath.Join(dir, "snapshots"))
}

// Load reads the configuration. When cfgFile is empty the file edil.{yaml,
// toml,json} is looked up in the working directory and in Dir(). A missing
// config file is not an error; a missing explicit cfgFile is.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EDIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("edil")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if cfg.Account == "" {
		cfg.Account = cfg.Remote.Email
	}
	return &cfg, nil
}
