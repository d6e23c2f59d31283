// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Game    GameConfig    `mapstructure:"game"`
	Demo    DemoConfig    `mapstructure:"demo"`
	Reward  RewardConfig  `mapstructure:"reward"`
	Admin   AdminConfig   `mapstructure:"admin"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

// StorageConfig selects the ledger backend and the on-disk paths.
// Driver is "file" or "postgres".
type StorageConfig struct {
	Driver     string         `mapstructure:"driver"`
	LedgerPath string         `mapstructure:"ledger_path"`
	MirrorPath string         `mapstructure:"mirror_path"`
	Database   DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the postgres
// ledger driver.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// GameConfig holds the session state machine constants.
type GameConfig struct {
	PairBonus       int           `mapstructure:"pair_bonus"`
	MismatchPenalty int           `mapstructure:"mismatch_penalty"`
	MaxDuration     time.Duration `mapstructure:"max_duration"`
	FlipDelay       time.Duration `mapstructure:"flip_delay"`
	MismatchDelay   time.Duration `mapstructure:"mismatch_delay"`
}

// DemoConfig holds the idle attract-mode pacing.
type DemoConfig struct {
	IdleDelay    time.Duration `mapstructure:"idle_delay"`
	StepInterval time.Duration `mapstructure:"step_interval"`
	RestartPause time.Duration `mapstructure:"restart_pause"`
}

// RewardConfig holds the discount rule parameters.
type RewardConfig struct {
	Threshold    int `mapstructure:"threshold"`
	CooldownDays int `mapstructure:"cooldown_days"`
}

// AdminConfig holds the administrative view configuration.
type AdminConfig struct {
	Passphrase string        `mapstructure:"passphrase"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Cooldown returns the configured cooldown window as a duration.
func (r *RewardConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownDays) * 24 * time.Hour
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. SERVER_PORT, STORAGE_DRIVER, ADMIN_PASSPHRASE.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "file", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q (want file or postgres)", c.Storage.Driver)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Server.Port)
	}
	if c.Admin.Passphrase == "" {
		return fmt.Errorf("admin.passphrase must be set")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	// Storage defaults
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.ledger_path", "data/giocatori.json")
	v.SetDefault("storage.mirror_path", "data/giocatori.csv")
	v.SetDefault("storage.database.host", "localhost")
	v.SetDefault("storage.database.port", 5432)
	v.SetDefault("storage.database.user", "giocasconto")
	v.SetDefault("storage.database.name", "giocasconto")
	v.SetDefault("storage.database.pool_size", 10)
	v.SetDefault("storage.database.connect_timeout", "10s")
	v.SetDefault("storage.database.max_conn_lifetime", "1h")
	v.SetDefault("storage.database.max_conn_idle_time", "30m")

	// Game defaults
	v.SetDefault("game.pair_bonus", 150)
	v.SetDefault("game.mismatch_penalty", 50)
	v.SetDefault("game.max_duration", "2m")
	v.SetDefault("game.flip_delay", "500ms")
	v.SetDefault("game.mismatch_delay", "800ms")

	// Demo defaults
	v.SetDefault("demo.idle_delay", "30s")
	v.SetDefault("demo.step_interval", "1400ms")
	v.SetDefault("demo.restart_pause", "2500ms")

	// Reward defaults
	v.SetDefault("reward.threshold", 1000)
	v.SetDefault("reward.cooldown_days", 30)

	// Admin defaults
	v.SetDefault("admin.token_ttl", "30m")
}
