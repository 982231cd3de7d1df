package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "INKWELL"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = "sqlite"
	defaultDatabasePath    = "inkwell.db"
	defaultTokenTTLMinutes = 1440
	defaultAdminUsername   = "admin"
	defaultLogLevel        = "info"
	defaultLogMaxSizeMB    = 100
	defaultLogMaxBackups   = 5
	defaultLogMaxAgeDays   = 30
	// DefaultEnvFile is read when present; a missing default file is not an error.
	DefaultEnvFile = ".env"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string
	SigningSecret  string
	TokenTTL       time.Duration
	BcryptCost     int
	AdminUsername  string
	AdminPassword  string
	Log            LogConfig
}

// LogConfig configures the logger and its optional rotating file sink.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.bcrypt_cost", 0)
	configViper.SetDefault("admin.username", defaultAdminUsername)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.max_size_mb", defaultLogMaxSizeMB)
	configViper.SetDefault("log.max_backups", defaultLogMaxBackups)
	configViper.SetDefault("log.max_age_days", defaultLogMaxAgeDays)
}

// LoadEnvFile exports the variables of a dotenv file into the process
// environment without overriding variables that are already set.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && path == DefaultEnvFile && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: splitList(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		BcryptCost:     configViper.GetInt("auth.bcrypt_cost"),
		AdminUsername:  strings.TrimSpace(configViper.GetString("admin.username")),
		AdminPassword:  configViper.GetString("admin.password"),
		Log: LogConfig{
			Level:      configViper.GetString("log.level"),
			File:       strings.TrimSpace(configViper.GetString("log.file")),
			MaxSizeMB:  configViper.GetInt("log.max_size_mb"),
			MaxBackups: configViper.GetInt("log.max_backups"),
			MaxAgeDays: configViper.GetInt("log.max_age_days"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	switch c.DatabaseDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.AdminUsername == "" {
		return fmt.Errorf("admin.username is required")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("http.allowed_origins must not be empty")
	}
	return nil
}

// splitList accepts both list values and comma separated env values.
func splitList(values []string) []string {
	items := make([]string, 0, len(values))
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items
}
