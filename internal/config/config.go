package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "BARBACK"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "barback.db"
	defaultLogLevel      = "info"
	defaultCookieName    = "app_session"
	defaultSessionIssuer = "barback-accounts"
	defaultBackupDir     = "backups"
	defaultRatePerMinute = 10
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	AdminAPIKey       string
	BackupDir         string
	RatePerMinute     int
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("batch.backup_dir", defaultBackupDir)
	configViper.SetDefault("batch.rate_per_minute", defaultRatePerMinute)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		SessionSigningKey: configViper.GetString("session.signing_secret"),
		SessionIssuer:     configViper.GetString("session.issuer"),
		SessionCookieName: configViper.GetString("session.cookie_name"),
		AdminAPIKey:       configViper.GetString("admin.api_key"),
		BackupDir:         configViper.GetString("batch.backup_dir"),
		RatePerMinute:     configViper.GetInt("batch.rate_per_minute"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.AdminAPIKey) == "" {
		return fmt.Errorf("admin.api_key is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.BackupDir) == "" {
		return fmt.Errorf("batch.backup_dir is required")
	}
	if c.RatePerMinute <= 0 {
		return fmt.Errorf("batch.rate_per_minute must be positive")
	}
	return nil
}
