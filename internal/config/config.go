package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	sslModeDisable = "disable"
	sslModeRequire = "require"
)

type (
	Config struct {
		Host       string `mapstructure:"HOST"`
		Port       string `mapstructure:"PORT"`
		DBHost     string `mapstructure:"DB_HOST"`
		DBPort     string `mapstructure:"DB_PORT"`
		DBUser     string `mapstructure:"DB_USER"`
		DBPassword string `mapstructure:"DB_PASSWORD"`
		DBName     string `mapstructure:"DB_NAME"`
		DBSSLMode  string `mapstructure:"DB_SSL_MODE"`

		// RedisAddr empty means change notifications stay in-process.
		RedisAddr     string `mapstructure:"REDIS_ADDR"`
		RedisPassword string `mapstructure:"REDIS_PASSWORD"`

		GeminiAPIKey  string `mapstructure:"GEMINI_API_KEY"`
		GeminiModel   string `mapstructure:"GEMINI_MODEL"`
		GeminiBaseURL string `mapstructure:"GEMINI_BASE_URL"`

		FetchTimeoutSec   int `mapstructure:"FETCH_TIMEOUT_SEC"`
		SummaryTimeoutSec int `mapstructure:"SUMMARY_TIMEOUT_SEC"`
	}
)

func NewConfig() (*Config, error) {
	viper.SetEnvPrefix("LINKBRIEF")

	viper.SetDefault("HOST", "0.0.0.0")
	viper.SetDefault("PORT", "1323")
	viper.SetDefault("DB_HOST", "0.0.0.0")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "db")
	viper.SetDefault("DB_SSL_MODE", sslModeDisable)
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("GEMINI_API_KEY", "")
	viper.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	viper.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	viper.SetDefault("FETCH_TIMEOUT_SEC", 10)
	viper.SetDefault("SUMMARY_TIMEOUT_SEC", 60)

	envs := []string{
		"HOST", "PORT",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
		"REDIS_ADDR", "REDIS_PASSWORD",
		"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
		"FETCH_TIMEOUT_SEC", "SUMMARY_TIMEOUT_SEC",
	}
	for _, key := range envs {
		if err := viper.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

func (c *Config) SummaryTimeout() time.Duration {
	return time.Duration(c.SummaryTimeoutSec) * time.Second
}

func validate(cfg *Config) error {
	validSSLValues := []string{sslModeDisable, sslModeRequire}
	sslOK := false
	for _, validValue := range validSSLValues {
		if cfg.DBSSLMode == validValue {
			sslOK = true
			break
		}
	}
	if !sslOK {
		return errors.New(fmt.Sprintf("DB SSL mode is invalid: %s", cfg.DBSSLMode))
	}
	if cfg.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	if cfg.FetchTimeoutSec <= 0 {
		return errors.New(fmt.Sprintf("fetch timeout is invalid: %d", cfg.FetchTimeoutSec))
	}
	if cfg.SummaryTimeoutSec <= 0 {
		return errors.New(fmt.Sprintf("summary timeout is invalid: %d", cfg.SummaryTimeoutSec))
	}
	return nil
}
