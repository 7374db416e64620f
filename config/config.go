package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App      `json:"app"      toml:"app"`
		HTTP     `json:"http"     toml:"http"`
		DB       `json:"db"       toml:"db"`
		Redis    `json:"redis"    toml:"redis"`
		Rates    `json:"rates"    toml:"rates"`
		Notifier `json:"notifier" toml:"notifier"`
		Retry    `json:"retry"    toml:"retry"`
		Log      `json:"logger"   toml:"logger"`
	}

	App struct {
		Name        string `json:"name"        toml:"name"        env:"APP_NAME"`
		Environment string `json:"environment" toml:"environment" env:"ENV_NAME" env-default:"dev"`
		Debug       bool   `json:"debug"       toml:"debug"       env:"DEBUG"    env-default:"false"`
	}

	HTTP struct {
		Port string `json:"port" toml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	DB struct {
		DatabaseURL       string `json:"database_url"        toml:"database_url"        env:"DATABASE_URL"`
		PoolMax           int32  `json:"pool_max"            toml:"pool_max"            env:"PG_POOL_MAX" env-required:"true"`
		ConnectTimeout    int    `json:"connect_timeout"     toml:"connect_timeout"     env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period" toml:"health_check_period" env:"PG_POOL_HEALTHCHECK" env-default:"1"`
	}

	Redis struct {
		URL string `json:"url" toml:"url" env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
	}

	Rates struct {
		APIURL          string `json:"api_url"           toml:"api_url"           env:"RATES_API_URL"`
		APIKey          string `json:"api_key"           toml:"api_key"           env:"RATES_API_KEY"`
		TimeoutSeconds  int    `json:"timeout_seconds"   toml:"timeout_seconds"   env:"RATES_TIMEOUT" env-default:"5"`
		CacheTTLSeconds int    `json:"cache_ttl_seconds" toml:"cache_ttl_seconds" env:"RATES_CACHE_TTL" env-default:"60"`
	}

	Notifier struct {
		APIURL    string `json:"api_url"    toml:"api_url"    env:"NOTIFIER_API_URL"`
		APIKey    string `json:"api_key"    toml:"api_key"    env:"NOTIFIER_API_KEY"`
		FromEmail string `json:"from_email" toml:"from_email" env:"NOTIFIER_FROM" env-default:"noreply@forex-wallet.app"`
	}

	Retry struct {
		MaxAttempts        int `json:"max_attempts"           toml:"max_attempts"           env:"RETRY_MAX_ATTEMPTS" env-default:"3"`
		BackoffBaseSeconds int `json:"backoff_base_seconds"   toml:"backoff_base_seconds"   env:"RETRY_BACKOFF_BASE" env-default:"2"`
		Concurrency        int `json:"concurrency"            toml:"concurrency"            env:"RETRY_CONCURRENCY" env-default:"4"`
		SweepIntervalMin   int `json:"sweep_interval_minutes" toml:"sweep_interval_minutes" env:"RETRY_SWEEP_INTERVAL" env-default:"10"`
		StaleAfterMin      int `json:"stale_after_minutes"    toml:"stale_after_minutes"    env:"RETRY_STALE_AFTER" env-default:"30"`
	}

	Log struct {
		Level slog.Level `json:"level" toml:"level" env:"LOG_LEVEL"`
	}
)

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJsonPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJsonPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	err = cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	return cfg, nil
}
