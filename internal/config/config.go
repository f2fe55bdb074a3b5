// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	AI          AIConfig          `mapstructure:"ai"`
	Sync        SyncConfig        `mapstructure:"sync"`
	AutoInsight AutoInsightConfig `mapstructure:"auto_insight"`
}

type DatabaseConfig struct {
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Database        string            `mapstructure:"database"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	TLS             bool              `mapstructure:"tls"`
	Params          map[string]string `mapstructure:"params"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int               `mapstructure:"conn_max_lifetime_seconds"`
}

type AIConfig struct {
	Endpoint          string `mapstructure:"endpoint" validate:"omitempty,url"`
	MaxTokens         int    `mapstructure:"max_tokens" validate:"gte=0"`
	CooldownSeconds   int    `mapstructure:"cooldown_seconds" validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}

type SyncConfig struct {
	// Directory shared between running notesmith processes for change
	// notifications. When empty, notifications stay in-process.
	Directory string `mapstructure:"directory"`
}

type AutoInsightConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	IdleSeconds int  `mapstructure:"idle_seconds" validate:"gte=1"`
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/notesmith")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "notesmith")
	v.SetDefault("database.username", "user")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.cooldown_seconds", 3)
	v.SetDefault("ai.retry_delay_seconds", 3)
	v.SetDefault("sync.directory", filepath.Join("notesmith", "sync"))
	v.SetDefault("auto_insight.enabled", true)
	v.SetDefault("auto_insight.idle_seconds", 30)

	// The endpoint URL of the deployed AI proxy never has to live in a
	// checked-in config file.
	if err := v.BindEnv("ai.endpoint", "NOTESMITH_AI_ENDPOINT"); err != nil {
		return nil, fmt.Errorf("failed to bind NOTESMITH_AI_ENDPOINT environment variable: %w", err)
	}

	// Bind database password to environment variable
	if err := v.BindEnv("database.password", "DB_PASSWORD"); err != nil {
		return nil, fmt.Errorf("failed to bind DB_PASSWORD environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}

	return &cfg, nil
}
