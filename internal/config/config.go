// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package config loads and validates Mnemo configuration from file,
// environment, and defaults via viper. The loaded Config struct is built
// once at process start and passed into constructors; nothing reads viper
// lazily at call time.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// Config is the top-level Mnemo configuration.
type Config struct {
	DataDir   string                    `mapstructure:"data_dir"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Embedding EmbeddingConfig           `mapstructure:"embedding"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	LLM       LLMConfig                 `mapstructure:"llm"`
	Search    SearchConfig              `mapstructure:"search"`
	Server    ServerConfig              `mapstructure:"server"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	VectorDimensions int    `mapstructure:"vector_dimensions"`
}

// EmbeddingConfig selects the embedding provider and model.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

// ProviderConfig holds credentials and endpoint for one provider. APIKey may
// be a literal value or a keyring:// URI.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// LLMConfig controls the chat completion client.
type LLMConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxAttempts int     `mapstructure:"max_attempts"`
}

// SearchConfig sets similarity search defaults.
type SearchConfig struct {
	K      int     `mapstructure:"k"`
	Cutoff float64 `mapstructure:"cutoff"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// SetDefaults installs every default value on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.vector_dimensions", 1536)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("search.k", 10)
	v.SetDefault("search.cutoff", 0.4)
	v.SetDefault("server.listen", "127.0.0.1:18990")
}

// SetupEnv enables MNEMO_-prefixed environment overrides, with dots in keys
// mapped to underscores (e.g. MNEMO_STORAGE_BACKEND).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from path (optional) with environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, mnemoerr.Errorf(mnemoerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a fully-populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, mnemoerr.Errorf(mnemoerr.CodeConfigLoadReadFailure, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors, collecting all
// issues rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateLLM()...)
	errs = append(errs, c.validateSearch()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q",
			c.Storage.Backend))
	}

	if c.Storage.VectorDimensions <= 0 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: storage.vector_dimensions must be greater than 0, got %d",
			c.Storage.VectorDimensions))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	if c.Embedding.Provider == "" {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: embedding.provider must not be empty"))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: embedding.model must not be empty"))
	}

	return errs
}

func (c *Config) validateLLM() []error {
	var errs []error

	if c.LLM.Model == "" {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: llm.model must not be empty"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: llm.temperature must be between 0 and 2, got %g",
			c.LLM.Temperature))
	}
	if c.LLM.MaxAttempts <= 0 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: llm.max_attempts must be greater than 0, got %d",
			c.LLM.MaxAttempts))
	}

	return errs
}

func (c *Config) validateSearch() []error {
	var errs []error

	if c.Search.K <= 0 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: search.k must be greater than 0, got %d", c.Search.K))
	}
	if c.Search.Cutoff < 0 || c.Search.Cutoff > 1 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: search.cutoff must be between 0 and 1, got %g", c.Search.Cutoff))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: server.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err))
		return errs
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}
