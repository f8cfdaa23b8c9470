// Package config loads engine settings from .vault/var.vc and VAULT_*
// environment variables.
//
// var.vc is a KEY=VALUE file:
//
//	MASTER_KEY=<64 hex characters>
//	TOKEN=<build token>
//	LEDGER=.vault/ledger.db
//	MATERIALIZE_OPTIONALS=false
//	STRICT_NAMES=false
//
// Environment variables (VAULT_MASTER_KEY, VAULT_TOKEN, ...) override the
// file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/0bArc/Vault/internal/archive"
)

const (
	// DirName is the per-project settings directory.
	DirName = ".vault"
	// FileName is the settings file inside DirName.
	FileName = "var.vc"
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "VAULT"
)

// Config holds engine settings.
type Config struct {
	MasterKey            string `mapstructure:"master_key" validate:"required,hexadecimal,len=64"`
	Token                string `mapstructure:"token" validate:"required"`
	Ledger               string `mapstructure:"ledger"`
	MaterializeOptionals bool   `mapstructure:"materialize_optionals"`
	StrictNames          bool   `mapstructure:"strict_names"`

	// Path is the settings file that was read, empty if none.
	Path string `mapstructure:"-"`
}

// LoadOptions controls where settings are read from.
type LoadOptions struct {
	// Path is an explicit settings file. It must exist.
	Path string
	// Dir is searched for .vault/var.vc when Path is empty. Defaults to ".".
	Dir string
}

var keys = []string{"master_key", "token", "ledger", "materialize_optionals", "strict_names"}

// Load reads settings. A missing default file is not an error: the
// environment alone may configure the engine. Load does not validate;
// call Validate or Keyring before sealing anything.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, k := range keys {
		v.SetDefault(k, "")
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}
	v.SetDefault("materialize_optionals", false)
	v.SetDefault("strict_names", false)

	path := opts.Path
	if path == "" {
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, DirName, FileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("dotenv")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.MasterKey = strings.ToLower(strings.TrimSpace(cfg.MasterKey))
	cfg.Path = path
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the sealing settings.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	source := "environment"
	if c.Path != "" {
		source = c.Path
	}
	return fmt.Errorf("invalid configuration (%s): %s", source, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	name := envName(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "hexadecimal", "len":
		return fmt.Sprintf("%s must be %d hex characters", name, archive.KeySize*2)
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}

func envName(field string) string {
	switch field {
	case "MasterKey":
		return "MASTER_KEY"
	case "Token":
		return "TOKEN"
	default:
		return strings.ToUpper(field)
	}
}

// Keyring validates c and derives the sealing keys.
func (c *Config) Keyring() (*archive.Keyring, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return archive.ParseKeyring(c.MasterKey, c.Token)
}
