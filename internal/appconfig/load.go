// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package appconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. REPLETE_DEVICE_IDIOM.
const EnvPrefix = "REPLETE"

// Load reads configuration from the provided path. If path is empty, uses
// DefaultConfigPath. A missing file is not an error, defaults and
// environment overrides still apply.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("bundle.dir", cfg.Bundle.Dir)
	v.SetDefault("root", cfg.Root)
	v.SetDefault("device.idiom", cfg.Device.Idiom)
	v.SetDefault("device.debug", cfg.Device.Debug)
	v.SetDefault("device.simulator", cfg.Device.Simulator)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("ui.color", cfg.UI.Color)
	v.SetDefault("ui.width", cfg.UI.Width)
	v.SetDefault("macros.consented", cfg.Macros.Consented)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Bundle.Dir = expandEnv(cfg.Bundle.Dir)
	cfg.Root = expandEnv(cfg.Root)
	cfg.Logging.File = expandEnv(cfg.Logging.File)

	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		return Config{}, fmt.Errorf("logging.level: %w", err)
	}
	if cfg.UI.Width < 0 {
		return Config{}, fmt.Errorf("ui.width must not be negative")
	}
	return cfg, nil
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, value[1:])
		}
	}
	return os.Expand(value, func(key string) string {
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}
	return path, Save(path, cfg)
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// SaveMacroConsent marks macro definitions as consented to in the config
// file at path, or DefaultConfigPath if path is empty, returning the path
// written. Settings already in the file are preserved.
func SaveMacroConsent(path string) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}
	cfg, err := Load(path)
	if err != nil {
		return "", err
	}
	if cfg.Macros.Consented {
		return path, nil
	}
	cfg.Macros.Consented = true
	return path, Save(path, cfg)
}
