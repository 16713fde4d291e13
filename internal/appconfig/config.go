// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package appconfig loads the configuration of the replete command.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeycumines/logiface"
)

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	Bundle        BundleConfig  `mapstructure:"bundle" yaml:"bundle"`
	Root          string        `mapstructure:"root" yaml:"root"`
	Device        DeviceConfig  `mapstructure:"device" yaml:"device"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
	UI            UIConfig      `mapstructure:"ui" yaml:"ui"`
	Macros        MacrosConfig  `mapstructure:"macros" yaml:"macros"`
}

// BundleConfig locates the compiled script bundle.
type BundleConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// DeviceConfig is reported to the script environment during init.
type DeviceConfig struct {
	Idiom     string `mapstructure:"idiom" yaml:"idiom"`
	Debug     bool   `mapstructure:"debug" yaml:"debug"`
	Simulator bool   `mapstructure:"simulator" yaml:"simulator"`
}

// LoggingConfig controls diagnostic logging, which is separate from REPL
// output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// File receives JSON lines, empty means stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// UIConfig controls the terminal front end.
type UIConfig struct {
	Color bool `mapstructure:"color" yaml:"color"`
	// Width overrides the detected terminal width, if > 0.
	Width int `mapstructure:"width" yaml:"width"`
}

// MacrosConfig persists consent to defining macros in the REPL.
type MacrosConfig struct {
	Consented bool `mapstructure:"consented" yaml:"consented"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	dir, err := dataDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Bundle: BundleConfig{
			Dir: filepath.Join(dir, "bundle"),
		},
		Root: filepath.Join(dir, "root"),
		Device: DeviceConfig{
			Idiom: "terminal",
		},
		Logging: LoggingConfig{
			Level: logiface.LevelWarning.String(),
		},
		UI: UIConfig{
			Color: true,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "replete", "config.yaml"), nil
}

func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".replete"), nil
}

// ParseLevel converts a level name, as rendered by [logiface.Level.String],
// or a common alias of one, into a level.
func ParseLevel(s string) (logiface.Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "error":
		return logiface.LevelError, nil
	case "warn":
		return logiface.LevelWarning, nil
	case "information":
		return logiface.LevelInformational, nil
	case "critical":
		return logiface.LevelCritical, nil
	case "emergency":
		return logiface.LevelEmergency, nil
	case "off", "none":
		return logiface.LevelDisabled, nil
	}
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == name {
			return level, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
}
