// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"fmt"

	"github.com/joeycumines/go-replete/internal/appconfig"
	"github.com/spf13/cobra"
)

// load reads the config file, then applies any flags that were set.
func (x *rootFlags) load(cmd *cobra.Command) (appconfig.Config, error) {
	cfg, err := appconfig.Load(x.configPath)
	if err != nil {
		return appconfig.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("bundle") {
		cfg.Bundle.Dir = x.bundleDir
	}
	if flags.Changed("root") {
		cfg.Root = x.root
	}
	if flags.Changed("device") {
		cfg.Device.Idiom = x.device
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = x.logFile
	}
	if flags.Changed("log-level") {
		if _, err := appconfig.ParseLevel(x.logLevel); err != nil {
			return appconfig.Config{}, err
		}
		cfg.Logging.Level = x.logLevel
	}
	if x.noColor {
		cfg.UI.Color = false
	}
	if x.macros {
		cfg.Macros.Consented = true
	}
	return cfg, nil
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			data, err := appconfig.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.AddCommand(newConfigInitCmd(flags))
	return cmd
}

func newConfigInitCmd(flags *rootFlags) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := appconfig.WriteDefault(flags.configPath, overwrite)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return err
		},
	}
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing file")
	return cmd
}
