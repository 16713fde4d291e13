// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command replete is a terminal ClojureScript REPL, hosting a compiled
// script bundle in an embedded engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(submain())
}

func submain() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "replete:", err)
		return 1
	}
	return 0
}

// rootFlags are the overrides shared by every command.
type rootFlags struct {
	configPath string
	bundleDir  string
	root       string
	device     string
	logFile    string
	logLevel   string
	noColor    bool
	macros     bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "replete",
		Short:         "ClojureScript REPL for the terminal",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			return runREPL(cmd.Context(), cfg, flags.configPath)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default is the user config dir)")
	pf.StringVar(&flags.bundleDir, "bundle", "", "directory containing the compiled script bundle")
	pf.StringVar(&flags.root, "root", "", "directory scripts see as the filesystem root")
	pf.StringVar(&flags.device, "device", "", "user interface idiom reported to scripts")
	pf.StringVar(&flags.logFile, "log-file", "", "write diagnostic logs to this file")
	pf.StringVar(&flags.logLevel, "log-level", "", "diagnostic log level")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable coloured output")
	pf.BoolVar(&flags.macros, "macros", false, "allow macro definitions without asking")

	root.AddCommand(newEvalCmd(&flags))
	root.AddCommand(newConfigCmd(&flags))

	return root
}
