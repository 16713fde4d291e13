// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errEvalFailed is returned by the eval command if any form raised an error.
var errEvalFailed = errors.New("evaluation failed")

func newEvalCmd(flags *rootFlags) *cobra.Command {
	var echo bool
	cmd := &cobra.Command{
		Use:   "eval FORM...",
		Short: "Evaluate forms non-interactively, then exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if f, ok := cmd.OutOrStdout().(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
				cfg.UI.Color = false
			}

			x, err := newApp(cfg, appOptions{
				stdout: cmd.OutOrStdout(),
				stderr: cmd.ErrOrStderr(),
				echo:   echo,
			})
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, x.close()) }()

			ctx := cmd.Context()
			if err := x.start(ctx); err != nil {
				return err
			}

			for _, form := range args {
				src := strings.TrimSpace(form)
				if src == "" {
					continue
				}
				if n := depth(src); n != 0 {
					return fmt.Errorf("unbalanced form: %q", src)
				}
				if err := x.eval(ctx, src); err != nil {
					return err
				}
				if x.pendingMacro() != "" {
					return errors.New("macro definitions require consent, pass --macros")
				}
			}

			if x.errorCount() != 0 {
				return errEvalFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&echo, "echo", false, "echo each form before its output")
	return cmd
}
