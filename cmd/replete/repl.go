// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joeycumines/go-prompt"
	"github.com/joeycumines/go-replete/internal/appconfig"
	"github.com/mattn/go-colorable"
	"golang.org/x/term"
)

const (
	replPrefix    = "cljs.user=> "
	metaQuit      = ":quit"
	metaMacros    = ":macros"
	defaultWidth  = 80
	replIndentMax = 8
)

// terminalWidth returns the column count of fd, if it is a terminal.
func terminalWidth(fd int) int {
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

func runREPL(ctx context.Context, cfg appconfig.Config, configPath string) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		cfg.UI.Color = false
	}

	x, err := newApp(cfg, appOptions{
		stdout: colorable.NewColorableStdout(),
		stderr: colorable.NewColorableStderr(),
		width:  func() int { return terminalWidth(fd) },
		config: configPath,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := x.close(); err != nil {
			x.logger.Warning().Err(err).Log("replete: close failed")
		}
	}()

	if err := x.start(ctx); err != nil {
		return err
	}

	_, _ = io.WriteString(x.text.Writer(), x.banner())

	var runErr error
	p := prompt.New(
		func(in string) {
			if runErr != nil {
				return
			}
			if err := x.execute(ctx, in); err != nil {
				runErr = err
			}
		},
		prompt.WithPrefix(replPrefix),
		prompt.WithTitle("replete"),
		prompt.WithExecuteOnEnterCallback(executeOnEnter),
		prompt.WithExitChecker(func(in string, breakline bool) bool {
			return runErr != nil || (breakline && strings.TrimSpace(in) == metaQuit)
		}),
	)
	p.RunNoExit()

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// execute handles a single line (or form) of REPL input.
func (x *app) execute(ctx context.Context, in string) error {
	src := strings.TrimSpace(in)
	switch src {
	case "", metaQuit:
		return nil
	case metaMacros:
		if x.pendingMacro() == "" && x.coord.MacrosConsented() {
			return nil
		}
		if err := x.consent(ctx); err != nil {
			return err
		}
		x.persistConsent()
		return nil
	}
	return x.eval(ctx, src)
}

// banner greets the user, naming the compiler version if the bundle records
// it.
func (x *app) banner() string {
	var b strings.Builder
	if v, ok := x.bundle.ClojureScriptVersion(); ok {
		_, _ = fmt.Fprintf(&b, "ClojureScript %s\n", v)
		b.WriteString(bannerHelp)
	}
	_, _ = fmt.Fprintf(&b, "Type %s to exit.\n", metaQuit)
	return b.String()
}

const bannerHelp = `    Docs: (doc function-name)
          (find-doc "part-of-name")
  Source: (source function-name)
 Results: Stored in *1, *2, *3,
          an exception in *e
`

// executeOnEnter submits only balanced input, indenting continuation lines
// by the open bracket depth.
func executeOnEnter(p *prompt.Prompt, indentSize int) (int, bool) {
	n := depth(p.Buffer().Text())
	if n <= 0 {
		return 0, true
	}
	return min(n, replIndentMax), false
}
