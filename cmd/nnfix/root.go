package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/nnfix/internal/app"
	"github.com/hyperifyio/nnfix/internal/host"
	"github.com/hyperifyio/nnfix/internal/progress"
	"github.com/hyperifyio/nnfix/internal/server"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nnfix",
		Short:         "Rewrite Nynorsk web pages into Bokmål in place",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := newConfigFlags(root)

	var (
		output string
		noWait bool
	)
	correct := &cobra.Command{
		Use:   "correct <url|file>",
		Short: "Correct every eligible text on a page (manual trigger)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(cmd, flags, host.Manual, args[0], output, noWait)
		},
	}
	check := &cobra.Command{
		Use:   "check <url|file>",
		Short: "Identify the page language and correct it when it is Nynorsk (automatic trigger)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(cmd, flags, host.Load, args[0], output, noWait)
		},
	}
	for _, c := range []*cobra.Command{correct, check} {
		c.Flags().StringVarP(&output, "output", "o", "-", "Where to write the corrected HTML (- for stdout)")
		c.Flags().BoolVar(&noWait, "no-wait", false, "Exit without waiting for the progress indicator to finish")
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()
			s := &server.Server{Events: a.Dispatcher()}
			return s.ListenAndServe(cmd.Context(), a.Config().ListenAddr)
		},
	}

	showConfig := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			if cfg.LLMAPIKey != "" {
				cfg.LLMAPIKey = "***"
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	root.AddCommand(correct, check, serve, showConfig)
	return root
}

func newApp(cmd *cobra.Command, flags *configFlags) (*app.App, error) {
	cfg, err := flags.resolve(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	a, err := app.New(cmd.Context(), cfg, app.Options{Status: cmd.ErrOrStderr()})
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}
	return a, nil
}

func runEvent(cmd *cobra.Command, flags *configFlags, kind host.Kind, target, output string, noWait bool) error {
	a, err := newApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := a.Dispatcher().Handle(ctx, host.Event{Kind: kind, URL: targetURL(target), Ready: true})
	if out.Err != nil {
		return out.Err
	}
	if kind != host.Manual {
		d := out.Decision
		log.Info().
			Str("url", target).
			Str("state", string(d.State)).
			Str("best", d.Best).
			Float64("score", d.BestScore).
			Msg("language check")
		if d.Err != nil {
			return d.Err
		}
	}
	if !out.Ran {
		return nil
	}
	if !noWait {
		waitIndicator(ctx, out.Indicator)
	}
	if err := writeOutput(cmd.OutOrStdout(), output, out.Page); err != nil {
		return err
	}
	if kind == host.Manual && out.Stats.Total == 0 {
		return errNothingToDo
	}
	return nil
}

func waitIndicator(ctx context.Context, ind *progress.Indicator) {
	if ind == nil {
		return
	}
	select {
	case <-ind.Done():
	case <-ctx.Done():
	}
}

func writeOutput(stdout io.Writer, path string, p *host.Page) error {
	doc, err := p.HTML()
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	if path == "" || path == "-" {
		_, err = io.WriteString(stdout, doc)
		return err
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("corrected page written")
	return nil
}

// targetURL turns a command line argument into a URL. Anything without a
// scheme is a local file.
func targetURL(arg string) string {
	if u, err := url.Parse(arg); err == nil && len(u.Scheme) > 1 {
		return arg
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		abs = arg
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

