// Package main is the entry point for the otterscale-tasks binary. It
// supports three subcommands:
//
//   - server:  runs the task actions behind an authenticated HTTP API
//   - sync:    syncs one application and optionally waits for it
//   - version: prints the binary and controller versions
//
// Dependencies are assembled via Google Wire; see wire.go.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otterscale/otterscale-tasks/internal/cmd"
	"github.com/otterscale/otterscale-tasks/internal/cmd/server"
	"github.com/otterscale/otterscale-tasks/internal/config"
	"github.com/otterscale/otterscale-tasks/internal/core"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	// Cancel on SIGINT (Ctrl+C) or SIGTERM (container runtime).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// Cobra is configured with SilenceErrors: true, so we
		// print the error here for consistent formatting.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration and executes the root Cobra command.
func run(ctx context.Context) error {
	conf, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rootCmd, err := newCmd(conf)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return rootCmd.ExecuteContext(ctx)
}

// newCmd constructs the root Cobra command and registers the
// subcommands. The version is captured by closures passed to the Wire
// injectors so that the injector type signatures remain unchanged.
func newCmd(conf *config.Config) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:           "otterscale-tasks",
		Short:         "OtterScale Tasks: workflow actions for continuous-delivery controllers.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if conf.LogDebug() {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
		},
	}

	if err := conf.BindFlags(c.PersistentFlags(), config.GlobalOptions); err != nil {
		return nil, err
	}
	if err := conf.BindFlags(c.PersistentFlags(), config.ArgoCDOptions); err != nil {
		return nil, err
	}

	v := core.Version(version)

	serverCmd, err := cmd.NewServerCommand(conf, func() (*server.Server, func(), error) {
		return wireServer(v, conf)
	})
	if err != nil {
		return nil, err
	}

	newTasks := func() (*cmd.Tasks, func(), error) {
		return wireTasks(conf)
	}

	syncCmd, err := cmd.NewSyncCommand(conf, newTasks)
	if err != nil {
		return nil, err
	}

	c.AddCommand(serverCmd, syncCmd, cmd.NewVersionCommand(v, newTasks))

	return c, nil
}
