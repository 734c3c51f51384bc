package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/otterscale/otterscale-tasks/internal/core"
)

func NewVersionCommand(version core.Version, newTasks TasksInjector) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the binary and controller versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "otterscale-tasks %s\n", version)

			tasks, cleanup, err := newTasks()
			if err != nil {
				return fmt.Errorf("failed to initialize tasks: %w", err)
			}
			defer cleanup()

			cv, err := tasks.Version.ControllerVersion(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to query controller version: %w", err)
			}
			fmt.Fprintf(out, "controller %s\n", cv.Raw)

			if !cv.Supported {
				slog.Warn("controller is older than the minimum supported version",
					"controller", cv.Raw,
					"minimum", core.MinControllerVersion,
				)
			}
			return nil
		},
	}
}
