package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otterscale/otterscale-tasks/internal/app"
	"github.com/otterscale/otterscale-tasks/internal/config"
	"github.com/otterscale/otterscale-tasks/internal/core"
)

func NewSyncCommand(conf *config.Config, newTasks TasksInjector) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "sync NAME",
		Short: "Sync an application and optionally wait until it is reconciled",
		Example: "otterscale-tasks sync guestbook --revision=v1.2.0 --wait --timeout=5m\n" +
			"otterscale-tasks sync guestbook --resources=apps:Deployment:prod/web --prune",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, cleanup, err := newTasks()
			if err != nil {
				return fmt.Errorf("failed to initialize tasks: %w", err)
			}
			defer cleanup()

			opts, err := syncOptionsFromConfig(conf, args[0])
			if err != nil {
				return err
			}

			application, err := tasks.ArgoCD.Sync(cmd.Context(), opts)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(application)
		},
	}

	if err := conf.BindFlags(cmd.Flags(), config.SyncOptions); err != nil {
		return nil, err
	}

	return cmd, nil
}

func syncOptionsFromConfig(conf *config.Config, name string) (*app.SyncOptions, error) {
	opts, err := app.NewSyncOptions(name, conf.SyncRevision(), conf.SyncDryRun(), conf.SyncPrune(), conf.SyncResources())
	if err != nil {
		return nil, err
	}

	opts.Wait = conf.SyncWait()
	opts.Timeout = conf.SyncTimeout()
	opts.Policy = core.TerminationPolicy{
		WatchHealth:    conf.SyncWatchHealth(),
		WatchSuspended: conf.SyncWatchSuspended(),
		WatchSync:      conf.SyncWatchSync(),
		WatchOperation: conf.SyncWatchOperation(),
	}
	opts.Retry = core.RetryPolicy{
		Attempts:  conf.SyncRetryAttempts(),
		BaseDelay: conf.SyncRetryBackoff(),
		MaxDelay:  8 * conf.SyncRetryBackoff(),
	}
	return opts, nil
}
