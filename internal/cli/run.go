package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"clientflow/api/internal/apperr"
	"clientflow/api/internal/workflow"
)

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <trigger>",
		Short: "Run one trigger immediately and print its report",
		Long: `Run one trigger immediately: agenda, summaries, meetings, filters or prune.

Exits 1 when any event in the run failed and 2 when the trigger is unknown
or its integration is not configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(ctx, cfg, rootOpts.Logger(cmd.ErrOrStderr()), false)
			if err != nil {
				return err
			}
			defer rt.close()

			report, err := rt.scheduler.RunNow(ctx, args[0])
			if err != nil {
				if errors.Is(err, workflow.ErrUnknownTrigger) || apperr.IsConfiguration(err) {
					return WrapExitError(ExitCommandError, "run "+args[0], err)
				}
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if failed := report.Count(workflow.StateFailed); failed > 0 {
				return &ExitError{Code: ExitFailure, Message: "run finished with failed events"}
			}
			return nil
		},
	}
}
