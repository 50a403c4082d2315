package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := openDatabase(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer conn.Close()
			rootOpts.Logger(cmd.ErrOrStderr()).Info("migrations applied")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
}
