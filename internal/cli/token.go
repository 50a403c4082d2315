package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clientflow/api/internal/auth"
	"clientflow/api/internal/config"
	"clientflow/api/internal/rbac"
)

type tokenIssueOptions struct {
	subject string
	role    string
	ttl     time.Duration
}

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCommand())
	return cmd
}

func newTokenIssueCommand() *cobra.Command {
	opts := &tokenIssueOptions{}
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed bearer token for an operator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !rbac.Valid(opts.role) {
				return WrapExitError(ExitCommandError, "issue token", fmt.Errorf("unknown role %q", opts.role))
			}
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "load configuration", err)
			}
			ttl := cfg.TokenTTL
			if opts.ttl > 0 {
				ttl = opts.ttl
			}
			token, claims, err := auth.NewIssuer(cfg.TokenSecret, ttl).Issue(opts.subject, opts.role)
			if err != nil {
				return WrapExitError(ExitCommandError, "issue token", err)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"token":     token,
				"subject":   claims.Sub,
				"role":      claims.Role,
				"expiresAt": time.Unix(claims.Exp, 0).UTC().Format(time.RFC3339),
			})
		},
	}
	cmd.Flags().StringVar(&opts.subject, "subject", "", "operator identity, usually an email address")
	cmd.Flags().StringVar(&opts.role, "role", string(rbac.RoleViewer), "viewer, operator or admin")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "token lifetime (defaults to CLIENTFLOW_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
