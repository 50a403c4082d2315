package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clientflow/api/internal/clients"
	"clientflow/api/internal/store"
)

func NewClientsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage the client directory",
	}
	cmd.AddCommand(newClientsCheckCommand())
	cmd.AddCommand(newClientsImportCommand(rootOpts))
	return cmd
}

// ClientSummary is one row of `clients check` output.
type ClientSummary struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Contacts      int      `json:"contacts"`
	Domains       []string `json:"domains"`
	Labels        []string `json:"labels"`
	SetupComplete bool     `json:"setupComplete"`
}

func readDirectoryFile(path string) ([]clients.Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read directory file", err)
	}
	list, err := clients.ParseYAML(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid directory file", err)
	}
	return list, nil
}

func newClientsCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Parse a YAML client directory and print what it contains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := readDirectoryFile(args[0])
			if err != nil {
				return err
			}
			out := make([]ClientSummary, 0, len(list))
			for _, c := range list {
				out = append(out, ClientSummary{
					ID:            c.ID,
					Name:          c.Name,
					Contacts:      len(c.Contacts),
					Domains:       c.Domains,
					Labels:        []string{c.Labels.Base, c.Labels.Summaries, c.Labels.Agendas},
					SetupComplete: c.SetupComplete,
				})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newClientsImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Upsert a YAML client directory into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			list, err := readDirectoryFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := openDatabase(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := store.NewPostgresStore(conn).UpsertClients(ctx, list); err != nil {
				return fmt.Errorf("import clients: %w", err)
			}
			rootOpts.Logger(cmd.ErrOrStderr()).Info("clients imported", "count", len(list), "file", args[0])
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d clients\n", len(list))
			return err
		},
	}
}
