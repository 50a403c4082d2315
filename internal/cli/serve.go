package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"clientflow/api/internal/app"
	"clientflow/api/internal/auth"
	"clientflow/api/internal/webhook"
)

type serveOptions struct {
	migrate   bool
	scheduler bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the trigger scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", true, "apply pending migrations on startup")
	cmd.Flags().BoolVar(&opts.scheduler, "scheduler", true, "run triggers on their intervals")
	return cmd
}

func runServe(parent context.Context, rootOpts *RootOptions, opts *serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := rootOpts.Logger(nil)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(ctx, cfg, logger, opts.migrate)
	if err != nil {
		return err
	}
	defer rt.close()

	if cfg.WebhookAllowUnsigned {
		logger.Warn("webhook signature enforcement is disabled")
	}
	deps := app.Deps{
		Store:    rt.store,
		Ledger:   rt.ledger,
		Meetings: rt.engine,
		Runner:   rt.scheduler,
		Search:   rt.search,
		Verifier: webhook.NewVerifier(cfg.WebhookSecret, !cfg.WebhookAllowUnsigned, logger),
		Tokens:   auth.NewIssuer(cfg.TokenSecret, cfg.TokenTTL),
		Logger:   logger,
	}
	if rt.guard != nil {
		deps.Guard = rt.guard
	}
	service := app.NewService(deps)

	if rt.meili != nil {
		go rt.search.Reindex(ctx, rt.pgfts.LoadNotes)
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.scheduler {
		g.Go(func() error {
			rt.scheduler.Start(gctx)
			return nil
		})
	}
	g.Go(func() error {
		return app.ListenAndServe(gctx, cfg.Addr, app.NewHTTPServer(service, cfg.CORSOrigin).Handler(), logger)
	})
	return g.Wait()
}
