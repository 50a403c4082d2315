package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clientflow/api/db"
	"clientflow/api/internal/ai"
	"clientflow/api/internal/clients"
	"clientflow/api/internal/config"
	"clientflow/api/internal/email"
	"clientflow/api/internal/filterguard"
	"clientflow/api/internal/ledger"
	"clientflow/api/internal/notes"
	"clientflow/api/internal/search"
	"clientflow/api/internal/store"
	"clientflow/api/internal/tasks"
	"clientflow/api/internal/webhook"
	"clientflow/api/internal/workflow"
	"clientflow/api/internal/workspace"
)

// runtime is everything a long-running or one-shot command needs. close
// releases connections in reverse order of acquisition.
type runtime struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	store     *store.PostgresStore
	ledger    *ledger.Ledger
	engine    *workflow.Engine
	scheduler *workflow.Scheduler
	search    *search.Service
	pgfts     *search.PgFTS
	meili     *search.Meili
	guard     *filterguard.Guard
	closers   []func()
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg config.Config, migrate bool) (*sql.DB, error) {
	conn, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if migrate {
		if err := store.ApplyMigrations(ctx, conn, db.Migrations, "migrations"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}
	return conn, nil
}

// buildRuntime wires the workflow engine from configuration. Optional
// integrations stay nil when unconfigured; the engine reports them as
// configuration errors at run time.
func buildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	conn, err := openDatabase(ctx, cfg, migrate)
	if err != nil {
		return nil, err
	}
	rt.db = conn
	rt.closers = append(rt.closers, func() { _ = conn.Close() })
	rt.store = store.NewPostgresStore(conn)

	var cache ledger.FastCache = ledger.NopCache{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := ledger.NewRedisCache(cfg.RedisURL, ledger.DefaultTTLs(cfg.NotifiedTTL, cfg.MessageTTL))
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = redisCache.Close() })
		cache = redisCache
		logger.Info("ledger fast tier enabled", "backend", "redis")
	} else {
		logger.Info("ledger fast tier disabled, using durable tier only")
	}
	rt.ledger = ledger.New(rt.store, cache, logger)

	var directory clients.Directory = rt.store
	if strings.TrimSpace(cfg.DirectoryFile) != "" {
		directory = clients.NewFileDirectory(cfg.DirectoryFile)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	deps := workflow.Deps{
		Directory: directory,
		Audit:     rt.store,
		Ledger:    rt.ledger,
		Recorder:  rt.store,
		Mailer: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		Logger: logger,
	}

	if cfg.WorkspaceEnabled() {
		ws := workspace.NewClient(workspace.Options{
			BaseURL:    cfg.WorkspaceURL,
			Token:      cfg.WorkspaceToken,
			HTTPClient: httpClient,
			MaxRetries: cfg.HTTPRetries,
			RetryDelay: cfg.HTTPRetryDelay,
		})
		deps.Calendar = ws
		deps.Mailbox = ws
		rt.guard = filterguard.New(ws, cfg.BriefingLabels(), logger)
		deps.Syncer = filterguard.NewSyncer(rt.guard, ws, logger)
	}
	if cfg.TasksEnabled() {
		deps.Tasks = tasks.NewClient(tasks.Options{
			BaseURL:    cfg.TasksBaseURL,
			Token:      cfg.TasksAPIToken,
			HTTPClient: httpClient,
			MaxRetries: cfg.HTTPRetries,
			RetryDelay: cfg.HTTPRetryDelay,
		})
	}
	if cfg.AIEnabled() {
		deps.AI = ai.NewClient(ai.Options{
			BaseURL:    cfg.AIBaseURL,
			APIKey:     cfg.AIAPIKey,
			Model:      cfg.AIModel,
			MaxTokens:  cfg.AIMaxTokens,
			HTTPClient: &http.Client{Timeout: 2 * time.Minute},
			MaxRetries: cfg.HTTPRetries,
			RetryDelay: cfg.HTTPRetryDelay,
		})
	}
	if cfg.MeetingsEnabled() {
		deps.Meetings = webhook.NewMeetingsClient(webhook.MeetingsOptions{
			BaseURL:    cfg.MeetingsBaseURL,
			APIKey:     cfg.MeetingsAPIKey,
			HTTPClient: httpClient,
			MaxRetries: cfg.HTTPRetries,
			RetryDelay: cfg.HTTPRetryDelay,
		})
	}
	if cfg.NotesEnabled() {
		docs, err := notes.NewMinioStore(ctx, notes.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("notes storage: %w", err)
		}
		deps.Notes = notes.NewNotebook(docs)
	}

	pgfts := search.NewPgFTS(conn)
	rt.pgfts = pgfts
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		rt.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		rt.closers = append(rt.closers, rt.meili.Close)
		rt.search = search.NewService(rt.meili, pgfts, rt.store, logger)
	} else {
		rt.search = search.NewService(nil, pgfts, rt.store, logger)
	}
	deps.Index = rt.search

	rt.engine = workflow.New(deps, workflow.Settings{
		OwnerEmail:         cfg.OwnerEmail,
		Location:           cfg.Location(),
		BusinessStart:      cfg.BusinessStart,
		BusinessEnd:        cfg.BusinessEnd,
		BusinessDays:       weekdays(cfg.BusinessDays),
		AgendaLookahead:    cfg.AgendaLookahead,
		AgendaTaskLimit:    cfg.AgendaTaskLimit,
		AgendaThreadLimit:  cfg.AgendaThreadLimit,
		AgendaThreadWindow: cfg.AgendaThreadWindow,
		SummaryWindow:      cfg.SummaryWindow,
		MeetingPollWindow:  cfg.MeetingPollWindow,
		LogRetention:       cfg.LogRetention,
	})
	rt.scheduler = workflow.NewScheduler(logger, rt.engine.Triggers(
		cfg.AgendaInterval,
		cfg.SummaryInterval,
		cfg.MeetingInterval,
		cfg.FilterSyncInterval,
		cfg.PruneInterval,
	)...)
	return rt, nil
}

func weekdays(days []int) []time.Weekday {
	out := make([]time.Weekday, 0, len(days))
	for _, day := range days {
		out = append(out, time.Weekday(day))
	}
	return out
}
