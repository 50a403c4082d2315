package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr          string `env:"API_ADDR" envDefault:":8787"`
	DatabaseURL   string `env:"DATABASE_URL"`
	CORSOrigin    string `env:"CLIENTFLOW_CORS_ORIGIN" envDefault:"*"`
	DirectoryFile string `env:"CLIENTFLOW_DIRECTORY_FILE"`
	OwnerEmail    string `env:"CLIENTFLOW_OWNER_EMAIL"`
	Timezone      string `env:"CLIENTFLOW_TIMEZONE" envDefault:"UTC"`
	BusinessStart int    `env:"CLIENTFLOW_BUSINESS_START_HOUR" envDefault:"8"`
	BusinessEnd   int    `env:"CLIENTFLOW_BUSINESS_END_HOUR" envDefault:"18"`
	BusinessDays  []int  `env:"CLIENTFLOW_BUSINESS_DAYS" envDefault:"1,2,3,4,5" envSeparator:","`

	// Workflow bounds
	AgendaLookahead    time.Duration `env:"CLIENTFLOW_AGENDA_LOOKAHEAD" envDefault:"24h"`
	AgendaTaskLimit    int           `env:"CLIENTFLOW_AGENDA_TASK_LIMIT" envDefault:"10"`
	AgendaThreadLimit  int           `env:"CLIENTFLOW_AGENDA_THREAD_LIMIT" envDefault:"20"`
	AgendaThreadWindow time.Duration `env:"CLIENTFLOW_AGENDA_THREAD_WINDOW" envDefault:"168h"`
	SummaryWindow      time.Duration `env:"CLIENTFLOW_SUMMARY_WINDOW" envDefault:"24h"`
	MeetingPollWindow  time.Duration `env:"CLIENTFLOW_MEETING_POLL_WINDOW" envDefault:"2h"`
	LogRetention       time.Duration `env:"CLIENTFLOW_LOG_RETENTION" envDefault:"2160h"`

	// Trigger intervals
	AgendaInterval     time.Duration `env:"CLIENTFLOW_AGENDA_INTERVAL" envDefault:"1h"`
	SummaryInterval    time.Duration `env:"CLIENTFLOW_SUMMARY_INTERVAL" envDefault:"10m"`
	MeetingInterval    time.Duration `env:"CLIENTFLOW_MEETING_INTERVAL" envDefault:"30m"`
	FilterSyncInterval time.Duration `env:"CLIENTFLOW_FILTER_SYNC_INTERVAL" envDefault:"24h"`
	PruneInterval      time.Duration `env:"CLIENTFLOW_PRUNE_INTERVAL" envDefault:"24h"`

	// Fast ledger tier
	RedisURL    string        `env:"REDIS_URL"`
	NotifiedTTL time.Duration `env:"CLIENTFLOW_NOTIFIED_TTL" envDefault:"6h"`
	MessageTTL  time.Duration `env:"CLIENTFLOW_MESSAGE_TTL" envDefault:"72h"`

	// AI summarizer
	AIAPIKey    string `env:"CLIENTFLOW_AI_API_KEY"`
	AIBaseURL   string `env:"CLIENTFLOW_AI_BASE_URL" envDefault:"https://api.anthropic.com"`
	AIModel     string `env:"CLIENTFLOW_AI_MODEL"`
	AIMaxTokens int    `env:"CLIENTFLOW_AI_MAX_TOKENS" envDefault:"2048"`

	// Task tracker
	TasksAPIToken string `env:"CLIENTFLOW_TASKS_API_TOKEN"`
	TasksBaseURL  string `env:"CLIENTFLOW_TASKS_BASE_URL" envDefault:"https://api.todoist.com/rest/v2"`

	// Meeting recorder
	MeetingsAPIKey       string `env:"CLIENTFLOW_MEETINGS_API_KEY"`
	MeetingsBaseURL      string `env:"CLIENTFLOW_MEETINGS_BASE_URL" envDefault:"https://api.fathom.ai/external/v1"`
	WebhookSecret        string `env:"CLIENTFLOW_WEBHOOK_SECRET"`
	WebhookAllowUnsigned bool   `env:"CLIENTFLOW_WEBHOOK_ALLOW_UNSIGNED" envDefault:"false"`

	// Workspace gateway (calendar, mail, labels, filters)
	WorkspaceURL   string `env:"CLIENTFLOW_WORKSPACE_URL"`
	WorkspaceToken string `env:"CLIENTFLOW_WORKSPACE_TOKEN"`

	DailyBriefingLabel  string `env:"CLIENTFLOW_DAILY_BRIEFING_LABEL" envDefault:"Daily Briefing"`
	WeeklyBriefingLabel string `env:"CLIENTFLOW_WEEKLY_BRIEFING_LABEL" envDefault:"Weekly Briefing"`

	// Notes documents
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"client-notes"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	MeiliURL       string `env:"MEILI_URL"`
	MeiliMasterKey string `env:"MEILI_MASTER_KEY"`

	// SMTP - email disabled if not configured
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Clientflow"`

	TokenSecret string        `env:"CLIENTFLOW_TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"CLIENTFLOW_TOKEN_TTL" envDefault:"720h"`

	HTTPTimeout    time.Duration `env:"CLIENTFLOW_HTTP_TIMEOUT" envDefault:"30s"`
	HTTPRetries    uint          `env:"CLIENTFLOW_HTTP_RETRIES" envDefault:"3"`
	HTTPRetryDelay time.Duration `env:"CLIENTFLOW_HTTP_RETRY_DELAY" envDefault:"2s"`
}

// Load parses the environment into a Config. It does not validate; callers
// decide which features they need and call Validate.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields every command needs. Optional integrations are
// gated by the *Enabled helpers instead.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if !strings.Contains(c.OwnerEmail, "@") {
		errs = append(errs, errors.New("CLIENTFLOW_OWNER_EMAIL must be an email address"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("CLIENTFLOW_TIMEZONE: %w", err))
	}
	if c.BusinessStart < 0 || c.BusinessEnd > 24 || c.BusinessStart >= c.BusinessEnd {
		errs = append(errs, fmt.Errorf("business hours %d-%d are invalid", c.BusinessStart, c.BusinessEnd))
	}
	for _, day := range c.BusinessDays {
		if day < 0 || day > 6 {
			errs = append(errs, fmt.Errorf("business day %d is out of range 0-6", day))
		}
	}
	if c.AgendaThreadLimit <= 0 || c.AgendaThreadLimit > 20 {
		errs = append(errs, errors.New("CLIENTFLOW_AGENDA_THREAD_LIMIT must be between 1 and 20"))
	}
	if c.AgendaTaskLimit <= 0 {
		errs = append(errs, errors.New("CLIENTFLOW_AGENDA_TASK_LIMIT must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) AIEnabled() bool {
	return strings.TrimSpace(c.AIAPIKey) != "" && strings.TrimSpace(c.AIModel) != ""
}

func (c Config) TasksEnabled() bool {
	return strings.TrimSpace(c.TasksAPIToken) != ""
}

func (c Config) MeetingsEnabled() bool {
	return strings.TrimSpace(c.MeetingsAPIKey) != ""
}

func (c Config) WorkspaceEnabled() bool {
	return strings.TrimSpace(c.WorkspaceURL) != ""
}

func (c Config) NotesEnabled() bool {
	return strings.TrimSpace(c.MinioEndpoint) != ""
}

func (c Config) BriefingLabels() []string {
	return []string{c.DailyBriefingLabel, c.WeeklyBriefingLabel}
}
