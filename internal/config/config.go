// Package config loads, defaults, and validates the bot configuration from a
// YAML file, a .env file, and BOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/edgard/postqueue/internal/schedule"
)

// ErrConfiguration wraps every configuration failure. The process must not start.
var ErrConfiguration = errors.New("configuration error")

// EnvPrefix is the prefix for environment overrides, e.g. BOT_TELEGRAM_TOKEN.
const EnvPrefix = "BOT"

// Config is the complete application configuration.
type Config struct {
	Logger   LoggerConfig          `mapstructure:"log"`
	Telegram TelegramConfig        `mapstructure:"telegram"`
	Schedule ScheduleConfig        `mapstructure:"schedule"`
	Album    AlbumConfig           `mapstructure:"album"`
	Footer   FooterConfig          `mapstructure:"footer"`
	Database DatabaseConfig        `mapstructure:"database"`
	Sentry   SentryConfig          `mapstructure:"sentry"`
	Tasks    map[string]TaskConfig `mapstructure:"tasks"    validate:"dive"`
	Messages MessagesConfig        `mapstructure:"messages"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type TelegramConfig struct {
	Token     string  `mapstructure:"token"      validate:"required"`
	ChannelID int64   `mapstructure:"channel_id" validate:"required"`
	AdminIDs  []int64 `mapstructure:"admin_ids"  validate:"required,min=1,dive,gt=0"`
}

// ScheduleConfig controls post times, previews and the polling loop.
type ScheduleConfig struct {
	Timezone           string        `mapstructure:"timezone"             validate:"required"`
	PostTimes          []string      `mapstructure:"post_times"           validate:"required,min=1"`
	PreviewLeadMinutes int           `mapstructure:"preview_lead_minutes" validate:"min=0,max=720"`
	PollInterval       time.Duration `mapstructure:"poll_interval"        validate:"min=1s,max=10m"`
	TriggerWindow      time.Duration `mapstructure:"trigger_window"       validate:"min=1s,max=1h"`
	ErrorBackoff       time.Duration `mapstructure:"error_backoff"        validate:"min=0,max=10m"`

	// Resolved from Timezone and PostTimes by LoadConfig.
	Location *time.Location       `mapstructure:"-"`
	Times    []schedule.TimeOfDay `mapstructure:"-"`
}

// PreviewLead returns the preview lead as a duration.
func (c ScheduleConfig) PreviewLead() time.Duration {
	return time.Duration(c.PreviewLeadMinutes) * time.Minute
}

type AlbumConfig struct {
	Debounce time.Duration `mapstructure:"debounce" validate:"min=100ms,max=1m"`
}

// FooterConfig holds the fixed lines appended to every caption.
type FooterConfig struct {
	CatalogURL   string `mapstructure:"catalog_url"   validate:"omitempty,url"`
	CatalogLabel string `mapstructure:"catalog_label"`
	Contact      string `mapstructure:"contact"`
	ContactLabel string `mapstructure:"contact_label"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"         validate:"omitempty,url"`
	Environment string `mapstructure:"environment"`
}

// TaskConfig enables a maintenance task on a cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MessagesConfig holds user-facing bot replies.
type MessagesConfig struct {
	Welcome       string `mapstructure:"welcome"        validate:"required"`
	Help          string `mapstructure:"help"           validate:"required"`
	GeneralError  string `mapstructure:"general_error"  validate:"required"`
	Unsupported   string `mapstructure:"unsupported"    validate:"required"`
	QueueEmpty    string `mapstructure:"queue_empty"    validate:"required"`
	Conflict      string `mapstructure:"conflict"       validate:"required"`
	StartupNotice string `mapstructure:"startup_notice" validate:"required"`
}

var defaults = map[string]any{
	"log.level": "info",
	"log.json":  false,

	"schedule.timezone":             "UTC",
	"schedule.preview_lead_minutes": 45,
	"schedule.poll_interval":        30 * time.Second,
	"schedule.trigger_window":       schedule.DefaultTriggerWindow,
	"schedule.error_backoff":        schedule.DefaultErrorBackoff,

	"album.debounce": 900 * time.Millisecond,

	"footer.catalog_label": "Catalog:",
	"footer.contact_label": "Contact:",

	"database.path": "./postqueue.db",

	"tasks.sql_maintenance.enabled":  true,
	"tasks.sql_maintenance.schedule": "0 4 * * *",

	"messages.welcome":        "👋 Send me posts to queue them for the channel. Use /help to see commands.",
	"messages.help":           "Send text, a photo, a video, a document or an album to queue it.\n\n/queue - list queued posts\n/post_now - publish the oldest post now\n/delete <id> - delete a post\n/delete_last - delete the newest post\n/clear - empty the queue\n/stats - queue statistics",
	"messages.general_error":  "❌ Something went wrong. Please try again later.",
	"messages.unsupported":    "⚠️ Only text, photos, videos and documents can be queued.",
	"messages.queue_empty":    "📭 The queue is empty.",
	"messages.conflict":       "⚠️ Another instance is running with the same token. This instance is stopping.",
	"messages.startup_notice": "✅ Bot started.",
}

// envOnlyKeys have no default, so viper only sees them from the environment if bound.
var envOnlyKeys = []string{
	"telegram.token",
	"telegram.channel_id",
	"telegram.admin_ids",
	"schedule.post_times",
	"footer.catalog_url",
	"footer.contact",
	"sentry.dsn",
	"sentry.environment",
}

// LoadConfig reads the YAML file at path (optional), applies .env and BOT_*
// environment overrides on top of defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to load .env file: %v", ErrConfiguration, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("%w: failed to bind env for %s: %v", ErrConfiguration, key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to stat config file %s: %v", ErrConfiguration, path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and resolves the timezone and post times.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("%w: unknown timezone %q: %v", ErrConfiguration, c.Schedule.Timezone, err)
	}
	c.Schedule.Location = loc

	times, err := schedule.ParseTimes(c.Schedule.PostTimes)
	if err != nil {
		return fmt.Errorf("%w: schedule.post_times: %v", ErrConfiguration, err)
	}
	c.Schedule.Times = times

	if c.Schedule.TriggerWindow < c.Schedule.PollInterval {
		return fmt.Errorf("%w: schedule.trigger_window (%s) must not be shorter than schedule.poll_interval (%s)",
			ErrConfiguration, c.Schedule.TriggerWindow, c.Schedule.PollInterval)
	}
	return nil
}

// IsAdmin reports whether userID is one of the configured admins.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PrimaryAdmin returns the admin that receives previews, or 0 if none.
func (c *Config) PrimaryAdmin() int64 {
	if len(c.Telegram.AdminIDs) == 0 {
		return 0
	}
	return c.Telegram.AdminIDs[0]
}
