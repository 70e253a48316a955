package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/postqueue/internal/config"
)

const validYAML = `
log:
  level: debug
telegram:
  token: "123:abc"
  channel_id: -1001234567890
  admin_ids: [111, 222]
schedule:
  timezone: Europe/Moscow
  post_times: ["20:00", "12:00", "16:00"]
  preview_lead_minutes: 45
footer:
  catalog_url: https://example.com/catalog
  contact: "@shop_admin"
database:
  path: /tmp/queue.db
tasks:
  sql_maintenance:
    enabled: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, int64(-1001234567890), cfg.Telegram.ChannelID)
	assert.Equal(t, []int64{111, 222}, cfg.Telegram.AdminIDs)
	assert.Equal(t, int64(111), cfg.PrimaryAdmin())
	assert.True(t, cfg.IsAdmin(222))
	assert.False(t, cfg.IsAdmin(333))

	require.NotNil(t, cfg.Schedule.Location)
	assert.Equal(t, "Europe/Moscow", cfg.Schedule.Location.String())
	require.Len(t, cfg.Schedule.Times, 3)
	assert.Equal(t, "12:00", cfg.Schedule.Times[0].String())
	assert.Equal(t, 45*time.Minute, cfg.Schedule.PreviewLead())

	// Defaults fill what the file omits.
	assert.Equal(t, 30*time.Second, cfg.Schedule.PollInterval)
	assert.Equal(t, time.Minute, cfg.Schedule.TriggerWindow)
	assert.Equal(t, 900*time.Millisecond, cfg.Album.Debounce)
	assert.Equal(t, "Catalog:", cfg.Footer.CatalogLabel)
	assert.NotEmpty(t, cfg.Messages.Welcome)

	assert.False(t, cfg.Tasks["sql_maintenance"].Enabled)
}

func TestLoadConfig_EnvironmentOnly(t *testing.T) {
	t.Setenv("BOT_TELEGRAM_TOKEN", "env-token")
	t.Setenv("BOT_TELEGRAM_CHANNEL_ID", "-100987")
	t.Setenv("BOT_TELEGRAM_ADMIN_IDS", "5,6")
	t.Setenv("BOT_SCHEDULE_POST_TIMES", "09:00,18:30")
	t.Setenv("BOT_SCHEDULE_TIMEZONE", "UTC")
	t.Setenv("BOT_DATABASE_PATH", filepath.Join(t.TempDir(), "q.db"))

	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, int64(-100987), cfg.Telegram.ChannelID)
	assert.Equal(t, []int64{5, 6}, cfg.Telegram.AdminIDs)
	require.Len(t, cfg.Schedule.Times, 2)
	assert.Equal(t, "18:30", cfg.Schedule.Times[1].String())
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("BOT_TELEGRAM_TOKEN", "override")
	t.Setenv("BOT_SCHEDULE_PREVIEW_LEAD_MINUTES", "0")

	cfg, err := config.LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "override", cfg.Telegram.Token)
	assert.Zero(t, cfg.Schedule.PreviewLead())
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing token",
			yaml: `
telegram:
  channel_id: -100
  admin_ids: [1]
schedule:
  post_times: ["12:00"]
`,
		},
		{
			name: "missing admins",
			yaml: `
telegram:
  token: t
  channel_id: -100
schedule:
  post_times: ["12:00"]
`,
		},
		{
			name: "missing post times",
			yaml: `
telegram:
  token: t
  channel_id: -100
  admin_ids: [1]
`,
		},
		{
			name: "malformed post time",
			yaml: `
telegram:
  token: t
  channel_id: -100
  admin_ids: [1]
schedule:
  post_times: ["12:60"]
`,
		},
		{
			name: "duplicate post time",
			yaml: `
telegram:
  token: t
  channel_id: -100
  admin_ids: [1]
schedule:
  post_times: ["12:00", "12:00"]
`,
		},
		{
			name: "unknown timezone",
			yaml: `
telegram:
  token: t
  channel_id: -100
  admin_ids: [1]
schedule:
  timezone: Mars/Olympus
  post_times: ["12:00"]
`,
		},
		{
			name: "window shorter than poll interval",
			yaml: `
telegram:
  token: t
  channel_id: -100
  admin_ids: [1]
schedule:
  post_times: ["12:00"]
  poll_interval: 2m
  trigger_window: 1m
`,
		},
		{
			name: "invalid log level",
			yaml: `
log:
  level: verbose
telegram:
  token: t
  channel_id: -100
  admin_ids: [1]
schedule:
  post_times: ["12:00"]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrConfiguration)
		})
	}
}
