package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var siteEnv = []string{
	"GOOGLE_SERVICE_ACCOUNT_KEY", "GOOGLE_CALENDAR_ID", "GOOGLE_CALENDAR_IDS",
	"TIMEZONE", "GMAIL_USER", "GMAIL_APP_PASSWORD", "CONTACT_EMAIL",
	"REDIS_ADDR", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range siteEnv {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "server:\n  address: \":9000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "America/Los_Angeles", cfg.Scheduling.TimeZone)
	assert.Equal(t, "zone", cfg.Scheduling.DSTRule)
	assert.Equal(t, 14, cfg.Scheduling.DaysAhead)
	assert.Equal(t, 30*time.Minute, cfg.MeetingLength())
	assert.Equal(t, 9, cfg.Scheduling.DayStartHour)
	assert.Equal(t, 17, cfg.Scheduling.DayEndHour)
	assert.Equal(t, 5, cfg.RateLimit.ContactPerHour)
	assert.Equal(t, 20, cfg.RateLimit.BookingPerHour)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout())

	assert.False(t, cfg.CalendarConfigured())
	assert.False(t, cfg.MailConfigured())
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoad_EnvPlaceholdersAndOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_KEY", `{"type":"service_account"}`)
	t.Setenv("GOOGLE_CALENDAR_ID", "owner@example.com")
	t.Setenv("GOOGLE_CALENDAR_IDS", " team@example.com, ,owner@example.com ,holidays ")
	t.Setenv("GMAIL_USER", "site@example.com")
	t.Setenv("GMAIL_APP_PASSWORD", "secret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("SITE_TEST_NAME", "Acme")

	cfg, err := Load(writeConfig(t, `
google:
  calendar_id: "from-file"
mail:
  site_name: "${SITE_TEST_NAME}"
`))
	require.NoError(t, err)

	assert.Equal(t, `{"type":"service_account"}`, cfg.Google.ServiceAccountKey)
	assert.Equal(t, "owner@example.com", cfg.Google.CalendarID, "env wins over file")
	assert.Equal(t, []string{"owner@example.com", "team@example.com", "holidays"}, cfg.CalendarIDs())
	assert.True(t, cfg.CalendarConfigured())

	assert.Equal(t, "Acme", cfg.Mail.SiteName)
	assert.True(t, cfg.MailConfigured())
	assert.Equal(t, "site@example.com", cfg.Mail.ContactEmail, "contact defaults to gmail user")

	assert.True(t, cfg.TelegramEnabled())
	assert.Equal(t, int64(-1001), cfg.Telegram.ChatID)
}

func TestLoad_KeyFile(t *testing.T) {
	clearEnv(t)
	keyPath := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(keyPath, []byte(`{"k":1}`), 0o600))

	cfg, err := Load(writeConfig(t, "google:\n  service_account_key_file: \""+keyPath+"\"\n  calendar_id: primary\n"))
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, cfg.Google.ServiceAccountKey)
	assert.True(t, cfg.CalendarConfigured())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad yaml", body: "server: [\n"},
		{name: "unknown dst rule", body: "scheduling:\n  dst_rule: arizona\n"},
		{name: "unknown zone", body: "scheduling:\n  timezone: Mars/Olympus\n"},
		{name: "inverted hours", body: "scheduling:\n  day_start_hour: 17\n  day_end_hour: 9\n"},
		{name: "redis backend without redis", body: "rate_limit:\n  backend: redis\n"},
		{name: "unknown backend", body: "rate_limit:\n  backend: memcached\n"},
		{name: "bad chat id", env: map[string]string{"TELEGRAM_CHAT_ID": "abc"}},
		{name: "token without chat", env: map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc"}},
		{name: "missing key file", body: "google:\n  service_account_key_file: /nonexistent/key.json\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCalendarIDs_PrimaryOnly(t *testing.T) {
	var cfg Config
	cfg.Google.CalendarID = "primary"
	assert.Equal(t, []string{"primary"}, cfg.CalendarIDs())
}
