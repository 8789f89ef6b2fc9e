package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sagemind/internal/timezone"
)

// DefaultPath is used when SITE_CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

// ErrCalendarNotConfigured means the Google credentials or calendar ID are missing.
var ErrCalendarNotConfigured = errors.New("calendar integration is not configured")

type Config struct {
	Server struct {
		Address             string `yaml:"address"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
		StaticDir           string `yaml:"static_dir"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`

	Google struct {
		// ServiceAccountKey holds the JSON key. It only comes from the
		// environment or a key file; JSON inside YAML placeholders breaks parsing.
		ServiceAccountKey     string   `yaml:"-"`
		ServiceAccountKeyFile string   `yaml:"service_account_key_file"`
		Subject               string   `yaml:"subject"`
		CalendarID            string   `yaml:"calendar_id"`
		AdditionalCalendarIDs []string `yaml:"additional_calendar_ids"`
	} `yaml:"google"`

	Scheduling struct {
		TimeZone       string `yaml:"timezone"`
		DSTRule        string `yaml:"dst_rule"` // zone or pacific
		DaysAhead      int    `yaml:"days_ahead"`
		MeetingMinutes int    `yaml:"meeting_minutes"`
		DayStartHour   int    `yaml:"day_start_hour"`
		DayEndHour     int    `yaml:"day_end_hour"`
		HoldSeconds    int    `yaml:"hold_seconds"`
	} `yaml:"scheduling"`

	Mail struct {
		User         string `yaml:"user"`
		AppPassword  string `yaml:"app_password"`
		ContactEmail string `yaml:"contact_email"`
		SiteName     string `yaml:"site_name"`
		SiteDomain   string `yaml:"site_domain"`
		ZoneLabel    string `yaml:"zone_label"`
	} `yaml:"mail"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	RateLimit struct {
		Backend        string `yaml:"backend"` // memory or redis
		ContactPerHour int    `yaml:"contact_per_hour"`
		BookingPerHour int    `yaml:"booking_per_hour"`
	} `yaml:"rate_limit"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

// Load reads the YAML file at path, expands ${VAR} placeholders, applies
// environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err = cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err = cfg.loadKeyFile(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets the deployment variables of the site override the file.
func (c *Config) applyEnv() error {
	setString(&c.Google.ServiceAccountKey, "GOOGLE_SERVICE_ACCOUNT_KEY")
	setString(&c.Google.CalendarID, "GOOGLE_CALENDAR_ID")
	if v, ok := os.LookupEnv("GOOGLE_CALENDAR_IDS"); ok {
		c.Google.AdditionalCalendarIDs = splitList(v)
	}
	setString(&c.Scheduling.TimeZone, "TIMEZONE")
	setString(&c.Mail.User, "GMAIL_USER")
	setString(&c.Mail.AppPassword, "GMAIL_APP_PASSWORD")
	setString(&c.Mail.ContactEmail, "CONTACT_EMAIL")
	setString(&c.Redis.Address, "REDIS_ADDR")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

func (c *Config) loadKeyFile() error {
	if c.Google.ServiceAccountKey != "" || c.Google.ServiceAccountKeyFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Google.ServiceAccountKeyFile)
	if err != nil {
		return fmt.Errorf("read service account key: %w", err)
	}
	c.Google.ServiceAccountKey = string(data)
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 10
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Scheduling.TimeZone == "" {
		c.Scheduling.TimeZone = "America/Los_Angeles"
	}
	if c.Scheduling.DSTRule == "" {
		c.Scheduling.DSTRule = timezone.RuleZone
	}
	if c.Scheduling.DaysAhead <= 0 {
		c.Scheduling.DaysAhead = 14
	}
	if c.Scheduling.MeetingMinutes <= 0 {
		c.Scheduling.MeetingMinutes = 30
	}
	if c.Scheduling.DayStartHour == 0 && c.Scheduling.DayEndHour == 0 {
		c.Scheduling.DayStartHour, c.Scheduling.DayEndHour = 9, 17
	}
	if c.Scheduling.HoldSeconds <= 0 {
		c.Scheduling.HoldSeconds = 30
	}
	if c.Mail.ContactEmail == "" {
		c.Mail.ContactEmail = c.Mail.User
	}
	if c.Mail.SiteName == "" {
		c.Mail.SiteName = "SageMind AI"
	}
	if c.Mail.SiteDomain == "" {
		c.Mail.SiteDomain = "sagemindai.io"
	}
	if c.Mail.ZoneLabel == "" {
		c.Mail.ZoneLabel = "Pacific"
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.ContactPerHour <= 0 {
		c.RateLimit.ContactPerHour = 5
	}
	if c.RateLimit.BookingPerHour <= 0 {
		c.RateLimit.BookingPerHour = 20
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8081
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Scheduling.DSTRule != timezone.RuleZone && c.Scheduling.DSTRule != timezone.RulePacific {
		return fmt.Errorf("scheduling.dst_rule: unknown rule %q", c.Scheduling.DSTRule)
	}
	if _, err := timezone.LoadZone(c.Scheduling.TimeZone); err != nil {
		return fmt.Errorf("scheduling.timezone: %w", err)
	}
	s := c.Scheduling
	if s.DayStartHour < 0 || s.DayEndHour > 24 || s.DayStartHour >= s.DayEndHour {
		return fmt.Errorf("scheduling: invalid business hours %d-%d", s.DayStartHour, s.DayEndHour)
	}
	if s.MeetingMinutes > (s.DayEndHour-s.DayStartHour)*60 {
		return fmt.Errorf("scheduling: meeting of %d minutes does not fit business hours", s.MeetingMinutes)
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("rate_limit.backend is redis but redis.address is empty")
		}
	default:
		return fmt.Errorf("rate_limit.backend: unknown backend %q", c.RateLimit.Backend)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required with a bot token")
	}
	return nil
}

// CalendarConfigured reports whether scheduling can talk to Google Calendar.
func (c *Config) CalendarConfigured() bool {
	return c.Google.ServiceAccountKey != "" && c.Google.CalendarID != ""
}

// CalendarIDs returns the primary calendar followed by the additional ones,
// without duplicates.
func (c *Config) CalendarIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range append([]string{c.Google.CalendarID}, c.Google.AdditionalCalendarIDs...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// MailConfigured reports whether SMTP credentials are present.
func (c *Config) MailConfigured() bool {
	return c.Mail.User != "" && c.Mail.AppPassword != ""
}

// TelegramEnabled reports whether operator alerts are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}

func (c *Config) MeetingLength() time.Duration {
	return time.Duration(c.Scheduling.MeetingMinutes) * time.Minute
}

func (c *Config) HoldTTL() time.Duration {
	return time.Duration(c.Scheduling.HoldSeconds) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
