package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sagemind/internal/booking"
	"sagemind/internal/calendar"
	"sagemind/internal/config"
	"sagemind/internal/events"
	"sagemind/internal/httpapi"
	"sagemind/internal/metrics"
	"sagemind/internal/notify"
	"sagemind/internal/ratelimit"
	"sagemind/internal/slots"
	"sagemind/internal/timezone"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load(os.Getenv("SITE_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = configureLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tz, err := timezone.New(cfg.Scheduling.DSTRule, cfg.Scheduling.TimeZone)
	if err != nil {
		logger.Fatal().Err(err).Msg("timezone")
	}
	if err := timezone.CheckRule(cfg.Scheduling.DSTRule, cfg.Scheduling.TimeZone, time.Now().Year()); err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Scheduling.TimeZone).Msg("slot times follow Pacific offsets")
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	bus := events.NewEventBus()

	var scheduler httpapi.Scheduler
	var booker httpapi.Booker
	if cfg.CalendarConfigured() {
		gw, err := calendar.NewGoogle(ctx, []byte(cfg.Google.ServiceAccountKey), cfg.Google.Subject)
		if err != nil {
			logger.Fatal().Err(err).Msg("calendar client")
		}

		ids := cfg.CalendarIDs()
		scheduler = slots.NewGenerator(gw, tz, slots.Config{
			CalendarIDs:   ids,
			DaysAhead:     cfg.Scheduling.DaysAhead,
			MeetingLength: cfg.MeetingLength(),
			DayStartHour:  cfg.Scheduling.DayStartHour,
			DayEndHour:    cfg.Scheduling.DayEndHour,
		})

		var opts []booking.Option
		if rdb != nil {
			opts = append(opts, booking.WithSlotLocker(booking.NewRedisLocker(rdb)))
		}
		booker = booking.NewValidator(gw, booking.Config{
			PrimaryCalendarID: cfg.Google.CalendarID,
			CalendarIDs:       ids,
			TimeZone:          cfg.Scheduling.TimeZone,
			SiteName:          cfg.Mail.SiteName,
			HoldTTL:           cfg.HoldTTL(),
		}, &logger, opts...)

		logger.Info().Strs("calendars", ids).Str("resolver", fmt.Sprint(tz)).Msg("scheduling enabled")
	} else {
		logger.Warn().Msg("GOOGLE_SERVICE_ACCOUNT_KEY or GOOGLE_CALENDAR_ID not set; scheduling disabled")
	}

	var dialer notify.Dialer
	if cfg.MailConfigured() {
		dialer = notify.NewGmailDialer(cfg.Mail.User, cfg.Mail.AppPassword)
	}
	mailer := notify.NewMailer(dialer, notify.MailConfig{
		From:       cfg.Mail.User,
		To:         cfg.Mail.ContactEmail,
		SiteName:   cfg.Mail.SiteName,
		SiteDomain: cfg.Mail.SiteDomain,
		ZoneLabel:  cfg.Mail.ZoneLabel,
	}, tz, &logger)
	if mailer.Configured() {
		mailer.Subscribe(bus)
	}

	if cfg.TelegramEnabled() {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Error().Err(err).Msg("telegram alerts disabled")
		} else {
			notify.NewTelegram(bot, cfg.Telegram.ChatID, tz, cfg.Mail.ZoneLabel, &logger).Subscribe(bus)
		}
	}

	bookLimiter, contactLimiter := newLimiters(cfg, rdb)

	api := httpapi.New(httpapi.Deps{
		Scheduler:      scheduler,
		Booker:         booker,
		Mailer:         mailer,
		Events:         bus,
		BookLimiter:    bookLimiter,
		ContactLimiter: contactLimiter,
		StaticDir:      cfg.Server.StaticDir,
	}, &logger)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout(),
		ReadTimeout:       cfg.ReadTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("addr", cfg.Server.Address).Msg("site started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("http server error")
	}
	logger.Info().Msg("site stopped")
}

func configureLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Log.Format == "json" {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func newLimiters(cfg *config.Config, rdb *redis.Client) (ratelimit.Limiter, ratelimit.Limiter) {
	if cfg.RateLimit.Backend == "redis" && rdb != nil {
		return ratelimit.NewRedis(rdb, "book", cfg.RateLimit.BookingPerHour, time.Hour),
			ratelimit.NewRedis(rdb, "contact", cfg.RateLimit.ContactPerHour, time.Hour)
	}
	return ratelimit.NewMemory(cfg.RateLimit.BookingPerHour, time.Hour),
		ratelimit.NewMemory(cfg.RateLimit.ContactPerHour, time.Hour)
}

func startHealthServer(ctx context.Context, port int, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if rdb != nil {
			ctxPing, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
