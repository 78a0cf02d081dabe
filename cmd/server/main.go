package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/randevubu/randevubu.server-sub006/internal/booking"
	"github.com/randevubu/randevubu.server-sub006/internal/clock"
	"github.com/randevubu/randevubu.server-sub006/internal/consumer"
	"github.com/randevubu/randevubu.server-sub006/internal/directory"
	"github.com/randevubu/randevubu.server-sub006/internal/handlers"
	"github.com/randevubu/randevubu.server-sub006/internal/inbox"
	"github.com/randevubu/randevubu.server-sub006/internal/metrics"
	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/channel"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/dispatch"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/policy"
	"github.com/randevubu/randevubu.server-sub006/internal/outbox"
	"github.com/randevubu/randevubu.server-sub006/internal/scheduler"
	"github.com/randevubu/randevubu.server-sub006/internal/settings"
	"github.com/randevubu/randevubu.server-sub006/internal/storage"
	"github.com/randevubu/randevubu.server-sub006/libs/config"
	"github.com/randevubu/randevubu.server-sub006/libs/db"
	"github.com/randevubu/randevubu.server-sub006/libs/httpx"
	"github.com/randevubu/randevubu.server-sub006/libs/kafkax"
	otelx "github.com/randevubu/randevubu.server-sub006/libs/otel"
	"github.com/randevubu/randevubu.server-sub006/libs/redisx"
	"github.com/randevubu/randevubu.server-sub006/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "randevubu-server")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, int32(config.Int("DB_MAX_CONNS", 10)))
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb, err := redisx.Open(ctx, config.String("REDIS_ADDR", "localhost:6379"),
		config.String("REDIS_PASSWORD", ""), config.Int("REDIS_DB", 0))
	if err != nil {
		// Redis backs the lock, rate limits and counters; all of them
		// degrade gracefully, so the server still starts.
		logger.Warn("redis unavailable, running degraded", "err", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	apptRepo := storage.NewAppointmentRepository(pool)
	deadRepo := storage.NewDeadLetterRepository(pool)
	dir := directory.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	// Deploy-time override for the built-in 1h/24h reminder defaults used
	// by businesses without explicit settings.
	settings.DefaultReminderOffsets = config.MinutesList("REMINDER_DEFAULT_OFFSETS",
		settings.DefaultReminderOffsets)

	settingsSrc := settings.NewCachedSource(settings.NewRepository(pool),
		config.Duration("SETTINGS_CACHE_TTL", time.Minute))

	recorder := metrics.NewRecorder(rdb, logger, 0)
	usage := metrics.NewUsage(rdb, logger)

	coord := booking.NewCoordinator(
		booking.NewPgxStore(pool, apptRepo),
		dir, outboxRepo, usage, clock.System{}, logger,
		booking.CoordinatorConfig{TxTimeout: config.Duration("BOOKING_TX_TIMEOUT", 5*time.Second)},
	)

	senders := buildSenders()
	executor := dispatch.NewExecutor(senders, logger, dispatch.Config{})

	lock := scheduler.NewRedisLock(rdb,
		config.String("SCHEDULER_LOCK_KEY", "scheduler:reminder-tick"),
		config.Duration("SCHEDULER_LOCK_TTL", 90*time.Second), logger)
	scanner := scheduler.NewScanner(apptRepo, settingsSrc, logger,
		config.Int("SCHEDULER_SCAN_LIMIT", 500))
	runner := scheduler.NewRunner(lock, scanner, settingsSrc, executor,
		apptRepo, deadRepo, outboxRepo, recorder, clock.System{}, logger,
		scheduler.RunnerConfig{
			Interval:     config.Duration("SCHEDULER_INTERVAL", time.Minute),
			TickDeadline: config.Duration("SCHEDULER_TICK_DEADLINE", 50*time.Second),
		})
	go runner.Run(ctx)

	brokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	if brokers != "" {
		confirmations := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   "appointment.booked.v1",
		}, bookedHandler(dir, executor, logger))
		go confirmations.Run(ctx)
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewAppointmentHandler(coord, apptRepo, dir, clock.System{}, logger, jwtSecret).Register(mux)
	handlers.NewAdminHandler(runner, deadRepo, recorder, logger, jwtSecret).Register(mux)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ","),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}),
	}
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	}
	handler := httpx.Chain(mux, middlewares...)
	handler = otelhttp.NewHandler(handler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// buildSenders wires the delivery channels that have credentials
// configured; the rest run as no-ops so a dev environment works without
// any provider accounts.
func buildSenders() []channel.Sender {
	var senders []channel.Sender

	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		senders = append(senders, channel.NewSMSSender(url,
			config.String("SMS_WEBHOOK_TOKEN", ""),
			float64(config.Int("SMS_PER_SECOND", 10))))
	} else {
		senders = append(senders, channel.NewNoopSender(channel.SMS))
	}

	if host := config.String("SMTP_HOST", ""); host != "" {
		senders = append(senders, channel.NewEmailSender(host,
			config.String("SMTP_PORT", "1025"),
			config.String("SMTP_FROM", "noreply@randevubu.local")))
	} else {
		senders = append(senders, channel.NewNoopSender(channel.Email))
	}

	if pub := config.String("VAPID_PUBLIC_KEY", ""); pub != "" {
		senders = append(senders, channel.NewPushSender(pub,
			config.String("VAPID_PRIVATE_KEY", ""),
			config.String("VAPID_SUBSCRIBER", "mailto:ops@randevubu.local")))
	} else {
		senders = append(senders, channel.NewNoopSender(channel.Push))
	}

	return senders
}

type bookedEvent struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	ServiceID     string `json:"service_id"`
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	StartTime     string `json:"start_time"`
}

// bookedHandler sends the booking confirmation when the booked event comes
// back around through Kafka. Confirmations are transactional messages:
// quiet hours and reminder toggles do not apply.
func bookedHandler(dir directory.Directory, executor *dispatch.Executor, logger *slog.Logger) consumer.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt bookedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid booked event", "err", err)
			return nil
		}
		if evt.AppointmentID == "" || evt.CustomerID == "" {
			return nil
		}
		start, err := time.Parse(time.RFC3339, evt.StartTime)
		if err != nil {
			logger.Error("invalid booked event start_time", "err", err)
			return nil
		}

		customer, err := dir.FindCustomer(ctx, evt.CustomerID)
		if err != nil {
			return err
		}
		business, err := dir.FindBusiness(ctx, evt.BusinessID)
		if err != nil {
			return err
		}
		serviceName := ""
		if svc, err := dir.FindService(ctx, evt.ServiceID); err == nil {
			serviceName = svc.Name
		}

		cand := model.ReminderCandidate{
			AppointmentID: evt.AppointmentID,
			BusinessID:    evt.BusinessID,
			BusinessName:  business.Name,
			ServiceName:   serviceName,
			CustomerID:    customer.ID,
			CustomerName:  customer.Name,
			CustomerPhone: customer.Phone,
			CustomerEmail: customer.Email,
			StartTime:     start,
		}
		loc := clock.LoadLocation(business.Timezone)
		msgBody := policy.Message(cand, loc)
		msgBody.Subject = "Booking confirmed: " + business.Name

		executor.Dispatch(ctx, cand,
			[]channel.Channel{channel.SMS, channel.Email}, msgBody)
		return nil
	}
}
