package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/photobook/libs/config"
	"github.com/md-rashed-zaman/photobook/libs/db"
	"github.com/md-rashed-zaman/photobook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/photobook/libs/otel"
	"github.com/md-rashed-zaman/photobook/libs/runtime"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/studio"
)

func main() {
	if err := config.LoadDotEnv(config.String("ENV_FILE", ".env")); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-notifier")
	port, err := config.Port("PORT", "8085")
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
			if err := runtime.Drain(5*time.Second, otelShutdown); err != nil {
				logger.Warn("tracer shutdown incomplete", "err", err)
			}
		}()
	}

	studioCfg, err := studio.Load(config.String("STUDIO_CONFIG", "studio.toml"))
	if err != nil {
		logger.Error("studio config invalid", "err", err)
		panic(err)
	}

	brokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		panic(err)
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	store := storage.New(pool, outbox.NewRepository())
	emailSender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     config.String("SMTP_HOST", "localhost"),
		Port:     config.String("SMTP_PORT", "1025"),
		From:     config.String("SMTP_FROM", "no-reply@photobook.local"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
	})

	var smsSender notify.SMSSender
	switch strings.ToLower(config.String("SMS_PROVIDER", "none")) {
	case "webhook":
		smsSender = notify.NewWebhookSMSSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""), nil)
	case "noop":
		smsSender = notify.NoopSMSSender{}
	}

	notifier := notify.New(store, emailSender, smsSender, notify.Config{
		StudioName: config.String("STUDIO_NAME", "Photobook"),
		AdminEmail: config.String("NOTIFY_ADMIN_EMAIL", ""),
		Location:   studioCfg.Location(),
	}, logger)

	groupID := config.String("KAFKA_GROUP_ID", service)
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool, groupID), consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topics:  notify.Topics,
	}, notifier.Handle)
	go eventConsumer.Run(ctx)
	logger.Info("consuming booking events", "topics", notify.Topics, "group_id", groupID)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	if err := runtime.Drain(10*time.Second, srv.Shutdown); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("notifier stopped")
}
