package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"

	channelhandler "signal-notifier/internal/api/handlers/channel"
	notifhandler "signal-notifier/internal/api/handlers/notification"
	"signal-notifier/internal/api/router"
	"signal-notifier/internal/api/server"
	"signal-notifier/internal/config"
	"signal-notifier/internal/delivery"
	"signal-notifier/internal/rabbitmq/queue"
	"signal-notifier/internal/registry"
	notifsvc "signal-notifier/internal/service/notification"
	"signal-notifier/internal/storage"
	"signal-notifier/internal/storage/memory"
	"signal-notifier/internal/storage/postgres"
	"signal-notifier/internal/template"
	"signal-notifier/internal/worker"
	"signal-notifier/pkg/discord"
	"signal-notifier/pkg/email"
	"signal-notifier/pkg/push"
	"signal-notifier/pkg/sms"
	"signal-notifier/pkg/telegram"
	"signal-notifier/pkg/webhook"
)

const (
	smsBaseURL   = "https://api.twilio.com/2010-04-01"
	pushEndpoint = "https://fcm.googleapis.com/fcm/send"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Retries, cfg.RabbitMQ.Pause)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to open channel")
	}

	wakeQueue, err := queue.NewWakeQueue(ch)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create wake queue")
	}

	var store storage.Storage
	var db *dbpg.DB

	if cfg.Storage == "memory" {
		store = memory.New()
		zlog.Logger.Warn().Msg("using in-memory storage, queued items will not survive a restart")
	} else {
		opts := &dbpg.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}

		slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
		for _, s := range cfg.Database.Slaves {
			slaveDSNs = append(slaveDSNs, s.DSN())
		}

		db, err = dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
		}

		pg := postgres.New(db)
		if err := pg.Migrate(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		store = pg
	}

	rdb := redis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.Database)
	if err = rdb.Ping(ctx).Err(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	emailClient := email.NewClient(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.From,
	)
	telegramClient := telegram.NewClient(cfg.Telegram.Token)
	discordClient := discord.NewClient()
	webhookClient := webhook.NewClient(cfg.Webhook.Headers)
	smsClient := sms.NewClient(smsBaseURL, cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.From)
	pushClient := push.NewClient(pushEndpoint, cfg.Push.ServerKey)

	reg := registry.New(
		store,
		cfg.Worker.HealthThreshold,
		delivery.NewEmailAdapter(emailClient),
		delivery.NewTelegramAdapter(telegramClient),
		delivery.NewDiscordAdapter(discordClient),
		delivery.NewWebhookAdapter(webhookClient),
		delivery.NewSMSAdapter(smsClient),
		delivery.NewPushAdapter(pushClient),
	)

	templates := template.NewStore(store)

	service := notifsvc.NewService(store, wakeQueue, reg, rdb)

	dispatcher := worker.NewDispatcher(store, reg, templates, wakeQueue, rdb, cfg.Retry, worker.Config{
		Workers:         cfg.Worker.Count,
		BatchSize:       cfg.Worker.BatchSize,
		PollInterval:    cfg.Worker.PollInterval,
		DeliveryTimeout: cfg.Worker.DeliveryTimeout,
		BackoffBase:     cfg.Worker.BackoffBase,
		BackoffMax:      cfg.Worker.BackoffMax,
		RatePerSecond:   cfg.Worker.RatePerSecond,
	})
	go dispatcher.Run(ctx)

	prober := registry.NewProber(reg, cfg.Worker.HealthSweepInterval, cfg.Worker.DeliveryTimeout)
	go prober.Run(ctx)

	janitor := worker.NewJanitor(store, cfg.Worker.PurgeSchedule, cfg.Worker.PurgeAfter, cfg.Worker.ReclaimAfter)
	if err := janitor.Start(ctx); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to start janitor")
	}

	notifHandler := notifhandler.NewHandler(service, val, cfg)
	channelHandler := channelhandler.NewHandler(service, val)

	r := router.New(notifHandler, channelHandler)
	s := server.New(cfg.Server.HTTPPort, r)

	go func() {
		if err := s.ListenAndServe(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	janitor.Stop()

	if db != nil {
		if err := db.Master.Close(); err != nil {
			zlog.Logger.Printf("failed to close master DB: %v", err)
		}

		for i, s := range db.Slaves {
			if err := s.Close(); err != nil {
				zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
			}
		}
	}

	if err := ch.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ channel")
	}

	if err := conn.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ connection")
	}
}
