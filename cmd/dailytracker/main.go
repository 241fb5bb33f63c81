package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"daily-tracker/internal/api"
	"daily-tracker/internal/bot"
	"daily-tracker/internal/config"
	"daily-tracker/internal/feed"
	"daily-tracker/internal/logger"
	"daily-tracker/internal/marker"
	"daily-tracker/internal/model"
	"daily-tracker/internal/repository"
	"daily-tracker/internal/service"
	"daily-tracker/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("logger: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		fatal("db", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	var markers service.MarkerStore
	switch cfg.MarkerBackend {
	case config.MarkerRedis:
		rm, err := marker.NewRedis(cfg.RedisURL)
		if err != nil {
			fatal("redis", err)
		}
		defer rm.Close()
		markers = rm
	default:
		localDB, err := repository.NewLocalDB(cfg.LocalStatePath)
		if err != nil {
			fatal("local db", err)
		}
		if sqlDB, err := localDB.DB(); err == nil {
			defer sqlDB.Close()
		}
		markers = repository.NewMarkerRepository(localDB)
	}

	// The session manager is created after the feed, but the NATS reconnect
	// handler needs it.
	var manager atomic.Pointer[service.SessionManager]
	var taskFeed feed.Broker[model.ChangeEvent]
	var statFeed feed.Broker[model.CompletionEvent]
	switch cfg.FeedBackend {
	case config.FeedNATS:
		conn, err := feed.Connect(cfg.NATSURL, func() {
			if m := manager.Load(); m != nil {
				m.ResyncAll()
			}
		})
		if err != nil {
			fatal("nats", err)
		}
		defer drain(conn)
		taskFeed = feed.NewNATS[model.ChangeEvent](conn, "todos", 0)
		statFeed = feed.NewNATS[model.CompletionEvent](conn, "todo_completions", 0)
	default:
		taskHub := feed.NewHub[model.ChangeEvent](0)
		statHub := feed.NewHub[model.CompletionEvent](0)
		defer taskHub.Close()
		defer statHub.Close()
		taskFeed, statFeed = taskHub, statHub
	}

	tasks := store.NewTasks(repository.NewTaskRepository(db), taskFeed)
	completions := store.NewCompletions(repository.NewCompletionRepository(db), statFeed)

	scheduler := service.NewSchedulerService(cfg.Location)
	scheduler.Start()
	defer scheduler.Stop()

	sessions := service.NewSessionManager(service.SessionDeps{
		Tasks:         tasks,
		Completions:   completions,
		Markers:       markers,
		Scheduler:     scheduler,
		Location:      cfg.Location,
		CheckInterval: cfg.CheckInterval,
	})
	manager.Store(sessions)
	defer sessions.CloseAll()

	server := api.NewServer(cfg.HTTPAddr, api.NewHandler(sessions))
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	if cfg.BotEnabled() {
		telegramBot, err := bot.New(cfg.TelegramToken, repository.NewUserRepository(db), sessions, scheduler)
		if err != nil {
			fatal("bot", err)
		}
		if cfg.ReportInterval > 0 {
			if err := telegramBot.ScheduleReports(cfg.ReportInterval); err != nil {
				fatal("schedule reports", err)
			}
		}
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bot stopped with error", "error", err)
			}
		}()
	} else {
		logger.Info("TELEGRAM_TOKEN not set, bot disabled")
	}

	logger.Info("daily tracker started", "feed", cfg.FeedBackend, "markers", cfg.MarkerBackend)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	logger.Info("shutdown complete")
}

func drain(conn *nats.Conn) {
	if err := conn.Drain(); err != nil {
		conn.Close()
	}
}

func fatal(what string, err error) {
	logger.Error(what, "error", err)
	os.Exit(1)
}
