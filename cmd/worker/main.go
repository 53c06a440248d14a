// Package main contains the entrypoint for a standalone pipeline worker
// process. It consumes jobs from the shared queue without running a
// Telegram update listener, so extra workers can be added independently of
// the ingest bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/bot"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/bot/tasks"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/classifier"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/config"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/logger"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/media"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/telegram"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/worker"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	q := queue.NewSQLiteQueue(db, cfg.Queue.MaxAttempts, log)

	oracle, err := classifier.NewGeminiOracle(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini oracle", "error", err)
		return 1
	}
	engine := classifier.NewEngine(classifier.NewRuleMatcher(cfg.Classifier.Keywords), oracle, log)

	// The Bot API client is only used for getFile calls here; the worker
	// never polls for updates.
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithSkipGetMe())
	if err != nil {
		log.Error("Failed to create Telegram client", "error", err)
		return 1
	}
	fetcher := media.NewFetcher(telegram.NewFileResolver(tg, cfg.Telegram.Token), cfg.Media.Dir, cfg.Media.DownloadTimeout, log)

	pool := worker.NewPool(cfg.Worker.Count, q, store, fetcher, engine, cfg.Queue.LeaseFor, cfg.Queue.PollInterval, log)

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Queue:  q,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	log.Info("Starting worker process...")
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pool.Run(gCtx)
	})
	g.Go(func() error {
		if err := sched.Start(); err != nil {
			return err
		}
		<-gCtx.Done()
		return sched.Stop()
	})

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Worker stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Worker stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
