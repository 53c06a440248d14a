// Package main contains the entrypoint for the sales parser bot: the
// Telegram listener, the pipeline worker pool, and the maintenance
// scheduler in a single process.
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

	"github.com/MaximushkaBed/telegram-sales-parser/internal/bot"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/bot/tasks"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/classifier"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/config"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/gateway"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/logger"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/media"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/report"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/telegram"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/telegram/handlers"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/worker"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components, handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
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

	gw := gateway.NewGateway(store, q, log)
	extractor := report.NewExtractor(store, log)

	hDeps := handlers.HandlerDeps{
		Logger:    log,
		Store:     store,
		Gateway:   gw,
		Extractor: extractor,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewUpdateHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
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

	app := bot.NewBot(log, tg, pool, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
