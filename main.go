package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/block_processor"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/classifier"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/config"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/indexer"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/moderation"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/push_queue"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/reports"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/repository"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/server"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/telegram_bot"
)

func main() {
	// Secrets can live in a local .env during development.
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err) // Should not happen in development
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	log := logrus.New()

	// Load configuration
	cfgPath := "configs/config.yml"
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Database connection
	db, err := repository.NewPostgresDB(repository.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	repository.MigrateDB(db, cfg.Database.MigrationsPath, logger)

	// Initialize repositories
	commentRepo := repository.NewCommentRepository(db, logger)
	spamRegistry := repository.NewSpamRegistry(db, logger)
	queueRepo := repository.NewQueueRepository(db, logger)
	reportRepo := repository.NewReportRepository(db, logger)

	// Classifier client + batching adapter
	classifierClient := classifier.NewClient(cfg.Classifier.URL, cfg.Classifier.APIKey)
	classifierAdapter := classifier.NewAdapter(
		classifierClient,
		cfg.Classifier.BatchSize,
		cfg.Classifier.BatchWindow,
		cfg.Classifier.CacheSize,
		cfg.Classifier.CacheTTL,
		logger,
	)

	// Telegram review bot (optional)
	bot, err := telegram_bot.NewBot(cfg, commentRepo, logger)
	if err != nil {
		logger.Warn("Failed to initialize Telegram bot, continuing without it", zap.Error(err))
		bot = nil
	}

	var notifier moderation.Notifier = moderation.NoopNotifier{}
	if bot != nil {
		notifier = bot
	}

	moderationSvc := moderation.NewService(
		commentRepo,
		classifierAdapter,
		notifier,
		cfg.Moderation.Enabled,
		cfg.Moderation.KnownReactions,
		logger,
	)
	reportsSvc := reports.NewService(reportRepo, commentRepo, notifier, logger)
	if bot != nil {
		bot.Attach(moderationSvc, reportsSvc)
	}

	// Push notification delivery
	var provider push_queue.Provider = push_queue.NoopProvider{}
	if cfg.Push.Enabled {
		provider = push_queue.NewAPIProvider(cfg.Push.URL, cfg.Push.APIKey)
	}
	fanout := push_queue.NewFanout(queueRepo, logger)
	pushWorker := push_queue.NewWorker(
		queueRepo,
		provider,
		cfg.Push.MaxAttempts,
		cfg.Push.PollDelay,
		cfg.Push.SubscriberBatchSize,
		logger,
	)

	// Block ingestion
	skipCache := block_processor.NewSkipCache(cfg.Indexer.SkipCacheSize, cfg.Indexer.SkipCacheTTL)
	processor := block_processor.NewProcessor(commentRepo, spamRegistry, moderationSvc, fanout, skipCache, logger)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go classifierAdapter.Run(ctx)
	go pushWorker.Run(ctx)

	if cfg.Indexer.Enabled {
		poller := indexer.NewPoller(
			indexer.NewClient(cfg.Indexer.URL, logger),
			processor,
			cfg.Indexer.ChainID,
			cfg.Indexer.StartBlock,
			cfg.Indexer.PollInterval,
			logger,
		)
		go poller.Run(ctx)
	} else {
		logger.Info("Block ingestion is disabled (indexer.enabled=false)")
	}

	// Run Telegram bot in a goroutine (if enabled)
	if bot != nil {
		go func() {
			if err := bot.Start(ctx); err != nil {
				logger.Error("Telegram bot failed", zap.Error(err))
			}
		}()
	}

	// Initialize and run the server
	srv := server.NewServer(cfg, commentRepo, moderationSvc, reportsSvc, bot, logger, log)
	go srv.Run(cfg.Server.Port)

	<-ctx.Done()
	logger.Info("Application stopped.")
}
