// main.go — точка входа сервера потокового воспроизведения.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/Sihagjaat/VJ-Video-Player/internal/api/handlers"
	"github.com/Sihagjaat/VJ-Video-Player/internal/config"
	"github.com/Sihagjaat/VJ-Video-Player/internal/database"
	"github.com/Sihagjaat/VJ-Video-Player/internal/queue"
	"github.com/Sihagjaat/VJ-Video-Player/internal/repository"
	"github.com/Sihagjaat/VJ-Video-Player/internal/server"
	"github.com/Sihagjaat/VJ-Video-Player/internal/service"
	"github.com/Sihagjaat/VJ-Video-Player/internal/tgclient"
	"github.com/Sihagjaat/VJ-Video-Player/internal/tracing"
)

const serviceID = "vjplayer"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Сервер плеера запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("stream_link", cfg.StreamLink),
	)

	// Фоновые компоненты останавливаются по сигналу вместе с HTTP-сервером.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Трассировка
	shutdownTracing, err := tracing.Init(ctx, serviceID, config.Version, cfg.OTLPEndpoint, logger)
	if err != nil {
		fatal(logger, "Ошибка инициализации трассировки", err)
	}

	// 4. Миграции БД
	if err := database.Migrate(cfg, logger); err != nil {
		fatal(logger, "Ошибка миграций БД", err)
	}

	// 5. Пул соединений PostgreSQL
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "Ошибка подключения к БД", err)
	}

	// 6. Мониторинг зависимостей (topologymetrics)
	sqlDB := stdlib.OpenDBFromPool(pool)
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     serviceID,
		Group:         cfg.DephealthGroup,
		PgConnURL:     cfg.DatabaseURL("postgres"),
		CheckInterval: cfg.DephealthCheckInterval,
	}, sqlDB, logger)
	if err != nil {
		fatal(logger, "Ошибка инициализации dephealth", err)
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		fatal(logger, "Ошибка запуска dephealth", err)
	}

	// 7. Очередь отложенных начислений: Redis, если задан адрес, иначе память процесса
	var (
		retryQueue   queue.RetryQueue
		redisQueue   *queue.RedisQueue
		queueChecker handlers.ReadinessChecker
	)
	if cfg.RedisAddr != "" {
		redisQueue, err = queue.NewRedisQueue(ctx, queue.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisQueueKey,
		}, logger)
		if err != nil {
			fatal(logger, "Ошибка подключения к Redis", err)
		}
		retryQueue, queueChecker = redisQueue, redisQueue
	} else {
		logger.Warn("VP_REDIS_ADDR не задан, отложенные начисления хранятся в памяти процесса",
			slog.Int("limit", cfg.AccountingQueueSize),
		)
		retryQueue = queue.NewMemoryQueue(cfg.AccountingQueueSize)
	}

	// 8. Клиент Telegram
	tg, err := tgclient.New(tgclient.Config{
		AppID:          cfg.TGAppID,
		AppHash:        cfg.TGAppHash,
		BotToken:       cfg.TGBotToken,
		SessionFile:    cfg.TGSessionFile,
		PartSize:       cfg.ChunkSize,
		PartTimeout:    cfg.FetchPartTimeout,
		Debug:          cfg.LogLevel == slog.LevelDebug,
		DefaultChannel: cfg.TGLogChannel,
	}, logger)
	if err != nil {
		fatal(logger, "Ошибка подключения к Telegram", err)
	}

	// 9. Репозитории
	files := repository.NewFileRepository(pool)
	users := repository.NewUserRepository(pool)
	earnings := repository.NewEarningRepository(pool)
	ledger := repository.NewLedger(pool)

	// 10. Сервисы
	cache := service.NewCacheService(cfg.CacheMaxSize, cfg.CacheTTL)

	var views service.ViewRecorder
	accounting := service.NewAccountingService(files, ledger, retryQueue, cache,
		cfg.CPMRate, cfg.AccountingTimeout, logger)
	if cfg.ViewCounterEnabled {
		views = accounting
	}

	streams := service.NewStreamService(files, cache, tg, views, service.StreamConfig{
		WriteIdleTimeout: cfg.StreamWriteIdleTimeout,
		ViewPolicy:       cfg.ViewPolicy,
		CountViews:       cfg.ViewCounterEnabled,
	}, logger)
	stats := service.NewStatsService(users, earnings, streams, logger)

	// 11. Повторная обработка отложенных начислений
	retrier := service.NewAccountingRetrier(retryQueue, ledger,
		cfg.AccountingRetryInterval, cfg.AccountingRetryMaxAttempts, logger)
	retrier.Start(ctx)

	// 12. HTTP-сервер (блокирующий вызов с graceful shutdown)
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), queueChecker)
	apiHandler := handlers.NewAPIHandler(cfg, healthHandler, streams, stats, logger)
	srv := server.New(cfg, logger, apiHandler)

	runErr := srv.Run()
	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
	}

	// 13. Остановка фоновых компонентов: сначала дожидаемся учёта просмотров,
	// затем последний проход по очереди подбирает отложенные при остановке начисления.
	stop()

	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := accounting.Wait(waitCtx); err != nil {
		logger.Warn("Не все транзакции учёта просмотров завершены",
			slog.String("error", err.Error()),
		)
	}
	res, left, err := retrier.Drain(waitCtx)
	switch {
	case err != nil:
		logger.Warn("Не удалось проверить очередь начислений", slog.String("error", err.Error()))
	case left > 0 && redisQueue == nil:
		logger.Error("Неприменённые начисления потеряны при остановке",
			slog.Int64("count", left),
			slog.Int("applied", res.Applied),
		)
	case left > 0:
		logger.Info("Начисления остаются в очереди Redis",
			slog.Int64("count", left),
			slog.Int("applied", res.Applied),
		)
	}
	dephealthSvc.Stop()
	tg.Close()
	if redisQueue != nil {
		if err := redisQueue.Close(); err != nil {
			logger.Warn("Ошибка закрытия Redis", slog.String("error", err.Error()))
		}
	}
	_ = sqlDB.Close()
	pool.Close()
	if err := shutdownTracing(waitCtx); err != nil {
		logger.Warn("Ошибка остановки трассировки", slog.String("error", err.Error()))
	}
	cancel()

	if runErr != nil {
		log.Fatalf("Сервер завершился с ошибкой: %v", runErr)
	}
	logger.Info("Сервер плеера остановлен")
}

// fatal логирует ошибку запуска и завершает процесс.
func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
