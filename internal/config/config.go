// Пакет config — загрузка и валидация конфигурации VJ Video Player
// из переменных окружения (префикс VP_).
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Политики учёта просмотров.
const (
	// ViewPolicyEveryStream — каждый начатый stream считается просмотром.
	ViewPolicyEveryStream = "every_stream"
	// ViewPolicyInitialRange — Range-запросы с началом > 0 не считаются
	// (перемотка в плеере продолжает уже учтённый просмотр).
	ViewPolicyInitialRange = "initial_range"
)

// telegramPartAlign — выравнивание частей upload.getFile (4 KiB).
const telegramPartAlign = 4096

// telegramPartMax — максимальный размер части upload.getFile (1 MiB).
const telegramPartMax = 1 << 20

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения заголовков запроса
	HTTPReadHeaderTimeout time.Duration
	// Таймаут чтения HTTP-сервера
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (0 — без ограничения, длинные stream'ы)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Максимальное количество соединений в пуле (0 — значение pgxpool по умолчанию)
	DBMaxConns int

	// --- Telegram ---

	// API ID приложения Telegram
	TGAppID int
	// API hash приложения Telegram
	TGAppHash string
	// Токен бота
	TGBotToken string
	// Путь к файлу сессии MTProto
	TGSessionFile string
	// ID канала-хранилища (LOG_CHANNEL), обычно вида -100xxxxxxxxxx
	TGLogChannel int64

	// --- Streaming ---

	// Публичный базовый URL сервиса, обязательно оканчивается на "/"
	StreamLink string
	// Размер части при чтении из Telegram (делитель 1 MiB, кратен 4 KiB)
	ChunkSize int
	// Таймаут получения одной части из Telegram
	FetchPartTimeout time.Duration
	// Таймаут простоя при записи одной части клиенту
	StreamWriteIdleTimeout time.Duration

	// --- Учёт просмотров ---

	// Включён ли учёт просмотров
	ViewCounterEnabled bool
	// Политика учёта просмотров (every_stream, initial_range)
	ViewPolicy string
	// CPM — доход за 1000 просмотров
	CPMRate decimal.Decimal
	// Таймаут фоновой транзакции учёта
	AccountingTimeout time.Duration
	// Интервал повторной обработки отложенных начислений
	AccountingRetryInterval time.Duration
	// Максимальное число попыток для отложенного начисления
	AccountingRetryMaxAttempts int
	// Размер in-memory очереди отложенных начислений (без Redis)
	AccountingQueueSize int

	// --- Redis (опционально) ---

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisQueueKey string

	// --- Кэш метаданных ---

	CacheMaxSize int
	CacheTTL     time.Duration

	// --- Rate limiting ---

	// Запросов на окно с одного IP (0 — ограничение выключено)
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int

	// --- JWT (API статистики) ---

	// Секрет HS256; пустое значение отключает /api/v1
	JWTSecret string
	// Ожидаемый issuer (пусто — не проверяется)
	JWTIssuer string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Наблюдаемость ---

	// OTLP HTTP endpoint для трассировки (пусто — трассировка выключена)
	OTLPEndpoint string
	// Группа в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
//
//nolint:gocyclo,cyclop // линейный разбор переменных окружения
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	if cfg.Port, err = getEnvInt("VP_PORT", 8080); err != nil {
		return nil, fmt.Errorf("VP_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("VP_PORT: порт %d вне диапазона 1-65535", cfg.Port)
	}

	if cfg.LogLevel, err = parseLogLevel(getEnvDefault("VP_LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("VP_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("VP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("VP_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	if cfg.HTTPReadHeaderTimeout, err = getEnvDuration("VP_HTTP_READ_HEADER_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("VP_HTTP_READ_HEADER_TIMEOUT: %w", err)
	}
	if cfg.HTTPReadTimeout, err = getEnvDuration("VP_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("VP_HTTP_READ_TIMEOUT: %w", err)
	}
	// Общий таймаут записи по умолчанию выключен: stream видео может длиться часами,
	// зависшие клиенты отсекаются VP_STREAM_WRITE_IDLE_TIMEOUT.
	if cfg.HTTPWriteTimeout, err = getEnvDuration("VP_HTTP_WRITE_TIMEOUT", 0); err != nil {
		return nil, fmt.Errorf("VP_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("VP_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("VP_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("VP_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("VP_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("VP_DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.DBPort, err = getEnvInt("VP_DB_PORT", 5432); err != nil {
		return nil, fmt.Errorf("VP_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("VP_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("VP_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("VP_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("VP_DB_SSL_MODE", "disable")
	if cfg.DBMaxConns, err = getEnvInt("VP_DB_MAX_CONNS", 0); err != nil {
		return nil, fmt.Errorf("VP_DB_MAX_CONNS: %w", err)
	}

	// --- Telegram ---

	appID, err := getEnvRequired("VP_TG_APP_ID")
	if err != nil {
		return nil, err
	}
	if cfg.TGAppID, err = strconv.Atoi(appID); err != nil || cfg.TGAppID <= 0 {
		return nil, fmt.Errorf("VP_TG_APP_ID: некорректный API ID %q", appID)
	}
	if cfg.TGAppHash, err = getEnvRequired("VP_TG_APP_HASH"); err != nil {
		return nil, err
	}
	if cfg.TGBotToken, err = getEnvRequired("VP_TG_BOT_TOKEN"); err != nil {
		return nil, err
	}
	cfg.TGSessionFile = getEnvDefault("VP_TG_SESSION", "vjplayer.session")
	channel, err := getEnvRequired("VP_TG_LOG_CHANNEL")
	if err != nil {
		return nil, err
	}
	if cfg.TGLogChannel, err = strconv.ParseInt(channel, 10, 64); err != nil || cfg.TGLogChannel == 0 {
		return nil, fmt.Errorf("VP_TG_LOG_CHANNEL: некорректный ID канала %q", channel)
	}

	// --- Streaming ---

	if cfg.StreamLink, err = getEnvRequired("VP_STREAM_LINK"); err != nil {
		return nil, err
	}
	if err := validateStreamLink(cfg.StreamLink); err != nil {
		return nil, fmt.Errorf("VP_STREAM_LINK: %w", err)
	}
	if cfg.ChunkSize, err = getEnvInt("VP_CHUNK_SIZE", telegramPartMax); err != nil {
		return nil, fmt.Errorf("VP_CHUNK_SIZE: %w", err)
	}
	if err := validateChunkSize(cfg.ChunkSize); err != nil {
		return nil, fmt.Errorf("VP_CHUNK_SIZE: %w", err)
	}
	if cfg.FetchPartTimeout, err = getEnvDurationPositive("VP_FETCH_PART_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("VP_FETCH_PART_TIMEOUT: %w", err)
	}
	if cfg.StreamWriteIdleTimeout, err = getEnvDurationPositive("VP_STREAM_WRITE_IDLE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("VP_STREAM_WRITE_IDLE_TIMEOUT: %w", err)
	}

	// --- Учёт просмотров ---

	if cfg.ViewCounterEnabled, err = getEnvBool("VP_ENABLE_VIEW_COUNTER", true); err != nil {
		return nil, fmt.Errorf("VP_ENABLE_VIEW_COUNTER: %w", err)
	}
	cfg.ViewPolicy = getEnvDefault("VP_VIEW_POLICY", ViewPolicyEveryStream)
	if cfg.ViewPolicy != ViewPolicyEveryStream && cfg.ViewPolicy != ViewPolicyInitialRange {
		return nil, fmt.Errorf("VP_VIEW_POLICY: недопустимая политика %q, допустимые: %s, %s",
			cfg.ViewPolicy, ViewPolicyEveryStream, ViewPolicyInitialRange)
	}
	if cfg.CPMRate, err = getEnvDecimal("VP_CPM_RATE", decimal.RequireFromString("3.5")); err != nil {
		return nil, fmt.Errorf("VP_CPM_RATE: %w", err)
	}
	if cfg.CPMRate.IsNegative() {
		return nil, fmt.Errorf("VP_CPM_RATE: значение не может быть отрицательным: %s", cfg.CPMRate)
	}
	if cfg.AccountingTimeout, err = getEnvDurationPositive("VP_ACCOUNTING_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("VP_ACCOUNTING_TIMEOUT: %w", err)
	}
	if cfg.AccountingRetryInterval, err = getEnvDurationPositive("VP_ACCOUNTING_RETRY_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("VP_ACCOUNTING_RETRY_INTERVAL: %w", err)
	}
	if cfg.AccountingRetryMaxAttempts, err = getEnvInt("VP_ACCOUNTING_RETRY_MAX_ATTEMPTS", 10); err != nil {
		return nil, fmt.Errorf("VP_ACCOUNTING_RETRY_MAX_ATTEMPTS: %w", err)
	}
	if cfg.AccountingRetryMaxAttempts < 1 {
		return nil, fmt.Errorf("VP_ACCOUNTING_RETRY_MAX_ATTEMPTS: значение должно быть >= 1")
	}
	if cfg.AccountingQueueSize, err = getEnvInt("VP_ACCOUNTING_QUEUE_SIZE", 10000); err != nil {
		return nil, fmt.Errorf("VP_ACCOUNTING_QUEUE_SIZE: %w", err)
	}
	if cfg.AccountingQueueSize < 1 {
		return nil, fmt.Errorf("VP_ACCOUNTING_QUEUE_SIZE: значение должно быть >= 1")
	}

	// --- Redis ---

	cfg.RedisAddr = os.Getenv("VP_REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("VP_REDIS_PASSWORD")
	if cfg.RedisDB, err = getEnvInt("VP_REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("VP_REDIS_DB: %w", err)
	}
	cfg.RedisQueueKey = getEnvDefault("VP_REDIS_QUEUE_KEY", "vjplayer:accounting:retry")

	// --- Кэш ---

	if cfg.CacheMaxSize, err = getEnvInt("VP_CACHE_MAX_SIZE", 10000); err != nil {
		return nil, fmt.Errorf("VP_CACHE_MAX_SIZE: %w", err)
	}
	if cfg.CacheMaxSize < 1 {
		return nil, fmt.Errorf("VP_CACHE_MAX_SIZE: значение должно быть >= 1")
	}
	if cfg.CacheTTL, err = getEnvDurationPositive("VP_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("VP_CACHE_TTL: %w", err)
	}

	// --- Rate limiting ---

	if cfg.RateLimitRequests, err = getEnvInt("VP_RATE_LIMIT_REQUESTS", 120); err != nil {
		return nil, fmt.Errorf("VP_RATE_LIMIT_REQUESTS: %w", err)
	}
	if cfg.RateLimitWindow, err = getEnvDurationPositive("VP_RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, fmt.Errorf("VP_RATE_LIMIT_WINDOW: %w", err)
	}
	if cfg.RateLimitBurst, err = getEnvInt("VP_RATE_LIMIT_BURST", 30); err != nil {
		return nil, fmt.Errorf("VP_RATE_LIMIT_BURST: %w", err)
	}

	// --- JWT ---

	cfg.JWTSecret = os.Getenv("VP_JWT_SECRET")
	cfg.JWTIssuer = os.Getenv("VP_JWT_ISSUER")
	if cfg.JWTLeeway, err = getEnvDuration("VP_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("VP_JWT_LEEWAY: %w", err)
	}

	// --- Наблюдаемость ---

	cfg.OTLPEndpoint = os.Getenv("VP_OTLP_ENDPOINT")
	cfg.DephealthGroup = getEnvDefault("VP_DEPHEALTH_GROUP", "vjplayer")
	if cfg.DephealthCheckInterval, err = getEnvDurationPositive("VP_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("VP_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
	if c.DBMaxConns > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", c.DBMaxConns)
	}
	return dsn
}

// DatabaseURL возвращает URL подключения к PostgreSQL.
// scheme — "postgres" для лейблов dephealth или "pgx5" для golang-migrate.
func (c *Config) DatabaseURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// DownloadURL возвращает публичную ссылку на скачивание файла.
func (c *Config) DownloadURL(fileID string) string {
	return c.StreamLink + "download/" + url.PathEscape(fileID)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// validateStreamLink проверяет публичный URL: абсолютный http(s) и "/" в конце.
func validateStreamLink(link string) error {
	if !strings.HasSuffix(link, "/") {
		return fmt.Errorf("URL должен оканчиваться на \"/\": %q", link)
	}
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("некорректный URL %q: %w", link, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("недопустимая схема %q, допустимые: http, https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("в URL %q не указан хост", link)
	}
	return nil
}

// validateChunkSize проверяет ограничения upload.getFile:
// размер кратен 4 KiB и является делителем 1 MiB.
func validateChunkSize(size int) error {
	if size <= 0 || size > telegramPartMax {
		return fmt.Errorf("размер %d вне диапазона 4096-%d", size, telegramPartMax)
	}
	if size%telegramPartAlign != 0 || telegramPartMax%size != 0 {
		return fmt.Errorf("размер %d должен быть кратен 4096 и делить 1048576 без остатка", size)
	}
	return nil
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("длительность не может быть отрицательной: %q", val)
	}
	return d, nil
}

// getEnvDurationPositive — как getEnvDuration, но значение должно быть > 0.
func getEnvDurationPositive(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// getEnvDecimal возвращает десятичное значение (денежные суммы) или значение по умолчанию.
func getEnvDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("некорректное десятичное число: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
