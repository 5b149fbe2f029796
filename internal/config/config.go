// Пакет config — загрузка и валидация конфигурации Campus Directory
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Поддерживаемые бэкенды персистентного хранилища.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config содержит все параметры конфигурации Campus Directory.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера операторского API
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- Персистентное хранилище ---

	// Бэкенд: memory, file, sqlite, postgres
	StoreBackend string
	// Путь к JSON-файлу хранилища (file)
	StoreFilePath string
	// Путь к базе SQLite (sqlite)
	SQLitePath string

	// --- PostgreSQL (только для postgres) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Таблицы ---

	// Директория книги (workbook): по CSV-файлу на лист
	WorkbookDir string
	// Имя листа-зеркала справочника
	MirrorSheet string
	// Путь к CSV справочной таблицы папок (campus, folderId); пусто — не используется
	ReferencePath string
	// Размер и TTL кэша справочной таблицы
	ReferenceCacheSize int
	ReferenceCacheTTL  time.Duration

	// --- Наблюдение за правками ---

	// Включить fsnotify-наблюдение за листом-зеркалом
	WatchEnabled bool
	// Окно debounce для событий файловой системы
	WatchDebounce time.Duration

	// --- Телеметрия ---

	// Ёмкость журналов (migration, runtime, invalidation)
	MigrationLogCap    int
	RuntimeLogCap      int
	InvalidationLogCap int
	// Размер окна выборок длительности
	DurationWindow int

	// --- JWT (пусто JWTJWKSURL — аутентификация отключена) ---

	JWTJWKSURL string
	JWTIssuer  string
	// Claim для ролей в JWT
	JWTRolesClaim string
	// Роли, дающие доступ к мутирующим операциям (через запятую)
	AdminRoles []string
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- Dephealth ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CD_PORT — порт HTTP-сервера (по умолчанию 8020)
	cfg.Port, err = getEnvInt("CD_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("CD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CD_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("CD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.ReadTimeout, err = getEnvDuration("CD_READ_TIMEOUT", 15*time.Second); err != nil {
		return nil, fmt.Errorf("CD_READ_TIMEOUT: %w", err)
	}
	if cfg.WriteTimeout, err = getEnvDuration("CD_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CD_WRITE_TIMEOUT: %w", err)
	}
	if cfg.IdleTimeout, err = getEnvDuration("CD_IDLE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("CD_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("CD_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CD_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Персистентное хранилище ---

	cfg.StoreBackend = strings.ToLower(getEnvDefault("CD_STORE_BACKEND", BackendFile))
	switch cfg.StoreBackend {
	case BackendMemory, BackendFile, BackendSQLite, BackendPostgres:
	default:
		return nil, fmt.Errorf("CD_STORE_BACKEND: недопустимое значение %q, допустимые: memory, file, sqlite, postgres", cfg.StoreBackend)
	}
	cfg.StoreFilePath = getEnvDefault("CD_STORE_FILE", "./data/store.json")
	cfg.SQLitePath = getEnvDefault("CD_SQLITE_PATH", "./data/directory.db")

	// --- PostgreSQL ---

	if cfg.StoreBackend == BackendPostgres {
		if err := loadPostgres(cfg); err != nil {
			return nil, err
		}
	}

	// --- Таблицы ---

	cfg.WorkbookDir = getEnvDefault("CD_WORKBOOK_DIR", "./data/workbook")
	cfg.MirrorSheet = getEnvDefault("CD_MIRROR_SHEET", "CampusDirectory")
	if strings.ContainsAny(cfg.MirrorSheet, `/\`) {
		return nil, fmt.Errorf("CD_MIRROR_SHEET: имя листа %q не должно содержать разделителей пути", cfg.MirrorSheet)
	}
	cfg.ReferencePath = getEnvDefault("CD_REFERENCE_PATH", "")

	if cfg.ReferenceCacheSize, err = getEnvInt("CD_REFERENCE_CACHE_SIZE", 256); err != nil {
		return nil, fmt.Errorf("CD_REFERENCE_CACHE_SIZE: %w", err)
	}
	if cfg.ReferenceCacheSize < 1 {
		return nil, fmt.Errorf("CD_REFERENCE_CACHE_SIZE: значение %d должно быть положительным", cfg.ReferenceCacheSize)
	}
	if cfg.ReferenceCacheTTL, err = getEnvDuration("CD_REFERENCE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("CD_REFERENCE_CACHE_TTL: %w", err)
	}

	// --- Наблюдение ---

	if cfg.WatchEnabled, err = getEnvBool("CD_WATCH_ENABLED", true); err != nil {
		return nil, fmt.Errorf("CD_WATCH_ENABLED: %w", err)
	}
	if cfg.WatchDebounce, err = getEnvDuration("CD_WATCH_DEBOUNCE", 500*time.Millisecond); err != nil {
		return nil, fmt.Errorf("CD_WATCH_DEBOUNCE: %w", err)
	}

	// --- Телеметрия ---

	caps := []struct {
		key string
		dst *int
		def int
	}{
		{"CD_MIGRATION_LOG_CAP", &cfg.MigrationLogCap, 50},
		{"CD_RUNTIME_LOG_CAP", &cfg.RuntimeLogCap, 100},
		{"CD_INVALIDATION_LOG_CAP", &cfg.InvalidationLogCap, 50},
		{"CD_DURATION_WINDOW", &cfg.DurationWindow, 50},
	}
	for _, c := range caps {
		v, err := getEnvInt(c.key, c.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.key, err)
		}
		if v < 1 || v > 10000 {
			return nil, fmt.Errorf("%s: значение %d вне допустимого диапазона 1-10000", c.key, v)
		}
		*c.dst = v
	}

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("CD_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("CD_JWT_ISSUER", "")
	cfg.JWTRolesClaim = getEnvDefault("CD_JWT_ROLES_CLAIM", "realm_access.roles")
	cfg.AdminRoles = parseCSV(getEnvDefault("CD_ADMIN_ROLES", "admin"))
	if cfg.JWTLeeway, err = getEnvDuration("CD_JWT_LEEWAY", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CD_JWT_LEEWAY: %w", err)
	}

	// --- Dephealth ---

	cfg.DephealthGroup = getEnvDefault("CD_DEPHEALTH_GROUP", "campus-directory")
	if cfg.DephealthCheckInterval, err = getEnvDuration("CD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("CD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// loadPostgres загружает параметры PostgreSQL (обязательны для postgres-бэкенда).
func loadPostgres(cfg *Config) error {
	var err error
	if cfg.DBHost, err = getEnvRequired("CD_DB_HOST"); err != nil {
		return err
	}
	if cfg.DBPort, err = getEnvInt("CD_DB_PORT", 5432); err != nil {
		return fmt.Errorf("CD_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("CD_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("CD_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("CD_DB_PASSWORD"); err != nil {
		return err
	}

	cfg.DBSSLMode = getEnvDefault("CD_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("CD_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов dephealth).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgresql://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// AuthEnabled возвращает true, если задан JWKS endpoint.
func (c *Config) AuthEnabled() bool {
	return c.JWTJWKSURL != ""
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

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

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

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
