package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/campus-directory/internal/api/handlers"
	"github.com/bigkaa/campus-directory/internal/config"
	"github.com/bigkaa/campus-directory/internal/database"
	"github.com/bigkaa/campus-directory/internal/repository"
	"github.com/bigkaa/campus-directory/internal/seed"
	"github.com/bigkaa/campus-directory/internal/service"
	"github.com/bigkaa/campus-directory/internal/storage/kv"
	"github.com/bigkaa/campus-directory/internal/storage/sheet"
	"github.com/bigkaa/campus-directory/internal/storage/sqlitekv"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// app — собранный граф зависимостей справочника.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store      kv.Store
	storeCheck handlers.ReadinessChecker
	// pgDB — адаптер pgxpool для topologymetrics, только для postgres
	pgDB *sql.DB

	table *sheet.CSVTable
	seed  *seed.Dataset

	telemetry    *telemetry.Log
	cache        *service.CacheService
	folders      *service.FolderSource
	migration    *service.MigrationService
	recovery     *service.RecoveryService
	lookup       *service.LookupService
	invalidation *service.InvalidationService
	status       *service.StatusService

	closers []func()
}

// newApp открывает хранилище выбранного бэкенда и создаёт сервисный слой.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	ds, err := seed.Load()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("загрузка seed: %w", err)
	}
	a.seed = ds

	a.table = sheet.NewCSVTable(cfg.WorkbookDir, cfg.MirrorSheet, logger)

	var reference sheet.ReferenceReader
	if cfg.ReferencePath != "" {
		reference = sheet.NewCSVReference(cfg.ReferencePath)
	} else {
		logger.Info("CD_REFERENCE_PATH не задан, папки кампусов берутся из seed")
	}

	a.telemetry = telemetry.New(a.store, telemetry.Options{
		MigrationCap:    cfg.MigrationLogCap,
		RuntimeCap:      cfg.RuntimeLogCap,
		InvalidationCap: cfg.InvalidationLogCap,
		DurationWindow:  cfg.DurationWindow,
	}, logger)

	a.cache = service.NewCacheService(a.store, a.telemetry, logger)
	a.folders = service.NewFolderSource(reference, ds, cfg.ReferenceCacheSize, cfg.ReferenceCacheTTL, a.telemetry, logger)
	a.migration = service.NewMigrationService(a.store, a.cache, a.table, a.folders, ds, a.telemetry, logger)
	a.recovery = service.NewRecoveryService(a.table, a.cache, ds, a.telemetry, logger)
	a.lookup = service.NewLookupService(a.cache, a.migration, a.recovery, a.table, a.folders, ds, a.telemetry, logger)
	a.invalidation = service.NewInvalidationService(a.cache, cfg.MirrorSheet, a.telemetry, logger)
	a.status = service.NewStatusService(a.migration, a.cache, a.telemetry)

	return a, nil
}

// openStore создаёт kv.Store и readiness checker для CD_STORE_BACKEND.
func (a *app) openStore(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("Хранилище в памяти: состояние теряется при рестарте")
		a.store = kv.NewMemoryStore()

	case config.BackendFile:
		fs, err := kv.NewFileStore(cfg.StoreFilePath, logger)
		if err != nil {
			return fmt.Errorf("открытие файлового хранилища: %w", err)
		}
		a.store = fs

	case config.BackendSQLite:
		st, err := sqlitekv.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return fmt.Errorf("открытие SQLite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = st.Close() })
		a.store = st

	case config.BackendPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return fmt.Errorf("миграции БД: %w", err)
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("подключение к PostgreSQL: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		// Проверка здоровья PostgreSQL идёт через существующий пул соединений.
		a.pgDB = stdlib.OpenDBFromPool(pool)
		a.closers = append(a.closers, func() { _ = a.pgDB.Close() })

		a.store = repository.NewKVRepository(pool)
		a.storeCheck = database.NewReadinessChecker(pool)
		return nil

	default:
		return fmt.Errorf("неизвестный бэкенд хранилища %q", cfg.StoreBackend)
	}

	a.storeCheck = kv.NewReadinessChecker(a.store, cfg.StoreBackend)
	return nil
}

// services возвращает сервисы для API handlers.
func (a *app) services() handlers.Services {
	return handlers.Services{
		Lookup:       a.lookup,
		Migration:    a.migration,
		Recovery:     a.recovery,
		Invalidation: a.invalidation,
		Status:       a.status,
		Telemetry:    a.telemetry,
	}
}

// Close освобождает ресурсы в обратном порядке открытия.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
