// Пакет service — бизнес-логика справочника кампусов.
// CacheService — долговременный кэш справочника поверх kv.Store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/domain/validation"
	"github.com/bigkaa/campus-directory/internal/storage/kv"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_cache_hits_total",
		Help: "Общее количество попаданий в кэш справочника.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_cache_misses_total",
		Help: "Общее количество промахов кэша справочника.",
	})
	cacheCorruptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_cache_corrupt_total",
		Help: "Количество обнаруженных повреждений кэша (запись удалена).",
	})
)

// CacheService — кэш справочника: одна запись под kv.KeyDirectory.
// Справочник хранится целиком, без разбиения по кампусам.
type CacheService struct {
	store     kv.Store
	telemetry *telemetry.Log
	logger    *slog.Logger
	now       func() time.Time
}

// NewCacheService создаёт кэш справочника.
func NewCacheService(store kv.Store, tel *telemetry.Log, logger *slog.Logger) *CacheService {
	return &CacheService{
		store:     store,
		telemetry: tel,
		logger:    logger.With(slog.String("component", "cache")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает справочник из кэша.
// (nil, nil) — промах: ключ отсутствует или payload повреждён
// (повреждённая запись удаляется). Ошибка — только сбой хранилища.
func (c *CacheService) Get(ctx context.Context) (*model.Directory, error) {
	raw, ok, err := c.store.Get(ctx, kv.KeyDirectory)
	if err != nil {
		c.telemetry.Record(ctx, telemetry.DomainRuntime, "cache_read", telemetry.LevelError,
			"Ошибка чтения кэша", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("ошибка чтения кэша: %w", err)
	}
	if !ok {
		cacheMissesTotal.Inc()
		c.telemetry.Record(ctx, telemetry.DomainRuntime, "cache_miss", telemetry.LevelInfo,
			"Кэш справочника пуст", nil)
		return nil, nil
	}

	dir, err := model.DecodeDirectory([]byte(raw), validation.EmailProblem)
	if err != nil {
		cacheCorruptTotal.Inc()
		c.telemetry.Record(ctx, telemetry.DomainRuntime, "cache_corrupt", telemetry.LevelWarning,
			"Кэш справочника повреждён и удалён", map[string]any{"error": err.Error()})
		c.logger.Warn("Кэш повреждён, запись удалена", slog.String("error", err.Error()))
		if delErr := c.store.Delete(ctx, kv.KeyDirectory); delErr != nil {
			c.logger.Error("Не удалось удалить повреждённый кэш", slog.String("error", delErr.Error()))
		}
		return nil, nil
	}

	cacheHitsTotal.Inc()
	c.telemetry.Record(ctx, telemetry.DomainRuntime, "cache_hit", telemetry.LevelInfo,
		"Справочник прочитан из кэша", map[string]any{"campuses": dir.Len()})
	return dir, nil
}

// Peek возвращает справочник без телеметрии и без удаления повреждённой записи.
// Используется для отчёта о состоянии.
func (c *CacheService) Peek(ctx context.Context) (*model.Directory, error) {
	raw, ok, err := c.store.Get(ctx, kv.KeyDirectory)
	if err != nil || !ok {
		return nil, err
	}
	return model.DecodeDirectory([]byte(raw), validation.EmailProblem)
}

// Store проверяет инварианты справочника и сохраняет его в кэш.
// При нарушении инвариантов ничего не записывается. В справочнике
// проставляются LastUpdated и MigrationComplete.
func (c *CacheService) Store(ctx context.Context, dir *model.Directory) error {
	if dir == nil {
		return fmt.Errorf("%w: справочник отсутствует", model.ErrInvalidDirectory)
	}
	if err := dir.Check(validation.EmailProblem); err != nil {
		c.telemetry.Record(ctx, telemetry.DomainRuntime, "cache_store", telemetry.LevelError,
			"Справочник отклонён при сохранении", map[string]any{"error": err.Error()})
		return fmt.Errorf("%w: %v", model.ErrInvalidDirectory, err)
	}

	stamped := dir.Clone()
	stamped.LastUpdated = c.now()
	stamped.MigrationComplete = true

	payload, err := model.EncodeDirectory(stamped)
	if err != nil {
		return fmt.Errorf("ошибка сериализации справочника: %w", err)
	}
	if err := c.store.Set(ctx, kv.KeyDirectory, string(payload)); err != nil {
		c.telemetry.Record(ctx, telemetry.DomainRuntime, "cache_store", telemetry.LevelError,
			"Ошибка записи кэша", map[string]any{"error": err.Error()})
		return fmt.Errorf("ошибка записи кэша: %w", err)
	}

	dir.LastUpdated = stamped.LastUpdated
	dir.MigrationComplete = true

	c.telemetry.Record(ctx, telemetry.DomainRuntime, "cache_store", telemetry.LevelSuccess,
		"Справочник сохранён в кэш", map[string]any{
			"campuses":   dir.Len(),
			"recipients": dir.RecipientCount(),
			"bytes":      len(payload),
		})
	return nil
}

// Clear удаляет справочник из кэша. Повторный вызов безопасен.
func (c *CacheService) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, kv.KeyDirectory); err != nil {
		c.telemetry.Record(ctx, telemetry.DomainRuntime, "cache_clear", telemetry.LevelError,
			"Ошибка очистки кэша", map[string]any{"error": err.Error()})
		return fmt.Errorf("ошибка очистки кэша: %w", err)
	}
	c.telemetry.Record(ctx, telemetry.DomainRuntime, "cache_clear", telemetry.LevelInfo,
		"Кэш справочника очищен", nil)
	return nil
}
