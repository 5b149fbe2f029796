package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// InvalidationService сбрасывает кэш при правке листа-зеркала.
type InvalidationService struct {
	cache     *CacheService
	sheetName string
	telemetry *telemetry.Log
	logger    *slog.Logger
}

// NewInvalidationService создаёт обработчик правок для листа sheetName.
func NewInvalidationService(cache *CacheService, sheetName string, tel *telemetry.Log, logger *slog.Logger) *InvalidationService {
	return &InvalidationService{
		cache:     cache,
		sheetName: sheetName,
		telemetry: tel,
		logger:    logger.With(slog.String("component", "invalidation")),
	}
}

// HandleEdit очищает кэш, если правка относится к листу-зеркалу.
// Очистка безусловная: содержимое правки не анализируется.
// Возвращает true, если кэш был сброшен.
func (s *InvalidationService) HandleEdit(ctx context.Context, edit model.EditEvent) bool {
	if !strings.EqualFold(strings.TrimSpace(edit.SheetName), s.sheetName) {
		s.logger.Debug("Правка другого листа пропущена", slog.String("sheet", edit.SheetName))
		return false
	}

	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Error("Не удалось сбросить кэш по правке",
			slog.String("range", edit.RangeAddress),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.telemetry.RecordInvalidation(ctx, edit)
	s.telemetry.Record(ctx, telemetry.DomainRuntime, "cache_invalidated", telemetry.LevelInfo,
		"Кэш сброшен по правке листа", map[string]any{
			"range":    edit.RangeAddress,
			"oldValue": edit.OldValue,
			"newValue": edit.NewValue,
		})
	s.logger.Info("Кэш сброшен по правке листа", slog.String("range", edit.RangeAddress))
	return true
}

// Handler возвращает HandleEdit в форме обработчика наблюдателя листа.
func (s *InvalidationService) Handler() func(ctx context.Context, edit model.EditEvent) {
	return func(ctx context.Context, edit model.EditEvent) {
		s.HandleEdit(ctx, edit)
	}
}
