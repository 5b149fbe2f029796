// recovery.go — проверка внешней таблицы и её восстановление.
//
// Таблица считается повреждённой, если она отсутствует, не читается,
// имеет неверный заголовок, не содержит строк данных или не содержит
// ни одной корректной строки при наличии некорректных. Восстановление
// пересоздаёт таблицу из первого непустого источника цепочки: cache, затем seed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/domain/validation"
	"github.com/bigkaa/campus-directory/internal/seed"
	"github.com/bigkaa/campus-directory/internal/storage/sheet"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// Имена стратегий цепочки источников.
const (
	StrategyCache = "cache"
	StrategyTable = "table"
	StrategySeed  = "seed"
)

// directoryStrategy — именованный источник справочника.
type directoryStrategy struct {
	name string
	load func(ctx context.Context) (*model.Directory, error)
}

// RecoveryService — менеджер восстановления внешней таблицы.
type RecoveryService struct {
	table     sheet.Table
	cache     *CacheService
	seed      *seed.Dataset
	telemetry *telemetry.Log
	logger    *slog.Logger
}

// NewRecoveryService создаёт менеджер восстановления.
func NewRecoveryService(
	table sheet.Table,
	cache *CacheService,
	ds *seed.Dataset,
	tel *telemetry.Log,
	logger *slog.Logger,
) *RecoveryService {
	return &RecoveryService{
		table:     table,
		cache:     cache,
		seed:      ds,
		telemetry: tel,
		logger:    logger.With(slog.String("component", "recovery")),
	}
}

// ValidateAndRecover проверяет таблицу и при необходимости восстанавливает её.
func (r *RecoveryService) ValidateAndRecover(ctx context.Context) model.RecoveryOutcome {
	reason := r.diagnose(ctx)
	if reason == "" {
		return model.RecoveryOutcome{
			Success: true,
			Action:  model.ActionNoRecoveryNeeded,
			Details: "внешняя таблица в порядке",
		}
	}

	r.telemetry.Record(ctx, telemetry.DomainRuntime, "table_check", telemetry.LevelWarning,
		"Внешняя таблица требует восстановления", map[string]any{"reason": reason})
	r.logger.Warn("Внешняя таблица требует восстановления", slog.String("reason", reason))
	return r.rebuild(ctx, reason)
}

// ForceRebuild пересоздаёт таблицу независимо от её состояния.
func (r *RecoveryService) ForceRebuild(ctx context.Context) model.RecoveryOutcome {
	return r.rebuild(ctx, "принудительное восстановление")
}

// diagnose возвращает причину восстановления или "" для исправной таблицы.
func (r *RecoveryService) diagnose(ctx context.Context) string {
	exists, err := r.table.Exists(ctx)
	if err != nil {
		return fmt.Sprintf("ошибка проверки таблицы: %v", err)
	}
	if !exists {
		return "таблица отсутствует"
	}

	rows, err := r.table.ReadAll(ctx)
	if err != nil {
		return fmt.Sprintf("таблица не читается: %v", err)
	}
	if err := sheet.CheckHeader(rows); err != nil {
		return err.Error()
	}

	res := validation.ValidateEmails(rows)
	if res.Summary.Valid+res.Summary.Invalid == 0 {
		return fmt.Sprintf("в таблице нет строк данных (пустых строк: %d)", res.Summary.Empty)
	}
	if len(res.Valid) == 0 && len(res.Invalid) > 0 {
		return fmt.Sprintf("в таблице нет корректных строк (некорректных: %d)", len(res.Invalid))
	}
	return ""
}

// rebuild перебирает стратегии cache → seed. Таблица удаляется только
// после того, как найден непустой источник.
func (r *RecoveryService) rebuild(ctx context.Context, reason string) model.RecoveryOutcome {
	start := time.Now()
	strategies := []directoryStrategy{
		{name: StrategyCache, load: r.fromCache},
		{name: StrategySeed, load: r.fromSeed},
	}

	var attempts []model.Attempt
	for _, s := range strategies {
		rows, err := r.sourceRows(ctx, s)
		if err == nil {
			err = r.recreate(ctx, rows)
		}
		if err != nil {
			attempts = append(attempts, model.Attempt{Strategy: s.name, Error: err.Error()})
			r.logger.Warn("Стратегия восстановления не сработала",
				slog.String("strategy", s.name),
				slog.String("error", err.Error()),
			)
			continue
		}

		attempts = append(attempts, model.Attempt{Strategy: s.name})
		r.telemetry.RecordTimed(ctx, telemetry.DomainRuntime, "table_recovered", telemetry.LevelSuccess,
			"Внешняя таблица восстановлена", map[string]any{
				"reason":   reason,
				"source":   s.name,
				"rows":     len(rows),
				"attempts": attempts,
			}, time.Since(start))
		r.logger.Info("Внешняя таблица восстановлена",
			slog.String("source", s.name),
			slog.Int("rows", len(rows)),
		)
		return model.RecoveryOutcome{
			Success:  true,
			Action:   model.ActionRecovered,
			Details:  fmt.Sprintf("%s; таблица пересоздана из источника %s", reason, s.name),
			Source:   s.name,
			Rows:     len(rows),
			Attempts: attempts,
		}
	}

	failure := &model.RecoveryError{Attempts: attempts}
	r.telemetry.RecordTimed(ctx, telemetry.DomainRuntime, "table_recovery", telemetry.LevelError,
		"Восстановление внешней таблицы невозможно", map[string]any{
			"reason":   reason,
			"attempts": attempts,
		}, time.Since(start))
	r.logger.Error("Восстановление внешней таблицы невозможно", slog.String("error", failure.Error()))
	return model.RecoveryOutcome{
		Success:  false,
		Action:   model.ActionRecoveryFailed,
		Details:  failure.Error(),
		Attempts: attempts,
	}
}

// sourceRows загружает справочник стратегии и разворачивает его в строки.
func (r *RecoveryService) sourceRows(ctx context.Context, s directoryStrategy) ([][]string, error) {
	dir, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rows := dir.Rows()
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: нет ни одной пары кампус-получатель", model.ErrSourceEmpty)
	}
	return rows, nil
}

func (r *RecoveryService) recreate(ctx context.Context, rows [][]string) error {
	if err := r.table.Delete(ctx); err != nil {
		return fmt.Errorf("ошибка удаления таблицы: %w", err)
	}
	if err := r.table.Create(ctx, sheet.Header, rows); err != nil {
		return fmt.Errorf("ошибка создания таблицы: %w", err)
	}
	return nil
}

func (r *RecoveryService) fromCache(ctx context.Context) (*model.Directory, error) {
	dir, err := r.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, fmt.Errorf("%w: кэш пуст", model.ErrSourceEmpty)
	}
	return dir, nil
}

func (r *RecoveryService) fromSeed(context.Context) (*model.Directory, error) {
	if r.seed == nil {
		return nil, errors.New("seed не задан")
	}
	return r.seed.Directory(), nil
}
