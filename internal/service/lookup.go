// lookup.go — фасад поиска кампуса.
//
// Resolve никогда не возвращает ошибку: любой сбой превращается в пустой
// результат и событие телеметрии. Справочник берётся из цепочки именованных
// стратегий cache → table; причины неудач сохраняются в телеметрии.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/domain/validation"
	"github.com/bigkaa/campus-directory/internal/seed"
	"github.com/bigkaa/campus-directory/internal/storage/sheet"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// TableReport — итог чтения внешней таблицы.
type TableReport struct {
	Validation   model.ValidationResult         `json:"validation"`
	Duplicates   validation.DuplicateResolution `json:"duplicates"`
	Campuses     validation.CampusCheck         `json:"campuses"`
	FolderSource string                         `json:"folderSource"`
}

// LookupService — фасад поиска получателей и папки кампуса.
type LookupService struct {
	cache     *CacheService
	migration *MigrationService
	recovery  *RecoveryService
	table     sheet.Table
	folders   *FolderSource
	seed      *seed.Dataset
	telemetry *telemetry.Log
	logger    *slog.Logger
}

// NewLookupService создаёт фасад поиска.
func NewLookupService(
	cache *CacheService,
	migration *MigrationService,
	recovery *RecoveryService,
	table sheet.Table,
	folders *FolderSource,
	ds *seed.Dataset,
	tel *telemetry.Log,
	logger *slog.Logger,
) *LookupService {
	return &LookupService{
		cache:     cache,
		migration: migration,
		recovery:  recovery,
		table:     table,
		folders:   folders,
		seed:      ds,
		telemetry: tel,
		logger:    logger.With(slog.String("component", "lookup")),
	}
}

// Resolve возвращает получателей и папку кампуса.
// Пустой, неизвестный ключ или недоступный справочник — пустой результат.
func (l *LookupService) Resolve(ctx context.Context, raw string) model.Lookup {
	start := time.Now()
	key := validation.NormalizeCampusKey(raw)
	if key == "" {
		l.telemetry.Record(ctx, telemetry.DomainRuntime, "lookup", telemetry.LevelWarning,
			"Пустой ключ кампуса", map[string]any{"input": raw})
		return model.EmptyLookup()
	}

	dir, source, attempts := l.directory(ctx)
	if dir == nil {
		l.telemetry.RecordTimed(ctx, telemetry.DomainRuntime, "lookup", telemetry.LevelError,
			"Справочник недоступен", map[string]any{"campus": key, "attempts": attempts}, time.Since(start))
		return model.EmptyLookup()
	}

	rec, ok := dir.Get(key)
	if !ok {
		l.telemetry.RecordTimed(ctx, telemetry.DomainRuntime, "lookup", telemetry.LevelWarning,
			"Неизвестный кампус", map[string]any{
				"campus":      key,
				"suggestions": validation.SuggestCampus(key, dir.Keys()),
			}, time.Since(start))
		return model.EmptyLookup()
	}

	l.telemetry.RecordTimed(ctx, telemetry.DomainRuntime, "lookup", telemetry.LevelSuccess,
		"Кампус найден", map[string]any{
			"campus":     key,
			"recipients": len(rec.Recipients),
			"source":     source,
			"attempts":   attempts,
		}, time.Since(start))
	return model.Lookup{Recipients: rec.Recipients, FolderReference: rec.FolderReference}
}

// Directory возвращает актуальный справочник или *model.RecoveryError.
func (l *LookupService) Directory(ctx context.Context) (*model.Directory, error) {
	dir, _, attempts := l.directory(ctx)
	if dir == nil {
		return nil, &model.RecoveryError{Attempts: attempts}
	}
	return dir, nil
}

// Campuses возвращает ключи кампусов справочника.
func (l *LookupService) Campuses(ctx context.Context) ([]string, error) {
	dir, err := l.Directory(ctx)
	if err != nil {
		return nil, err
	}
	return dir.Keys(), nil
}

// Refresh очищает кэш и перестраивает справочник из внешней таблицы.
func (l *LookupService) Refresh(ctx context.Context) (*model.Directory, error) {
	if err := l.cache.Clear(ctx); err != nil {
		return nil, err
	}
	l.folders.Purge()
	l.telemetry.Record(ctx, telemetry.DomainRuntime, "refresh", telemetry.LevelInfo,
		"Ручное обновление справочника", nil)
	return l.Directory(ctx)
}

// directory — цепочка стратегий cache → table после ленивой миграции.
func (l *LookupService) directory(ctx context.Context) (*model.Directory, string, []model.Attempt) {
	l.ensureMigration(ctx)

	strategies := []directoryStrategy{
		{name: StrategyCache, load: l.fromCache},
		{name: StrategyTable, load: func(ctx context.Context) (*model.Directory, error) {
			dir, _, err := l.LoadFromTable(ctx)
			return dir, err
		}},
	}

	var attempts []model.Attempt
	for _, s := range strategies {
		dir, err := s.load(ctx)
		if err != nil {
			attempts = append(attempts, model.Attempt{Strategy: s.name, Error: err.Error()})
			continue
		}
		return dir, s.name, attempts
	}
	return nil, "", attempts
}

func (l *LookupService) fromCache(ctx context.Context) (*model.Directory, error) {
	dir, err := l.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, fmt.Errorf("%w: кэш пуст", model.ErrSourceEmpty)
	}
	return dir, nil
}

// ensureMigration запускает миграцию, если флаг не выставлен.
// Ошибка миграции уже записана в телеметрию и не прерывает поиск.
func (l *LookupService) ensureMigration(ctx context.Context) {
	complete, err := l.migration.IsComplete(ctx)
	if err == nil && complete {
		return
	}
	if _, err := l.migration.Run(ctx); err != nil {
		l.logger.Warn("Ленивая миграция не выполнена", slog.String("error", err.Error()))
	}
}

// LoadFromTable перестраивает справочник из внешней таблицы: проверка и
// восстановление таблицы, валидация строк, группировка получателей,
// сверка ключей с известными кампусами, слияние с папками, запись в кэш.
func (l *LookupService) LoadFromTable(ctx context.Context) (*model.Directory, *TableReport, error) {
	start := time.Now()

	outcome := l.recovery.ValidateAndRecover(ctx)
	if !outcome.Success {
		return nil, nil, &model.RecoveryError{Attempts: outcome.Attempts}
	}

	rows, err := l.table.ReadAll(ctx)
	if err != nil {
		return nil, nil, err
	}

	report := &TableReport{Validation: validation.ValidateEmails(rows)}
	report.Duplicates = validation.ResolveDuplicateCampusRows(report.Validation.Valid)
	if len(report.Duplicates.Order) == 0 {
		return nil, report, fmt.Errorf("%w: во внешней таблице нет корректных строк", model.ErrSourceEmpty)
	}

	var folders map[string]string
	folders, report.FolderSource = l.folders.Folders(ctx)
	report.Campuses = validation.ValidateCampusNames(report.Validation.Valid, l.expectedKeys(folders))

	dir := combineDirectory(report.Duplicates.Order, report.Duplicates.Data, folders)
	l.recordTableReport(ctx, report, time.Since(start))

	if err := l.cache.Store(ctx, dir); err != nil {
		l.logger.Error("Не удалось сохранить справочник в кэш", slog.String("error", err.Error()))
	}
	return dir, report, nil
}

// InspectTable валидирует внешнюю таблицу без восстановления и записи в кэш.
func (l *LookupService) InspectTable(ctx context.Context) (*TableReport, error) {
	rows, err := l.table.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := sheet.CheckHeader(rows); err != nil {
		return nil, err
	}

	report := &TableReport{Validation: validation.ValidateEmails(rows)}
	report.Duplicates = validation.ResolveDuplicateCampusRows(report.Validation.Valid)

	var folders map[string]string
	folders, report.FolderSource = l.folders.Folders(ctx)
	report.Campuses = validation.ValidateCampusNames(report.Validation.Valid, l.expectedKeys(folders))
	return report, nil
}

// expectedKeys — кампусы seed и справочной таблицы.
func (l *LookupService) expectedKeys(folders map[string]string) []string {
	keys := l.seed.Keys()
	extra := slices.Sorted(maps.Keys(folders))
	return append(keys, extra...)
}

func (l *LookupService) recordTableReport(ctx context.Context, report *TableReport, elapsed time.Duration) {
	var issues []string
	issues = append(issues, report.Validation.Errors...)
	issues = append(issues, report.Validation.Warnings...)
	issues = append(issues, report.Duplicates.DuplicateWarnings...)
	issues = append(issues, report.Campuses.Warnings...)

	level := telemetry.LevelSuccess
	if len(issues) > 0 {
		level = telemetry.LevelWarning
	}
	l.telemetry.RecordTimed(ctx, telemetry.DomainRuntime, "table_load", level,
		"Справочник перестроен из внешней таблицы", map[string]any{
			"summary":      report.Validation.Summary,
			"campuses":     report.Duplicates.Summary.Campuses,
			"duplicates":   report.Duplicates.Summary.Duplicates,
			"unknown":      report.Campuses.InvalidCampuses,
			"suggestions":  report.Campuses.Suggestions,
			"issues":       issues,
			"folderSource": report.FolderSource,
		}, elapsed)
}
