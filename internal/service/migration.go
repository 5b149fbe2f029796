// migration.go — одноразовая миграция справочника из seed в кэш и
// во внешнюю таблицу.
//
// Шаги (internal/domain/migration): extracting → combining → storing →
// creating_mirror → complete. Каждый шаг пишет событие телеметрии домена
// migration с длительностью. Ошибка шага переводит автомат в failed,
// флаг завершения не выставляется, возвращается *model.MigrationError.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/campus-directory/internal/domain/migration"
	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/seed"
	"github.com/bigkaa/campus-directory/internal/storage/kv"
	"github.com/bigkaa/campus-directory/internal/storage/sheet"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// MigrationStatus — состояние флага миграции.
type MigrationStatus struct {
	Complete    bool       `json:"complete"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// MigrationReport — итог запуска миграции.
type MigrationReport struct {
	// Skipped — миграция уже была выполнена ранее
	Skipped       bool                         `json:"skipped"`
	Campuses      int                          `json:"campuses"`
	Recipients    int                          `json:"recipients"`
	FolderSource  string                       `json:"folderSource,omitempty"`
	MirrorCreated bool                         `json:"mirrorCreated"`
	State         migration.State              `json:"state"`
	History       []migration.TransitionRecord `json:"history,omitempty"`
}

// MigrationService — менеджер одноразовой миграции.
type MigrationService struct {
	store     kv.Store
	cache     *CacheService
	table     sheet.Table
	folders   *FolderSource
	seed      *seed.Dataset
	telemetry *telemetry.Log
	logger    *slog.Logger
	now       func() time.Time

	// mu защищает от повторного входа в пределах процесса.
	mu sync.Mutex
}

// NewMigrationService создаёт менеджер миграции.
func NewMigrationService(
	store kv.Store,
	cache *CacheService,
	table sheet.Table,
	folders *FolderSource,
	ds *seed.Dataset,
	tel *telemetry.Log,
	logger *slog.Logger,
) *MigrationService {
	return &MigrationService{
		store:     store,
		cache:     cache,
		table:     table,
		folders:   folders,
		seed:      ds,
		telemetry: tel,
		logger:    logger.With(slog.String("component", "migration")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// IsComplete читает флаг завершения миграции.
func (m *MigrationService) IsComplete(ctx context.Context) (bool, error) {
	raw, ok, err := m.store.Get(ctx, kv.KeyMigrationComplete)
	if err != nil {
		return false, fmt.Errorf("ошибка чтения флага миграции: %w", err)
	}
	return ok && raw == "true", nil
}

// Status возвращает флаг и время завершения миграции.
func (m *MigrationService) Status(ctx context.Context) (MigrationStatus, error) {
	complete, err := m.IsComplete(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}
	st := MigrationStatus{Complete: complete}

	raw, ok, err := m.store.Get(ctx, kv.KeyMigrationLastUpdated)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("ошибка чтения времени миграции: %w", err)
	}
	if ok {
		if ts, parseErr := time.Parse(time.RFC3339, raw); parseErr == nil {
			st.LastUpdated = &ts
		}
	}
	return st, nil
}

// Run выполняет миграцию, если она ещё не выполнена.
func (m *MigrationService) Run(ctx context.Context) (*MigrationReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	complete, err := m.IsComplete(ctx)
	if err != nil {
		m.telemetry.Record(ctx, telemetry.DomainMigration, "guard", telemetry.LevelError,
			"Не удалось прочитать флаг миграции", map[string]any{"error": err.Error()})
		return nil, &model.MigrationError{Step: string(migration.StateNotStarted), Err: err}
	}
	if complete {
		m.telemetry.Record(ctx, telemetry.DomainMigration, "guard", telemetry.LevelInfo,
			"Миграция уже выполнена", nil)
		return &MigrationReport{Skipped: true, State: migration.StateComplete}, nil
	}

	started := time.Now()
	sm := migration.NewStateMachine()
	report := &MigrationReport{}
	m.logger.Info("Миграция справочника запущена")
	m.telemetry.Record(ctx, telemetry.DomainMigration, "start", telemetry.LevelInfo,
		"Миграция справочника запущена", nil)

	var (
		recipients map[string][]string
		folders    map[string]string
		dir        *model.Directory
	)

	steps := []struct {
		state migration.State
		run   func() error
	}{
		{migration.StateExtracting, func() error {
			if m.seed.IsEmpty() {
				return fmt.Errorf("%w: seed не содержит получателей", model.ErrSourceEmpty)
			}
			recipients = m.seed.Recipients()
			folders, report.FolderSource = m.folders.Folders(ctx)
			return nil
		}},
		{migration.StateCombining, func() error {
			dir = combineDirectory(m.seed.Keys(), recipients, folders)
			report.Campuses = dir.Len()
			report.Recipients = dir.RecipientCount()
			return nil
		}},
		{migration.StateStoring, func() error {
			return m.cache.Store(ctx, dir)
		}},
		{migration.StateCreatingMirror, func() error {
			exists, err := m.table.Exists(ctx)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
			if err := m.table.Create(ctx, sheet.Header, dir.Rows()); err != nil {
				return err
			}
			report.MirrorCreated = true
			return nil
		}},
	}

	for _, step := range steps {
		if err := m.runStep(ctx, sm, step.state, step.run); err != nil {
			report.State = sm.Current()
			report.History = sm.History()
			return report, err
		}
	}

	// Флаг пишется до перехода в complete: сбой записи ещё можно
	// зафиксировать переходом в failed.
	if err := m.markComplete(ctx); err != nil {
		_ = sm.Fail(err.Error())
		m.telemetry.Record(ctx, telemetry.DomainMigration, string(migration.StateComplete), telemetry.LevelError,
			"Не удалось сохранить флаг миграции", map[string]any{"error": err.Error()})
		report.State = sm.Current()
		report.History = sm.History()
		return report, &model.MigrationError{Step: string(migration.StateComplete), Err: err}
	}
	_ = sm.TransitionTo(migration.StateComplete)

	report.State = sm.Current()
	report.History = sm.History()
	m.telemetry.RecordTimed(ctx, telemetry.DomainMigration, string(migration.StateComplete), telemetry.LevelSuccess,
		"Миграция справочника завершена", map[string]any{
			"campuses":      report.Campuses,
			"recipients":    report.Recipients,
			"mirrorCreated": report.MirrorCreated,
			"folderSource":  report.FolderSource,
		}, time.Since(started))
	m.logger.Info("Миграция справочника завершена",
		slog.Int("campuses", report.Campuses),
		slog.Int("recipients", report.Recipients),
		slog.Bool("mirror_created", report.MirrorCreated),
		slog.Duration("duration", time.Since(started)),
	)
	return report, nil
}

// runStep переводит автомат в state и выполняет шаг.
func (m *MigrationService) runStep(ctx context.Context, sm *migration.StateMachine, state migration.State, run func() error) error {
	if err := sm.TransitionTo(state); err != nil {
		return &model.MigrationError{Step: string(state), Err: err}
	}

	start := time.Now()
	err := run()
	elapsed := time.Since(start)

	if err != nil {
		_ = sm.Fail(err.Error())
		m.telemetry.RecordTimed(ctx, telemetry.DomainMigration, string(state), telemetry.LevelError,
			"Шаг миграции завершился ошибкой", map[string]any{
				"step":   string(state),
				"status": "failed",
				"error":  err.Error(),
			}, elapsed)
		m.logger.Error("Миграция прервана",
			slog.String("step", string(state)),
			slog.String("error", err.Error()),
		)
		return &model.MigrationError{Step: string(state), Err: err}
	}

	m.telemetry.RecordTimed(ctx, telemetry.DomainMigration, string(state), telemetry.LevelSuccess,
		"Шаг миграции выполнен", map[string]any{"step": string(state), "status": "ok"}, elapsed)
	return nil
}

func (m *MigrationService) markComplete(ctx context.Context) error {
	if err := m.store.Set(ctx, kv.KeyMigrationComplete, "true"); err != nil {
		return fmt.Errorf("ошибка записи флага миграции: %w", err)
	}
	if err := m.store.Set(ctx, kv.KeyMigrationLastUpdated, m.now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("ошибка записи времени миграции: %w", err)
	}
	return nil
}

// Reset сбрасывает флаг миграции (операция оператора).
// Следующее обращение к справочнику выполнит миграцию заново.
func (m *MigrationService) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := errors.Join(
		m.store.Delete(ctx, kv.KeyMigrationComplete),
		m.store.Delete(ctx, kv.KeyMigrationLastUpdated),
	)
	if err != nil {
		m.telemetry.Record(ctx, telemetry.DomainMigration, "reset", telemetry.LevelError,
			"Ошибка сброса флага миграции", map[string]any{"error": err.Error()})
		return fmt.Errorf("ошибка сброса флага миграции: %w", err)
	}
	m.telemetry.Record(ctx, telemetry.DomainMigration, "reset", telemetry.LevelWarning,
		"Флаг миграции сброшен оператором", nil)
	m.logger.Warn("Флаг миграции сброшен")
	return nil
}
