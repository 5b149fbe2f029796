package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/seed"
	"github.com/bigkaa/campus-directory/internal/storage/kv"
	"github.com/bigkaa/campus-directory/internal/storage/sheet"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockTable — in-memory реализация sheet.Table для тестов.
type mockTable struct {
	mu      sync.Mutex
	name    string
	exists  bool
	rows    [][]string
	creates int
	deletes int
	readErr error

	// createErr возвращается из Create, лист при этом не создаётся
	createErr error
}

func newMockTable(name string) *mockTable {
	return &mockTable{name: name}
}

// seedRows создаёт лист с заданными строками (включая заголовок).
func (m *mockTable) seedRows(rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists = true
	m.rows = copyRows(rows)
}

func (m *mockTable) snapshot() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.rows)
}

func (m *mockTable) Name() string { return m.name }

func (m *mockTable) Exists(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists, nil
}

func (m *mockTable) Create(_ context.Context, header []string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	m.exists = true
	m.rows = append([][]string{append([]string{}, header...)}, copyRows(rows)...)
	return nil
}

func (m *mockTable) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	m.exists = false
	m.rows = nil
	return nil
}

func (m *mockTable) ReadAll(context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if !m.exists {
		return nil, fmt.Errorf("%w: %s", model.ErrTableMissing, m.name)
	}
	return copyRows(m.rows), nil
}

func (m *mockTable) WriteCell(_ context.Context, address, value string) error {
	col, row, err := sheet.ParseCellAddress(address)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.rows) <= row {
		m.rows = append(m.rows, make([]string, len(sheet.Header)))
	}
	for len(m.rows[row]) <= col {
		m.rows[row] = append(m.rows[row], "")
	}
	m.rows[row][col] = value
	return nil
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string{}, r...)
	}
	return out
}

// mockReference — справочная таблица папок с подсчётом чтений.
type mockReference struct {
	folders map[string]string
	err     error
	calls   int
}

func (m *mockReference) ReadFolders(context.Context) (map[string]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.folders, nil
}

// testEnv — собранный набор сервисов поверх in-memory хранилища.
type testEnv struct {
	store        *kv.MemoryStore
	table        *mockTable
	tel          *telemetry.Log
	cache        *CacheService
	folders      *FolderSource
	migration    *MigrationService
	recovery     *RecoveryService
	lookup       *LookupService
	invalidation *InvalidationService
	status       *StatusService
}

func newTestEnv(t *testing.T, ds *seed.Dataset, reader sheet.ReferenceReader) *testEnv {
	t.Helper()
	logger := testLogger()

	env := &testEnv{
		store: kv.NewMemoryStore(),
		table: newMockTable("CampusDirectory"),
	}
	env.tel = telemetry.New(env.store, telemetry.DefaultOptions(), logger)
	env.cache = NewCacheService(env.store, env.tel, logger)
	env.folders = NewFolderSource(reader, ds, 16, time.Minute, env.tel, logger)
	env.migration = NewMigrationService(env.store, env.cache, env.table, env.folders, ds, env.tel, logger)
	env.recovery = NewRecoveryService(env.table, env.cache, ds, env.tel, logger)
	env.lookup = NewLookupService(env.cache, env.migration, env.recovery, env.table, env.folders, ds, env.tel, logger)
	env.invalidation = NewInvalidationService(env.cache, env.table.Name(), env.tel, logger)
	env.status = NewStatusService(env.migration, env.cache, env.tel)
	return env
}

func loadSeed(t *testing.T) *seed.Dataset {
	t.Helper()
	ds, err := seed.Load()
	if err != nil {
		t.Fatalf("seed.Load: %v", err)
	}
	return ds
}

// markMigrated выставляет флаг миграции, минуя сам процесс.
func markMigrated(t *testing.T, env *testEnv) {
	t.Helper()
	if err := env.store.Set(context.Background(), kv.KeyMigrationComplete, "true"); err != nil {
		t.Fatalf("Set флага миграции: %v", err)
	}
}
