package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/seed"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// TestLookupService_ResolveAfterMigration проверяет ленивую миграцию
// и поиск по ключу без учёта регистра и пробелов.
func TestLookupService_ResolveAfterMigration(t *testing.T) {
	ctx := context.Background()
	ds := loadSeed(t)
	env := newTestEnv(t, ds, nil)

	got := env.lookup.Resolve(ctx, "  Bernal ")

	want := model.Lookup{
		Recipients:      ds.Recipients()["bernal"],
		FolderReference: ds.Folders()["bernal"],
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve (-want +got):\n%s", diff)
	}
	if complete, _ := env.migration.IsComplete(ctx); !complete {
		t.Error("миграция не выполнена при первом обращении")
	}
}

// TestLookupService_KnownKeys проверяет, что каждый ключ seed находится.
func TestLookupService_KnownKeys(t *testing.T) {
	ctx := context.Background()
	ds := loadSeed(t)
	env := newTestEnv(t, ds, nil)

	for _, key := range ds.Keys() {
		got := env.lookup.Resolve(ctx, key)
		if diff := cmp.Diff(ds.Recipients()[key], got.Recipients); diff != "" {
			t.Errorf("Resolve(%q).Recipients (-want +got):\n%s", key, diff)
		}
	}
}

// TestLookupService_FromTableScenario проверяет перестроение из таблицы
// с плохим адресом и повтором пары.
func TestLookupService_FromTableScenario(t *testing.T) {
	ctx := context.Background()
	ds := loadSeed(t)
	env := newTestEnv(t, ds, nil)
	markMigrated(t, env)
	env.table.seedRows([][]string{
		{"Campus", "Recipient"},
		{"bernal", "a@nisd.net"},
		{"bernal", "bad-email"},
		{"bernal", "a@nisd.net"},
	})

	got := env.lookup.Resolve(ctx, "bernal")

	if diff := cmp.Diff([]string{"a@nisd.net"}, got.Recipients); diff != "" {
		t.Errorf("recipients[bernal] (-want +got):\n%s", diff)
	}
	if got.FolderReference != ds.Folders()["bernal"] {
		t.Errorf("FolderReference = %q, ожидалась папка из seed", got.FolderReference)
	}

	cached, _ := env.cache.Peek(ctx)
	if cached == nil {
		t.Fatal("перестроенный справочник не записан в кэш")
	}
	if cached.Keys()[0] != "bernal" {
		t.Errorf("первый кампус %q, ожидался bernal", cached.Keys()[0])
	}
	if rec, ok := cached.Get("luna"); !ok || len(rec.Recipients) != 0 || rec.FolderReference != ds.Folders()["luna"] {
		t.Errorf("кампус из таблицы папок должен сохраниться без получателей: %+v, %v", rec, ok)
	}
}

// TestLookupService_LoadFromTableReport проверяет отчёт о чтении таблицы.
func TestLookupService_LoadFromTableReport(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadSeed(t), nil)
	env.table.seedRows([][]string{
		{"Campus", "Recipient"},
		{"bernel", "a@nisd.net"},
		{"bernel", "bad-email"},
	})

	_, report, err := env.lookup.LoadFromTable(ctx)
	if err != nil {
		t.Fatalf("LoadFromTable: %v", err)
	}
	if report.Validation.Summary.Invalid != 1 {
		t.Errorf("Invalid = %d, ожидалась 1", report.Validation.Summary.Invalid)
	}
	if diff := cmp.Diff([]string{"bernal"}, report.Campuses.Suggestions["bernel"]); diff != "" {
		t.Errorf("Suggestions[bernel] (-want +got):\n%s", diff)
	}
}

// TestLookupService_UnknownAndEmptyKeys проверяет пустой результат и телеметрию.
func TestLookupService_UnknownAndEmptyKeys(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadSeed(t), nil)

	for _, key := range []string{"", "   ", "bernel"} {
		got := env.lookup.Resolve(ctx, key)
		if diff := cmp.Diff(model.EmptyLookup(), got); diff != "" {
			t.Errorf("Resolve(%q) (-want +got):\n%s", key, diff)
		}
		entries := env.tel.Entries(ctx, telemetry.DomainRuntime)
		if len(entries) == 0 || entries[0].Key != "lookup" || entries[0].Level != telemetry.LevelWarning {
			t.Errorf("Resolve(%q): события %+v, ожидалось предупреждение lookup", key, entries)
		}
	}
}

// TestLookupService_AllSourcesFail проверяет двойной отказ: пустой seed,
// пустой кэш и отсутствующая таблица.
func TestLookupService_AllSourcesFail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, seed.Empty(), nil)

	if got := env.lookup.Resolve(ctx, "bernal"); len(got.Recipients) != 0 || got.FolderReference != "" {
		t.Errorf("Resolve = %+v, ожидался пустой результат", got)
	}

	_, err := env.lookup.Directory(ctx)
	if !errors.Is(err, model.ErrRecoveryFailed) {
		t.Fatalf("ожидалась ErrRecoveryFailed, получено %v", err)
	}
	var re *model.RecoveryError
	if !errors.As(err, &re) {
		t.Fatalf("ожидался *RecoveryError, получено %T", err)
	}
	var strategies []string
	for _, a := range re.Attempts {
		strategies = append(strategies, a.Strategy)
	}
	if diff := cmp.Diff([]string{StrategyCache, StrategyTable}, strategies); diff != "" {
		t.Errorf("стратегии (-want +got):\n%s", diff)
	}
}

// TestLookupService_Refresh проверяет перестроение после правки таблицы.
func TestLookupService_Refresh(t *testing.T) {
	ctx := context.Background()
	ds := loadSeed(t)
	env := newTestEnv(t, ds, nil)

	moved := ds.Recipients()["bernal"][0]
	if got := env.lookup.Resolve(ctx, "luna"); slices.Contains(got.Recipients, moved) {
		t.Fatalf("luna до правки уже содержит %s", moved)
	}

	// A2 — кампус первой строки данных (bernal).
	if err := env.table.WriteCell(ctx, "A2", "luna"); err != nil {
		t.Fatalf("WriteCell: %v", err)
	}

	dir, err := env.lookup.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	rec, _ := dir.Get("luna")
	if !slices.Contains(rec.Recipients, moved) {
		t.Errorf("luna после Refresh: %v, ожидался %s", rec.Recipients, moved)
	}

	keys, err := env.lookup.Campuses(ctx)
	if err != nil || len(keys) != len(ds.Keys()) {
		t.Errorf("Campuses = %v, %v", keys, err)
	}
}


// TestLookupService_InspectTable проверяет отчёт без побочных эффектов.
func TestLookupService_InspectTable(t *testing.T) {
	ctx := context.Background()
	ds := loadSeed(t)
	env := newTestEnv(t, ds, nil)
	markMigrated(t, env)
	env.table.seedRows([][]string{
		{"Campus", "Recipient"},
		{"bernel", "a@nisd.net"},
		{"luna", "broken@"},
	})

	report, err := env.lookup.InspectTable(ctx)
	if err != nil {
		t.Fatalf("InspectTable: %v", err)
	}
	if report.Validation.Summary.Invalid != 1 {
		t.Errorf("Summary.Invalid = %d, ожидалось 1", report.Validation.Summary.Invalid)
	}
	if diff := cmp.Diff([]string{"bernal"}, report.Campuses.Suggestions["bernel"]); diff != "" {
		t.Errorf("Suggestions[bernel] (-want +got):\n%s", diff)
	}
	if report.FolderSource != FolderSourceSeed {
		t.Errorf("FolderSource = %q, ожидался seed", report.FolderSource)
	}
	if cached, _ := env.cache.Peek(ctx); cached != nil {
		t.Error("InspectTable не должен записывать кэш")
	}

	env.table.seedRows([][]string{{"Name", "Email"}})
	if _, err := env.lookup.InspectTable(ctx); !errors.Is(err, model.ErrTableCorrupt) {
		t.Errorf("ожидалась ErrTableCorrupt для чужого заголовка, получено %v", err)
	}
}

// TestLookupService_HeaderOnlyTableRebuiltFromSeed проверяет, что лист
// без строк данных восстанавливается из seed и поиск находит кампус.
func TestLookupService_HeaderOnlyTableRebuiltFromSeed(t *testing.T) {
	tables := map[string][][]string{
		"только заголовок":     {{"Campus", "Recipient"}},
		"только пустые строки": {{"Campus", "Recipient"}, {"", ""}, {"", ""}},
	}

	for name, rows := range tables {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ds := loadSeed(t)
			env := newTestEnv(t, ds, nil)
			markMigrated(t, env)
			env.table.seedRows(rows)

			got := env.lookup.Resolve(ctx, "bernal")

			want := model.Lookup{
				Recipients:      ds.Recipients()["bernal"],
				FolderReference: ds.Folders()["bernal"],
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Resolve (-want +got):\n%s", diff)
			}
			if env.table.creates != 1 {
				t.Errorf("creates = %d, ожидалось пересоздание листа из seed", env.table.creates)
			}
		})
	}
}
