package service

import (
	"context"
	"testing"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// TestInvalidationService_HandleEdit проверяет сброс кэша по правке зеркала.
func TestInvalidationService_HandleEdit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadSeed(t), nil)
	if err := env.cache.Store(ctx, sampleDirectory()); err != nil {
		t.Fatalf("Store: %v", err)
	}

	edit := model.EditEvent{SheetName: "campusdirectory", RangeAddress: "B2", OldValue: "a@nisd.net", NewValue: "z@nisd.net"}
	if !env.invalidation.HandleEdit(ctx, edit) {
		t.Fatal("правка листа-зеркала должна сбросить кэш")
	}
	if dir, _ := env.cache.Peek(ctx); dir != nil {
		t.Error("кэш не сброшен")
	}

	events := env.tel.Invalidations(ctx)
	if len(events) != 1 || events[0].Edit != edit {
		t.Errorf("Invalidations = %+v, ожидалась одна запись с правкой", events)
	}
	entries := env.tel.Entries(ctx, telemetry.DomainRuntime)
	if len(entries) == 0 || entries[0].Key != "cache_invalidated" {
		t.Errorf("последнее событие %+v, ожидалось cache_invalidated", entries)
	}
}

// TestInvalidationService_OtherSheet проверяет, что правки других листов игнорируются.
func TestInvalidationService_OtherSheet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadSeed(t), nil)
	if err := env.cache.Store(ctx, sampleDirectory()); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if env.invalidation.HandleEdit(ctx, model.EditEvent{SheetName: "Folders", RangeAddress: "A1"}) {
		t.Error("правка другого листа не должна сбрасывать кэш")
	}
	if dir, _ := env.cache.Peek(ctx); dir == nil {
		t.Error("кэш сброшен правкой другого листа")
	}
	if n := len(env.tel.Invalidations(ctx)); n != 0 {
		t.Errorf("записано %d инвалидаций, ожидалось 0", n)
	}
}

// TestInvalidationService_Unconditional проверяет сброс при неизменном значении.
func TestInvalidationService_Unconditional(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, loadSeed(t), nil)

	handler := env.invalidation.Handler()
	for i := 0; i < 3; i++ {
		handler(ctx, model.EditEvent{SheetName: "CampusDirectory", RangeAddress: "A2", OldValue: "x", NewValue: "x"})
	}
	if n := len(env.tel.Invalidations(ctx)); n != 3 {
		t.Errorf("записано %d инвалидаций, ожидалось 3", n)
	}
}
