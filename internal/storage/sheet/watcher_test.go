package sheet

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bigkaa/campus-directory/internal/domain/model"
)

// TestWatcher_EmitsEditEvent проверяет, что правка файла приводит к EditEvent
// с адресом изменённой ячейки, а горутины завершаются после отмены.
func TestWatcher_EmitsEditEvent(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()
	tbl := NewCSVTable(dir, "CampusDirectory", testLogger())
	// editor — другой процесс, правящий тот же файл
	editor := NewCSVTable(dir, "CampusDirectory", testLogger())
	if err := tbl.Create(ctx, Header, [][]string{{"bernal", "a@nisd.net"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	edits := make(chan model.EditEvent, 4)
	w := NewWatcher(tbl, 50*time.Millisecond, func(_ context.Context, e model.EditEvent) {
		edits <- e
	}, testLogger())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("Run завершился до готовности: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("наблюдатель не запустился")
	}

	if err := editor.WriteCell(ctx, "B2", "new@nisd.net"); err != nil {
		t.Fatalf("WriteCell: %v", err)
	}

	select {
	case e := <-edits:
		if e.SheetName != "CampusDirectory" || e.RangeAddress != "B2" {
			t.Errorf("событие %+v, ожидалась правка CampusDirectory!B2", e)
		}
		if e.OldValue != "a@nisd.net" || e.NewValue != "new@nisd.net" {
			t.Errorf("значения %q → %q", e.OldValue, e.NewValue)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("EditEvent не получен")
	}

	if w.Stats().Edits < 1 {
		t.Errorf("Stats().Edits = %d, ожидалось ≥ 1", w.Stats().Edits)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run вернул ошибку: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run не завершился после отмены")
	}
}

// TestWatcher_SkipsOwnWrites проверяет, что пересоздание листа самим
// адаптером (миграция, восстановление) не считается правкой.
func TestWatcher_SkipsOwnWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	tbl := NewCSVTable(t.TempDir(), "CampusDirectory", testLogger())
	if err := tbl.Create(ctx, Header, [][]string{{"bernal", "a@nisd.net"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	edits := make(chan model.EditEvent, 4)
	w := NewWatcher(tbl, 50*time.Millisecond, func(_ context.Context, e model.EditEvent) {
		edits <- e
	}, testLogger())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	select {
	case <-w.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("наблюдатель не запустился")
	}

	if err := tbl.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := tbl.Create(ctx, Header, [][]string{{"luna", "b@nisd.net"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.Stats().OwnWrites == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if w.Stats().OwnWrites == 0 {
		t.Fatal("собственная запись не распознана")
	}

	select {
	case e := <-edits:
		t.Errorf("получено событие %+v для собственной записи", e)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run вернул ошибку: %v", err)
	}
}
