package kv

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// exerciseStore — общий контракт Store.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, KeyDirectory); err != nil || ok {
		t.Fatalf("Get отсутствующего ключа: ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, KeyDirectory, `{"a":1}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, KeyDirectory)
	if err != nil || !ok || v != `{"a":1}` {
		t.Fatalf("Get после Set: v=%q ok=%v err=%v", v, ok, err)
	}

	if err := s.Set(ctx, KeyDirectory, "второе"); err != nil {
		t.Fatalf("повторный Set: %v", err)
	}
	if v, _, _ := s.Get(ctx, KeyDirectory); v != "второе" {
		t.Errorf("значение не перезаписано: %q", v)
	}

	if err := s.Delete(ctx, KeyDirectory); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, KeyDirectory); ok {
		t.Error("ключ не удалён")
	}
	if err := s.Delete(ctx, KeyDirectory); err != nil {
		t.Errorf("повторный Delete должен быть идемпотентным: %v", err)
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore_Contract(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "store.json"), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exerciseStore(t, s)
}

// TestFileStore_Persists проверяет, что данные переживают переоткрытие.
func TestFileStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	s1, err := NewFileStore(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s1.Set(ctx, KeyMigrationComplete, "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s2, err := NewFileStore(path, testLogger())
	if err != nil {
		t.Fatalf("повторное открытие: %v", err)
	}
	v, ok, err := s2.Get(ctx, KeyMigrationComplete)
	if err != nil || !ok || v != "true" {
		t.Errorf("после переоткрытия: v=%q ok=%v err=%v", v, ok, err)
	}
}

// TestFileStore_CorruptFile проверяет обнаружение повреждённого файла.
func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{не json"), 0o640); err != nil {
		t.Fatalf("подготовка: %v", err)
	}
	if _, err := NewFileStore(path, testLogger()); err == nil {
		t.Fatal("ожидалась ошибка для повреждённого файла")
	}
}

// TestFileStore_CanceledContext проверяет отказ при отменённом контексте.
func TestFileStore_CanceledContext(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "store.json"), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Set(ctx, "k", "v"); !errors.Is(err, context.Canceled) {
		t.Errorf("ожидалась context.Canceled, получено %v", err)
	}
}

// failingStore — Store, всегда возвращающий ошибку.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("диск недоступен")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("диск недоступен") }
func (failingStore) Delete(context.Context, string) error      { return errors.New("диск недоступен") }

func TestReadinessChecker(t *testing.T) {
	if status, _ := NewReadinessChecker(NewMemoryStore(), "memory").CheckReady(); status != "ok" {
		t.Errorf("memory: статус %q, ожидался ok", status)
	}
	status, msg := NewReadinessChecker(failingStore{}, "file").CheckReady()
	if status != "fail" {
		t.Errorf("failing: статус %q, ожидался fail", status)
	}
	if msg == "" {
		t.Error("сообщение не должно быть пустым")
	}
}
