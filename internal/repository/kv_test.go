package repository

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/campus-directory/internal/config"
	"github.com/bigkaa/campus-directory/internal/database"
	"github.com/bigkaa/campus-directory/internal/storage/kv"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("directory_test"),
		postgres.WithUsername("directory"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("CD_STORE_BACKEND", "postgres")
	t.Setenv("CD_DB_HOST", host)
	t.Setenv("CD_DB_PORT", port.Port())
	t.Setenv("CD_DB_NAME", "directory_test")
	t.Setenv("CD_DB_USER", "directory")
	t.Setenv("CD_DB_PASSWORD", "test-password")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка применения миграций: %v", err)
	}
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения к БД: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// TestKVRepository проверяет контракт kv.Store на PostgreSQL.
func TestKVRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewKVRepository(pool)

	if _, ok, err := store.Get(ctx, kv.KeyDirectory); err != nil || ok {
		t.Fatalf("Get пустой таблицы: ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, kv.KeyDirectory, `{"schema":"campus-directory"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, kv.KeyDirectory, "обновлено"); err != nil {
		t.Fatalf("Set (upsert): %v", err)
	}

	v, ok, err := store.Get(ctx, kv.KeyDirectory)
	if err != nil || !ok || v != "обновлено" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}

	if err := store.Delete(ctx, kv.KeyDirectory); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, kv.KeyDirectory); ok {
		t.Error("ключ не удалён")
	}
	if err := store.Delete(ctx, kv.KeyDirectory); err != nil {
		t.Errorf("повторный Delete: %v", err)
	}

	checker := database.NewReadinessChecker(pool)
	if status, msg := checker.CheckReady(); status != "ok" {
		t.Errorf("CheckReady = %s (%s), ожидался ok", status, msg)
	}
}
