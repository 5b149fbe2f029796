package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/campus-directory/internal/api/errors"
	"github.com/bigkaa/campus-directory/internal/seed"
	"github.com/bigkaa/campus-directory/internal/service"
	"github.com/bigkaa/campus-directory/internal/storage/kv"
	"github.com/bigkaa/campus-directory/internal/storage/sheet"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// newTestRouter собирает API поверх in-memory хранилища и CSV-книги во временной директории.
func newTestRouter(t *testing.T, admin ...func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ds, err := seed.Load()
	if err != nil {
		t.Fatalf("seed.Load: %v", err)
	}
	store := kv.NewMemoryStore()
	table := sheet.NewCSVTable(t.TempDir(), "CampusDirectory", logger)
	tel := telemetry.New(store, telemetry.DefaultOptions(), logger)
	cache := service.NewCacheService(store, tel, logger)
	folders := service.NewFolderSource(nil, ds, 16, time.Minute, tel, logger)
	migration := service.NewMigrationService(store, cache, table, folders, ds, tel, logger)
	recovery := service.NewRecoveryService(table, cache, ds, tel, logger)

	h := NewAPIHandler(NewHealthHandler(kv.NewReadinessChecker(store, "memory")), Services{
		Lookup:       service.NewLookupService(cache, migration, recovery, table, folders, ds, tel, logger),
		Migration:    migration,
		Recovery:     recovery,
		Invalidation: service.NewInvalidationService(cache, table.Name(), tel, logger),
		Status:       service.NewStatusService(migration, cache, tel),
		Telemetry:    tel,
	}, logger)

	r := chi.NewRouter()
	h.Routes(r, admin...)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestHealth проверяет liveness и readiness.
func TestHealth(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := do(t, r, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: статус %d, тело: %s", path, rec.Code, rec.Body.String())
		}
	}
}

// TestHealthReady_NoChecker проверяет 503 без checker.
func TestHealthReady_NoChecker(t *testing.T) {
	h := NewHealthHandler(nil)
	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("статус %d, ожидался 503", rec.Code)
	}
}

// TestCampuses проверяет список и поиск кампуса.
func TestCampuses(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodGet, "/api/v1/campuses", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("список: статус %d, тело: %s", rec.Code, rec.Body.String())
	}
	var list campusListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total == 0 || list.Campuses[0] != "bernal" {
		t.Errorf("список = %+v", list)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/campuses/Bernal", "")
	var got campusResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Campus != "bernal" || len(got.Recipients) == 0 || got.FolderReference == "" {
		t.Errorf("bernal = %+v", got)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/campuses/unknown", "")
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || len(got.Recipients) != 0 || got.Recipients == nil {
		t.Errorf("unknown: статус %d, тело %+v", rec.Code, got)
	}
}

// TestInvalidateCache проверяет webhook правок.
func TestInvalidateCache(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantResult bool
	}{
		{"лист-зеркало", `{"sheetName":"CampusDirectory","rangeAddress":"B2","oldValue":"a","newValue":"b"}`, http.StatusOK, true},
		{"другой лист", `{"sheetName":"Folders","rangeAddress":"A1"}`, http.StatusOK, false},
		{"без листа", `{"rangeAddress":"A1"}`, http.StatusBadRequest, false},
		{"не JSON", `{`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/api/v1/cache/invalidate", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус %d, ожидался %d, тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}
			var resp invalidateResponse
			_ = json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Invalidated != tt.wantResult {
				t.Errorf("Invalidated = %v, ожидалось %v", resp.Invalidated, tt.wantResult)
			}
		})
	}
}

// TestOperatorOperations проверяет мутирующие операции и чтение состояния.
func TestOperatorOperations(t *testing.T) {
	r := newTestRouter(t)

	steps := []struct {
		method, path string
		wantStatus   int
	}{
		{http.MethodPost, "/api/v1/migration/run", http.StatusOK},
		{http.MethodPost, "/api/v1/recovery", http.StatusOK},
		{http.MethodPost, "/api/v1/recovery?force=true", http.StatusOK},
		{http.MethodPost, "/api/v1/refresh", http.StatusOK},
		{http.MethodGet, "/api/v1/telemetry/migration", http.StatusOK},
		{http.MethodGet, "/api/v1/telemetry/runtime", http.StatusOK},
		{http.MethodGet, "/api/v1/telemetry/bogus", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/status", http.StatusOK},
		{http.MethodPost, "/api/v1/migration/reset", http.StatusNoContent},
		{http.MethodGet, "/metrics", http.StatusOK},
	}
	for _, s := range steps {
		rec := do(t, r, s.method, s.path, "")
		if rec.Code != s.wantStatus {
			t.Errorf("%s %s: статус %d, ожидался %d, тело: %s", s.method, s.path, rec.Code, s.wantStatus, rec.Body.String())
		}
	}
}

// TestAdminMiddleware проверяет, что admin-middleware закрывает только мутирующие маршруты.
func TestAdminMiddleware(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			apierrors.Unauthorized(w, "нет токена")
		})
	}
	r := newTestRouter(t, deny)

	if rec := do(t, r, http.MethodGet, "/api/v1/status", ""); rec.Code != http.StatusOK {
		t.Errorf("GET status: статус %d, ожидался 200", rec.Code)
	}
	for _, path := range []string{"/api/v1/refresh", "/api/v1/recovery", "/api/v1/migration/reset", "/api/v1/cache/invalidate"} {
		if rec := do(t, r, http.MethodPost, path, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("POST %s: статус %d, ожидался 401", path, rec.Code)
		}
	}
}
