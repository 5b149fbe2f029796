package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/campus-directory/internal/config"
)

type stubAPI struct{}

func (stubAPI) Routes(r chi.Router, admin ...func(http.Handler) http.Handler) {
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Group(func(r chi.Router) {
		for _, mw := range admin {
			if mw != nil {
				r.Use(mw)
			}
		}
		r.Post("/api/v1/refresh", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	})
}

func testConfig() *config.Config {
	return &config.Config{
		Port:            0,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     time.Second,
		ShutdownTimeout: time.Second,
	}
}

// TestServer_MiddlewareOrder проверяет применение middleware и admin.
func TestServer_MiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}

	srv := New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), stubAPI{}, deny, mark("first"), mark("second"))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health/live: статус %d", rec.Code)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("порядок middleware %v", order)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("POST /api/v1/refresh: статус %d, ожидался 403", rec.Code)
	}
}

// TestServer_RunStopsOnCancel проверяет остановку по отмене контекста.
func TestServer_RunStopsOnCancel(t *testing.T) {
	srv := New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), stubAPI{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run вернул ошибку: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}
