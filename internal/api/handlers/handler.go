// handler.go — операторское API справочника: маршруты и общие helpers.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/campus-directory/internal/service"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// Services — сервисный слой, которому делегирует API.
type Services struct {
	Lookup       *service.LookupService
	Migration    *service.MigrationService
	Recovery     *service.RecoveryService
	Invalidation *service.InvalidationService
	Status       *service.StatusService
	Telemetry    *telemetry.Log
}

// APIHandler — обработчик операторского API.
type APIHandler struct {
	health *HealthHandler
	svc    Services
	logger *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(health *HealthHandler, svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health: health,
		svc:    svc,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// Routes регистрирует маршруты. admin — middleware мутирующих операций
// (JWT + роль администратора); nil — операции открыты.
func (h *APIHandler) Routes(r chi.Router, admin ...func(http.Handler) http.Handler) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/campuses", h.ListCampuses)
		r.Get("/campuses/{key}", h.GetCampus)
		r.Get("/telemetry/{domain}", h.GetTelemetry)
		r.Get("/status", h.GetStatus)

		r.Group(func(r chi.Router) {
			for _, mw := range admin {
				if mw != nil {
					r.Use(mw)
				}
			}
			r.Post("/cache/invalidate", h.InvalidateCache)
			r.Post("/recovery", h.Recover)
			r.Post("/refresh", h.Refresh)
			r.Post("/migration/run", h.RunMigration)
			r.Post("/migration/reset", h.ResetMigration)
		})
	})
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
