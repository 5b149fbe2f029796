// operations.go — операции оператора: инвалидация, восстановление,
// обновление, управление миграцией, телеметрия и состояние.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/campus-directory/internal/api/errors"
	"github.com/bigkaa/campus-directory/internal/api/middleware"
	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// maxEditBody — ограничение тела уведомления о правке.
const maxEditBody = 64 << 10

type invalidateResponse struct {
	Invalidated bool `json:"invalidated"`
}

type refreshResponse struct {
	Campuses   int `json:"campuses"`
	Recipients int `json:"recipients"`
}

type telemetryResponse struct {
	Domain  telemetry.Domain   `json:"domain"`
	Entries []telemetry.Entry  `json:"entries"`
	Summary *telemetry.Summary `json:"summary"`
}

// InvalidateCache — POST /api/v1/cache/invalidate.
// Тело — model.EditEvent от внешнего редактора таблицы.
func (h *APIHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var edit model.EditEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEditBody))
	if err := dec.Decode(&edit); err != nil {
		apierrors.ValidationError(w, "Невалидное тело уведомления: "+err.Error())
		return
	}
	if strings.TrimSpace(edit.SheetName) == "" {
		apierrors.ValidationError(w, "Не указан sheetName")
		return
	}

	invalidated := h.svc.Invalidation.HandleEdit(r.Context(), edit)
	writeJSON(w, http.StatusOK, invalidateResponse{Invalidated: invalidated})
}

// Recover — POST /api/v1/recovery. Параметр force=true пересоздаёт
// таблицу без проверки.
func (h *APIHandler) Recover(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Восстановление запрошено оператором",
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)

	var outcome model.RecoveryOutcome
	if r.URL.Query().Get("force") == "true" {
		outcome = h.svc.Recovery.ForceRebuild(r.Context())
	} else {
		outcome = h.svc.Recovery.ValidateAndRecover(r.Context())
	}

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, outcome)
}

// Refresh — POST /api/v1/refresh.
func (h *APIHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	dir, err := h.svc.Lookup.Refresh(r.Context())
	if err != nil {
		h.directoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Campuses: dir.Len(), Recipients: dir.RecipientCount()})
}

// RunMigration — POST /api/v1/migration/run.
func (h *APIHandler) RunMigration(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Migration.Run(r.Context())
	if err != nil {
		if errors.Is(err, model.ErrMigrationFailed) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  err.Error(),
				"report": report,
			})
			return
		}
		apierrors.InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ResetMigration — POST /api/v1/migration/reset.
func (h *APIHandler) ResetMigration(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("Сброс миграции запрошен оператором",
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	if err := h.svc.Migration.Reset(r.Context()); err != nil {
		apierrors.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTelemetry — GET /api/v1/telemetry/{domain}.
func (h *APIHandler) GetTelemetry(w http.ResponseWriter, r *http.Request) {
	domain, err := telemetry.ParseDomain(chi.URLParam(r, "domain"))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, telemetryResponse{
		Domain:  domain,
		Entries: h.svc.Telemetry.Entries(r.Context(), domain),
		Summary: h.svc.Telemetry.Summary(r.Context(), domain),
	})
}

// GetStatus — GET /api/v1/status.
func (h *APIHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Status.Report(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения состояния", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось прочитать состояние")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
