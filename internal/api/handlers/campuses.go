package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/campus-directory/internal/api/errors"
	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/domain/validation"
)

type campusListResponse struct {
	Campuses    []string   `json:"campuses"`
	Total       int        `json:"total"`
	Recipients  int        `json:"recipients"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

type campusResponse struct {
	Campus string `json:"campus"`
	model.Lookup
}

// ListCampuses — GET /api/v1/campuses.
func (h *APIHandler) ListCampuses(w http.ResponseWriter, r *http.Request) {
	dir, err := h.svc.Lookup.Directory(r.Context())
	if err != nil {
		h.directoryError(w, err)
		return
	}

	resp := campusListResponse{
		Campuses:   dir.Keys(),
		Total:      dir.Len(),
		Recipients: dir.RecipientCount(),
	}
	if !dir.LastUpdated.IsZero() {
		ts := dir.LastUpdated
		resp.LastUpdated = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCampus — GET /api/v1/campuses/{key}.
// Неизвестный кампус — 200 с пустым результатом, как у Resolve.
func (h *APIHandler) GetCampus(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "key")
	key := validation.NormalizeCampusKey(raw)
	if key == "" {
		apierrors.ValidationError(w, "Пустой ключ кампуса")
		return
	}

	writeJSON(w, http.StatusOK, campusResponse{
		Campus: key,
		Lookup: h.svc.Lookup.Resolve(r.Context(), raw),
	})
}

// directoryError отвечает на ошибку получения справочника.
func (h *APIHandler) directoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrRecoveryFailed) {
		apierrors.ServiceUnavailable(w, err.Error())
		return
	}
	h.logger.Error("Ошибка получения справочника", slog.String("error", err.Error()))
	apierrors.InternalError(w, "Внутренняя ошибка")
}
