package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/apptmatch/libs/auth"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/model"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/storage"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/template"
)

type TemplateHandler struct {
	store  TemplateStore
	logger *slog.Logger
}

func NewTemplateHandler(store TemplateStore, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{store: store, logger: logger}
}

type templateResponse struct {
	ProviderID string                `json:"provider_id"`
	Week       model.WeekTimePeriods `json:"week"`
}

// ServeHTTP handles GET and PUT on a provider's weekly availability template.
func (h *TemplateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		writeError(w, http.StatusBadRequest, "provider_id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, providerID)
	case http.MethodPut:
		h.put(w, r, providerID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *TemplateHandler) get(w http.ResponseWriter, r *http.Request, providerID string) {
	week, err := h.store.GetWeekTemplate(r.Context(), providerID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "provider template not found")
			return
		}
		h.logger.Error("get template failed", "provider_id", providerID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, templateResponse{ProviderID: providerID, Week: week})
}

func (h *TemplateHandler) put(w http.ResponseWriter, r *http.Request, providerID string) {
	// Claims are absent when auth is disabled.
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil && !claims.CanManageProvider(providerID) {
		writeError(w, http.StatusForbidden, "not allowed to manage this provider")
		return
	}

	var week model.WeekTimePeriods
	if err := json.NewDecoder(r.Body).Decode(&week); err != nil {
		writeDecodeError(w, err)
		return
	}
	// Reject templates the matcher could not rasterize.
	if _, err := template.New(week); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: errorKind(err)})
		return
	}
	if err := h.store.UpsertWeekTemplate(r.Context(), providerID, week); err != nil {
		h.logger.Error("upsert template failed", "provider_id", providerID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, templateResponse{ProviderID: providerID, Week: week})
}
