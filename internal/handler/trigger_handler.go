package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/database"
	"github.com/dandantas/cronlease/internal/model"
)

// TriggerCatalog stores triggers
type TriggerCatalog interface {
	Create(ctx context.Context, trigger *model.Trigger) error
	Get(ctx context.Context, key model.Key) (*model.Trigger, error)
	List(ctx context.Context) ([]model.Trigger, error)
	Delete(ctx context.Context, key model.Key) error
}

// TriggerHandler handles trigger CRUD operations
type TriggerHandler struct {
	triggers TriggerCatalog
	clock    clock.Clock
}

// NewTriggerHandler creates a new trigger handler
func NewTriggerHandler(triggers TriggerCatalog, clk clock.Clock) *TriggerHandler {
	return &TriggerHandler{
		triggers: triggers,
		clock:    clk,
	}
}

// CreateTriggerRequest represents the create trigger request
type CreateTriggerRequest struct {
	Group          string `json:"group"`
	Name           string `json:"name"`
	JobGroup       string `json:"job_group"`
	JobName        string `json:"job_name"`
	CronExpression string `json:"cron_expression"`
	Enabled        *bool  `json:"enabled,omitempty"`
}

// TriggerListResponse represents the trigger list response
type TriggerListResponse struct {
	Total    int             `json:"total"`
	Triggers []model.Trigger `json:"triggers"`
}

// List handles GET /api/v1/triggers
func (h *TriggerHandler) List(w http.ResponseWriter, r *http.Request) {
	triggers, err := h.triggers.List(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	enabled, err := parseQueryBool(r, "enabled")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid enabled parameter: "+err.Error())
		return
	}
	if enabled != nil {
		filtered := triggers[:0]
		for _, t := range triggers {
			if t.Enabled == *enabled {
				filtered = append(filtered, t)
			}
		}
		triggers = filtered
	}
	if triggers == nil {
		triggers = []model.Trigger{}
	}

	writeJSON(w, http.StatusOK, TriggerListResponse{
		Total:    len(triggers),
		Triggers: triggers,
	})
}

// Create handles POST /api/v1/triggers
func (h *TriggerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	trigger := &model.Trigger{
		KeyGroup:       req.Group,
		KeyName:        req.Name,
		JobGroup:       req.JobGroup,
		JobName:        req.JobName,
		CronExpression: req.CronExpression,
		Enabled:        req.Enabled == nil || *req.Enabled,
	}

	if err := trigger.Validate(h.clock.Now()); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.triggers.Create(r.Context(), trigger); err != nil {
		if errors.Is(err, database.ErrTriggerExists) {
			writeError(w, r, http.StatusConflict, err.Error())
			return
		}
		writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, trigger)
}

// Get handles GET /api/v1/triggers/{group}/{name}
func (h *TriggerHandler) Get(w http.ResponseWriter, r *http.Request, key model.Key) {
	trigger, err := h.triggers.Get(r.Context(), key)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, trigger)
}

// Delete handles DELETE /api/v1/triggers/{group}/{name}
func (h *TriggerHandler) Delete(w http.ResponseWriter, r *http.Request, key model.Key) {
	if err := h.triggers.Delete(r.Context(), key); err != nil {
		h.writeLookupError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TriggerHandler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, database.ErrTriggerNotFound) {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	writeStoreError(w, r, err)
}
