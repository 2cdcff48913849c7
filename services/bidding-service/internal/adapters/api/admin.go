package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/floroz/procura/services/bidding-service/internal/closure"
	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

type overrideFunc func(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor, reason string) (*lifecycle.TransitionResult, error)

func (h *Handler) override(fn overrideFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := pathUUID(r, "projectID")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		var req overrideRequest
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		result, err := fn(r.Context(), projectID, actorFrom(r), req.Reason)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mapTransition(result))
	}
}

// ForceClose handles POST /api/v1/admin/projects/{projectID}/force-close
func (h *Handler) ForceClose(w http.ResponseWriter, r *http.Request) {
	h.override(h.overrides.ForceClose)(w, r)
}

// ForceComplete handles POST /api/v1/admin/projects/{projectID}/force-complete
func (h *Handler) ForceComplete(w http.ResponseWriter, r *http.Request) {
	h.override(h.overrides.ForceComplete)(w, r)
}

// ResetToDraft handles POST /api/v1/admin/projects/{projectID}/reset
func (h *Handler) ResetToDraft(w http.ResponseWriter, r *http.Request) {
	h.override(h.overrides.ResetToDraft)(w, r)
}

type schedulerResponse struct {
	Local     *closure.Status                `json:"local,omitempty"`
	Instances map[string]closure.SweepReport `json:"instances,omitempty"`
}

// SchedulerStatus handles GET /api/v1/admin/scheduler
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	var resp schedulerResponse
	if h.scheduler != nil {
		st := h.scheduler.Status()
		resp.Local = &st
	}
	if h.sweeps != nil {
		instances, err := h.sweeps.ListSweeps(r.Context())
		if err != nil {
			h.logger.Warn("failed to read sweep state", "error", err)
		} else {
			resp.Instances = instances
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SchedulerAction handles POST /api/v1/admin/scheduler/{start|stop|restart}
func (h *Handler) SchedulerAction(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no scheduler runs in this process"})
		return
	}

	// the loop must outlive this request
	ctx := context.WithoutCancel(r.Context())

	var err error
	switch chi.URLParam(r, "action") {
	case "start":
		err = h.scheduler.Start(ctx)
	case "stop":
		h.scheduler.Stop()
	case "restart":
		err = h.scheduler.Restart(ctx)
	default:
		h.writeError(w, r, errInvalidParam("action"))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("scheduler action", "action", chi.URLParam(r, "action"), "actor_id", actorFrom(r).ID)
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}
