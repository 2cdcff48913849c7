package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

// CreateProject handles POST /api/v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	actor := actorFrom(r)
	p, err := h.lifecycle.CreateProject(r.Context(), lifecycle.CreateProjectCommand{
		OwnerID:         actor.ID,
		Title:           req.Title,
		Description:     req.Description,
		BiddingDeadline: req.BiddingDeadline,
		DeliveryDate:    req.DeliveryDate,
		MaxBid:          req.MaxBid,
		MaxBidVisible:   req.MaxBidVisible,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapProject(p))
}

// GetProject handles GET /api/v1/projects/{projectID}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.lifecycle.GetProject(r.Context(), projectID, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProject(p))
}

// UpdateDraft handles PUT /api/v1/projects/{projectID}
func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.lifecycle.UpdateDraft(r.Context(), lifecycle.UpdateDraftCommand{
		ProjectID:       projectID,
		Title:           req.Title,
		Description:     req.Description,
		BiddingDeadline: req.BiddingDeadline,
		DeliveryDate:    req.DeliveryDate,
		MaxBid:          req.MaxBid,
		MaxBidVisible:   req.MaxBidVisible,
	}, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProject(p))
}

// DeleteProject handles DELETE /api/v1/projects/{projectID}
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.lifecycle.DeleteProject(r.Context(), projectID, actorFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionFunc func(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor) (*lifecycle.TransitionResult, error)

// transition runs a body-less project transition. No-ops are reported with
// 200 and outcome "noop" so retries by clients are safe.
func (h *Handler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := pathUUID(r, "projectID")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		result, err := fn(r.Context(), projectID, actorFrom(r))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mapTransition(result))
	}
}

// OpenBidding handles POST /api/v1/projects/{projectID}/open
func (h *Handler) OpenBidding(w http.ResponseWriter, r *http.Request) {
	h.transition(h.lifecycle.OpenBidding)(w, r)
}

// CloseBidding handles POST /api/v1/projects/{projectID}/close
func (h *Handler) CloseBidding(w http.ResponseWriter, r *http.Request) {
	h.transition(h.lifecycle.CloseBidding)(w, r)
}

// Cancel handles POST /api/v1/projects/{projectID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(h.lifecycle.Cancel)(w, r)
}

// Award handles POST /api/v1/projects/{projectID}/award
func (h *Handler) Award(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req awardRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.BidID == uuid.Nil {
		h.writeError(w, r, errInvalidParam("bid_id"))
		return
	}

	result, err := h.lifecycle.Award(r.Context(), projectID, req.BidID, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapTransition(result))
}

// Complete handles POST /api/v1/projects/{projectID}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req completeRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var rating *lifecycle.RatingInput
	if req.Rating != nil {
		rating = &lifecycle.RatingInput{Score: req.Rating.Score, Comment: req.Rating.Comment}
	}

	result, err := h.lifecycle.Complete(r.Context(), projectID, actorFrom(r), rating)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapTransition(result))
}

// GetUserRating handles GET /api/v1/users/{userID}/rating
func (h *Handler) GetUserRating(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	avg, count, err := h.ratings.AverageScore(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingResponse{UserID: userID, Average: avg, Count: count})
}
