package api

import (
	"net/http"

	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

// SubmitBid handles POST /api/v1/projects/{projectID}/bids
func (h *Handler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req bidRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	bid, err := h.lifecycle.SubmitBid(r.Context(), lifecycle.SubmitBidCommand{
		ProjectID:    projectID,
		BidderID:     actorFrom(r).ID,
		Amount:       req.Amount,
		Comment:      req.Comment,
		DeliveryDate: req.DeliveryDate,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapBid(bid))
}

// ListBids handles GET /api/v1/projects/{projectID}/bids
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	bids, err := h.lifecycle.ListBids(r.Context(), projectID, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, mapBid(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBid handles GET /api/v1/bids/{bidID}
func (h *Handler) GetBid(w http.ResponseWriter, r *http.Request) {
	bidID, err := pathUUID(r, "bidID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bid, err := h.lifecycle.GetBid(r.Context(), bidID, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBid(bid))
}

// AmendBid handles PATCH /api/v1/bids/{bidID}
func (h *Handler) AmendBid(w http.ResponseWriter, r *http.Request) {
	bidID, err := pathUUID(r, "bidID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req bidPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	bid, err := h.lifecycle.AmendBid(r.Context(), bidID, lifecycle.BidPatch{
		Amount:       req.Amount,
		Comment:      req.Comment,
		DeliveryDate: req.DeliveryDate,
	}, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBid(bid))
}

// WithdrawBid handles POST /api/v1/bids/{bidID}/withdraw
func (h *Handler) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	bidID, err := pathUUID(r, "bidID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bid, err := h.lifecycle.WithdrawBid(r.Context(), bidID, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBid(bid))
}
