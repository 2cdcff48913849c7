package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

type errorResponse struct {
	Error string `json:"error"`
}

type projectRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	BiddingDeadline time.Time `json:"bidding_deadline"`
	DeliveryDate    time.Time `json:"delivery_date"`
	MaxBid          *int64    `json:"max_bid,omitempty"`
	MaxBidVisible   bool      `json:"max_bid_visible"`
}

type projectResponse struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	OwnerID         uuid.UUID  `json:"owner_id"`
	BiddingDeadline time.Time  `json:"bidding_deadline"`
	DeliveryDate    time.Time  `json:"delivery_date"`
	MaxBid          *int64     `json:"max_bid,omitempty"`
	MaxBidVisible   bool       `json:"max_bid_visible"`
	AwardedBidID    *uuid.UUID `json:"awarded_bid_id,omitempty"`
	AwardedAmount   *int64     `json:"awarded_amount,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func mapProject(p *lifecycle.Project) projectResponse {
	return projectResponse{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		Status:          string(p.Status),
		OwnerID:         p.OwnerID,
		BiddingDeadline: p.BiddingDeadline,
		DeliveryDate:    p.DeliveryDate,
		MaxBid:          p.MaxBid,
		MaxBidVisible:   p.MaxBidVisible,
		AwardedBidID:    p.AwardedBidID,
		AwardedAmount:   p.AwardedAmount,
		CompletedAt:     p.CompletedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type transitionResponse struct {
	Project projectResponse `json:"project"`
	Outcome string          `json:"outcome"`
	Reason  string          `json:"reason,omitempty"`
	Path    string          `json:"path"`
}

func mapTransition(r *lifecycle.TransitionResult) transitionResponse {
	resp := transitionResponse{
		Project: mapProject(r.Project),
		Outcome: string(r.Outcome),
		Path:    string(r.Path),
	}
	if r.Reason != nil {
		resp.Reason = r.Reason.Error()
	}
	return resp
}

type awardRequest struct {
	BidID uuid.UUID `json:"bid_id"`
}

type ratingRequest struct {
	Score   int     `json:"score"`
	Comment *string `json:"comment,omitempty"`
}

type completeRequest struct {
	Rating *ratingRequest `json:"rating,omitempty"`
}

type overrideRequest struct {
	Reason string `json:"reason"`
}

type bidRequest struct {
	Amount       int64      `json:"amount"`
	Comment      *string    `json:"comment,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
}

type bidPatchRequest struct {
	Amount       *int64     `json:"amount,omitempty"`
	Comment      *string    `json:"comment,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
}

type bidResponse struct {
	ID           uuid.UUID  `json:"id"`
	ProjectID    uuid.UUID  `json:"project_id"`
	BidderID     uuid.UUID  `json:"bidder_id"`
	Amount       int64      `json:"amount"`
	Comment      *string    `json:"comment,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func mapBid(b *lifecycle.Bid) bidResponse {
	return bidResponse{
		ID:           b.ID,
		ProjectID:    b.ProjectID,
		BidderID:     b.BidderID,
		Amount:       b.Amount,
		Comment:      b.Comment,
		DeliveryDate: b.DeliveryDate,
		Status:       string(b.Status),
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

type ratingResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Average float64   `json:"average"`
	Count   int64     `json:"count"`
}
