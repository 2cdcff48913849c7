package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/floroz/procura/pkg/auth"
	"github.com/floroz/procura/services/bidding-service/internal/closure"
	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

// Lifecycle is the part of the engine the HTTP layer drives
type Lifecycle interface {
	CreateProject(ctx context.Context, cmd lifecycle.CreateProjectCommand) (*lifecycle.Project, error)
	GetProject(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor) (*lifecycle.Project, error)
	UpdateDraft(ctx context.Context, cmd lifecycle.UpdateDraftCommand, actor lifecycle.Actor) (*lifecycle.Project, error)
	DeleteProject(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor) error
	OpenBidding(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor) (*lifecycle.TransitionResult, error)
	CloseBidding(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor) (*lifecycle.TransitionResult, error)
	Award(ctx context.Context, projectID, bidID uuid.UUID, actor lifecycle.Actor) (*lifecycle.TransitionResult, error)
	Complete(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor, rating *lifecycle.RatingInput) (*lifecycle.TransitionResult, error)
	Cancel(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor) (*lifecycle.TransitionResult, error)
	SubmitBid(ctx context.Context, cmd lifecycle.SubmitBidCommand) (*lifecycle.Bid, error)
	AmendBid(ctx context.Context, bidID uuid.UUID, patch lifecycle.BidPatch, actor lifecycle.Actor) (*lifecycle.Bid, error)
	WithdrawBid(ctx context.Context, bidID uuid.UUID, actor lifecycle.Actor) (*lifecycle.Bid, error)
	GetBid(ctx context.Context, bidID uuid.UUID, actor lifecycle.Actor) (*lifecycle.Bid, error)
	ListBids(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor) ([]*lifecycle.Bid, error)
}

// Overrides is the privileged transition family
type Overrides interface {
	ForceClose(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor, reason string) (*lifecycle.TransitionResult, error)
	ForceComplete(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor, reason string) (*lifecycle.TransitionResult, error)
	ResetToDraft(ctx context.Context, projectID uuid.UUID, actor lifecycle.Actor, reason string) (*lifecycle.TransitionResult, error)
}

// SchedulerControl lets admins inspect and drive the local closure scheduler
type SchedulerControl interface {
	Start(ctx context.Context) error
	Stop()
	Restart(ctx context.Context) error
	Status() closure.Status
}

// SweepStates lists the last sweep of every scheduler instance
type SweepStates interface {
	ListSweeps(ctx context.Context) (map[string]closure.SweepReport, error)
}

// RatingReader reads aggregated ratings
type RatingReader interface {
	AverageScore(ctx context.Context, ratedUserID uuid.UUID) (float64, int64, error)
}

// Handler serves the bidding HTTP API
type Handler struct {
	lifecycle Lifecycle
	overrides Overrides
	scheduler SchedulerControl // nil when this process runs no scheduler
	sweeps    SweepStates      // nil when Redis is not configured
	ratings   RatingReader
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	lc Lifecycle,
	overrides Overrides,
	scheduler SchedulerControl,
	sweeps SweepStates,
	ratings RatingReader,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		lifecycle: lc,
		overrides: overrides,
		scheduler: scheduler,
		sweeps:    sweeps,
		ratings:   ratings,
		logger:    logger,
	}
}

// Routes builds the router. authn authenticates the caller and stores an auth.Principal in the context.
func (h *Handler) Routes(authn func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn)

		r.Route("/projects", func(r chi.Router) {
			r.With(auth.RequireRole(auth.RoleOwner, auth.RoleAdmin)).Post("/", h.CreateProject)

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", h.GetProject)
				r.Put("/", h.UpdateDraft)
				r.Delete("/", h.DeleteProject)
				r.Post("/open", h.OpenBidding)
				r.Post("/close", h.CloseBidding)
				r.Post("/award", h.Award)
				r.Post("/complete", h.Complete)
				r.Post("/cancel", h.Cancel)
				r.Get("/bids", h.ListBids)
				r.With(auth.RequireRole(auth.RoleBidder)).Post("/bids", h.SubmitBid)
			})
		})

		r.Route("/bids/{bidID}", func(r chi.Router) {
			r.Get("/", h.GetBid)
			r.Patch("/", h.AmendBid)
			r.Post("/withdraw", h.WithdrawBid)
		})

		r.Get("/users/{userID}/rating", h.GetUserRating)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Post("/projects/{projectID}/force-close", h.ForceClose)
			r.Post("/projects/{projectID}/force-complete", h.ForceComplete)
			r.Post("/projects/{projectID}/reset", h.ResetToDraft)
			r.Get("/scheduler", h.SchedulerStatus)
			r.Post("/scheduler/{action}", h.SchedulerAction)
		})
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// actorFrom maps the authenticated principal to a lifecycle actor
func actorFrom(r *http.Request) lifecycle.Actor {
	p := auth.MustGetPrincipal(r.Context())
	return lifecycle.Actor{ID: p.UserID, Role: lifecycle.Role(p.Role)}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errInvalidParam(name)
	}
	return id, nil
}

type paramError struct{ name string }

func (e paramError) Error() string { return "invalid " + e.name }

func errInvalidParam(name string) error { return paramError{name: name} }

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errInvalidParam("request body")
	}
	return nil
}

// decodeOptionalJSON accepts an empty body
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidParam("request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var pErr paramError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &pErr), errors.Is(err, lifecycle.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lifecycle.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, lifecycle.ErrInvalidStateTransition),
		errors.Is(err, lifecycle.ErrDuplicateBid),
		errors.Is(err, lifecycle.ErrDeadlinePassed),
		errors.Is(err, lifecycle.ErrAlreadyRated),
		errors.Is(err, closure.ErrAlreadyRunning):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
