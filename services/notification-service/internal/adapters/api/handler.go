package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/floroz/procura/pkg/auth"
	"github.com/floroz/procura/services/notification-service/internal/domain/inbox"
)

// Inbox is the read side of the notification service
type Inbox interface {
	ListInbox(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*inbox.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
}

type Handler struct {
	inbox  Inbox
	logger *slog.Logger
}

func NewHandler(inbox Inbox, logger *slog.Logger) *Handler {
	return &Handler{inbox: inbox, logger: logger}
}

// Routes builds the router. authn must store an auth.Principal in the request context.
func (h *Handler) Routes(authn func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(authn)
		r.Get("/", h.List)
		r.Post("/{notificationID}/read", h.MarkRead)
	})
	return r
}

// List handles GET /api/v1/notifications?unread=true&limit=20
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.MustGetPrincipal(r.Context())

	q := r.URL.Query()
	unread := q.Get("unread") == "true"
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	list, err := h.inbox.ListInbox(r.Context(), p.UserID, unread, limit)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if list == nil {
		list = []*inbox.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// MarkRead handles POST /api/v1/notifications/{notificationID}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p := auth.MustGetPrincipal(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid notificationID"})
		return
	}

	if err := h.inbox.MarkRead(r.Context(), p.UserID, id); err != nil {
		if errors.Is(err, inbox.ErrNotificationNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		h.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
