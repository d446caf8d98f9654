// Package handler exposes the referral engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"refhub/internal/platform/middleware"
	"refhub/internal/referral/models"
	"refhub/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mock_service.go -package=mocks

// Service defines the engine operations the HTTP layer depends on.
type Service interface {
	SubmitSignup(ctx context.Context, req models.SignupRequest) (*models.SignupResult, error)
	LookupUser(ctx context.Context, identifier string) (*models.UserView, error)
	UpdateProfile(ctx context.Context, identifier string, fields models.ProfileFields) (*models.UserView, error)
	Search(ctx context.Context, query string) ([]*models.UserView, error)
	BulkCreate(ctx context.Context, usernames []string) (*models.BulkResult, error)
}

// Handler wires referral endpoints to the engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a referral handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public referral endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/signup", h.HandleSignup)
	r.Get("/users/{identifier}", h.HandleLookup)
	r.Patch("/users/{identifier}", h.HandleUpdateProfile)
	r.Get("/search", h.HandleSearch)
}

// RegisterAdmin mounts the operational endpoints. The caller decides which
// auth middleware wraps them.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/bulk", h.HandleBulk)
}

// HandleSignup handles POST /signup requests.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[SignupRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.SubmitSignup(ctx, req.Model())
	if err != nil {
		h.logger.InfoContext(ctx, "signup rejected",
			"request_id", requestID,
			"username", req.Username,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "signup accepted",
		"request_id", requestID,
		"user_id", result.User.ID,
		"from_pool", result.FromPool,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromResult(result))
}

// HandleLookup handles GET /users/{identifier} requests. The identifier is a
// referral code or a username.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identifier := chi.URLParam(r, "identifier")

	view, err := h.service.LookupUser(ctx, identifier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleUpdateProfile handles PATCH /users/{identifier} requests.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	identifier := chi.URLParam(r, "identifier")

	req, ok := httputil.DecodeAndPrepare[UpdateProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	view, err := h.service.UpdateProfile(ctx, identifier, req.Fields())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "profile updated",
		"request_id", requestID,
		"user_id", view.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleSearch handles GET /search?q= requests.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	views, err := h.service.Search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if views == nil {
		views = []*models.UserView{}
	}
	httputil.WriteJSON(w, http.StatusOK, SearchResponse{Results: views, Count: len(views)})
}

// HandleBulk handles POST /admin/bulk requests.
func (h *Handler) HandleBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BulkRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.BulkCreate(ctx, req.Usernames)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "bulk users added",
		"request_id", requestID,
		"added", len(result.Added),
		"skipped", len(result.Skipped),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}
