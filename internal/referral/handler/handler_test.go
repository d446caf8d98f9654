package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"refhub/internal/platform/middleware"
	"refhub/internal/referral/handler/mocks"
	"refhub/internal/referral/models"
	dErrors "refhub/pkg/domain-errors"
)

func newRouter(svc Service) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	h := New(svc, logger)
	h.Register(r)
	h.RegisterAdmin(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSignupCreated(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	referrerID := int64(7)
	svc.EXPECT().SubmitSignup(gomock.Any(), models.SignupRequest{
		Username:     "alice",
		ReferralCode: "REF12345",
	}).Return(&models.SignupResult{
		User: &models.User{
			ID:        42,
			Username:  "alice",
			Code:      "ALICE123",
			CreatedAt: time.Now().UTC(),
		},
		ReferrerID: &referrerID,
	}, nil)

	rec := postJSON(t, newRouter(svc), "/signup", map[string]string{
		"username":      "alice",
		"referral_code": "REF12345",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp SignupResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != 42 || resp.ReferralCode != "ALICE123" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ReferrerID == nil || *resp.ReferrerID != 7 {
		t.Fatalf("expected referrer_id 7, got %v", resp.ReferrerID)
	}
}

func TestSignupBlacklistedMapsTo403(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	svc.EXPECT().SubmitSignup(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeBlacklisted, "blocked by blacklist: phone"))

	rec := postJSON(t, newRouter(svc), "/signup", map[string]string{"username": "mallory"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "blocked by blacklist") {
		t.Fatalf("expected block reason in body, got %s", rec.Body.String())
	}
}

func TestSignupPoolExhaustedMapsTo409(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	svc.EXPECT().SubmitSignup(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodePoolExhausted, "no reserved account available"))

	rec := postJSON(t, newRouter(svc), "/signup", map[string]any{"auto_assign": true})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestSignupRejectsMalformedBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl) // no calls expected

	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSignupRejectsOversizedUsername(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl) // validation fails before the service

	rec := postJSON(t, newRouter(svc), "/signup", map[string]string{
		"username": strings.Repeat("x", 65),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLookupByIdentifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	svc.EXPECT().LookupUser(gomock.Any(), "ALICE123").Return(&models.UserView{
		ID:       42,
		Username: "alice",
		Code:     "ALICE123",
		Referred: []models.UserSummary{{Username: "bob", Code: "BOB45678"}},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/users/ALICE123", nil)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var view models.UserView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Username != "alice" || len(view.Referred) != 1 {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestLookupUnknownMapsTo404(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	svc.EXPECT().LookupUser(gomock.Any(), "ghost").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "no user matches that code or username"))

	req := httptest.NewRequest(http.MethodGet, "/users/ghost", nil)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	svc.EXPECT().UpdateProfile(gomock.Any(), "alice", models.ProfileFields{
		FirstName: "Alice",
		Phone:     "+2000",
	}).Return(&models.UserView{ID: 42, Username: "alice", FirstName: "Alice", Phone: "+2000"}, nil)

	body, _ := json.Marshal(map[string]string{"first_name": "Alice", "phone": "+2000"})
	req := httptest.NewRequest(http.MethodPatch, "/users/alice", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	svc.EXPECT().Search(gomock.Any(), "ali").Return([]*models.UserView{
		{ID: 42, Username: "alice", Code: "ALICE123"},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/search?q=ali", nil)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp SearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.Results[0].Username != "alice" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchEmptyQueryReturnsEmptyList(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	svc.EXPECT().Search(gomock.Any(), "").Return(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Fatalf("expected empty results array, got %s", rec.Body.String())
	}
}

func TestBulkCreate(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	svc.EXPECT().BulkCreate(gomock.Any(), []string{"alice", "alice", "bob"}).
		Return(&models.BulkResult{Added: []string{"alice", "bob"}, Skipped: []string{"alice"}}, nil)

	rec := postJSON(t, newRouter(svc), "/admin/bulk", map[string]any{
		"usernames": []string{"alice", "alice", "bob"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result models.BulkResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result.Added) != 2 || len(result.Skipped) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestBulkRequiresAdminToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl) // no calls expected

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	h := New(svc, logger)
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.RequireAdminToken("secret-token", logger))
		h.RegisterAdmin(gr)
	})

	rec := postJSON(t, r, "/admin/bulk", map[string]any{"usernames": []string{"alice"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when admin token missing, got %d", rec.Code)
	}

	body, _ := json.Marshal(map[string]any{"usernames": []string{"alice"}})
	req := httptest.NewRequest(http.MethodPost, "/admin/bulk", bytes.NewReader(body))
	req.Header.Set("X-Admin-Token", "secret-token")
	svc.EXPECT().BulkCreate(gomock.Any(), []string{"alice"}).
		Return(&models.BulkResult{Added: []string{"alice"}, Skipped: []string{}}, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin token, got %d", rec.Code)
	}
}

func TestBulkRequiresUsernames(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl) // no calls expected

	rec := postJSON(t, newRouter(svc), "/admin/bulk", map[string]any{"usernames": []string{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
