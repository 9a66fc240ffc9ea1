package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agent-memory-be/internal/dto"
	"agent-memory-be/internal/pkg/serverutils"
	"agent-memory-be/internal/service"
	"agent-memory-be/pkg/acb"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAcbService struct {
	buildErr  error
	eventErr  error
	auditErr  error
	tenant    string
	lastBuild *dto.BuildBundleRequest
	limit     int
	offset    int
}

func (s *stubAcbService) Build(_ context.Context, tenantID string, req *dto.BuildBundleRequest) (*dto.BuildBundleResponse, error) {
	s.tenant = tenantID
	s.lastBuild = req
	if s.buildErr != nil {
		return nil, s.buildErr
	}
	return &dto.BuildBundleResponse{
		AcbId:        "acb-1",
		BudgetTokens: 32000,
		TokenUsedEst: 1200,
		Sections:     []dto.BundleSectionResponse{{Name: "rules", BudgetTokens: 3000, TokenUsedEst: 200}},
	}, nil
}

func (s *stubAcbService) RecordEvent(_ context.Context, tenantID string, _ *dto.RecordEventRequest) (*dto.RecordEventResponse, error) {
	s.tenant = tenantID
	if s.eventErr != nil {
		return nil, s.eventErr
	}
	return &dto.RecordEventResponse{EventId: uuid.New(), ChunkIds: []uuid.UUID{uuid.New()}, Category: "recent_window"}, nil
}

func (s *stubAcbService) GetAudit(_ context.Context, tenantID string, id uuid.UUID) (*dto.BundleAuditResponse, error) {
	s.tenant = tenantID
	if s.auditErr != nil {
		return nil, s.auditErr
	}
	return &dto.BundleAuditResponse{AcbId: id, SessionId: "s1"}, nil
}

func (s *stubAcbService) ListSessionAudits(_ context.Context, tenantID, _ string, limit, offset int) ([]*dto.BundleAuditResponse, error) {
	s.tenant = tenantID
	s.limit, s.offset = limit, offset
	if s.auditErr != nil {
		return nil, s.auditErr
	}
	return []*dto.BundleAuditResponse{}, nil
}

func (s *stubAcbService) Profiles() []*dto.ProfileResponse {
	return []*dto.ProfileResponse{{Mode: "TASK", WeightSum: 53000}}
}

func newApp(svc service.IAcbService) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewAcbController(svc).RegisterRoutes(app.Group("/api"), serverutils.NewTenantMiddleware(""))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "acme")
	res, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return res, out
}

func TestBuild(t *testing.T) {
	svc := &stubAcbService{}
	app := newApp(svc)

	res, body := do(t, app, http.MethodPost, "/api/v1/acb/build",
		`{"session_id":"s1","agent_id":"a1","channel":"cli","intent":"fix the failing test","query_text":"failing test"}`)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "acme", svc.tenant)
	assert.Equal(t, "fix the failing test", svc.lastBuild.Intent)

	data := body["data"].(map[string]any)
	assert.Equal(t, "acb-1", data["acb_id"])
	assert.EqualValues(t, 1200, data["token_used_est"])
	sections := data["sections"].([]any)
	assert.Equal(t, "rules", sections[0].(map[string]any)["name"])
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"malformed json", `{`, nil, 400, ""},
		{"missing session", `{"intent":"x"}`, nil, 400, acb.CodeValidation},
		{"negative budget", `{"session_id":"s1","budget_tokens":-5}`, nil, 400, acb.CodeValidation},
		{"budget above maximum", `{"session_id":"s1","budget_tokens":10000001}`, nil, 400, acb.CodeValidation},
		{"budget exhausted", `{"session_id":"s1"}`, acb.NewBudgetExhaustedError(acb.CategoryRules, 10), 422, acb.CodeBudgetExhausted},
		{"retrieval failed", `{"session_id":"s1"}`, acb.NewRetrievalError(acb.CategoryTaskState, errors.New("down")), 502, acb.CodeRetrievalFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(&stubAcbService{buildErr: tt.err})
			res, body := do(t, app, http.MethodPost, "/api/v1/acb/build", tt.body)
			assert.Equal(t, tt.wantStatus, res.StatusCode)
			assert.Equal(t, false, body["success"])
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, body["reason_code"])
			}
			assert.Nil(t, body["data"])
		})
	}
}

func TestBuild_MaximumBudgetAccepted(t *testing.T) {
	svc := &stubAcbService{}
	res, _ := do(t, newApp(svc), http.MethodPost, "/api/v1/acb/build", `{"session_id":"s1","budget_tokens":10000000}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 10000000, svc.lastBuild.BudgetTokens)
}

func TestBodyTenant_VerifiedToken(t *testing.T) {
	const secret = "test-secret"
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant_id": "tenant-a",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	event := `"actor":{"type":"human","id":"u1"},"kind":"message","content":{"text":"hello"}`
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantTenant string
	}{
		{"build other tenant", "/api/v1/acb/build", `{"tenant_id":"tenant-b","session_id":"s1"}`, 403, ""},
		{"build same tenant", "/api/v1/acb/build", `{"tenant_id":"tenant-a","session_id":"s1"}`, 200, "tenant-a"},
		{"build no tenant", "/api/v1/acb/build", `{"session_id":"s1"}`, 200, "tenant-a"},
		{"event other tenant", "/api/v1/events", `{"tenant_id":"tenant-b","session_id":"s1",` + event + `}`, 403, ""},
		{"event same tenant", "/api/v1/events", `{"tenant_id":"tenant-a","session_id":"s1",` + event + `}`, 201, "tenant-a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubAcbService{}
			app := fiber.New()
			app.Use(serverutils.ErrorHandlerMiddleware())
			NewAcbController(svc).RegisterRoutes(app.Group("/api"), serverutils.NewTenantMiddleware(secret))

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+tok)
			res, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, res.StatusCode)
			assert.Equal(t, tt.wantTenant, svc.tenant)
		})
	}
}

func TestBodyTenant_HeaderMode(t *testing.T) {
	svc := &stubAcbService{}
	res, _ := do(t, newApp(svc), http.MethodPost, "/api/v1/acb/build", `{"tenant_id":"globex","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "globex", svc.tenant)
}

func TestRecordEvent(t *testing.T) {
	valid := `{"session_id":"s1","channel":"cli","actor":{"type":"human","id":"u1"},"kind":"message","content":{"text":"hello"}}`

	t.Run("created", func(t *testing.T) {
		svc := &stubAcbService{}
		res, body := do(t, newApp(svc), http.MethodPost, "/api/v1/events", valid)
		assert.Equal(t, http.StatusCreated, res.StatusCode)
		data := body["data"].(map[string]any)
		assert.NotEmpty(t, data["event_id"])
		assert.Len(t, data["chunk_ids"], 1)
	})

	t.Run("unknown kind", func(t *testing.T) {
		res, _ := do(t, newApp(&stubAcbService{}), http.MethodPost, "/api/v1/events",
			`{"session_id":"s1","actor":{"type":"human"},"kind":"gossip","content":{"text":"x"}}`)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("no storage", func(t *testing.T) {
		res, _ := do(t, newApp(&stubAcbService{eventErr: service.ErrStorageUnavailable}), http.MethodPost, "/api/v1/events", valid)
		assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	})
}

func TestAudits(t *testing.T) {
	id := uuid.New()

	res, body := do(t, newApp(&stubAcbService{}), http.MethodGet, "/api/v1/acb/audits/"+id.String(), "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, id.String(), body["data"].(map[string]any)["acb_id"])

	res, _ = do(t, newApp(&stubAcbService{}), http.MethodGet, "/api/v1/acb/audits/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = do(t, newApp(&stubAcbService{auditErr: service.ErrAuditNotFound}), http.MethodGet, "/api/v1/acb/audits/"+id.String(), "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	svc := &stubAcbService{}
	res, _ = do(t, newApp(svc), http.MethodGet, "/api/v1/acb/sessions/s1/audits?limit=5&offset=10", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 5, svc.limit)
	assert.Equal(t, 10, svc.offset)
}

func TestProfilesAndHealth(t *testing.T) {
	app := newApp(&stubAcbService{})

	res, body := do(t, app, http.MethodGet, "/api/v1/acb/profiles", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	profiles := body["data"].([]any)
	assert.Equal(t, "TASK", profiles[0].(map[string]any)["mode"])

	res, _ = do(t, app, http.MethodGet, "/api/v1/acb/health", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
