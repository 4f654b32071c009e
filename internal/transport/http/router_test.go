package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	authhandler "prismid/internal/auth/handler"
	"prismid/internal/auth/models"
	"prismid/internal/auth/secrets"
	authservice "prismid/internal/auth/service"
	authstore "prismid/internal/auth/store"
	jwttoken "prismid/internal/jwt_token"
	personnelhandler "prismid/internal/personnel/handler"
	personnelservice "prismid/internal/personnel/service"
	personnelstore "prismid/internal/personnel/store/personnel"
	rolehandler "prismid/internal/role/handler"
	roleservice "prismid/internal/role/service"
	assignmentstore "prismid/internal/role/store/assignment"
	rolestore "prismid/internal/role/store/role"
	taxonomyhandler "prismid/internal/taxonomy/handler"
	taxonomyservice "prismid/internal/taxonomy/service"
	taxonomystore "prismid/internal/taxonomy/store"
	"prismid/pkg/access"
	audithandler "prismid/pkg/audit/handler"
	auditmemory "prismid/pkg/audit/store/memory"
	"prismid/pkg/identity"
)

const (
	rootPassword   = "root-secret"
	viewerPassword = "viewer-secret"
)

// newTestRouter wires the full stack on memory stores, the way main does
// when no database is configured.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	accounts := authstore.NewInMemory()
	if _, err := authstore.SeedBootstrapAdmin(context.Background(), accounts, "root", rootPassword); err != nil {
		t.Fatalf("seeding bootstrap admin: %v", err)
	}
	viewerHash, err := secrets.Hash(viewerPassword)
	if err != nil {
		t.Fatalf("hashing viewer password: %v", err)
	}
	viewer, err := models.NewAdminAccount(uuid.New(), "viewer", viewerHash, access.TierViewer, time.Now().UTC())
	if err != nil {
		t.Fatalf("building viewer account: %v", err)
	}
	if err := accounts.Create(context.Background(), viewer); err != nil {
		t.Fatalf("creating viewer account: %v", err)
	}

	tokens := jwttoken.NewJWTService("router-test-key", "prismid-test", "prismid-api")
	authSvc := authservice.New(accounts, tokens, auditmemory.NewInMemoryStore(), authservice.WithLogger(logger))

	auditStore := auditmemory.NewInMemoryStore()
	records := personnelstore.NewInMemory()
	assignments := assignmentstore.NewInMemory()
	roles := rolestore.NewInMemory()
	personnelSvc := personnelservice.New(records, assignments, roles,
		identity.NewCodec("router-test-salt"), auditStore,
		personnelservice.WithLogger(logger))
	roleSvc := roleservice.New(roles, assignments, auditStore, roleservice.WithLogger(logger))
	taxonomySvc := taxonomyservice.New(taxonomystore.NewInMemory(), auditStore, taxonomyservice.WithLogger(logger))

	return NewRouter(Dependencies{
		Logger:      logger,
		Auth:        authSvc,
		AuthHandler: authhandler.New(authSvc, logger),
		Personnel:   personnelhandler.New(personnelSvc, nil, logger),
		Roles:       rolehandler.New(roleSvc, logger),
		Taxonomy:    taxonomyhandler.New(taxonomySvc, logger),
		Audit:       audithandler.New(auditStore, logger),
	})
}

func login(t *testing.T, router http.Handler, username, password string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/auth/login",
		map[string]string{"username": username, "password": password}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 logging in as %s, got %d: %s", username, rec.Code, rec.Body.String())
	}
	var result struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if result.TokenType != "Bearer" || result.AccessToken == "" {
		t.Fatalf("unexpected login result: %+v", result)
	}
	return result.AccessToken
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshaling payload: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/personnel", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/personnel", nil, "bogus-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a bogus token, got %d", rec.Code)
	}
}

func TestPersonnelFlowViaHandlers(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, "root", rootPassword)

	rec := doJSON(t, router, http.MethodPost, "/personnel", map[string]any{
		"name":     "Dana Field",
		"email":    "dana@example.com",
		"category": "EMPLOYEE",
	}, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating personnel, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		OpaqueID string `json:"opaque_id"`
		Status   string `json:"status"`
		Version  int64  `json:"version"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if !identity.Validate(created.OpaqueID) {
		t.Fatalf("created record carries an invalid opaque ID %q", created.OpaqueID)
	}
	if created.Status != "ACTIVE" || created.Version != 1 {
		t.Fatalf("unexpected initial record state: %+v", created)
	}

	rec = doJSON(t, router, http.MethodGet, "/personnel/"+created.OpaqueID, nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching by opaque ID, got %d", rec.Code)
	}

	// Flip the last character so the checksum breaks.
	mangled := created.OpaqueID[:len(created.OpaqueID)-1] + flip(created.OpaqueID[len(created.OpaqueID)-1])
	rec = doJSON(t, router, http.MethodGet, "/personnel/"+mangled+"/validate", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from validate, got %d", rec.Code)
	}
	var verdict struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&verdict); err != nil {
		t.Fatalf("decoding validate response: %v", err)
	}
	if verdict.Valid {
		t.Fatalf("mangled ID %q should not validate", mangled)
	}

	rec = doJSON(t, router, http.MethodDelete, "/personnel/"+created.OpaqueID, nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 soft-deleting, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodDelete, "/personnel/"+created.OpaqueID, nil, token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 soft-deleting twice, got %d", rec.Code)
	}
}

func TestTierEnforcementViaHandlers(t *testing.T) {
	router := newTestRouter(t)
	viewerToken := login(t, router, "viewer", viewerPassword)
	rootToken := login(t, router, "root", rootPassword)

	rec := doJSON(t, router, http.MethodPost, "/personnel", map[string]any{
		"name":     "Blocked",
		"email":    "blocked@example.com",
		"category": "EMPLOYEE",
	}, viewerToken)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer create, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/audit", nil, viewerToken)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer audit access, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/audit", nil, rootToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for superadmin audit access, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}
}

// flip substitutes a different alphabet character.
func flip(c byte) string {
	if c == '0' {
		return "1"
	}
	return "0"
}
