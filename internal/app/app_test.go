package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"saas-control-plane/backend/internal/authz"
	"saas-control-plane/backend/internal/config"
	"saas-control-plane/backend/internal/security"
)

func testConfig() *config.Config {
	return &config.Config{
		AuthzCache:     "memory",
		EventWorkers:   1,
		EventQueueSize: 16,
	}
}

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock, *security.TokenProvider) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("token provider: %v", err)
	}
	a, err := New(testConfig(), Infra{DB: conn, Tokens: tokens})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, mock, tokens
}

func TestNew_RequiresDatabaseAndTokens(t *testing.T) {
	if _, err := New(testConfig(), Infra{}); err == nil {
		t.Error("New without database should fail")
	}
	conn, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer conn.Close()
	if _, err := New(testConfig(), Infra{DB: conn}); err == nil {
		t.Error("New without token validator should fail")
	}
}

func TestNewCache(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
		check   func(authz.Cache) bool
	}{
		{"memory", false, func(c authz.Cache) bool { _, ok := c.(*authz.MemoryCache); return ok }},
		{"none", false, func(c authz.Cache) bool { _, ok := c.(authz.NopCache); return ok }},
		{"redis", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			c, err := newCache(&config.Config{AuthzCache: tt.backend}, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(c) {
				t.Errorf("cache = %T", c)
			}
		})
	}
}

func TestApp_Readiness(t *testing.T) {
	a, _, _ := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checks["database"] != "ok" || body.Checks["policy_engine"] != "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
	if got := a.Health.Names(); len(got) != 2 {
		t.Errorf("checks without redis = %v", got)
	}
}

func TestApp_AuthenticatedRouteReachesPostgres(t *testing.T) {
	a, mock, tokens := newTestApp(t)
	mock.ExpectQuery(`select count\(\*\) from notifications`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	token, _, err := tokens.IssueAccess("user-1", "ada@example.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/notifications/unread-count", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["unread"] != 3 {
		t.Errorf("unread = %d, want 3", body["unread"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApp_UnauthenticatedRequestRejected(t *testing.T) {
	a, _, _ := newTestApp(t)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/notifications/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
