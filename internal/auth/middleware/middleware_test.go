package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bits-mayank/quizmasters/internal/rbac"
)

func TestIssueAndParse(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)

	tok, err := svc.IssueJWT("u1", "student")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := svc.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Sub != "u1" || c.Role != "student" {
		t.Fatalf("claims = %+v", c)
	}

	other := NewAuthService("different-secret", time.Hour)
	if _, err := other.Parse(tok); err == nil {
		t.Fatal("token verified under a different secret")
	}
}

func TestJWTMiddleware(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)
	tok, err := svc.IssueJWT("u1", "staff")
	if err != nil {
		t.Fatal(err)
	}

	var gotSub, gotRole string
	h := JWTMiddleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotSub != "u1" || gotRole != "staff" {
		t.Fatalf("context: sub=%q role=%q", gotSub, gotRole)
	}

	// No bearer.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/profile", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing bearer status = %d", rec.Code)
	}

	// Garbage token.
	req = httptest.NewRequest("GET", "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}
}
