package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/pkg/auth"
	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
)

var authCfg = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}
	return token
}

func serveWithHeader(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc ", "abc", true},
		{"abc", "abc", true},
		{"Bearer ", "", false},
		{"bearer", "", false},
		{"bearerabc", "bearerabc", true},
		{"", "", false},
	}
	for _, tc := range cases {
		token, ok := bearerToken(tc.header)
		if ok != tc.ok || token != tc.token {
			t.Fatalf("%q: expected (%q, %v), got (%q, %v)", tc.header, tc.token, tc.ok, token, ok)
		}
	}
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	handler := Auth(authCfg, nil)(okHandler())

	if got := serveWithHeader(handler, "").Code; got != http.StatusUnauthorized {
		t.Fatalf("expected %d, got %d", http.StatusUnauthorized, got)
	}
	if got := serveWithHeader(handler, "Bearer invalid").Code; got != http.StatusUnauthorized {
		t.Fatalf("expected %d, got %d", http.StatusUnauthorized, got)
	}

	expired, err := auth.MintAccessToken(authCfg, time.Now().Add(-2*time.Hour), auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleMember})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}
	if got := serveWithHeader(handler, "Bearer "+expired).Code; got != http.StatusUnauthorized {
		t.Fatalf("expected %d, got %d", http.StatusUnauthorized, got)
	}
}

func TestAuthPutsSubjectOnContext(t *testing.T) {
	userID := uuid.New()
	var gotUser, gotRole string
	handler := Auth(authCfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	resp := serveWithHeader(handler, "Bearer "+mintTestToken(t, authCfg, userID, enums.UserRoleMember))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, resp.Code)
	}
	if gotUser != userID.String() {
		t.Fatalf("expected user %s, got %q", userID, gotUser)
	}
	if gotRole != enums.UserRoleMember.String() {
		t.Fatalf("expected member role, got %q", gotRole)
	}
}

func TestRequireRole(t *testing.T) {
	adminOnly := Auth(authCfg, nil)(RequireRole(nil, enums.UserRoleAdmin)(okHandler()))
	anyone := Auth(authCfg, nil)(RequireRole(nil, enums.UserRoleAdmin, enums.UserRoleMember)(okHandler()))

	member := "Bearer " + mintTestToken(t, authCfg, uuid.New(), enums.UserRoleMember)
	admin := "Bearer " + mintTestToken(t, authCfg, uuid.New(), enums.UserRoleAdmin)

	if got := serveWithHeader(adminOnly, member).Code; got != http.StatusForbidden {
		t.Fatalf("expected %d, got %d", http.StatusForbidden, got)
	}
	if got := serveWithHeader(adminOnly, admin).Code; got != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, got)
	}
	if got := serveWithHeader(anyone, member).Code; got != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, got)
	}
}
