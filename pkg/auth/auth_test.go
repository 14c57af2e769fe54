package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

type staticBlocklist map[string]bool

func (b staticBlocklist) IsBlocked(userID string) bool { return b[userID] }

func mustToken(t *testing.T, userID, businessID, role string, ttl time.Duration) string {
	t.Helper()
	tok, _, err := NewToken(Config{Secret: testSecret, ExpireDuration: ttl}, userID, businessID, role)
	if err != nil {
		t.Fatalf("NewToken() error: %v", err)
	}
	return tok
}

func TestTokenRoundTrip(t *testing.T) {
	tok := mustToken(t, "u1", "b1", RoleBusiness, time.Hour)

	claims, err := ParseToken(testSecret, tok)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.Subject != "u1" || claims.BusinessID != "b1" || claims.Role != RoleBusiness {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejects(t *testing.T) {
	expired := mustToken(t, "u1", "", RoleUser, -time.Minute)
	if _, err := ParseToken(testSecret, expired); err == nil {
		t.Error("expired token should be rejected")
	}

	valid := mustToken(t, "u1", "", RoleUser, time.Hour)
	if _, err := ParseToken([]byte("other-secret"), valid); err == nil {
		t.Error("token signed with another secret should be rejected")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := ParseToken(testSecret, unsigned); err == nil {
		t.Error("unsigned token should be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer   abc ", "abc"},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := bearerToken(tt.header); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestIdentityActor(t *testing.T) {
	owner := &Identity{UserID: "u1", BusinessID: "b1", Role: RoleBusiness}
	if !owner.Actor().CanManage("b1") || owner.Actor().CanManage("b2") {
		t.Error("business owner should manage only their business")
	}

	admin := &Identity{UserID: "a1", Role: RoleAdmin}
	if !admin.Actor().CanManage("b2") {
		t.Error("admin should manage every business")
	}
}

func newEngine(blocked Blocklist) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Middleware(testSecret))
	engine.GET("/public", func(c *gin.Context) {
		_, ok := FromContext(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})
	engine.GET("/private", RequireUser(blocked), func(c *gin.Context) {
		id, _ := FromContext(c)
		c.String(http.StatusOK, id.UserID)
	})
	engine.GET("/admin", RequireUser(blocked), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return engine
}

func TestRequireUser(t *testing.T) {
	engine := newEngine(staticBlocklist{"blocked": true})

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"anonymous public", "/public", "", http.StatusOK},
		{"anonymous private", "/private", "", http.StatusUnauthorized},
		{"garbage token", "/private", "not-a-jwt", http.StatusUnauthorized},
		{"expired token", "/private", mustToken(t, "u1", "", RoleUser, -time.Minute), http.StatusUnauthorized},
		{"valid user", "/private", mustToken(t, "u1", "", RoleUser, time.Hour), http.StatusOK},
		{"blocked user", "/private", mustToken(t, "blocked", "", RoleUser, time.Hour), http.StatusForbidden},
		{"user on admin route", "/admin", mustToken(t, "u1", "", RoleUser, time.Hour), http.StatusForbidden},
		{"admin on admin route", "/admin", mustToken(t, "a1", "", RoleAdmin, time.Hour), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestTokenFromQuery(t *testing.T) {
	engine := newEngine(nil)
	tok := mustToken(t, "u1", "", RoleUser, time.Hour)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private?token="+tok, nil))
	if w.Code != http.StatusOK || w.Body.String() != "u1" {
		t.Errorf("query token: status %d body %q", w.Code, w.Body.String())
	}
}
