package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	return s
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{coupons.ErrNotFound, http.StatusNotFound},
		{coupons.ErrUnauthenticated, http.StatusUnauthorized},
		{coupons.ErrForbidden, http.StatusForbidden},
		{coupons.ErrInvalid, http.StatusBadRequest},
		{coupons.ErrTransactionConflict, http.StatusServiceUnavailable},
		{coupons.ErrInactive, http.StatusConflict},
		{coupons.ErrLimitReached, http.StatusConflict},
		{coupons.ErrNotYetStarted, http.StatusConflict},
		{coupons.ErrExpired, http.StatusConflict},
		{coupons.ErrAlreadyUsed, http.StatusConflict},
		{fmt.Errorf("redeem: %w", &coupons.Error{Kind: coupons.KindAlreadyUsed}), http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.status {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.status)
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	s := newTestServer(t, Options{})
	s.Group("/t").GET("/limit", func(c *gin.Context) {
		RespondError(c, &coupons.Error{Kind: coupons.KindLimitReached, MaxUses: 7})
	})
	s.Group("/t").GET("/internal", func(c *gin.Context) {
		RespondError(c, errors.New("mongo: connection reset"))
	})

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t/limit", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if w.Code != http.StatusConflict || body["error"] != "LimitReached" || body["maxUses"] != float64(7) {
		t.Errorf("unexpected response %d %v", w.Code, body)
	}
	if body["message"] != "Este cupón alcanzó su límite de 7 usos" {
		t.Errorf("message = %v", body["message"])
	}

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t/internal", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "connection reset") {
		t.Error("internal error details must not leak")
	}
}

func TestAllowedHosts(t *testing.T) {
	s := newTestServer(t, Options{AllowedHosts: `^(.+\.)?directorio\.test$`})
	SetupAPIRoutes(s)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Host = "api.directorio.test"
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("allowed host: status %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Host = "evil.example"
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign host: status %d, want 403", w.Code)
	}
}

func TestInvalidAllowedHosts(t *testing.T) {
	if _, err := NewServer(Options{AllowedHosts: "("}); err == nil {
		t.Error("invalid pattern should be rejected")
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: RateLimitConfig{Window: time.Minute, MaxRequests: 2}})
	SetupAPIRoutes(s)

	var last int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request: status %d, want 429", last)
	}
}

func TestErrorHandlers(t *testing.T) {
	s := newTestServer(t, Options{})
	SetupAPIRoutes(s)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route: status %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method: status %d, want 405", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})
	SetupAPIRoutes(s)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status endpoint: %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if _, ok := body["database"]; !ok {
		t.Errorf("missing database section: %v", body)
	}
}
