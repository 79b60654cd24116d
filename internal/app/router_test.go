package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/ledgerlens/ledgerlens/internal/testing/guard"
)

func TestRouterHealthEndpoints(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: slog.Default(),
		Config: &Config{AppEnv: "development"},
	})

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}
}

func TestRouterSecureHeaders(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: slog.Default(),
		Config: &Config{AppEnv: "development"},
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestConfigTestModeFlag(t *testing.T) {
	t.Setenv("LEDGERLENS_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv("LEDGERLENS_TEST_MODE", "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
