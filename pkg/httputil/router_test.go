package httputil

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRouterHandle(t *testing.T) {
	r := NewRouter()
	r.Handle("GET /test", http.HandlerFunc(ok))
	r.Handle("/any/", http.HandlerFunc(ok))

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/test", http.StatusOK},
		{http.MethodPost, "/test", http.StatusMethodNotAllowed},
		{http.MethodGet, "/any/x", http.StatusOK},
		{http.MethodDelete, "/any/x/y", http.StatusOK},
		{http.MethodGet, "/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, w.Code, "%s %s", tt.method, tt.path)
	}
}

func TestRouterMiddleware(t *testing.T) {
	r := NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Test", "true")
			next.ServeHTTP(w, req)
		})
	})
	r.Handle("GET /test", http.HandlerFunc(ok))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, "true", w.Header().Get("X-Test"))
}

func TestRouterGroup(t *testing.T) {
	r := NewRouter()
	api := r.Group("/api")
	api.Handle("GET /v1/test", http.HandlerFunc(ok))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func TestRouterListenAndServe(t *testing.T) {
	r := NewRouter()
	r.Handle("GET /test", http.HandlerFunc(ok))
	addr := freeAddr(t)

	done := make(chan error, 1)
	go func() { done <- r.ListenAndServe(addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/test", addr))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

func TestRouterTLS(t *testing.T) {
	dir := t.TempDir()
	r := NewRouter(WithTLS(filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key")))
	r.Handle("GET /test", http.HandlerFunc(ok))
	addr := freeAddr(t)

	done := make(chan error, 1)
	go func() { done <- r.ListenAndServe(addr) }()

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
	require.Eventually(t, func() bool {
		resp, err := client.Get(fmt.Sprintf("https://%s/test", addr))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

func TestRouterTLSError(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "tls.crt")
	require.NoError(t, os.WriteFile(cert, []byte("not a certificate"), 0o600))

	r := NewRouter(WithTLS(cert, filepath.Join(dir, "tls.key")))
	assert.Error(t, r.ListenAndServe("127.0.0.1:0"))
}

func TestLoadOrGenerateCert(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "nested", "tls.crt")
	keyPath := filepath.Join(dir, "nested", "tls.key")

	generated, err := LoadOrGenerateCert(certPath, keyPath)
	require.NoError(t, err)
	require.Len(t, generated.Certificate, 1)
	assert.NotNil(t, generated.PrivateKey)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadOrGenerateCert(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, generated.Certificate[0], loaded.Certificate[0])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusBadRequest, "bad input")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, ErrorResponse{Code: http.StatusBadRequest, Message: "bad input"}, body)
}
