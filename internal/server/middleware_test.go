package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("valid incoming id is kept", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, id)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, id, seen)
	})

	t.Run("garbage incoming id is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEqual(t, "<script>", seen)
	})
}

func TestCORS(t *testing.T) {
	t.Run("echoes any origin by default", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
		req.Header.Set("Origin", "http://app.test")
		rec := httptest.NewRecorder()
		CORS(CORSOptions{})(noContent).ServeHTTP(rec, req)

		assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("wildcard without origin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		CORS(CORSOptions{})(noContent).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/songs", nil))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("disallowed origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
		req.Header.Set("Origin", "http://evil.test")
		rec := httptest.NewRecorder()
		CORS(CORSOptions{AllowedOrigins: []string{"http://app.test"}})(noContent).ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight answered locally", func(t *testing.T) {
		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

		req := httptest.NewRequest(http.MethodOptions, "/api/likes", nil)
		req.Header.Set("Origin", "http://app.test")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		CORS(CORSOptions{})(next).ServeHTTP(rec, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
		assert.Equal(t, "43200", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("non-api paths untouched", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
		req.Header.Set("Origin", "http://app.test")
		rec := httptest.NewRecorder()
		CORS(CORSOptions{})(noContent).ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	upstream, _ := url.Parse("https://api.example.com:8443/base")
	h := SecurityHeaders(upstream)(noContent)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	csp := rec.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "connect-src 'self' https://api.example.com:8443")
	assert.Contains(t, csp, "frame-ancestors 'none'")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/songs", nil))
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, false)(noContent)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/songs", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/songs", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "Too many requests")

	other := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	other.RemoteAddr = "198.51.100.7:4000"
	third := httptest.NewRecorder()
	h.ServeHTTP(third, other)
	assert.Equal(t, http.StatusOK, third.Code, "limits are per client")
}

func TestRateLimitForwardedFor(t *testing.T) {
	request := func(xff string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		req.Header.Set("X-Forwarded-For", xff)
		return req
	}

	t.Run("ignored by default", func(t *testing.T) {
		h := RateLimit(1, false)(noContent)

		first := httptest.NewRecorder()
		h.ServeHTTP(first, request("10.0.0.1"))
		assert.Equal(t, http.StatusOK, first.Code)

		second := httptest.NewRecorder()
		h.ServeHTTP(second, request("10.0.0.2"))
		assert.Equal(t, http.StatusTooManyRequests, second.Code, "a forged header must not reset the limit")
	})

	t.Run("trusted behind a proxy", func(t *testing.T) {
		h := RateLimit(1, true)(noContent)

		first := httptest.NewRecorder()
		h.ServeHTTP(first, request("10.0.0.1"))
		assert.Equal(t, http.StatusOK, first.Code)

		second := httptest.NewRecorder()
		h.ServeHTTP(second, request("10.0.0.2"))
		assert.Equal(t, http.StatusOK, second.Code)

		again := httptest.NewRecorder()
		h.ServeHTTP(again, request("10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, again.Code)
	})
}

func TestRecover(t *testing.T) {
	h := Recover(log.New(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoggingRecordsStatus(t *testing.T) {
	var buf writerFunc
	logger := log.New(&buf)
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Contains(t, string(buf), "status=404")
	assert.Contains(t, string(buf), "path=/nope")
}

type writerFunc []byte

func (w *writerFunc) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
