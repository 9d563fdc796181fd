package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
)

// NewProxy forwards requests to upstream without rewriting the path.
//
// The Host header becomes the upstream host, X-Forwarded-* headers describe the original request,
// and upstream CORS headers are dropped so the client sees only the ones [CORS] sets.
func NewProxy(upstream *url.URL, logger *log.Logger) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			if id := pr.In.Header.Get(RequestIDHeader); id != "" {
				pr.Out.Header.Set(RequestIDHeader, id)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			stripCORS(resp.Header)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("upstream request failed", "path", r.URL.Path, "err", err,
				"request_id", RequestIDFrom(r.Context()))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"message":"upstream unavailable"}`))
		},
	}
}

func stripCORS(h http.Header) {
	for name := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), "Access-Control-") {
			h.Del(name)
		}
	}
}
