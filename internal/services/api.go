// HTTP client for the remote scorebook REST API
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/scorebook/internal/shared"
)

const defaultBaseURL string = "http://127.0.0.1:5000/api"

// APIService performs raw HTTP requests against the REST API and classifies failures as [shared.APIError].
type APIService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewAPIService creates an API client rooted at baseURL (including the "/api" prefix).
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// WithRateLimit paces outgoing requests; a non-positive limit disables pacing.
func (a *APIService) WithRateLimit(perSecond float64, burst int) *APIService {
	if perSecond <= 0 {
		a.limiter = nil
		return a
	}
	a.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	return a
}

// WithLogger enables debug logging of requests.
func (a *APIService) WithLogger(l *log.Logger) *APIService {
	a.logger = l
	return a
}

// BaseURL returns the root every path is joined to.
func (a *APIService) BaseURL() string { return a.baseURL }

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.send(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.send(ctx, http.MethodPost, path, data)
}

// Delete performs a DELETE request and returns the raw response.
func (a *APIService) Delete(ctx context.Context, path string) (*APIResponse, error) {
	return a.send(ctx, http.MethodDelete, path, nil)
}

// Do sends body as JSON, decodes a 2xx response into result and maps every failure to a [shared.APIError].
//
// Cancellation is returned unwrapped so callers can tell it apart from a network failure; an expired deadline is a network failure.
func (a *APIService) Do(ctx context.Context, method, path string, body, result any) error {
	var data []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to encode request: %v", shared.ErrInvalidInput, err)
		}
		data = encoded
	}

	resp, err := a.send(ctx, method, path, data)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return shared.NewAPIError(shared.KindNetwork, 0, "", err)
	}

	if !resp.OK() {
		return shared.NewAPIError(shared.KindForStatus(resp.StatusCode), resp.StatusCode, errorMessage(resp), nil)
	}

	if result != nil && len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return shared.NewAPIError(shared.KindValidation, resp.StatusCode, "malformed response body", err)
		}
	}
	return nil
}

func (a *APIService) send(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
	}

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if a.logger != nil {
		a.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// errorMessage extracts "message" or "error" from a JSON error body.
func errorMessage(resp *APIResponse) string {
	if obj, ok := resp.JSONData.(map[string]any); ok {
		for _, key := range []string{"message", "error", "detail"} {
			if s, ok := obj[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := strings.TrimSpace(string(resp.Body)); text != "" && len(text) <= 200 && !resp.IsJSON {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// IsCancelled reports whether err came from a cancelled context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
