// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/desertthunder/scorebook/internal/models"
)

// SetCall records one call to [FakeRemote.Set].
type SetCall struct {
	SubjectID string
	Active    bool
}

// FakeRemote is an in-memory test double for services.StatusRemote.
//
// Set calls succeed and update the stored status unless an error was queued with FailNextSet.
// After Hold, every Set blocks until Release is called once for it.
type FakeRemote struct {
	mu       sync.Mutex
	kind     models.Kind
	statuses map[string]models.Status
	fetchErr map[string]error
	setErrs  []error
	gate     chan struct{}
	early    bool
	started  chan SetCall
	calls    []SetCall
	fetches  int
}

// NewFakeRemote creates a fake for kind.
func NewFakeRemote(kind models.Kind) *FakeRemote {
	return &FakeRemote{
		kind:     kind,
		statuses: make(map[string]models.Status),
		fetchErr: make(map[string]error),
		started:  make(chan SetCall, 64),
	}
}

func (f *FakeRemote) Kind() models.Kind { return f.kind }

// Seed stores the server state of subjectID.
func (f *FakeRemote) Seed(subjectID string, active bool, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[subjectID] = models.Status{Kind: f.kind, SubjectID: subjectID, Active: active, Count: count}
}

// FailFetch makes Fetch of subjectID return err; nil clears it.
func (f *FakeRemote) FailFetch(subjectID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fetchErr, subjectID)
		return
	}
	f.fetchErr[subjectID] = err
}

// FailNextSet queues err for the next Set call.
func (f *FakeRemote) FailNextSet(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErrs = append(f.setErrs, err)
}

// SucceedNextSet queues an explicit success, for ordering with FailNextSet.
func (f *FakeRemote) SucceedNextSet() { f.FailNextSet(nil) }

// Hold makes subsequent Set calls block until released.
func (f *FakeRemote) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// ApplyBeforeHold makes held Set calls apply their change before blocking, like a server that
// commits the write but answers too late.
func (f *FakeRemote) ApplyBeforeHold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.early = true
}

// Release lets one blocked Set call proceed.
func (f *FakeRemote) Release() {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
	}
}

// Started delivers each Set call as it begins.
func (f *FakeRemote) Started() <-chan SetCall { return f.started }

// Calls returns every Set call so far.
func (f *FakeRemote) Calls() []SetCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SetCall(nil), f.calls...)
}

// Fetches returns how many times Fetch was called.
func (f *FakeRemote) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// Server returns the stored server state of subjectID.
func (f *FakeRemote) Server(subjectID string) models.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[subjectID]; ok {
		return s
	}
	return models.DefaultStatus(f.kind, subjectID)
}

func (f *FakeRemote) Fetch(ctx context.Context, subjectID string) (models.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if err := f.fetchErr[subjectID]; err != nil {
		return models.Status{}, err
	}
	if s, ok := f.statuses[subjectID]; ok {
		return s, nil
	}
	return models.DefaultStatus(f.kind, subjectID), nil
}

func (f *FakeRemote) Set(ctx context.Context, subjectID string, active bool) error {
	f.mu.Lock()
	call := SetCall{SubjectID: subjectID, Active: active}
	f.calls = append(f.calls, call)
	gate, early := f.gate, f.early
	var err error
	if early {
		err = f.applyLocked(subjectID, active)
	}
	f.mu.Unlock()

	select {
	case f.started <- call:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if early {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applyLocked(subjectID, active)
}

func (f *FakeRemote) applyLocked(subjectID string, active bool) error {
	if len(f.setErrs) > 0 {
		err := f.setErrs[0]
		f.setErrs = f.setErrs[1:]
		if err != nil {
			return err
		}
	}

	s, ok := f.statuses[subjectID]
	if !ok {
		s = models.DefaultStatus(f.kind, subjectID)
	}
	if s.Active != active {
		s = s.Flipped()
	}
	f.statuses[subjectID] = s
	return nil
}

// MakeToken signs an HS256 JWT for sub that expires after ttl (no expiry when ttl is zero).
func MakeToken(t *testing.T, sub string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "iat": time.Now().Unix()}
	if ttl != 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

// Eventually polls cond until it holds or the timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("File should not exist: %s", path)
	}
}

func AssertContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("expected output to contain %q, got:\n%s", want, got)
	}
}

func AssertNotContains(t *testing.T, got, unwanted string) {
	t.Helper()
	if strings.Contains(got, unwanted) {
		t.Errorf("expected output not to contain %q, got:\n%s", unwanted, got)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
