package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"html2pdf/internal/convert"
	"html2pdf/pkg/pool"
)

type stubUnderlying struct{}

func (stubUnderlying) OpenSurface(ctx context.Context) (pool.Surface, error) {
	return stubSurface{}, nil
}
func (stubUnderlying) Close(ctx context.Context) error { return nil }

type stubSurface struct{}

func (stubSurface) Navigate(ctx context.Context, urlOrDataURI string) error { return nil }
func (stubSurface) Close(ctx context.Context) error                        { return nil }

type stubFactory struct{}

func (stubFactory) Create(ctx context.Context) (pool.Underlying, error) {
	return stubUnderlying{}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := pool.NewConfigBuilder().MaxSize(2).WarmupCount(0).Build()
	if err != nil {
		t.Fatalf("building pool config: %v", err)
	}
	p, err := pool.New(cfg, stubFactory{}, nil, nil)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	conv := convert.New(p, nil, nil)
	return New(Config{MaxRequestBodyMB: 1}, p, conv, nil, nil)
}

func TestHandleConvertRejectsGET(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/convert", nil)
	w := httptest.NewRecorder()
	s.handleConvert(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandleConvertRejectsBothURLAndHTML(t *testing.T) {
	s := newTestServer(t)
	body := strings.NewReader(`{"url":"https://example.com","html":"<p></p>"}`)
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	w := httptest.NewRecorder()
	s.handleConvert(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when both url and html set, got %d", w.Code)
	}
}

func TestHandleConvertRejectsNeitherURLNorHTML(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	s.handleConvert(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when neither url nor html set, got %d", w.Code)
	}
}

func TestHandleConvertRejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	s.handleConvert(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", w.Code)
	}
}

func TestHandleConvertSurfacesPoolUnavailableAs503(t *testing.T) {
	s := newTestServer(t)
	s.pool.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(`{"url":"https://example.com"}`))
	w := httptest.NewRecorder()
	s.handleConvert(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 once the pool has shut down, got %d", w.Code)
	}
}

func TestHandleHealthzReportsPoolStats(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.handleHealthz(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("expected status ok in body, got %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"pool":{`) {
		t.Fatalf("expected pool stats in body, got %s", w.Body.String())
	}
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	s := newTestServer(t)
	s.limiter = rate.NewLimiter(0, 0)

	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(`{"url":"https://example.com"}`))
	w := httptest.NewRecorder()
	s.withRateLimit(s.handleConvert)(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 from an exhausted limiter, got %d", w.Code)
	}
}
