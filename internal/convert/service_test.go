package convert

import (
	"context"
	"errors"
	"testing"

	"html2pdf/pkg/pool"
	"html2pdf/pkg/poolerr"
)

// stubFactory and friends mirror pkg/pool's test doubles but produce
// instances that do NOT implement chromeContexter, since exercising real
// chromedp/CDP PDF printing needs an actual browser. These tests cover the
// acquire/release and error-surfacing plumbing around that boundary.
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

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg, err := pool.NewConfigBuilder().MaxSize(1).WarmupCount(0).Build()
	if err != nil {
		t.Fatalf("building config: %v", err)
	}
	p, err := pool.New(cfg, stubFactory{}, nil, nil)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	return New(p, nil, nil)
}

func TestConvertURLFailsWithoutChromeSupport(t *testing.T) {
	s := newTestService(t)
	_, err := s.ConvertURL(context.Background(), "https://example.com", DefaultOptions())
	if err == nil {
		t.Fatal("expected an error from a leased instance lacking chrome-level PDF support")
	}
}

func TestConvertHTMLFailsWithoutChromeSupport(t *testing.T) {
	s := newTestService(t)
	_, err := s.ConvertHTML(context.Background(), "<html></html>", DefaultOptions())
	if err == nil {
		t.Fatal("expected an error from a leased instance lacking chrome-level PDF support")
	}
}

func TestConvertReleasesLeaseOnFailure(t *testing.T) {
	s := newTestService(t)
	_, _ = s.ConvertURL(context.Background(), "https://example.com", DefaultOptions())

	stats := s.pool.Stats()
	if stats.Available != 1 {
		t.Fatalf("expected the lease to be released back to idle even on failure, got %v", stats)
	}
}

func TestConvertAcquireFailurePropagates(t *testing.T) {
	s := newTestService(t)
	s.pool.Shutdown(context.Background())

	_, err := s.ConvertURL(context.Background(), "https://example.com", DefaultOptions())
	if err == nil {
		t.Fatal("expected an error once the pool has shut down")
	}
	if !errors.Is(err, poolerr.ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown wrapped in the conversion error, got %v", err)
	}
}
