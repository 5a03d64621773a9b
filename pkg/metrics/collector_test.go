package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewCollector registers against the default Prometheus registry, which
// panics on duplicate registration, so only one Collector may exist per
// test binary. These tests share a single instance.
var shared = NewCollector()

func TestSetAvailableAndActive(t *testing.T) {
	shared.SetAvailable(3)
	shared.SetActive(5)

	if got := testutil.ToFloat64(shared.PoolAvailable); got != 3 {
		t.Fatalf("expected pool_available 3, got %v", got)
	}
	if got := testutil.ToFloat64(shared.PoolActive); got != 5 {
		t.Fatalf("expected pool_active 5, got %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	shared.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200 from metrics handler, got %d", w.Code)
	}
}

func TestObserveConversionIncrementsFailureOnError(t *testing.T) {
	before := testutil.ToFloat64(shared.ConversionsFailed.WithLabelValues("url"))

	shared.ObserveConversion("url", 0, errBoom)
	after := testutil.ToFloat64(shared.ConversionsFailed.WithLabelValues("url"))
	if after != before+1 {
		t.Fatalf("expected ConversionsFailed to increment on error, before=%v after=%v", before, after)
	}

	shared.ObserveConversion("url", 0, nil)
	stillAfter := testutil.ToFloat64(shared.ConversionsFailed.WithLabelValues("url"))
	if stillAfter != after {
		t.Fatalf("expected ConversionsFailed to stay flat on success, got %v", stillAfter)
	}
}

type stubErr struct{}

func (stubErr) Error() string { return "boom" }

var errBoom error = stubErr{}
