package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)
}

func TestObserveNetworkRequestCountsStatus(t *testing.T) {
	ObserveNetworkRequest("postgres", "test_op", "chapters", time.Now(), nil)
	ObserveNetworkRequest("postgres", "test_op", "chapters", time.Now(), errors.New("boom"))
	ObserveNetworkRequest("", "", "", time.Now(), nil)

	if got := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("postgres", "test_op", "chapters", "success")); got != 1 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("postgres", "test_op", "chapters", "error")); got != 1 {
		t.Fatalf("error count = %v", got)
	}
	if got := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("unknown", "unknown", "unknown", "success")); got < 1 {
		t.Fatalf("unknown labels not recorded")
	}
}

func TestObserveHTTPRequestUnmatchedRoute(t *testing.T) {
	ObserveHTTPRequest("GET", "", 404, time.Millisecond)
	if got := testutil.ToFloat64(HTTPRequestTotal.WithLabelValues("GET", "unmatched", "404")); got < 1 {
		t.Fatalf("unmatched route not recorded")
	}
}

func TestCacheLookupLabels(t *testing.T) {
	ObserveCacheLookup("memory-test", true)
	ObserveCacheLookup("memory-test", false)
	ObserveCacheLookup("memory-test", false)
	if got := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("memory-test", "miss")); got != 2 {
		t.Fatalf("miss count = %v", got)
	}
}
