package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchesTotal == nil || retriesTotal == nil || listingsStoredTotal == nil ||
		listingsSkippedTotal == nil || serversTotal == nil || tasksInFlight == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCounters(t *testing.T) {
	Init()
	before := testutil.ToFloat64(listingsStoredTotal.WithLabelValues("house"))
	ObserveListingStored("house")
	ObserveListingStored("house")
	if got := testutil.ToFloat64(listingsStoredTotal.WithLabelValues("house")) - before; got != 2 {
		t.Errorf("expected 2 stored houses, got %f", got)
	}

	retriesBefore := testutil.ToFloat64(retriesTotal.WithLabelValues("exhausted"))
	ObserveExhausted()
	if got := testutil.ToFloat64(retriesTotal.WithLabelValues("exhausted")) - retriesBefore; got != 1 {
		t.Errorf("expected 1 exhaustion, got %f", got)
	}

	fetchBefore := testutil.ToFloat64(fetchesTotal.WithLabelValues("houses", FetchBlocked))
	ObserveFetch("houses", FetchBlocked, 150*time.Millisecond)
	if got := testutil.ToFloat64(fetchesTotal.WithLabelValues("houses", FetchBlocked)) - fetchBefore; got != 1 {
		t.Errorf("expected 1 blocked fetch, got %f", got)
	}
}

func TestTasksInFlightGauge(t *testing.T) {
	Init()
	base := testutil.ToFloat64(tasksInFlight)
	IncTasksInFlight()
	IncTasksInFlight()
	DecTasksInFlight()
	if got := testutil.ToFloat64(tasksInFlight) - base; got != 1 {
		t.Errorf("expected gauge delta 1, got %f", got)
	}
	DecTasksInFlight()
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveServer("ok")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "housecrawler_servers_total") {
		t.Fatal("expected servers counter in exposition")
	}
}
