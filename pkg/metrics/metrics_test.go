package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestPush_DisabledWithoutURL(t *testing.T) {
	if err := Push(context.Background(), "", "credly-ingest"); err != nil {
		t.Errorf("Push() with empty url = %v, want nil", err)
	}
}

func TestPush_SendsGatheredMetrics(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		body = string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "credly_test_pushed_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	old := Gatherer
	Gatherer = reg
	defer func() { Gatherer = old }()

	if err := Push(context.Background(), gateway.URL, "credly-ingest"); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || paths[0] != "PUT /metrics/job/credly-ingest" {
		t.Errorf("requests = %v, want [PUT /metrics/job/credly-ingest]", paths)
	}
	if !strings.Contains(body, "credly_test_pushed_total") {
		t.Error("pushed body does not contain the registered metric")
	}
}

func TestPush_GatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	old := Gatherer
	Gatherer = prometheus.NewRegistry()
	defer func() { Gatherer = old }()

	if err := Push(context.Background(), gateway.URL, "credly-ingest"); err == nil {
		t.Error("expected error when the gateway rejects the push")
	}
}
