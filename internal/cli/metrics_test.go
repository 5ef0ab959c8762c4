package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/colthorp/pumpcache-go/internal/cache"
	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/rs/zerolog"
)

func TestMetricsHandler(t *testing.T) {
	registry := cache.NewRegistry()
	c, err := cache.NewTTL[string, int]("carb_ratio_at_time", 8, time.Hour, cache.WithRegistry(registry))
	if err != nil {
		t.Fatalf("NewTTL failed: %v", err)
	}
	c.Add("a", 1)
	c.Get("a")
	c.Get("b")

	handler := metricsHandler(core.MetricsConfig{Path: "/metrics", Namespace: "pumpcache"}, registry)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`pumpcache_cache_hits_total{cache="carb_ratio_at_time",policy="ttl"} 1`,
		`pumpcache_cache_misses_total{cache="carb_ratio_at_time",policy="ttl"} 1`,
		`pumpcache_cache_entries{cache="carb_ratio_at_time",policy="ttl"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics to contain %q", want)
		}
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 off the metrics path, got %d", rec.Code)
	}
}

func TestStopMetricsServer(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go srv.Serve(ln)

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stopMetricsServer(ctx, srv, zerolog.New(&logs))

	close(release)
	<-done

	if !strings.Contains(logs.String(), "metrics server shutdown failed") {
		t.Errorf("Expected shutdown failure to be logged, got %q", logs.String())
	}
	if !strings.Contains(logs.String(), `"level":"warn"`) {
		t.Errorf("Expected warn level, got %q", logs.String())
	}
}

func TestStopMetricsServerIdle(t *testing.T) {
	srv := &http.Server{Handler: http.NotFoundHandler()}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go srv.Serve(ln)

	var logs bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopMetricsServer(ctx, srv, zerolog.New(&logs))

	if logs.Len() != 0 {
		t.Errorf("Expected clean shutdown to log nothing, got %q", logs.String())
	}
}
