package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zoobzio/scopez"
	"github.com/zoobzio/scopez/sinks/console"
	"github.com/zoobzio/scopez/sinks/prom"
	"github.com/zoobzio/scopez/sinks/slogsink"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestSinksAgreeOnOutcome sends the same records to every sink and checks
// they agree on which ones failed.
func TestSinksAgreeOnOutcome(t *testing.T) {
	reg := scopez.NewRegistry()

	var text, logs lockedBuffer
	consoleSink := console.New(console.Options{Writer: &text, RootsOnly: true})
	slogSink := slogsink.New(slogsink.Options{
		Logger:    slog.New(slog.NewJSONHandler(&logs, nil)),
		RootsOnly: true,
	})
	gatherer := prometheus.NewRegistry()
	metrics, err := prom.New("", gatherer, reg)
	if err != nil {
		t.Fatalf("prom.New: %v", err)
	}

	reg.AddFinalizeListener(consoleSink.Finalize)
	reg.AddFinalizeListener(slogSink.Finalize)
	reg.AddFinalizeListener(metrics.Finalize)

	gateway := NewMockService("gateway", 0)
	gateway.FailOn(3)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, scope := reg.Begin(context.Background(), nil)
			defer scope.Close()
			_ = gateway.Call(ctx, reg, "GET /orders")
		}()
	}
	wg.Wait()

	if got := strings.Count(text.String(), "==== trace "); got != 5 {
		t.Errorf("Expected 5 console traces, got %d", got)
	}
	if got := strings.Count(text.String(), "[FAILED]"); got != 1 {
		t.Errorf("Expected 1 failed console trace, got %d", got)
	}

	failedLogs := 0
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Invalid JSON log line %q: %v", line, err)
		}
		if entry["level"] == "ERROR" {
			failedLogs++
			if !strings.Contains(entry["failure"].(string), ErrServiceUnavailable.Error()) {
				t.Errorf("Expected failure detail in %v", entry)
			}
		}
	}
	if failedLogs != 1 {
		t.Errorf("Expected 1 error log entry, got %d", failedLogs)
	}

	if v := counterTotal(t, gatherer, "scopez_records_finalized_total"); v != 10 {
		t.Errorf("Expected 10 finalized records in metrics, got %v", v)
	}
	if n, err := testutil.GatherAndCount(gatherer, "scopez_records_finalized_total"); err != nil || n != 4 {
		t.Errorf("Expected 4 label sets, got %d (%v)", n, err)
	}
}

// counterTotal sums a counter family across every label set.
func counterTotal(t *testing.T, gatherer prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// TestPanickingSinkDoesNotBreakOthers verifies listener isolation.
func TestPanickingSinkDoesNotBreakOthers(t *testing.T) {
	var logs lockedBuffer
	reg := scopez.NewRegistry(scopez.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	reg.AddFinalizeListener(func(*scopez.Record) { panic(errors.New("sink exploded")) })
	collector := NewMockCollector(t, 10)
	defer collector.Close()
	reg.AddFinalizeListener(collector.Collect)

	ctx, scope := reg.Begin(context.Background(), nil)
	scopez.Log(ctx, "still delivered")
	scope.Close()

	if len(collector.GetAll()) != 1 {
		t.Error("Expected the collector to receive the record after a panicking sink")
	}
	if !strings.Contains(logs.String(), "sink exploded") {
		t.Errorf("Expected the panic to be logged, got %q", logs.String())
	}
}
