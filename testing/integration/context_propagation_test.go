package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/scopez"
)

// TestScopeFollowsContextAcrossGoroutines verifies that events logged from
// goroutines started with the scope's context land in that scope.
func TestScopeFollowsContextAcrossGoroutines(t *testing.T) {
	reg := scopez.NewRegistry()
	collector := NewMockCollector(t, 100)
	defer collector.Close()
	reg.AddFinalizeListener(collector.Collect)

	ctx, scope := reg.Begin(context.Background(), nil)
	scopez.Log(ctx, "request received")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scopez.Logf(ctx, "fetch shard %d", i)
		}()
	}
	wg.Wait()
	scopez.Log(ctx, "response sent")
	scope.Close()

	records := collector.GetAll()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	msgs := Messages(records[0])
	if len(msgs) != 7 {
		t.Fatalf("Expected 7 events, got %d: %v", len(msgs), msgs)
	}
	if msgs[0] != "request received" || msgs[6] != "response sent" {
		t.Errorf("Expected goroutine events between start and end, got %v", msgs)
	}

	workers := make(map[uint64]bool)
	for _, e := range records[0].Events() {
		workers[e.Worker] = true
	}
	if len(workers) < 2 {
		t.Errorf("Expected events from several goroutines, got %d distinct workers", len(workers))
	}
}

// TestWorkerPoolHandOff verifies that a job queue carrying only scope ids
// still attributes the workers' events to the submitting scope.
func TestWorkerPoolHandOff(t *testing.T) {
	reg := scopez.NewRegistry()
	collector := NewMockCollector(t, 100)
	defer collector.Close()
	reg.AddFinalizeListener(collector.Collect)

	type job struct {
		scopeID string
		n       int
		done    chan struct{}
	}
	jobs := make(chan job)

	var workers sync.WaitGroup
	for w := 0; w < 3; w++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for j := range jobs {
				ctx := reg.Attach(context.Background(), j.scopeID)
				scopez.Logf(ctx, "job %d processed", j.n)
				close(j.done)
			}
		}()
	}

	const requests = 20
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, scope := reg.Begin(context.Background(), nil)
			defer scope.Close()

			scopez.Logf(ctx, "job %d submitted", i)
			j := job{scopeID: scopez.Detach(ctx), n: i, done: make(chan struct{})}
			jobs <- j
			<-j.done
			scopez.Logf(ctx, "job %d acknowledged", i)
		}()
	}
	wg.Wait()
	close(jobs)
	workers.Wait()

	records := collector.GetAll()
	if len(records) != requests {
		t.Fatalf("Expected %d records, got %d", requests, len(records))
	}
	for i := 0; i < requests; i++ {
		r := FindByMessage(records, fmt.Sprintf("job %d submitted", i))
		if r == nil {
			t.Fatalf("No record for job %d", i)
		}
		want := []string{
			fmt.Sprintf("job %d submitted", i),
			fmt.Sprintf("job %d processed", i),
			fmt.Sprintf("job %d acknowledged", i),
		}
		if fmt.Sprint(Messages(r)) != fmt.Sprint(want) {
			t.Errorf("Job %d: expected %v, got %v", i, want, Messages(r))
		}
	}
	if reg.OpenScopes() != 0 {
		t.Errorf("Expected no open scopes, got %d", reg.OpenScopes())
	}
}

// TestCancelledContextKeepsScope verifies that cancellation does not detach
// the ambient record.
func TestCancelledContextKeepsScope(t *testing.T) {
	reg := scopez.NewRegistry()
	var got *scopez.Record

	ctx, scope := reg.Begin(context.Background(), func(r *scopez.Record) { got = r })
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
	defer cancel()

	<-timeoutCtx.Done()
	scopez.LogError(timeoutCtx, timeoutCtx.Err(), "deadline reached")
	scope.Close()

	if got == nil || !got.HasFailure() {
		t.Fatal("Expected the timeout to be recorded as a failure")
	}
	if Messages(got)[0] != "deadline reached" {
		t.Errorf("Unexpected messages %v", Messages(got))
	}
}

// TestDetachedIDOutlivesScope verifies that a late worker holding the id of
// a closed scope logs nothing.
func TestDetachedIDOutlivesScope(t *testing.T) {
	reg := scopez.NewRegistry()
	var got *scopez.Record

	ctx, scope := reg.Begin(context.Background(), func(r *scopez.Record) { got = r })
	id := scopez.Detach(ctx)
	scopez.Log(ctx, "before close")
	scope.Close()

	late := reg.Attach(context.Background(), id)
	scopez.Log(late, "too late")

	if fmt.Sprint(Messages(got)) != "[before close]" {
		t.Errorf("Expected only the event before close, got %v", Messages(got))
	}
}
