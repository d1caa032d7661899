package reliability

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/zoobzio/scopez"
)

func TestMemoryPressure(t *testing.T) {
	config := getConfig()

	switch config.Level {
	case "basic":
		t.Run("closed_records_released", func(t *testing.T) { testClosedRecordsReleased(t, config) })
	case "stress":
		t.Run("closed_records_released", func(t *testing.T) { testClosedRecordsReleased(t, config) })
		t.Run("large_records", testLargeRecords)
	default:
		t.Skip("SCOPEZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
}

// testClosedRecordsReleased verifies that the registry's side cache does not
// keep finalized records alive.
func testClosedRecordsReleased(t *testing.T, config Config) {
	reg := scopez.NewRegistry()

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	for i := 0; i < 20000; i++ {
		ctx, scope := reg.Begin(context.Background(), nil)
		for j := 0; j < 10; j++ {
			scopez.Logf(ctx, "event %d of record %d with some padding to make it heavier", j, i)
		}
		scope.Close()
	}

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)

	if reg.OpenScopes() != 0 {
		t.Errorf("Expected empty side cache, got %d entries", reg.OpenScopes())
	}

	growthMB := (int64(after.HeapAlloc) - int64(before.HeapAlloc)) / (1024 * 1024)
	if growthMB > int64(config.MaxMemoryMB) {
		t.Errorf("Heap grew by %dMB, limit %dMB", growthMB, config.MaxMemoryMB)
	}
}

// testLargeRecords appends many events to one deep hierarchy.
func testLargeRecords(t *testing.T) {
	reg := scopez.NewRegistry()

	ctx := context.Background()
	scopes := make([]*scopez.Scope, 0, 50)
	for depth := 0; depth < 50; depth++ {
		var scope *scopez.Scope
		ctx, scope = reg.Begin(ctx, nil)
		scopes = append(scopes, scope)
	}

	for i := 0; i < 10000; i++ {
		scopez.Log(ctx, fmt.Sprintf("event %d", i))
	}

	for i := len(scopes) - 1; i >= 0; i-- {
		scopes[i].Close()
	}

	if n := scopes[0].Record().Len(); n != 10000 {
		t.Errorf("Expected the root to hold 10000 events, got %d", n)
	}
	if d := scopes[49].Record().Depth(); d != 49 {
		t.Errorf("Expected depth 49, got %d", d)
	}
}
