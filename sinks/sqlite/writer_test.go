package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zoobzio/scopez"
)

func openTestWriter(t *testing.T, batch int) *Writer {
	t.Helper()
	w, err := Open(Config{
		Path:      filepath.Join(t.TempDir(), "records.sqlite3"),
		BatchSize: batch,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWriterStoresRecords(t *testing.T) {
	w := openTestWriter(t, 10)
	reg := scopez.NewRegistry()

	ctx, outer := reg.Begin(context.Background(), w.Finalize)
	scopez.Log(ctx, "outer start")
	innerCtx, inner := reg.Begin(ctx, w.Finalize)
	scopez.LogError(innerCtx, errors.New("disk full"), "write failed")
	inner.Close()
	outer.Close()

	require.NoError(t, w.Flush())

	records, err := w.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, inner.ID(), records[0].ID)
	require.Equal(t, outer.ID(), records[0].ParentID)
	require.Equal(t, 1, records[0].Depth)
	require.True(t, records[0].HasFailure)
	require.Equal(t, 1, records[0].EventCount)

	require.Equal(t, outer.ID(), records[1].ID)
	require.Empty(t, records[1].ParentID)
	require.True(t, records[1].HasFailure)
	require.Equal(t, 2, records[1].EventCount)
	require.Equal(t, outer.Record().Render(), records[1].Rendered)

	events, err := w.Events(context.Background(), outer.ID())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "outer start", events[0].Message)
	require.Empty(t, events[0].Failure)
	require.Equal(t, "write failed", events[1].Message)
	require.True(t, strings.HasPrefix(events[1].Failure, "disk full"))
}

func TestWriterBatchesUntilFull(t *testing.T) {
	w := openTestWriter(t, 3)
	reg := scopez.NewRegistry()
	reg.AddFinalizeListener(w.Finalize)

	for i := 0; i < 2; i++ {
		_, scope := reg.Begin(context.Background(), nil)
		scope.Close()
	}
	records, err := w.Records(context.Background())
	require.NoError(t, err)
	require.Empty(t, records, "expected records to stay buffered below the batch size")

	_, scope := reg.Begin(context.Background(), nil)
	scope.Close()

	records, err = w.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestWriterCloseFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "close.sqlite3")
	w, err := Open(Config{Path: path, BatchSize: 100})
	require.NoError(t, err)

	reg := scopez.NewRegistry()
	ctx, scope := reg.Begin(context.Background(), w.Finalize)
	scopez.Log(ctx, "pending")
	scope.Close()

	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Close(), ErrClosed)
	require.ErrorIs(t, w.Flush(), ErrClosed)

	// Finalize after close is ignored.
	w.Finalize(scope.Record())

	reopened, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	var count int
	require.NoError(t, reopened.db.QueryRow(
		"SELECT COUNT(*) FROM records WHERE run_id = ?", w.RunID()).Scan(&count))
	require.Equal(t, 1, count)
	require.NotEqual(t, w.RunID(), reopened.RunID())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 100, cfg.BatchSize)
	require.NotEmpty(t, cfg.Path)
	require.Positive(t, cfg.BusyTimeout)
}
