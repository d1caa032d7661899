package slogsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zoobzio/scopez"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := make(map[string]interface{})
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestSinkSuccess(t *testing.T) {
	var buf bytes.Buffer
	sink := New(Options{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})
	reg := scopez.NewRegistry()

	ctx, scope := reg.Begin(context.Background(), sink.Finalize)
	scopez.Log(ctx, "App start")
	scope.Close()

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	require.Equal(t, "INFO", entries[0]["level"])
	require.Equal(t, MessageSuccess, entries[0]["msg"])
	require.Equal(t, scope.ID(), entries[0]["record_id"])
	require.Equal(t, "scopez", entries[0]["component"])
	require.EqualValues(t, 1, entries[0]["events"])
	require.Contains(t, entries[0]["trace"], "App start")
	require.NotContains(t, entries[0], "failure")
}

func TestSinkFailure(t *testing.T) {
	var buf bytes.Buffer
	sink := New(Options{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})
	reg := scopez.NewRegistry()

	ctx, scope := reg.Begin(context.Background(), sink.Finalize)
	scopez.LogError(ctx, errors.New("first"), "")
	scopez.LogError(ctx, errors.New("second"), "")
	scope.Close()

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	require.Equal(t, "ERROR", entries[0]["level"])
	require.Equal(t, MessageFailure, entries[0]["msg"])
	require.Contains(t, entries[0]["failure"], "second")
}

func TestSinkRootsOnly(t *testing.T) {
	var buf bytes.Buffer
	sink := New(Options{
		Logger:    slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
		RootsOnly: true,
		Level:     slog.LevelDebug,
	})
	reg := scopez.NewRegistry()
	reg.AddFinalizeListener(sink.Finalize)

	ctx, outer := reg.Begin(context.Background(), nil)
	_, inner := reg.Begin(ctx, nil)
	inner.Close()
	outer.Close()

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	require.Equal(t, "DEBUG", entries[0]["level"])
	require.Equal(t, outer.ID(), entries[0]["record_id"])
}
