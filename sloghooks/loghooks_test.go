package sloghooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/zimage"
)

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestHooksRedactURIs(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{})

	h.TaskFailed("https://e/secret?token=abc", zimage.NetworkDenied, errors.New("denied"))
	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "zimage.task_failed", recs[0]["msg"])
	assert.Equal(t, "NETWORK_DENIED", recs[0]["kind"])
	assert.Len(t, recs[0]["uri"], 16)
	assert.NotContains(t, buf.String(), "token")
}

func TestHooksCustomRedactor(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{Redact: func(string) string { return "<uri>" }})

	h.TaskRouted("https://e/x", true)
	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "<uri>", recs[0]["uri"])
	assert.Equal(t, "cached", recs[0]["pool"])
}

func TestHooksSampling(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{CancelEvery: 3})

	for i := 0; i < 9; i++ {
		h.TaskCancelled("https://e/x", "https://e/x", "reused")
	}
	assert.Len(t, records(t, &buf), 3)
}

func TestHooksNilLogger(t *testing.T) {
	h := New(nil, Options{})
	assert.NotPanics(t, func() {
		h.TaskRouted("u", false)
		h.TaskCancelled("u", "k", "collected")
		h.TaskFailed("u", zimage.Unknown, nil)
		h.URILockContended("u")
		h.MemoryTrimmed(2, 1)
		h.DiskEvicted("n", 1)
	})
}
