package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates level parsing with a safe fallback.
// Scope: Unit Test
// Expected: Unknown levels map to info.
// Test Case ID: LOG-01
func TestLogger_ParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

// TestPurpose: Validates JSON output, level filtering and attribute helpers.
// Scope: Unit Test
// Expected: Debug records are dropped at info level; emitted records carry service and helper keys.
// Test Case ID: LOG-02
func TestLogger_New_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", ServiceName: "tenantgate", Output: &buf})

	l.DebugContext(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	l.InfoContext(context.Background(), "member revoked",
		TenantID("t-1"),
		TargetID("p-2"),
		Error(errors.New("boom")),
	)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "member revoked", rec["msg"])
	assert.Equal(t, "tenantgate", rec["service"])
	assert.Equal(t, "t-1", rec["tenant_id"])
	assert.Equal(t, "p-2", rec["target_actor_id"])
	assert.Equal(t, "boom", rec["error"])
}

// TestPurpose: Validates that the fanout handler delivers to every enabled sink.
// Scope: Unit Test
// Expected: Both buffers receive the record.
// Test Case ID: LOG-03
func TestLogger_FanoutHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := NewFanoutHandler(
		slog.NewJSONHandler(&a, nil),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	l := slog.New(h)

	l.Info("only-json")
	assert.Contains(t, a.String(), "only-json")
	assert.Empty(t, b.String())

	l.Error("both")
	assert.Contains(t, a.String(), "both")
	assert.Contains(t, b.String(), "both")
}
