package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactingHandler(t *testing.T) {
	t.Parallel()

	t.Run("masks credential attributes in json output", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(&buf, "json", "debug")

		log.Info("refresh", "refresh_token", "R1", "Authorization", "Bearer A1", "user_id", "u-1")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.Equal(t, redacted, line["refresh_token"])
		require.Equal(t, redacted, line["Authorization"])
		require.Equal(t, "u-1", line["user_id"])
	})

	t.Run("masks nested groups and logger attributes", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(&buf, "json", "info").With("access_token", "A1")

		log.Info("login", slog.Group("request", slog.String("password", "hunter2"), slog.String("username", "alice")))

		out := buf.String()
		require.NotContains(t, out, "A1")
		require.NotContains(t, out, "hunter2")
		require.Contains(t, out, "alice")
	})

	t.Run("pretty output is redacted too", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(&buf, "pretty", "info")

		log.Warn("refresh failed", "refresh_token", "R-secret", "status", 500)

		out := buf.String()
		require.NotContains(t, out, "R-secret")
		require.Contains(t, out, "refresh failed")
		require.Contains(t, out, "status")
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, "pretty", "warn")

	log.Info("hidden")
	require.Empty(t, buf.String())

	log.Error("shown", "group", "g")
	require.Contains(t, buf.String(), "shown")
}
