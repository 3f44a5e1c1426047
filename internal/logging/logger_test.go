package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"booksync/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	appCfg := config.AppConfig{
		Name:        "test-app",
		Environment: "test",
		Version:     "1.0.0",
	}

	t.Run("DefaultStdout", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "info", Output: "stdout"}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("Console", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "warn", Output: "stderr", Format: "console"}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("FileInNestedDir", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "logs", "app.log")
		cfg := config.LoggingConfig{Level: "error", Output: "file", FilePath: logPath}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		require.NotNil(t, closer)
		closer.Close()

		_, err = os.Stat(logPath)
		assert.NoError(t, err)
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		cfg := config.LoggingConfig{Output: "file", FilePath: ""}
		_, _, err := New(cfg, appCfg)
		assert.Error(t, err)
	})

	t.Run("EmptyLevelDefaultsToInfo", func(t *testing.T) {
		logger, _, err := New(config.LoggingConfig{}, appCfg)
		require.NoError(t, err)
		assert.Equal(t, "info", logger.GetLevel().String())
	})
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	appCfg := config.AppConfig{Name: "test-app"}
	base, _, err := New(config.LoggingConfig{}, appCfg)
	require.NoError(t, err)

	l := base.Output(&buf)
	Component(&l, "worker").Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"worker"`)

	assert.NotNil(t, Component(nil, "x"))
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestOperational_Streams(t *testing.T) {
	var info, errs bytes.Buffer
	op := NewOperational(&info, &errs)

	op.LogOperation("CREATE", 42, map[string]any{"owner_id": 7})
	op.LogAPIRequest("POST", "https://example/calendars/primary/events", map[string]string{"summary": "Cut"}, "ya29.a0AfH")
	op.LogAPIResponse("POST", "https://example/calendars/primary/events", 200, []byte(`{"id":"evt_1"}`), time.Millisecond, nil)
	op.LogAPIResponse("PUT", "https://example/calendars/primary/events/x", 500, []byte("boom"), time.Millisecond, errors.New("HTTP 500 - boom"))
	op.LogError("UPDATE", errors.New("timeout"), map[string]any{"booking_id": 42})
	op.LogDeletion(42, "evt_1", "deleted", nil)
	op.LogQueue("enqueue", 1, nil)
	op.LogSuccess("CREATE", nil)

	infoLines := decodeLines(t, &info)
	errLines := decodeLines(t, &errs)
	require.Len(t, infoLines, 6)
	require.Len(t, errLines, 2)

	assert.Equal(t, CategoryOperation, infoLines[0]["category"])
	assert.Equal(t, float64(42), infoLines[0]["booking_id"])
	assert.Equal(t, "ya29.a0AfH", infoLines[1]["token_prefix"])
	assert.Equal(t, "Cut", infoLines[1]["body"].(map[string]any)["summary"])
	assert.NotEmpty(t, infoLines[0]["time"])

	assert.Equal(t, CategoryResponse, errLines[0]["category"])
	assert.Equal(t, float64(500), errLines[0]["http_status"])
	assert.Equal(t, CategoryError, errLines[1]["category"])
	assert.Equal(t, "timeout", errLines[1]["error"])
}

func TestOperational_NilAndFiles(t *testing.T) {
	var op *Operational
	op.LogError("X", errors.New("ignored"), nil)
	assert.NoError(t, op.Close())

	dir := t.TempDir()
	cfg := config.LoggingConfig{
		InfoFile:  filepath.Join(dir, "sync", "info.log"),
		ErrorFile: filepath.Join(dir, "sync", "error.log"),
	}
	op, err := OpenOperational(cfg)
	require.NoError(t, err)
	op.LogSuccess("CREATE", map[string]any{"event_id": "evt_1"})
	op.LogError("CREATE", errors.New("bad"), nil)
	require.NoError(t, op.Close())

	infoData, err := os.ReadFile(cfg.InfoFile)
	require.NoError(t, err)
	assert.Contains(t, string(infoData), "evt_1")

	errData, err := os.ReadFile(cfg.ErrorFile)
	require.NoError(t, err)
	assert.Contains(t, string(errData), `"error":"bad"`)
}

func TestOperational_NonJSONBody(t *testing.T) {
	var info bytes.Buffer
	op := NewOperational(&info, &bytes.Buffer{})
	op.LogAPIRequest("DELETE", "u", []byte("not json"), "tok")

	lines := decodeLines(t, &info)
	require.Len(t, lines, 1)
	assert.Equal(t, "not json", lines[0]["body"])
}
