package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")
	t.Cleanup(Close)

	Debug("debug message")
	Info("info message")
	Warn("warn message", "username", "alice")
	Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, `[WARN] warn message username="alice"`)
	assert.Contains(t, out, "[EROR] error message")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "json")
	t.Cleanup(Close)

	With("component", "worker").Info("request handled", "result", true)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "request handled", rec["msg"])
	assert.Equal(t, "worker", rec["component"])
	assert.Equal(t, true, rec["result"])
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(Config{Level: "LOUD"})
	assert.Error(t, err)
}

func TestDailyFileRollsOver(t *testing.T) {
	dir := t.TempDir()
	d, err := newDailyFile(dir)
	require.NoError(t, err)
	defer d.Close()

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	d.now = func() time.Time { return day1 }
	_, err = d.Write([]byte("first\n"))
	require.NoError(t, err)

	d.now = func() time.Time { return day1.Add(2 * time.Minute) }
	_, err = d.Write([]byte("second\n"))
	require.NoError(t, err)

	b1, err := os.ReadFile(filepath.Join(dir, "logs", "2026-03-01.log"))
	require.NoError(t, err)
	b2, err := os.ReadFile(filepath.Join(dir, "logs", "2026-03-02.log"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(b1), "first\n"))
	assert.Equal(t, "second\n", string(b2))
}
