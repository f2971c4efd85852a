package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.Info("payme", "transaction created")
	l.LogSecurity("SIGN_MISMATCH", "click_trans_id=42")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "PAYME", entry.Category)
	assert.Equal(t, "transaction created", entry.Message)
	assert.Equal(t, "logger_test.go", entry.File)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "SECURITY", entry.Category)
}

func TestSetLevel_DropsLowerEntries(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)
	l.SetLevel("warn")

	l.Debug("X", "debug")
	l.Info("X", "info")
	l.Error("X", "error")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestDiscard_IsSilent(t *testing.T) {
	l := Discard()
	assert.NotPanics(t, func() {
		l.Error("X", "nothing")
		l.Close()
	})
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	h := middleware.RequestID(l.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/click/return?ref=cart-1", nil))

	var entry LogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "API", entry.Category)
	assert.Contains(t, entry.Message, "GET /click/return - 202")
	assert.Contains(t, entry.Message, "request_id=")
	assert.NotContains(t, entry.Message, "cart-1")
}
