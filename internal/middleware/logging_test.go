// internal/middleware/logging_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMiddlewareLogsRequests(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	handler := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/lobbies", nil))

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, "HTTP Request", entry.Message)
	assert.Equal(t, http.MethodGet, entry.Data["method"])
	assert.Equal(t, "/lobbies", entry.Data["path"])
	assert.Contains(t, entry.Data, "duration")
}

func TestLogSocketLifecycle(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	LogSocketConnect(logger, "u1")
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "ws: socket connected", hook.LastEntry().Message)
	assert.Equal(t, "u1", hook.LastEntry().Data["userId"])

	LogSocketDisconnect(logger, "u1", "game")
	assert.Equal(t, "game", hook.LastEntry().Data["scope"])

	// A socket that never subscribed carries no scope field.
	LogSocketDisconnect(logger, "u1", "")
	assert.NotContains(t, hook.LastEntry().Data, "scope")
}
