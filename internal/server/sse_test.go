package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tydee/tydee-pro/internal/types"
)

func TestJobStream(t *testing.T) {
	w := httptest.NewRecorder()
	stream, err := openJobStream(w)
	require.NoError(t, err)

	require.NoError(t, stream.Snapshot(types.Job{ID: "job-1", Status: types.StatusOpen, Version: 7}))
	require.NoError(t, stream.Ping())

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "retry: 3000\n\n")
	assert.Contains(t, body, "id: 7\nevent: job\ndata: {\"id\":\"job-1\"")
	assert.Contains(t, body, ": keep-alive\n\n")
	assert.True(t, w.Flushed)
}
