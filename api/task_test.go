package api

import (
	"net/http"
	"testing"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/pkg/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueEmbeddingsAndTaskStatus(t *testing.T) {
	env := setupTestEnv(t, envOptions{withQueue: true})
	id := env.uploadDocument(t, "library.pdf", "The library opens at nine on weekdays.")

	w := env.doJSON(t, http.MethodPost, "/api/documents/"+id+"/embed/async", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	data := decodeData(t, w)
	taskID, _ := data["taskId"].(string)
	require.NotEmpty(t, taskID)
	assert.Equal(t, id, data["documentId"])

	w = env.doJSON(t, http.MethodGet, "/api/tasks/"+taskID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	task := decodeData(t, w)
	assert.Equal(t, taskID, task["id"])
	assert.Equal(t, string(taskqueue.TaskEmbedDocument), task["type"])
	assert.Equal(t, id, task["document_id"])
	assert.Equal(t, string(taskqueue.StatusPending), task["status"])

	w = env.doJSON(t, http.MethodGet, "/api/tasks/unknown-task", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperr.KindNotFound), decodeResponse(t, w).ErrorType)
}

func TestEnqueueEmbeddingsUnknownDocument(t *testing.T) {
	env := setupTestEnv(t, envOptions{withQueue: true})

	w := env.doJSON(t, http.MethodPost, "/api/documents/missing/embed/async", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
