package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	env := setupTestEnv(t, envOptions{})

	w := env.doJSON(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestDocumentUpload(t *testing.T) {
	env := setupTestEnv(t, envOptions{})

	w := env.doUpload(t, "zoning-rules.pdf", testPDF(t, "Residential lots must keep a five meter setback."))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	data := decodeData(t, w)
	assert.NotEmpty(t, data["id"])
	assert.Equal(t, "zoning-rules", data["title"])
	assert.Equal(t, "zoning-rules.pdf", data["filename"])
	assert.Equal(t, false, data["embeddingsGenerated"])
	assert.EqualValues(t, 1, data["chunkCount"])

	chunks, ok := data["chunks"].([]interface{})
	require.True(t, ok)
	require.Len(t, chunks, 1)
	chunk := chunks[0].(map[string]interface{})
	assert.EqualValues(t, 0, chunk["chunkIndex"])
	assert.EqualValues(t, 1, chunk["pageNumber"])
	assert.Equal(t, false, chunk["hasEmbedding"])
	assert.Contains(t, chunk["content"], "five meter setback")

	assertTempDirEmpty(t, env.TempDir)
}

func TestDocumentUploadValidation(t *testing.T) {
	env := setupTestEnv(t, envOptions{maxFileSize: 1024})

	cases := []struct {
		name     string
		filename string
		content  []byte
	}{
		{"missing file", "", nil},
		{"not a pdf", "notes.txt", []byte("plain text")},
		{"too large", "big.pdf", []byte(strings.Repeat("x", 4096))},
		{"corrupt pdf", "broken.pdf", []byte("not really a pdf")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.doUpload(t, tc.filename, tc.content)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			resp := decodeResponse(t, w)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, string(apperr.KindValidation), resp.ErrorType)
			assert.NotEmpty(t, resp.TraceID)
			assertTempDirEmpty(t, env.TempDir)
		})
	}
}

func TestDocumentListGetDelete(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	id := env.uploadDocument(t, "budget.pdf", "The annual budget is published in March.", "Appendix tables.")

	w := env.doJSON(t, http.MethodGet, "/api/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeData(t, w)
	assert.EqualValues(t, 1, list["total"])
	docs := list["documents"].([]interface{})
	require.Len(t, docs, 1)
	summary := docs[0].(map[string]interface{})
	assert.Equal(t, id, summary["id"])
	assert.EqualValues(t, 2, summary["chunkCount"])
	assert.Nil(t, summary["chunks"], "list omits chunk bodies")

	w = env.doJSON(t, http.MethodGet, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decodeData(t, w)
	assert.EqualValues(t, 2, detail["pageCount"])
	assert.Len(t, detail["chunks"], 2)

	w = env.doJSON(t, http.MethodDelete, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, w)["success"])

	w = env.doJSON(t, http.MethodGet, "/api/documents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperr.KindNotFound), decodeResponse(t, w).ErrorType)

	w = env.doJSON(t, http.MethodDelete, "/api/documents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateEmbeddingsEndpoint(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	id := env.uploadDocument(t, "transit.pdf", "Buses run every ten minutes during peak hours.")

	w := env.doJSON(t, http.MethodPost, "/api/documents/"+id+"/embed", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData(t, w)
	assert.Equal(t, id, data["documentId"])
	assert.Equal(t, "transit", data["title"])
	assert.EqualValues(t, 1, data["chunksProcessed"])
	assert.EqualValues(t, testDim, data["embeddingDimensions"])

	w = env.doJSON(t, http.MethodGet, "/api/documents/"+id, nil)
	detail := decodeData(t, w)
	assert.Equal(t, true, detail["embeddingsGenerated"])

	// 已生成向量的文档再次生成返回冲突
	w = env.doJSON(t, http.MethodPost, "/api/documents/"+id+"/embed", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, string(apperr.KindConflict), resp.ErrorType)
	assert.Contains(t, resp.Message, "re-upload")

	w = env.doJSON(t, http.MethodPost, "/api/documents/missing/embed", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnqueueEmbeddingsWithoutQueue(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	id := env.uploadDocument(t, "parks.pdf", "Parks close at dusk.")

	w := env.doJSON(t, http.MethodPost, "/api/documents/"+id+"/embed/async", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.KindValidation), decodeResponse(t, w).ErrorType)
}
