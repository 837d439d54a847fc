package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/doc-rag/api/handler"
	"github.com/fyerfyer/doc-rag/api/model"
	"github.com/fyerfyer/doc-rag/internal/cache"
	"github.com/fyerfyer/doc-rag/internal/database"
	"github.com/fyerfyer/doc-rag/internal/document"
	"github.com/fyerfyer/doc-rag/internal/embedding"
	"github.com/fyerfyer/doc-rag/internal/llm"
	"github.com/fyerfyer/doc-rag/internal/repository"
	"github.com/fyerfyer/doc-rag/internal/services"
	"github.com/fyerfyer/doc-rag/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDim = 4

// testEnv API测试环境
type testEnv struct {
	Router    *gin.Engine
	Repo      repository.DocumentRepository
	Embedder  *embedding.MockClient
	LLM       *llm.MockClient
	TempDir   string
	Queue     *taskqueue.RedisQueue
	Ingestion *services.IngestionService
}

type envOptions struct {
	withQueue   bool
	withoutLLM  bool
	maxFileSize int64
}

// setupTestEnv 使用内存SQLite、mock客户端创建完整路由
func setupTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.Open(&database.Config{
		Type:         "sqlite",
		DSN:          fmt.Sprintf("file:memdb_%d?mode=memory", time.Now().UnixNano()),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := repository.NewDocumentRepositoryWithDB(db)

	// 所有文本都映射到同一个单位向量
	mockEmbedding := embedding.NewMockClient(t)
	mockEmbedding.On("Name").Maybe().Return("mock-embedding")
	mockEmbedding.On("Dimensions").Maybe().Return(testDim)
	mockEmbedding.On("Embed", mock.Anything, mock.Anything).Maybe().Return([]float32{1, 0, 0, 0}, nil)
	mockEmbedding.On("EmbedBatch", mock.Anything, mock.Anything).Maybe().Return(
		func(_ context.Context, texts []string) [][]float32 {
			result := make([][]float32, len(texts))
			for i := range texts {
				result[i] = []float32{1, 0, 0, 0}
			}
			return result
		},
		nil,
	)

	mockLLM := llm.NewMockClient(t)

	chunker, err := document.NewChunker(document.DefaultChunkerConfig())
	require.NoError(t, err)

	tempDir := t.TempDir()
	maxFileSize := opts.maxFileSize
	if maxFileSize == 0 {
		maxFileSize = services.DefaultMaxFileSize
	}
	ingestion := services.NewIngestionService(repo, document.NewPDFExtractor(), chunker,
		services.WithTempDir(tempDir),
		services.WithMaxFileSize(maxFileSize),
		services.WithIngestionLogger(logger),
	)

	locks, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	embedOpts := []services.EmbeddingOption{
		services.WithDimensions(testDim),
		services.WithEmbeddingLogger(logger),
	}

	var queue *taskqueue.RedisQueue
	if opts.withQueue {
		mr := miniredis.RunT(t)
		qcfg := taskqueue.DefaultConfig()
		qcfg.RedisAddr = mr.Addr()
		queue, err = taskqueue.NewRedisQueue(qcfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = queue.Close() })
		embedOpts = append(embedOpts, services.WithTaskQueue(queue))
	}
	embedSvc := services.NewEmbeddingService(repo, mockEmbedding, locks, embedOpts...)

	retrieval := services.NewRetrievalService(repo, mockEmbedding, services.WithRetrievalLogger(logger))

	var rag *llm.RAGService
	if !opts.withoutLLM {
		rag = llm.NewRAG(mockLLM)
	}
	query := services.NewQueryService(retrieval, rag, services.WithQueryLogger(logger))

	router := SetupRouter(
		handler.NewDocumentHandler(ingestion, embedSvc, maxFileSize),
		handler.NewQAHandler(query, retrieval),
		handler.NewTaskHandler(embedSvc),
	)

	return &testEnv{
		Router:    router,
		Repo:      repo,
		Embedder:  mockEmbedding,
		LLM:       mockLLM,
		TempDir:   tempDir,
		Queue:     queue,
		Ingestion: ingestion,
	}
}

// testPDF 生成一页或多页的PDF内容
func testPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 6, text, "", "L", false)
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

// doUpload 以multipart表单上传文件
func (e *testEnv) doUpload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// doJSON 发送JSON请求
func (e *testEnv) doJSON(t *testing.T, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// uploadDocument 上传一个PDF并返回文档ID
func (e *testEnv) uploadDocument(t *testing.T, filename string, pages ...string) string {
	t.Helper()
	w := e.doUpload(t, filename, testPDF(t, pages...))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeData(t, w)
	return data["id"].(string)
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) model.Response {
	t.Helper()
	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "response data must be an object: %s", w.Body.String())
	return data
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

