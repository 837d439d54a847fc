package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyerfyer/doc-rag/internal/database"
	"github.com/fyerfyer/doc-rag/internal/document"
	"github.com/fyerfyer/doc-rag/internal/models"
	"github.com/fyerfyer/doc-rag/internal/repository"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestRepo 创建基于内存SQLite的文档仓储
func setupTestRepo(t *testing.T) (repository.DocumentRepository, *gorm.DB) {
	t.Helper()

	db, err := database.Open(&database.Config{
		Type:         "sqlite",
		DSN:          fmt.Sprintf("file:memdb_%d?mode=memory", time.Now().UnixNano()),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, quietLogger())
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.NewDocumentRepositoryWithDB(db), db
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

// writeTestPDF 用gofpdf生成PDF，每个参数一页
func writeTestPDF(t *testing.T, dir string, pages ...string) string {
	t.Helper()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 6, text, "", "L", false)
	}

	path := filepath.Join(dir, fmt.Sprintf("fixture-%d.pdf", time.Now().UnixNano()))
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

// newTestIngestion 创建使用真实PDF抽取和默认分块配置的导入服务
func newTestIngestion(t *testing.T, repo repository.DocumentRepository, opts ...IngestionOption) (*IngestionService, string) {
	t.Helper()

	chunker, err := document.NewChunker(document.DefaultChunkerConfig())
	require.NoError(t, err)

	tempDir := t.TempDir()
	base := []IngestionOption{WithTempDir(tempDir), WithIngestionLogger(quietLogger())}
	return NewIngestionService(repo, document.NewPDFExtractor(), chunker, append(base, opts...)...), tempDir
}

// seedDocument 直接写入一个带分块的文档
func seedDocument(t *testing.T, repo repository.DocumentRepository, id string, contents ...string) *models.Document {
	t.Helper()

	drafts := make([]models.ChunkDraft, len(contents))
	for i, c := range contents {
		drafts[i] = models.ChunkDraft{Content: c, PageNumber: 1, ChunkIndex: i}
	}
	doc := &models.Document{ID: id, Title: "Title " + id, FileName: id + ".pdf"}
	require.NoError(t, repo.CreateWithChunks(context.Background(), doc, drafts))
	return doc
}

// assertDirEmpty 检查目录中没有残留文件
func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "temp directory must be empty")
}

// fakeEmbedder 确定性的嵌入客户端
// 向量由文本决定，vectors中登记的文本使用指定向量
type fakeEmbedder struct {
	dim     int
	delay   time.Duration
	calls   int32
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) set(text string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[text] = vec
}

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vectors[text]; ok {
		return v
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float32, f.dim)
	for i := range vec {
		vec[i] = float32((seed>>(uint(i)%24))&0xff) + 1
	}
	return vec
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.vectorFor(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vectorFor(text)
	}
	return out, nil
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimensions() int { return f.dim }

func (f *fakeEmbedder) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

// walkFiles 收集目录下的所有普通文件
func walkFiles(root string, files *[]string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			*files = append(*files, path)
		}
		return nil
	})
}
