package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/internal/document"
	"github.com/fyerfyer/doc-rag/internal/models"
	"github.com/fyerfyer/doc-rag/internal/repository"
	"github.com/fyerfyer/doc-rag/pkg/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// DefaultMaxFileSize 上传文件大小上限，10MB
const DefaultMaxFileSize int64 = 10 << 20

// UploadInput 上传的文件
type UploadInput struct {
	FileName string    // 原始文件名
	Size     int64     // 声明的文件大小，未知时为0
	Reader   io.Reader // 文件内容
}

// IngestionService 文档导入服务
// 负责把上传的PDF抽取、分块并入库，分块的向量留空
type IngestionService struct {
	repo        repository.DocumentRepository // 文档仓储
	extractor   document.Extractor            // PDF文本抽取器
	chunker     *document.Chunker             // 分块器
	storage     storage.Storage               // 原始文件归档，可为空
	tempDir     string                        // 临时文件目录
	maxFileSize int64                         // 文件大小上限
	logger      *logrus.Logger                // 日志记录器
}

// IngestionOption 导入服务配置选项
type IngestionOption func(*IngestionService)

// NewIngestionService 创建文档导入服务
func NewIngestionService(
	repo repository.DocumentRepository,
	extractor document.Extractor,
	chunker *document.Chunker,
	opts ...IngestionOption,
) *IngestionService {
	srv := &IngestionService{
		repo:        repo,
		extractor:   extractor,
		chunker:     chunker,
		tempDir:     os.TempDir(),
		maxFileSize: DefaultMaxFileSize,
		logger:      logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// WithStorage 设置原始文件归档存储
func WithStorage(s storage.Storage) IngestionOption {
	return func(srv *IngestionService) {
		srv.storage = s
	}
}

// WithTempDir 设置临时文件目录
func WithTempDir(dir string) IngestionOption {
	return func(srv *IngestionService) {
		if dir != "" {
			srv.tempDir = dir
		}
	}
}

// WithMaxFileSize 设置文件大小上限
func WithMaxFileSize(size int64) IngestionOption {
	return func(srv *IngestionService) {
		if size > 0 {
			srv.maxFileSize = size
		}
	}
}

// WithIngestionLogger 设置日志记录器
func WithIngestionLogger(logger *logrus.Logger) IngestionOption {
	return func(srv *IngestionService) {
		if logger != nil {
			srv.logger = logger
		}
	}
}

// Ingest 导入上传的PDF
// 临时文件在任何返回路径上都会被删除
func (s *IngestionService) Ingest(ctx context.Context, in UploadInput) (*models.Document, error) {
	fileName := filepath.Base(strings.TrimSpace(in.FileName))
	if err := s.validateUpload(fileName, in); err != nil {
		return nil, err
	}

	log := s.logger.WithField("file_name", fileName)
	log.Info("Starting document ingestion")

	tmpPath, written, err := s.writeTemp(fileName, in.Reader)
	if tmpPath != "" {
		defer func() {
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				log.WithError(rmErr).WithField("temp_path", tmpPath).Warn("Failed to remove temp file")
			}
		}()
	}
	if err != nil {
		return nil, err
	}

	extraction, err := s.extractor.Extract(ctx, tmpPath)
	if err != nil {
		log.WithError(err).Error("Failed to extract PDF text")
		return nil, err
	}

	drafts := s.chunker.ChunkPages(extraction.Pages)

	metadata, err := json.Marshal(extraction.Metadata())
	if err != nil {
		return nil, fmt.Errorf("failed to encode document metadata: %w", err)
	}

	doc := &models.Document{
		ID:        uuid.New().String(),
		Title:     titleFromFileName(fileName),
		FileName:  fileName,
		FileSize:  written,
		PageCount: extraction.PageCount,
		Metadata:  datatypes.JSON(metadata),
	}

	if s.storage != nil {
		path, err := s.archive(ctx, tmpPath, fileName)
		if err != nil {
			log.WithError(err).Error("Failed to archive uploaded file")
			return nil, err
		}
		doc.FilePath = path
	}

	if err := s.repo.CreateWithChunks(ctx, doc, drafts); err != nil {
		log.WithError(err).Error("Failed to save document")
		s.removeArchive(doc.FilePath)
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"page_count":  doc.PageCount,
		"chunk_count": len(doc.Chunks),
	}).Info("Document ingested")

	return doc, nil
}

// Get 获取文档及其分块
func (s *IngestionService) Get(ctx context.Context, id string) (*models.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("document ID is required")
	}
	return s.repo.GetWithChunks(ctx, id)
}

// List 列出所有文档
func (s *IngestionService) List(ctx context.Context) ([]models.Document, error) {
	return s.repo.List(ctx)
}

// Delete 删除文档、分块和归档文件
// 归档文件删除失败只记录日志
func (s *IngestionService) Delete(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.removeArchive(doc.FilePath)
	s.logger.WithField("document_id", id).Info("Document deleted")
	return nil
}

// validateUpload 检查文件名、类型和声明的大小
func (s *IngestionService) validateUpload(fileName string, in UploadInput) error {
	if in.Reader == nil {
		return apperr.Validation("no file uploaded")
	}
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return apperr.Validation("file name is required")
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return apperr.Validation("only PDF files are allowed")
	}
	if in.Size > s.maxFileSize {
		return apperr.Validation(fmt.Sprintf("file exceeds the maximum size of %d bytes", s.maxFileSize))
	}
	return nil
}

// writeTemp 把上传内容写入临时目录
// 只要临时文件已创建就返回其路径，由调用方负责删除
func (s *IngestionService) writeTemp(fileName string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.tempDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create temp directory: %w", err)
	}

	pattern := fmt.Sprintf("%d-*-%s", time.Now().UnixMilli(), sanitizeFileName(fileName))
	f, err := os.CreateTemp(s.tempDir, pattern)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()

	// 多读一个字节用于判断是否超出上限
	written, err := io.Copy(f, io.LimitReader(r, s.maxFileSize+1))
	if err != nil {
		return f.Name(), written, fmt.Errorf("failed to write temp file: %w", err)
	}
	if written > s.maxFileSize {
		return f.Name(), written, apperr.Validation(fmt.Sprintf("file exceeds the maximum size of %d bytes", s.maxFileSize))
	}
	if written == 0 {
		return f.Name(), 0, apperr.Validation("uploaded file is empty")
	}
	return f.Name(), written, nil
}

// archive 把临时文件保存到归档存储
func (s *IngestionService) archive(ctx context.Context, tmpPath, fileName string) (string, error) {
	f, err := os.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to reopen temp file: %w", err)
	}
	defer f.Close()

	info, err := s.storage.Save(ctx, f, fileName)
	if err != nil {
		return "", fmt.Errorf("failed to archive file: %w", err)
	}
	return info.Path, nil
}

// removeArchive 删除归档文件，失败只记录日志
func (s *IngestionService) removeArchive(path string) {
	if s.storage == nil || path == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.storage.Delete(ctx, path); err != nil {
		s.logger.WithError(err).WithField("file_path", path).Warn("Failed to delete archived file")
	}
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFileName 把文件名中的特殊字符替换为下划线
func sanitizeFileName(name string) string {
	name = unsafeFileChars.ReplaceAllString(name, "_")
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}

// titleFromFileName 去掉.pdf后缀作为标题
func titleFromFileName(fileName string) string {
	title := strings.TrimSpace(fileName[:len(fileName)-len(filepath.Ext(fileName))])
	if title == "" {
		return fileName
	}
	return title
}
