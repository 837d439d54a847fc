package document

import (
	"strings"
	"unicode/utf8"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/fyerfyer/doc-rag/internal/models"
)

// Strategy 分块策略
type Strategy string

const (
	// BoundaryAware 在句子边界处截断（默认）
	BoundaryAware Strategy = "boundary_aware"
	// FixedWindow 固定窗口截断
	FixedWindow Strategy = "fixed_window"
)

const (
	// 在窗口末尾向前搜索句子边界的范围
	boundaryLookback = 200
	// 在窗口末尾向后搜索句子边界的范围
	boundaryLookahead = 100
)

// ChunkerConfig 分块器配置
type ChunkerConfig struct {
	ChunkSize int      // 目标分块大小（字符数）
	Overlap   int      // 相邻分块的重叠大小（字符数）
	Strategy  Strategy // 分块策略
}

// DefaultChunkerConfig 返回默认分块配置
// 2400个字符约等于600个token，重叠为20%
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize: 2400,
		Overlap:   480,
		Strategy:  BoundaryAware,
	}
}

// Chunker 将文本切分为带重叠的分块
type Chunker struct {
	config ChunkerConfig
}

// NewChunker 创建分块器
func NewChunker(config ChunkerConfig) (*Chunker, error) {
	if config.ChunkSize <= 0 {
		return nil, apperr.Validation("chunk size must be positive")
	}
	if config.Overlap < 0 {
		return nil, apperr.Validation("chunk overlap cannot be negative")
	}
	if config.Strategy == "" {
		config.Strategy = BoundaryAware
	}
	if config.Strategy != BoundaryAware && config.Strategy != FixedWindow {
		return nil, apperr.Validation("unknown chunk strategy: " + string(config.Strategy))
	}
	return &Chunker{config: config}, nil
}

// Config 返回分块器配置
func (c *Chunker) Config() ChunkerConfig {
	return c.config
}

// Chunk 切分单页文本，分块序号从0开始
func (c *Chunker) Chunk(text string, pageNumber int) []models.ChunkDraft {
	return c.ChunkFrom(text, pageNumber, 0)
}

// ChunkPages 按页切分，分块序号在所有页之间连续递增
func (c *Chunker) ChunkPages(pages []Page) []models.ChunkDraft {
	var drafts []models.ChunkDraft
	for _, page := range pages {
		drafts = append(drafts, c.ChunkFrom(page.Text, page.Number, len(drafts))...)
	}
	return drafts
}

// ChunkFrom 切分文本，分块序号从startIndex开始
// 只有修剪后非空的分块才会占用序号
func (c *Chunker) ChunkFrom(text string, pageNumber, startIndex int) []models.ChunkDraft {
	drafts := []models.ChunkDraft{}
	if text == "" {
		return drafts
	}

	size, overlap := c.config.ChunkSize, c.config.Overlap
	n := len(text)
	index := startIndex
	start := 0

	for start < n {
		end := start + size
		if end > n {
			end = n
		}
		end = alignEnd(text, start, end)

		if end < n && c.config.Strategy == BoundaryAware {
			if snapped, ok := sentenceBoundary(text, start, end); ok {
				end = snapped
			}
		}

		if content := strings.TrimSpace(text[start:end]); content != "" {
			drafts = append(drafts, models.ChunkDraft{
				Content:    content,
				PageNumber: pageNumber,
				ChunkIndex: index,
			})
			index++
		}

		// 最后一个窗口已覆盖到文本末尾
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			// 重叠不小于窗口长度时直接跳到窗口末尾，保证前进
			next = end
		}
		start = alignStart(text, next)
	}

	return drafts
}

// sentenceBoundary 在窗口尾部[end-200, end+100)内寻找最后一个句末标点+空白
// 返回标点和空白之后的位置
func sentenceBoundary(text string, start, end int) (int, bool) {
	searchStart := end - boundaryLookback
	if searchStart < start {
		searchStart = start
	}
	searchEnd := end + boundaryLookahead
	if searchEnd > len(text) {
		searchEnd = len(text)
	}

	for i := searchEnd - 2; i >= searchStart; i-- {
		if isSentenceEnd(text[i]) && isSpace(text[i+1]) {
			return i + 2, true
		}
	}
	return 0, false
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// alignEnd 将窗口末尾回退到字符边界，窗口为空时向后推进到下一个字符边界
func alignEnd(text string, start, end int) int {
	aligned := end
	for aligned > start && aligned < len(text) && !utf8.RuneStart(text[aligned]) {
		aligned--
	}
	if aligned > start {
		return aligned
	}
	aligned = end
	for aligned < len(text) && !utf8.RuneStart(text[aligned]) {
		aligned++
	}
	return aligned
}

// alignStart 将窗口起点推进到字符边界
func alignStart(text string, start int) int {
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	return start
}
