package document

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Page 单页抽取结果，页码从1开始
type Page struct {
	Number int
	Text   string
}

// Extraction PDF文本抽取结果
type Extraction struct {
	Pages        []Page // 每页的文本
	PageCount    int    // 总页数，包含无文本的页
	Title        string // 文档信息字典中的标题
	Author       string // 作者
	CreationDate string // 创建时间，保留PDF中的原始格式
	Producer     string // 生成工具
}

// Metadata 转换为文档元数据
func (e *Extraction) Metadata() map[string]interface{} {
	meta := map[string]interface{}{
		"pageCount": e.PageCount,
	}
	if e.Title != "" {
		meta["title"] = e.Title
	}
	if e.Author != "" {
		meta["author"] = e.Author
	}
	if e.CreationDate != "" {
		meta["creationDate"] = e.CreationDate
	}
	if e.Producer != "" {
		meta["producer"] = e.Producer
	}
	return meta
}

// Extractor 文档文本抽取接口
type Extractor interface {
	// Extract 抽取文件中每一页的文本和元数据
	Extract(ctx context.Context, path string) (*Extraction, error)
}

// PDFExtractor PDF文本抽取器
// 使用pdfcpu校验文件结构，使用ledongthuc/pdf按页读取纯文本
type PDFExtractor struct {
	conf *model.Configuration
}

// NewPDFExtractor 创建PDF抽取器
func NewPDFExtractor() *PDFExtractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFExtractor{conf: conf}
}

// Extract 抽取PDF每一页的文本
func (e *PDFExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	if err := api.ValidateFile(path, e.conf); err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid PDF file: %v", err))
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("failed to open PDF: %v", err))
	}
	defer f.Close()

	result := &Extraction{
		PageCount: reader.NumPage(),
	}
	readInfo(reader, result)

	for i := 1; i <= result.PageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := pageText(page)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}

		text = CleanText(text)
		if text == "" {
			continue
		}
		result.Pages = append(result.Pages, Page{Number: i, Text: text})
	}

	return result, nil
}

// pageText 读取单页纯文本，解析器在损坏的内容流上可能panic
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page content: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// readInfo 读取文档信息字典
func readInfo(reader *pdf.Reader, result *Extraction) {
	defer func() {
		// 信息字典缺失或格式错误时忽略
		_ = recover()
	}()

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return
	}
	result.Title = strings.TrimSpace(info.Key("Title").Text())
	result.Author = strings.TrimSpace(info.Key("Author").Text())
	result.CreationDate = strings.TrimSpace(info.Key("CreationDate").Text())
	result.Producer = strings.TrimSpace(info.Key("Producer").Text())
}

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	inlineSpaces   = regexp.MustCompile(`[ \t]+`)
)

// CleanText 规范化抽取出的文本
// 统一换行符，合并连续空格，修剪每一行，最多保留一个空行
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = inlineSpaces.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
