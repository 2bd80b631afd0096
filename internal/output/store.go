package output

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	"listory/internal/assemble"
	"listory/internal/listing"
)

const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
)

// Saver receives every finished listing.
type Saver interface {
	Save(ctx context.Context, content listing.ListingContent) error
}

// FileStore writes each listing to its own file in Dir.
type FileStore struct {
	Dir       string
	Format    string
	RandomLen int
	Rand      io.Reader
}

func NewFileStore(dir, format string) (*FileStore, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" || format == "md" {
		format = FormatMarkdown
	}
	if _, err := extension(format); err != nil {
		return nil, err
	}
	if err := EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("创建输出目录失败：%w", err)
	}
	return &FileStore{Dir: dir, Format: format}, nil
}

func extension(format string) (string, error) {
	switch format {
	case FormatMarkdown:
		return "md", nil
	case FormatHTML:
		return "html", nil
	case FormatJSON:
		return "json", nil
	default:
		return "", fmt.Errorf("不支持的输出格式：%s", format)
	}
}

func (s *FileStore) Save(ctx context.Context, content listing.ListingContent) error {
	_, err := s.Write(ctx, content)
	return err
}

// Write stores content and returns the file path.
func (s *FileStore) Write(ctx context.Context, content listing.ListingContent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext, err := extension(s.Format)
	if err != nil {
		return "", err
	}
	body, err := render(s.Format, content)
	if err != nil {
		return "", err
	}
	for i := 0; i < 3; i++ {
		_, path, err := NextPath(s.Dir, content.ProductName, content.Marketplace, ext, s.RandomLen, s.Rand)
		if err != nil {
			return "", err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("写入输出文件失败：%w", err)
		}
		if _, err := f.Write(body); err != nil {
			f.Close()
			return "", fmt.Errorf("写入输出文件失败：%w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("写入输出文件失败：%w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("尝试多次仍无法生成不冲突文件名")
}

func render(format string, content listing.ListingContent) ([]byte, error) {
	switch format {
	case FormatHTML:
		page := fmt.Sprintf("<!doctype html>\n<html lang=%q>\n<head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n%s</body>\n</html>\n",
			content.Language, html.EscapeString(content.ProductName), content.HTML)
		return []byte(page), nil
	case FormatJSON:
		return assemble.EncodeJSON(content)
	default:
		return []byte(content.Markdown), nil
	}
}
