package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"realestate-rag/internal/contextutil"
)

// PageSplitter turns a multi-page document into one standalone document per page.
// A nil entry in the result marks a page that could not be extracted.
type PageSplitter interface {
	Split(ctx context.Context, raw []byte) ([][]byte, error)
}

// PDFSplitter splits PDFs with pdfcpu, working in a scratch directory.
type PDFSplitter struct {
	// TempDir is the parent for scratch directories; empty uses os.TempDir.
	TempDir string
}

// Split validates and optimises the PDF, then writes each page as its own PDF.
func (s *PDFSplitter) Split(ctx context.Context, raw []byte) ([][]byte, error) {
	logger := contextutil.LoggerFromContext(ctx)

	dir, err := os.MkdirTemp(s.TempDir, "rag-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()

	source := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(source, raw, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write scratch pdf: %w", err)
	}

	optimized := filepath.Join(dir, "optimized.pdf")
	if err := optimizePDF(source, optimized); err != nil {
		return nil, fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}

	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	if err := api.SplitFile(optimized, dir, 1, nil); err != nil {
		return nil, fmt.Errorf("failed to split PDF: %w", err)
	}

	base := strings.TrimSuffix(optimized, filepath.Ext(optimized))
	pages := make([][]byte, pageCount)
	for i := range pageCount {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := os.ReadFile(fmt.Sprintf("%s_%d.pdf", base, i+1))
		if err != nil {
			logger.WarnContext(ctx, "split page missing", "page", i+1, "error", err)
			continue
		}
		pages[i] = page
	}

	logger.DebugContext(ctx, "pdf split", "page_count", pageCount)
	return pages, nil
}

func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}
