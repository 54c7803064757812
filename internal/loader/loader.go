package loader

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"realestate-rag/internal/contextutil"
	"realestate-rag/internal/domain"
)

// DocumentRecorder persists document status as loading progresses.
type DocumentRecorder interface {
	Upsert(ctx context.Context, doc *domain.Document) error
}

// Result is the outcome of loading one source.
type Result struct {
	Document   *domain.Document
	Blocks     []domain.Block
	PageErrors []*domain.ParseError
}

// Loader reads sources and turns them into ordered blocks.
type Loader struct {
	sources     SourceReader
	splitter    PageSplitter
	parser      Parser
	markdown    *MarkdownParser
	docs        DocumentRecorder
	concurrency int
	now         func() time.Time
}

// New creates a Loader. docs may be nil when status need not be persisted.
func New(sources SourceReader, splitter PageSplitter, parser Parser, docs DocumentRecorder, concurrency int) *Loader {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Loader{
		sources:     sources,
		splitter:    splitter,
		parser:      parser,
		markdown:    NewMarkdownParser(),
		docs:        docs,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// DocumentID returns the content-derived identifier of raw.
func DocumentID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Supported reports whether the loader can handle the source's extension.
func Supported(source string) bool {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".pdf", ".md", ".markdown", ".txt":
		return true
	}
	return false
}

// Load reads source, parses it and validates the page cover.
//
// Pages that fail are reported in Result.PageErrors and the document is marked
// failed-partial. If no page could be parsed the document is marked failed and
// a *domain.ParseError is returned together with the result.
func (l *Loader) Load(ctx context.Context, source string) (*Result, error) {
	if !Supported(source) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSource, source)
	}

	raw, err := l.Read(ctx, source)
	if err != nil {
		return nil, err
	}
	return l.LoadBytes(ctx, source, raw)
}

// Read returns the raw bytes of source.
func (l *Loader) Read(ctx context.Context, source string) ([]byte, error) {
	raw, err := l.sources.Read(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	return raw, nil
}

// LoadBytes is Load for content already read from source.
func (l *Loader) LoadBytes(ctx context.Context, source string, raw []byte) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx).With("source", source)

	if !Supported(source) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSource, source)
	}

	doc := &domain.Document{
		ID:         DocumentID(raw),
		Source:     source,
		IngestedAt: l.now().UTC(),
		Status:     domain.StatusPending,
	}
	if err := l.record(ctx, doc); err != nil {
		return nil, err
	}
	logger = logger.With("document_id", doc.ID)

	parsed, pageCount, pageErrs, err := l.parse(ctx, doc, source, raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		pe := &domain.ParseError{DocumentID: doc.ID, Source: source, Err: err}
		return l.fail(ctx, doc, pe)
	}

	blocks, coverErrs := validateCover(doc.ID, source, pageCount, parsed)
	pageErrs = append(pageErrs, coverErrs...)
	slices.SortFunc(pageErrs, func(a, b *domain.ParseError) int { return cmp.Compare(a.Page, b.Page) })

	failed := make(map[int]struct{}, len(pageErrs))
	for _, pe := range pageErrs {
		if pe.Page >= 1 && pe.Page <= pageCount {
			failed[pe.Page] = struct{}{}
		}
		logger.WarnContext(ctx, "page failed to parse", "page", pe.Page, "error", pe.Err)
	}

	doc.PageCount = pageCount
	doc.FailedPages = len(failed)

	res := &Result{Document: doc, Blocks: blocks, PageErrors: pageErrs}
	switch {
	case len(failed) >= pageCount || len(blocks) == 0:
		pe := &domain.ParseError{DocumentID: doc.ID, Source: source, Err: errors.New("no content extracted")}
		if len(pageErrs) > 0 {
			pe.Err = fmt.Errorf("%d of %d page(s) failed: %w", len(failed), pageCount, pageErrs[0].Err)
		}
		_, err := l.fail(ctx, doc, pe)
		return res, err
	case len(pageErrs) > 0:
		doc.Status = domain.StatusFailedPartial
		doc.Error = fmt.Sprintf("%d of %d page(s) failed to parse", len(failed), pageCount)
	default:
		doc.Status = domain.StatusParsed
	}

	if err := l.record(ctx, doc); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "document loaded",
		"status", doc.Status,
		"pages", pageCount,
		"failed_pages", doc.FailedPages,
		"blocks", len(blocks),
	)
	return res, nil
}

func (l *Loader) parse(ctx context.Context, doc *domain.Document, source string, raw []byte) ([]ParsedBlock, int, []*domain.ParseError, error) {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".md", ".markdown":
		return withPage(l.markdown.Blocks(raw), 1), 1, nil, nil
	case ".txt":
		return withPage(TextBlocks(raw), 1), 1, nil, nil
	case ".pdf":
		return l.parsePDF(ctx, doc, source, raw)
	}
	return nil, 0, nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSource, source)
}

// errNoPageContent marks a page the parser accepted but returned nothing for.
// Every page must contribute blocks or be reported as failed.
var errNoPageContent = errors.New("page has no content")

func (l *Loader) parsePDF(ctx context.Context, doc *domain.Document, source string, raw []byte) ([]ParsedBlock, int, []*domain.ParseError, error) {
	if l.splitter == nil || l.parser == nil {
		return nil, 0, nil, fmt.Errorf("%w: pdf parsing not configured", domain.ErrUnsupportedSource)
	}

	pages, err := l.splitter.Split(ctx, raw)
	if err != nil {
		return nil, 0, nil, err
	}

	var (
		mu       sync.Mutex
		blocks   []ParsedBlock
		pageErrs []*domain.ParseError
	)
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, page := range pages {
		pageNumber := i + 1
		g.Go(func() error {
			var parsed []ParsedBlock
			var err error
			if page == nil {
				err = errors.New("page could not be extracted")
			} else {
				parsed, err = l.parser.Parse(gctx, page, fmt.Sprintf("%s_%d.pdf", base, pageNumber))
				if err == nil && len(parsed) == 0 {
					err = errNoPageContent
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				pageErrs = append(pageErrs, &domain.ParseError{DocumentID: doc.ID, Source: source, Page: pageNumber, Err: err})
				return nil
			}
			blocks = append(blocks, withPage(parsed, pageNumber)...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, nil, err
	}
	return blocks, len(pages), pageErrs, nil
}

// withPage assigns page to blocks that do not carry one.
func withPage(blocks []ParsedBlock, page int) []ParsedBlock {
	for i := range blocks {
		if blocks[i].Page == 0 {
			blocks[i].Page = page
		}
	}
	return blocks
}

// validateCover orders blocks by (page, order) and rejects pages whose blocks
// fall outside [1, pageCount] or overlap at the same position. A rejected
// page loses all of its blocks.
func validateCover(docID, source string, pageCount int, parsed []ParsedBlock) ([]domain.Block, []*domain.ParseError) {
	sorted := slices.Clone(parsed)
	slices.SortStableFunc(sorted, func(a, b ParsedBlock) int {
		if c := cmp.Compare(a.Page, b.Page); c != 0 {
			return c
		}
		return cmp.Compare(a.Order, b.Order)
	})

	bad := make(map[int]error)
	for i, b := range sorted {
		if b.Page < 1 || b.Page > pageCount {
			if _, seen := bad[b.Page]; !seen {
				bad[b.Page] = fmt.Errorf("block on page %d outside document of %d page(s)", b.Page, pageCount)
			}
			continue
		}
		if i > 0 && sorted[i-1].Page == b.Page && sorted[i-1].Order == b.Order {
			if _, seen := bad[b.Page]; !seen {
				bad[b.Page] = fmt.Errorf("overlapping blocks at position %d", b.Order)
			}
		}
	}

	var errs []*domain.ParseError
	for _, page := range slices.Sorted(maps.Keys(bad)) {
		errs = append(errs, &domain.ParseError{DocumentID: docID, Source: source, Page: page, Err: bad[page]})
	}

	blocks := make([]domain.Block, 0, len(sorted))
	for _, b := range sorted {
		if _, rejected := bad[b.Page]; rejected {
			continue
		}
		blocks = append(blocks, domain.Block{
			ID:         domain.BlockID(docID, b.Page, b.Order),
			DocumentID: docID,
			Page:       b.Page,
			Order:      b.Order,
			Text:       b.Text,
			Type:       b.Type,
		})
	}
	return blocks, errs
}

func (l *Loader) fail(ctx context.Context, doc *domain.Document, pe *domain.ParseError) (*Result, error) {
	contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "document failed to parse",
		"source", doc.Source,
		"document_id", doc.ID,
		"error", pe.Err,
	)
	doc.Status = domain.StatusFailed
	doc.Error = pe.Error()
	if err := l.record(ctx, doc); err != nil {
		return nil, err
	}
	return &Result{Document: doc}, pe
}

func (l *Loader) record(ctx context.Context, doc *domain.Document) error {
	if l.docs == nil {
		return nil
	}
	if err := l.docs.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("failed to record document status: %w", err)
	}
	return nil
}
