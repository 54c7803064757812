package loader

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"realestate-rag/internal/domain"
)

// MarkdownParser converts markdown into ordered, layout-tagged blocks.
type MarkdownParser struct {
	md goldmark.Markdown
}

// NewMarkdownParser creates a goldmark-backed parser with table support.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// Blocks walks the top-level markdown structure. Headings become heading
// blocks, each list item and paragraph a text block, and each table body row a
// table block prefixed by the header row.
func (p *MarkdownParser) Blocks(content []byte) []ParsedBlock {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil
	}

	doc := p.md.Parser().Parse(text.NewReader(content))

	var blocks []ParsedBlock
	emit := func(s string, t domain.ContentType) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		blocks = append(blocks, ParsedBlock{Order: len(blocks), Text: s, Type: t})
	}

	var visit func(n ast.Node)
	visit = func(n ast.Node) {
		switch node := n.(type) {
		case *ast.Heading:
			emit(extractTextFromNode(node, content), domain.ContentHeading)
		case *ast.Paragraph, *ast.TextBlock:
			emit(extractTextFromNode(node, content), domain.ContentText)
		case *ast.List:
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				emit(extractTextFromNode(item, content), domain.ContentText)
			}
		case *ast.FencedCodeBlock:
			emit(codeBlockText(node, content), domain.ContentText)
		case *ast.CodeBlock:
			emit(codeBlockText(node, content), domain.ContentText)
		case *ast.Blockquote:
			for child := node.FirstChild(); child != nil; child = child.NextSibling() {
				visit(child)
			}
		case *extast.Table:
			for _, row := range tableRows(node, content) {
				emit(row, domain.ContentTable)
			}
		}
	}

	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		visit(child)
	}
	return blocks
}

// TextBlocks splits plain text into paragraph blocks on blank lines.
func TextBlocks(content []byte) []ParsedBlock {
	normalized := strings.ReplaceAll(string(content), "\r\n", "\n")
	var blocks []ParsedBlock
	for _, para := range strings.Split(normalized, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		blocks = append(blocks, ParsedBlock{
			Order: len(blocks),
			Text:  strings.Join(strings.Fields(para), " "),
			Type:  domain.ContentText,
		})
	}
	return blocks
}

// extractTextFromNode extracts text content from a node and its children.
func extractTextFromNode(n ast.Node, content []byte) string {
	var textBuilder strings.Builder

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch v := node.(type) {
		case *ast.Text:
			textBuilder.Write(v.Segment.Value(content))
			if v.SoftLineBreak() || v.HardLineBreak() {
				textBuilder.WriteByte(' ')
			}
		case *ast.String:
			textBuilder.Write(v.Value)
		case *ast.AutoLink:
			textBuilder.Write(v.Label(content))
		case *ast.Paragraph, *ast.TextBlock:
			if textBuilder.Len() > 0 {
				textBuilder.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(textBuilder.String()), " ")
}

func codeBlockText(n ast.Node, content []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(content))
	}
	return b.String()
}

// tableRows renders each body row as "header\nrow" with pipe-separated cells.
// A table with no body rows yields its header alone.
func tableRows(table *extast.Table, content []byte) []string {
	var header string
	var rows []string
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *extast.TableHeader:
			header = extractTableRowText(child, content)
		case *extast.TableRow:
			if row := extractTableRowText(child, content); row != "" {
				rows = append(rows, row)
			}
		}
	}
	if len(rows) == 0 {
		if header == "" {
			return nil
		}
		return []string{header}
	}
	if header == "" {
		return rows
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = header + "\n" + row
	}
	return out
}

// extractTableRowText extracts text from a table row, formatting cells with pipe separators.
func extractTableRowText(row ast.Node, content []byte) string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if _, ok := cell.(*extast.TableCell); !ok {
			continue
		}
		cells = append(cells, extractTextFromNode(cell, content))
	}
	if strings.TrimSpace(strings.Join(cells, "")) == "" {
		return ""
	}
	return strings.Join(cells, " | ")
}
