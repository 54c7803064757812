package loader

import (
	"testing"

	"realestate-rag/internal/domain"
)

func TestMarkdownParser_Blocks(t *testing.T) {
	content := []byte(`# 12 Oak Street

A charming *three bedroom* home
close to schools.

## Features

- New roof (2021)
- Renovated kitchen

| Room | Size |
|------|------|
| Living | 20m2 |
| Bedroom | 12m2 |

` + "```" + `
lot: 450m2
` + "```" + `

> Seller motivated.
`)

	blocks := NewMarkdownParser().Blocks(content)

	want := []struct {
		text string
		typ  domain.ContentType
	}{
		{"12 Oak Street", domain.ContentHeading},
		{"A charming three bedroom home close to schools.", domain.ContentText},
		{"Features", domain.ContentHeading},
		{"New roof (2021)", domain.ContentText},
		{"Renovated kitchen", domain.ContentText},
		{"Room | Size\nLiving | 20m2", domain.ContentTable},
		{"Room | Size\nBedroom | 12m2", domain.ContentTable},
		{"lot: 450m2", domain.ContentText},
		{"Seller motivated.", domain.ContentText},
	}

	if len(blocks) != len(want) {
		for i, b := range blocks {
			t.Logf("block %d: %q (%s)", i, b.Text, b.Type)
		}
		t.Fatalf("Blocks() returned %d blocks, want %d", len(blocks), len(want))
	}
	for i, w := range want {
		if blocks[i].Text != w.text || blocks[i].Type != w.typ {
			t.Errorf("block %d = %q (%s), want %q (%s)", i, blocks[i].Text, blocks[i].Type, w.text, w.typ)
		}
		if blocks[i].Order != i {
			t.Errorf("block %d Order = %d", i, blocks[i].Order)
		}
	}
}

func TestMarkdownParser_Blocks_Empty(t *testing.T) {
	if blocks := NewMarkdownParser().Blocks([]byte("  \n\n ")); len(blocks) != 0 {
		t.Errorf("Blocks() on blank input = %v, want none", blocks)
	}
}

func TestTextBlocks(t *testing.T) {
	content := []byte("First paragraph\nwraps here.\r\n\r\n\n\nSecond   paragraph.\n\n   \n")
	blocks := TextBlocks(content)
	if len(blocks) != 2 {
		t.Fatalf("TextBlocks() returned %d blocks, want 2", len(blocks))
	}
	if blocks[0].Text != "First paragraph wraps here." || blocks[1].Text != "Second paragraph." {
		t.Errorf("TextBlocks() = %q, %q", blocks[0].Text, blocks[1].Text)
	}
	if blocks[1].Order != 1 || blocks[1].Type != domain.ContentText {
		t.Errorf("TextBlocks() second block = %+v", blocks[1])
	}
}

func TestValidateCover(t *testing.T) {
	tests := []struct {
		name       string
		pageCount  int
		parsed     []ParsedBlock
		wantIDs    []string
		wantErrPgs []int
	}{
		{
			name:      "sorted by page then order",
			pageCount: 2,
			parsed: []ParsedBlock{
				{Page: 2, Order: 0, Text: "c"},
				{Page: 1, Order: 1, Text: "b"},
				{Page: 1, Order: 0, Text: "a"},
			},
			wantIDs: []string{"d:p1:b0", "d:p1:b1", "d:p2:b0"},
		},
		{
			name:      "overlapping blocks reject page",
			pageCount: 2,
			parsed: []ParsedBlock{
				{Page: 1, Order: 0, Text: "a"},
				{Page: 2, Order: 0, Text: "b"},
				{Page: 2, Order: 0, Text: "b again"},
			},
			wantIDs:    []string{"d:p1:b0"},
			wantErrPgs: []int{2},
		},
		{
			name:      "page out of range",
			pageCount: 1,
			parsed: []ParsedBlock{
				{Page: 1, Order: 0, Text: "a"},
				{Page: 3, Order: 0, Text: "ghost"},
			},
			wantIDs:    []string{"d:p1:b0"},
			wantErrPgs: []int{3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, errs := validateCover("d", "src.pdf", tt.pageCount, tt.parsed)
			var ids []string
			for _, b := range blocks {
				ids = append(ids, b.ID)
				if b.DocumentID != "d" {
					t.Errorf("block %s DocumentID = %q", b.ID, b.DocumentID)
				}
			}
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("validateCover() ids = %v, want %v", ids, tt.wantIDs)
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] {
					t.Errorf("validateCover() ids = %v, want %v", ids, tt.wantIDs)
					break
				}
			}
			if len(errs) != len(tt.wantErrPgs) {
				t.Fatalf("validateCover() errors = %v, want pages %v", errs, tt.wantErrPgs)
			}
			for i, e := range errs {
				if e.Page != tt.wantErrPgs[i] {
					t.Errorf("error %d page = %d, want %d", i, e.Page, tt.wantErrPgs[i])
				}
			}
		})
	}
}
