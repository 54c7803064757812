package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "field and message",
			err:  &ValidationError{Field: "query", Message: "cannot be empty"},
			want: "validation error on field query: cannot be empty",
		},
		{
			name: "empty field",
			err:  &ValidationError{Field: "", Message: "invalid"},
			want: "validation error on field : invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("ValidationError.Error() = %v, want %v", got, tt.want)
			}
			if !errors.Is(tt.err, ErrInvalidInput) {
				t.Error("ValidationError should match ErrInvalidInput")
			}
		})
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		msg     string
		wantNil bool
		wantMsg string
	}{
		{name: "nil error", err: nil, msg: "context", wantNil: true},
		{name: "wrapped error", err: errors.New("original error"), msg: "context", wantMsg: "context: original error"},
		{name: "wrapped sentinel", err: ErrNotFound, msg: "get document", wantMsg: "get document: not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapError(tt.err, tt.msg)
			if tt.wantNil {
				if got != nil {
					t.Errorf("WrapError() = %v, want nil", got)
				}
				return
			}
			if got.Error() != tt.wantMsg {
				t.Errorf("WrapError() = %q, want %q", got.Error(), tt.wantMsg)
			}
			if !errors.Is(got, tt.err) {
				t.Error("WrapError() should preserve the wrapped error")
			}
		})
	}
}

func TestTypedErrors_Unwrap(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
	}{
		{name: "parse error", err: &ParseError{Source: "a.pdf", Page: 2, Err: cause}},
		{name: "embedding error", err: &EmbeddingServiceError{Indexes: []int{1}, Attempts: 3, Err: cause}},
		{name: "retrieval error", err: &RetrievalError{Reason: "embed query", Err: cause}},
		{name: "generation error", err: &GenerationError{Err: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := WrapError(tt.err, "outer")
			if !errors.Is(wrapped, cause) {
				t.Errorf("errors.Is(%v, cause) = false", wrapped)
			}
		})
	}

	var pe *ParseError
	if !errors.As(WrapError(&ParseError{Page: 2, Err: cause}, "load"), &pe) || pe.Page != 2 {
		t.Error("errors.As should recover *ParseError with its page")
	}
}

func TestParseError_Error(t *testing.T) {
	withPage := &ParseError{Source: "listing.pdf", Page: 3, Err: errors.New("bad xref")}
	if got, want := withPage.Error(), "parse error in listing.pdf page 3: bad xref"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	whole := &ParseError{Source: "listing.pdf", Err: errors.New("not a pdf")}
	if got, want := whole.Error(), "parse error in listing.pdf: not a pdf"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "whitespace", text: "  \n\t ", want: 0},
		{name: "short words", text: "a bb ccc", want: 3},
		{name: "long word", text: "abcdefghi", want: 3},
		{name: "mixed", text: "3 bedroom house $450,000", want: 1 + 2 + 2 + 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestWordTokens(t *testing.T) {
	tests := []struct {
		name string
		word string
		want int
	}{
		{name: "empty counts one", word: "", want: 1},
		{name: "exactly one token", word: strings.Repeat("a", RunesPerToken), want: 1},
		{name: "one rune over", word: strings.Repeat("a", RunesPerToken+1), want: 2},
		{name: "multibyte runes", word: "ñññññññ", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WordTokens(tt.word); got != tt.want {
				t.Errorf("WordTokens(%q) = %d, want %d", tt.word, got, tt.want)
			}
		})
	}
}
