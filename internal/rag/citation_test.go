package rag

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "Price is $450,000.", []string{"Price is $450,000."}},
		{"decimal", "It has 2.5 baths. Built 1998.", []string{"It has 2.5 baths.", "Built 1998."}},
		{"question and newline", "Is it zoned R1? Yes\nSee deed", []string{"Is it zoned R1?", "Yes", "See deed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitSentences(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractCitations(t *testing.T) {
	sources := []Source{
		{Marker: 1, ChunkID: "c-listing"},
		{Marker: 2, ChunkID: "c-deed"},
		{Marker: 3, ChunkID: "c-survey"},
	}

	tests := []struct {
		name   string
		answer string
		want   []Citation
	}{
		{
			name:   "no markers",
			answer: "The house has three bedrooms.",
			want:   nil,
		},
		{
			name:   "one marker per sentence",
			answer: "Listed at $450,000 [1]. The owner is Jane Smith [2].",
			want: []Citation{
				{Sentence: "Listed at $450,000 [1].", Markers: []int{1}, ChunkIDs: []string{"c-listing"}},
				{Sentence: "The owner is Jane Smith [2].", Markers: []int{2}, ChunkIDs: []string{"c-deed"}},
			},
		},
		{
			name:   "grouped and repeated markers",
			answer: "The lot is 0.25 acres [1, 3][3].",
			want: []Citation{
				{Sentence: "The lot is 0.25 acres [1, 3][3].", Markers: []int{1, 3}, ChunkIDs: []string{"c-listing", "c-survey"}},
			},
		},
		{
			name:   "out of range marker ignored",
			answer: "Taxes are $3,100 [7]. Built in 1998 [2].",
			want: []Citation{
				{Sentence: "Built in 1998 [2].", Markers: []int{2}, ChunkIDs: []string{"c-deed"}},
			},
		},
		{
			name:   "marker after full stop",
			answer: "The roof was replaced in 2019. [3] Nothing else.",
			want: []Citation{
				{Sentence: "The roof was replaced in 2019. [3]", Markers: []int{3}, ChunkIDs: []string{"c-survey"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractCitations(tt.answer, sources)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractCitations() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
