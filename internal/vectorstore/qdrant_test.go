package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"

	"realestate-rag/internal/domain"
)

func TestGrpcTarget(t *testing.T) {
	tests := []struct {
		name     string
		urlStr   string
		wantErr  bool
		wantHost string
		wantPort int
	}{
		{name: "valid URL", urlStr: "http://localhost:6333", wantHost: "localhost", wantPort: 6334},
		{name: "URL with custom port", urlStr: "http://qdrant:9000", wantHost: "qdrant", wantPort: 9001},
		{name: "invalid URL", urlStr: "://invalid", wantErr: true},
		{name: "URL without port", urlStr: "http://localhost", wantHost: "localhost", wantPort: 6334},
		{name: "URL without hostname", urlStr: "http://:6333", wantHost: "localhost", wantPort: 6334},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := grpcTarget(tt.urlStr)
			if tt.wantErr {
				if err == nil {
					t.Error("grpcTarget() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("grpcTarget() error = %v", err)
			}
			if host != tt.wantHost {
				t.Errorf("Host = %v, want %v", host, tt.wantHost)
			}
			if port != tt.wantPort {
				t.Errorf("Port = %v, want %v", port, tt.wantPort)
			}
		})
	}
}

func TestNewQdrantStore_InvalidURL(t *testing.T) {
	if _, err := NewQdrantStore("://invalid"); err == nil {
		t.Error("NewQdrantStore() with invalid URL should return error")
	}
}

func TestQdrantStore_EarlyReturns(t *testing.T) {
	store := &QdrantStore{}
	ctx := context.Background()

	if err := store.Upsert(ctx, "listings", []Point{}); err != nil {
		t.Errorf("Upsert() with empty points should return early, got: %v", err)
	}
	if err := store.Delete(ctx, "listings", nil); err != nil {
		t.Errorf("Delete() with empty IDs should return early, got: %v", err)
	}
	for _, k := range []int{0, -1} {
		if _, err := store.Search(ctx, "listings", []float32{1, 2}, k, nil); err == nil {
			t.Errorf("Search() with k=%d should return error", k)
		}
	}
	if _, err := store.Search(ctx, "listings", []float32{1}, 3, map[string]any{"bad": struct{}{}}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Search() with unsupported filter error = %v, want ErrInvalidInput", err)
	}
}

func TestToQdrantFilter(t *testing.T) {
	lo := 300000.0

	tests := []struct {
		name      string
		filters   map[string]any
		wantNil   bool
		wantConds int
		check     func(t *testing.T, f *qdrant.Filter)
	}{
		{name: "no filters", filters: nil, wantNil: true},
		{
			name:      "keyword and int",
			filters:   map[string]any{"content_type": "table", "page": 2},
			wantConds: 2,
			check: func(t *testing.T, f *qdrant.Filter) {
				// conditions are sorted by field: content_type, page
				field := f.Must[0].GetField()
				if field.GetKey() != "content_type" || field.GetMatch().GetKeyword() != "table" {
					t.Errorf("first condition = %v", field)
				}
				if f.Must[1].GetField().GetMatch().GetInteger() != 2 {
					t.Errorf("second condition = %v", f.Must[1].GetField())
				}
			},
		},
		{
			name:      "range from domain type",
			filters:   map[string]any{"price": domain.Range{Gte: &lo}},
			wantConds: 1,
			check: func(t *testing.T, f *qdrant.Filter) {
				r := f.Must[0].GetField().GetRange()
				if r == nil || r.Gte == nil || *r.Gte != lo || r.Lte != nil {
					t.Errorf("range = %v", r)
				}
			},
		},
		{
			name:      "range from decoded JSON",
			filters:   map[string]any{"price": map[string]any{"lt": 500000.0}},
			wantConds: 1,
			check: func(t *testing.T, f *qdrant.Filter) {
				r := f.Must[0].GetField().GetRange()
				if r == nil || r.Lt == nil || *r.Lt != 500000 {
					t.Errorf("range = %v", r)
				}
			},
		},
		{
			name:      "any of",
			filters:   map[string]any{"source": []any{"a.pdf", "b.pdf"}},
			wantConds: 1,
			check: func(t *testing.T, f *qdrant.Filter) {
				kw := f.Must[0].GetField().GetMatch().GetKeywords()
				if kw == nil || len(kw.GetStrings()) != 2 {
					t.Errorf("keywords = %v", kw)
				}
			},
		},
		{
			name:      "bool",
			filters:   map[string]any{"oversized": false},
			wantConds: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := toQdrantFilter(tt.filters)
			if err != nil {
				t.Fatalf("toQdrantFilter() error = %v", err)
			}
			if tt.wantNil {
				if f != nil {
					t.Errorf("toQdrantFilter() = %v, want nil", f)
				}
				return
			}
			if len(f.Must) != tt.wantConds {
				t.Fatalf("toQdrantFilter() produced %d conditions, want %d", len(f.Must), tt.wantConds)
			}
			if tt.check != nil {
				tt.check(t, f)
			}
		})
	}
}

func TestPointIDString(t *testing.T) {
	if got := pointIDString(nil); got != "" {
		t.Errorf("pointIDString(nil) = %q", got)
	}
	id := "6f1c2f4e-2a7b-5d55-9a39-0c3f0a3e8b11"
	if got := pointIDString(qdrant.NewID(id)); got != id {
		t.Errorf("pointIDString(uuid) = %q, want %q", got, id)
	}
	if got := pointIDString(qdrant.NewIDNum(42)); got != "42" {
		t.Errorf("pointIDString(num) = %q, want 42", got)
	}
}

func TestConvertPayloadToMap(t *testing.T) {
	result := convertPayloadToMap(nil)
	if result == nil || len(result) != 0 {
		t.Errorf("convertPayloadToMap(nil) = %v, want empty map", result)
	}

	payload := qdrant.NewValueMap(map[string]any{
		"document_id": "d1",
		"page":        int64(3),
		"score_hint":  0.5,
		"oversized":   true,
	})
	got := convertPayloadToMap(payload)
	if got["document_id"] != "d1" || got["page"] != int64(3) || got["score_hint"] != 0.5 || got["oversized"] != true {
		t.Errorf("convertPayloadToMap() = %v", got)
	}
}
