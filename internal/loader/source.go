package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"realestate-rag/internal/domain"
)

const gcsScheme = "gs://"

// SourceReader fetches the raw bytes of a document source.
type SourceReader interface {
	Read(ctx context.Context, source string) ([]byte, error)
}

// FileSource reads documents from the local filesystem.
type FileSource struct{}

// Read returns the content of the file at path.
func (FileSource) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

// GCSSource reads documents from Google Cloud Storage URIs (gs://bucket/object).
type GCSSource struct {
	client *storage.Client
}

// NewGCSSource creates a GCS reader using application default credentials.
func NewGCSSource(ctx context.Context) (*GCSSource, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSSource{client: client}, nil
}

// Read downloads the object named by uri.
func (g *GCSSource) Read(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	reader, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", uri, err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", uri, err)
	}
	return data, nil
}

// Close releases the underlying storage client.
func (g *GCSSource) Close() error {
	return g.client.Close()
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object name.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, gcsScheme)
	if !ok {
		return "", "", &domain.ValidationError{Field: "source", Message: "not a gs:// URI"}
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", &domain.ValidationError{Field: "source", Message: "gs:// URI must name a bucket and an object"}
	}
	return bucket, object, nil
}

// NormalizeSource returns the canonical form under which source is stored:
// gs:// URIs unchanged, local paths made absolute and clean.
func NormalizeSource(source string) (string, error) {
	if strings.HasPrefix(source, gcsScheme) {
		return source, nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", source, err)
	}
	return abs, nil
}

// MultiSource dispatches to GCS for gs:// URIs and to the filesystem otherwise.
type MultiSource struct {
	File SourceReader
	GCS  SourceReader
}

// Read implements SourceReader.
func (m MultiSource) Read(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, gcsScheme) {
		if m.GCS == nil {
			return nil, fmt.Errorf("%w: %s (GCS not configured)", domain.ErrUnsupportedSource, source)
		}
		return m.GCS.Read(ctx, source)
	}
	if m.File == nil {
		return FileSource{}.Read(ctx, source)
	}
	return m.File.Read(ctx, source)
}
