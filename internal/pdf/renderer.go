package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"

	"tripflow/internal/models"
)

// Output locates the rendered artifact.
type Output struct {
	Filename string
	Path     string
}

// Renderer turns generated itinerary content into a PDF artifact.
type Renderer interface {
	Render(ctx context.Context, it models.Itinerary, content string) (Output, error)
}

// artifactStore persists a finished PDF and returns its path or URL.
type artifactStore interface {
	Save(ctx context.Context, filename string, body []byte) (string, error)
}

// DocumentRenderer builds the itinerary PDF and hands it to an artifact store
// (local directory by default, S3 when configured).
type DocumentRenderer struct {
	store artifactStore
}

// NewLocalRenderer writes PDFs under baseDir.
func NewLocalRenderer(baseDir string) *DocumentRenderer {
	if baseDir == "" {
		baseDir = "./pdfs"
	}
	return &DocumentRenderer{store: &localStore{baseDir: baseDir}}
}

// NewRendererWithStore allows callers to plug in their own artifact store.
func NewRendererWithStore(store artifactStore) *DocumentRenderer {
	return &DocumentRenderer{store: store}
}

// Render lays out the document and persists it.
func (r *DocumentRenderer) Render(ctx context.Context, it models.Itinerary, content string) (Output, error) {
	body, err := buildDocument(it, content)
	if err != nil {
		return Output{}, err
	}

	filename := fmt.Sprintf("itinerary-%s.pdf", it.ID)
	path, err := r.store.Save(ctx, filename, body)
	if err != nil {
		return Output{}, fmt.Errorf("save pdf: %w", err)
	}
	return Output{Filename: filename, Path: path}, nil
}

func buildDocument(it models.Itinerary, content string) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(fmt.Sprintf("Itinerary: %s", it.Destination), true)
	doc.SetMargins(15, 15, 15)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.MultiCell(0, 9, fmt.Sprintf("%s: %d-Day Itinerary", it.Destination, it.Days()), "", "L", false)

	doc.SetFont("Helvetica", "", 11)
	doc.MultiCell(0, 6, fmt.Sprintf("%s to %s",
		it.StartDate.Format("January 2, 2006"), it.EndDate.Format("January 2, 2006")), "", "L", false)
	if it.Budget != nil && *it.Budget != "" {
		doc.MultiCell(0, 6, "Budget: "+*it.Budget, "", "L", false)
	}
	if len(it.Interests) > 0 {
		doc.MultiCell(0, 6, "Interests: "+strings.Join(it.Interests, ", "), "", "L", false)
	}
	doc.Ln(4)

	doc.SetFont("Helvetica", "", 10)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			doc.Ln(3)
			continue
		}
		doc.MultiCell(0, 5, line, "", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type localStore struct {
	baseDir string
}

func (l *localStore) Save(_ context.Context, filename string, body []byte) (string, error) {
	path := filepath.Join(l.baseDir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}
