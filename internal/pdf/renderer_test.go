package pdf

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tripflow/internal/models"
)

func testItinerary() models.Itinerary {
	budget := "$1500"
	return models.Itinerary{
		ID:          "11111111-2222-3333-4444-555555555555",
		Destination: "Barcelona",
		StartDate:   time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 9, 13, 0, 0, 0, 0, time.UTC),
		Budget:      &budget,
		Interests:   []string{"architecture", "tapas"},
	}
}

func TestDocumentRenderer_WritesLocalPDF(t *testing.T) {
	dir := t.TempDir()
	r := NewLocalRenderer(dir)

	out, err := r.Render(context.Background(), testItinerary(), "Day 1: Sagrada Familia\n\nDay 2: Park Guell")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.Filename != "itinerary-11111111-2222-3333-4444-555555555555.pdf" {
		t.Fatalf("filename = %q", out.Filename)
	}
	if filepath.Dir(out.Path) != dir {
		t.Fatalf("path = %q, want under %q", out.Path, dir)
	}

	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF, starts with %q", data[:4])
	}
}

type failingStore struct{}

func (failingStore) Save(context.Context, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func TestDocumentRenderer_StoreFailurePropagates(t *testing.T) {
	r := NewRendererWithStore(failingStore{})
	if _, err := r.Render(context.Background(), testItinerary(), "Day 1"); err == nil {
		t.Fatal("expected save error")
	}
}
