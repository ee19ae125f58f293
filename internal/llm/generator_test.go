package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGroqClient_Generate(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Day 1: Explore Lisbon"}}]}`))
	}))
	defer srv.Close()

	client := NewGroqClient(srv.URL, "test-key", 2*time.Second)
	res, err := client.Generate(context.Background(), Request{
		Destination: "Lisbon",
		StartDate:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
		Days:        3,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.ModelUsed != ModelGroq {
		t.Fatalf("model = %q", res.ModelUsed)
	}
	if !strings.Contains(res.Content, "Lisbon") {
		t.Fatalf("content = %q", res.Content)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestGroqClient_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewGroqClient(srv.URL, "k", 2*time.Second)
	if _, err := client.Generate(context.Background(), Request{Destination: "Oslo", Days: 1}); err == nil {
		t.Fatal("expected provider error")
	}
}

func TestGeminiClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "gm-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Day 1: Tokyo markets"}]}}]}`))
	}))
	defer srv.Close()

	client := NewGeminiClient(srv.URL, "gm-key", 2*time.Second)
	res, err := client.Generate(context.Background(), Request{Destination: "Tokyo", Days: 2})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.ModelUsed != ModelGemini {
		t.Fatalf("model = %q", res.ModelUsed)
	}
	if res.Content == "" {
		t.Fatal("empty content")
	}
}

type stubGenerator struct {
	res Result
	err error
}

func (s stubGenerator) Generate(context.Context, Request) (Result, error) {
	return s.res, s.err
}

func TestFallback_PrefersPrimary(t *testing.T) {
	fb := NewFallback(zap.NewNop(),
		stubGenerator{res: Result{Content: "primary", ModelUsed: ModelGroq}},
		stubGenerator{res: Result{Content: "secondary", ModelUsed: ModelGemini}},
	)
	res, err := fb.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.ModelUsed != ModelGroq {
		t.Fatalf("model = %q, want groq", res.ModelUsed)
	}
}

func TestFallback_FallsBackOnFailure(t *testing.T) {
	fb := NewFallback(zap.NewNop(),
		stubGenerator{err: errors.New("groq down")},
		stubGenerator{res: Result{Content: "plan b", ModelUsed: ModelGemini}},
	)
	res, err := fb.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.ModelUsed != ModelGemini {
		t.Fatalf("model = %q, want gemini", res.ModelUsed)
	}
}

func TestFallback_AllFail(t *testing.T) {
	fb := NewFallback(zap.NewNop(),
		stubGenerator{err: errors.New("groq down")},
		stubGenerator{err: errors.New("gemini down")},
	)
	if _, err := fb.Generate(context.Background(), Request{}); err == nil || !strings.Contains(err.Error(), "gemini down") {
		t.Fatalf("want last provider error, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(Request{
		Destination: "Kyoto",
		StartDate:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC),
		Days:        5,
		Budget:      "$2000",
		Interests:   []string{"temples", "food"},
	})
	for _, want := range []string{"5-day", "Kyoto", "$2000", "temples, food"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}
