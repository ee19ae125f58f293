package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Known model identifiers persisted with completed itineraries.
const (
	ModelGroq   = "groq"
	ModelGemini = "gemini"
)

// Request carries everything the provider needs to write an itinerary.
type Request struct {
	Destination string
	StartDate   time.Time
	EndDate     time.Time
	Days        int
	Budget      string
	Interests   []string
}

// Result is the provider's answer plus which model produced it.
type Result struct {
	Content   string
	ModelUsed string
}

// Generator produces itinerary content from a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// BuildPrompt renders the generation prompt shared by all providers.
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a detailed %d-day travel itinerary for %s, from %s to %s.\n",
		req.Days, req.Destination,
		req.StartDate.Format("January 2, 2006"), req.EndDate.Format("January 2, 2006"))
	if req.Budget != "" {
		fmt.Fprintf(&b, "The traveler's budget is %s.\n", req.Budget)
	}
	if len(req.Interests) > 0 {
		fmt.Fprintf(&b, "Focus on these interests: %s.\n", strings.Join(req.Interests, ", "))
	}
	b.WriteString("For each day list morning, afternoon, and evening activities with suggested restaurants and approximate costs.")
	return b.String()
}
