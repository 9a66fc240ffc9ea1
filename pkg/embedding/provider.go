// Package embedding turns text into vectors for pgvector similarity search.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Task hints how a vector will be used; some providers embed queries and
// documents differently.
type Task string

const (
	TaskQuery    Task = "RETRIEVAL_QUERY"
	TaskDocument Task = "RETRIEVAL_DOCUMENT"
)

// Provider generates text embeddings.
type Provider interface {
	Embed(ctx context.Context, text string, task Task) ([]float32, error)
	Name() string
}

// Options selects and configures a provider.
type Options struct {
	Provider      string
	OllamaBaseURL string
	OllamaModel   string
	GeminiAPIKey  string
}

// NewProvider returns the configured provider, or nil when embedding is
// disabled ("", "none").
func NewProvider(opts Options) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "none":
		return nil, nil
	case "ollama":
		return NewOllamaProvider(opts.OllamaBaseURL, opts.OllamaModel), nil
	case "gemini":
		if opts.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini embedding provider requires GOOGLE_GEMINI_API_KEY")
		}
		return NewGeminiProvider(opts.GeminiAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
}

// Normalize scales vec to unit length. pgvector cosine distance assumes
// comparable magnitudes across rows.
func Normalize(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)
	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
