// Package provider is the boundary to the generative-AI and embedding
// services. Everything above it works with plain params, a tagged Reply, and
// a small error taxonomy.
package provider

import (
	"context"
	"fmt"
)

// Family identifies a model family; it decides which client serves a model.
type Family string

const (
	FamilyGemini Family = "gemini"
	FamilyGemma  Family = "gemma"
	// FamilyOpenAI covers any OpenAI-compatible endpoint (xAI, OpenRouter, ...).
	FamilyOpenAI Family = "openai"
)

// GenerateParams is a single generation call.
type GenerateParams struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Temperature       float64
	TopP              float64
	TopK              float64
	MaxTokens         int
}

// Chunk is one streamed fragment.
type Chunk struct {
	Text string
}

// TextModel generates text, single-shot or streamed. Implementations must
// return classifiable errors (see Classify) on quota and availability
// failures.
type TextModel interface {
	Generate(ctx context.Context, params GenerateParams) (string, error)
	GenerateStream(ctx context.Context, params GenerateParams, emit func(Chunk) error) error
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Router picks the client serving a model family.
type Router struct {
	gemini TextModel
	openai TextModel
}

// NewRouter builds a Router. The openai client may be nil when no
// OpenAI-compatible endpoint is configured.
func NewRouter(gemini, openai TextModel) *Router {
	return &Router{gemini: gemini, openai: openai}
}

// For returns the client for a family. Gemma models are served by the Gemini
// API client; the system-instruction difference is a capability flag handled
// by the prompt composer, not here.
func (r *Router) For(family Family) (TextModel, error) {
	switch family {
	case FamilyGemini, FamilyGemma:
		if r.gemini == nil {
			return nil, fmt.Errorf("gemini client not configured")
		}
		return r.gemini, nil
	case FamilyOpenAI:
		if r.openai == nil {
			return nil, fmt.Errorf("openai-compatible client not configured")
		}
		return r.openai, nil
	default:
		return nil, fmt.Errorf("unknown model family %q", family)
	}
}
