package guardian

import (
	"context"
	"log/slog"
	"math"
	"sync"
)

// Embedder turns text into a dense vector. Satisfied by provider.GenAIEmbedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Anchor phrases spanning warm and cold reactions in Mexican/Colombian
// register. Their embeddings are computed once and cached; edited drafts are
// scored against both poles.
var (
	warmAnchors = []string{
		"te amo mucho mi amor, gracias por todo",
		"qué lindo detalle, me encantó tu mensaje",
		"me haces muy feliz, eres lo mejor que me ha pasado",
		"gracias bebé, qué hermoso lo que escribiste",
	}
	coldAnchors = []string{
		"déjame en paz, no quiero hablar contigo",
		"ya no insistas, esto se acabó",
		"me da igual lo que digas",
		"no me escribas más por favor",
	}
)

const (
	strongWarmSimilarity = 0.8
	neutralHealthDelta   = 0.1
)

// SentimentAnalyzer scores the emotional direction of an edited draft as a
// health delta. Anchor embeddings are fetched lazily and reused for the
// process lifetime.
type SentimentAnalyzer struct {
	embedder Embedder
	logger   *slog.Logger

	once     sync.Once
	warm     [][]float32
	cold     [][]float32
	anchorOK bool
}

func NewSentimentAnalyzer(embedder Embedder, logger *slog.Logger) *SentimentAnalyzer {
	return &SentimentAnalyzer{embedder: embedder, logger: logger}
}

func (a *SentimentAnalyzer) loadAnchors(ctx context.Context) {
	a.once.Do(func() {
		for _, text := range warmAnchors {
			vec, err := a.embedder.Embed(ctx, text)
			if err != nil {
				a.logger.Warn("sentiment anchor embedding failed", "error", err)
				return
			}
			a.warm = append(a.warm, vec)
		}
		for _, text := range coldAnchors {
			vec, err := a.embedder.Embed(ctx, text)
			if err != nil {
				a.logger.Warn("sentiment anchor embedding failed", "error", err)
				return
			}
			a.cold = append(a.cold, vec)
		}
		a.anchorOK = true
	})
}

// HealthDelta maps an edited draft to a relational health adjustment.
// Warm-leaning text earns a bonus proportional to its similarity; cold-leaning
// text earns a token 0.05; anything ambiguous or any embedding failure yields
// the neutral 0.1. The loop must never hurt the score because of an API error.
// The returned vector is the draft's embedding, nil when embedding failed.
func (a *SentimentAnalyzer) HealthDelta(ctx context.Context, editedText string) (float64, []float32) {
	a.loadAnchors(ctx)

	vec, err := a.embedder.Embed(ctx, editedText)
	if err != nil {
		a.logger.Warn("sentiment embedding failed, neutral delta applied", "error", err)
		return neutralHealthDelta, nil
	}
	if !a.anchorOK {
		return neutralHealthDelta, vec
	}

	warmSim := maxSimilarity(vec, a.warm)
	coldSim := maxSimilarity(vec, a.cold)

	if coldSim > warmSim {
		return 0.05, vec
	}
	if warmSim > strongWarmSimilarity {
		return warmSim * 0.5, vec
	}
	return warmSim * 0.1, vec
}

func maxSimilarity(vec []float32, anchors [][]float32) float64 {
	best := -1.0
	for _, anchor := range anchors {
		if sim := CosineSimilarity(vec, anchor); sim > best {
			best = sim
		}
	}
	return best
}

// CosineSimilarity returns the cosine of the angle between two vectors, 0
// when either is degenerate.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
