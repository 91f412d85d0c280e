// Package types holds the domain structures shared across the backend.
package types

import "time"

// PlanLevel identifies a subscription tier.
type PlanLevel string

const (
	PlanGuest    PlanLevel = "guest"
	PlanFreemium PlanLevel = "freemium"
	PlanPremium  PlanLevel = "premium"
)

// ParsePlanLevel normalizes a raw tier string, defaulting to guest.
func ParsePlanLevel(raw string) PlanLevel {
	switch PlanLevel(raw) {
	case PlanFreemium, PlanPremium:
		return PlanLevel(raw)
	case "free":
		return PlanFreemium
	default:
		return PlanGuest
	}
}

// HistoryEntry is one generated-and-accepted message for a contact.
// History is capped at the most recent entries so the learned style stays current.
type HistoryEntry struct {
	ID              string
	Date            time.Time
	Occasion        string
	Tone            string
	Content         string
	SentimentScore  float64
	WasEdited       bool
	OriginalContent string
	IsUsed          bool
	// Embedding of Content, used for near-duplicate detection. May be nil.
	Embedding []float32
}

// GuardianMetadata is the learned per-contact style profile.
type GuardianMetadata struct {
	LastUserStyle    string   `json:"lastUserStyle"`
	PreferredLexicon []string `json:"preferredLexicon"`
	Trained          bool     `json:"trained"`
}

// Contact is a person the user writes to, with its relational-health state.
type Contact struct {
	ID                string
	UserID            string
	Name              string
	Relationship      string
	GrammaticalGender string

	// RelationalHealth stays in [1,10]. 1 is cold, 10 is intimate.
	RelationalHealth float64
	SnoozeCount      int
	LastInteraction  time.Time

	Guardian GuardianMetadata
	History  []HistoryEntry

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RelationalContext is what the generation path needs to know about a contact.
type RelationalContext struct {
	RelationalHealth float64
	SnoozeCount      int
	LastInteraction  time.Time
	LastUserStyle    string
	PreferredLexicon []string
}

// DefaultRelationalContext is the anonymous/guest path: neutral health, no memory.
func DefaultRelationalContext() RelationalContext {
	return RelationalContext{RelationalHealth: 5}
}

// GenerationRequest carries one message request. It is never persisted.
type GenerationRequest struct {
	UserID            string    `json:"userId"`
	ContactID         string    `json:"contactId"`
	PlanLevel         PlanLevel `json:"planLevel"`
	Occasion          string    `json:"occasion"`
	Tone              string    `json:"tone"`
	Intention         string    `json:"intention"`
	Relationship      string    `json:"relationship"`
	ContextWords      string    `json:"contextWords"`
	ReceivedText      string    `json:"receivedText"`
	GreetingMoment    string    `json:"greetingMoment"`
	GrammaticalGender string    `json:"grammaticalGender"`
	Region            string    `json:"region"`
	NeutralMode       bool      `json:"neutralMode"`
	CreativityLevel   string    `json:"creativityLevel"`
	FormatInstruction string    `json:"formatInstruction"`
}
