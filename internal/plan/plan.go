// Package plan holds the static per-tier configuration and the access checks
// that gate every generation request.
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/mensajemagico/backend/internal/types"
)

// Monetization flags attached to a tier.
type Monetization struct {
	ShowAds   bool `json:"show_ads"`
	Watermark bool `json:"watermark"`
}

// Access describes what a tier may request.
type Access struct {
	DailyLimit int
	Occasions  []string
	// ExclusiveTones lists allowed tones; "all" unlocks everything.
	// A nil slice hard-disallows tones entirely.
	ExclusiveTones    []string
	ContextWordsLimit int
}

// AIDefaults are the per-tier generation defaults.
type AIDefaults struct {
	Model             string
	Temperature       float64
	MaxTokens         int
	PromptStyle       string
	LengthInstruction string
}

// Config is one immutable tier record, loaded once at startup.
type Config struct {
	ID           string
	Name         string
	Monetization Monetization
	Access       Access
	AI           AIDefaults
}

// Upsell messages surfaced alongside access errors.
const (
	UpsellLimitReached   = "¡Te has quedado sin créditos mágicos! Pásate a Premium para seguir escribiendo."
	UpsellLockedOccasion = "Esta ocasión es exclusiva para usuarios Premium."
	UpsellLockedTone     = "Este tono es una joya oculta. Desbloquéalo con Premium."
	UpsellContextLimit   = "La personalización con contexto es exclusiva de Premium."
)

var tiers = map[types.PlanLevel]Config{
	types.PlanGuest: {
		ID:           "plan_guest",
		Name:         "Invitado",
		Monetization: Monetization{ShowAds: true, Watermark: true},
		Access: Access{
			DailyLimit: 3,
			Occasions:  []string{"pensamiento", "responder", "amor", "birthday", "anniversary", "perdoname"},
			ExclusiveTones: []string{
				"romántico", "divertido", "corto", "formal", "profundo",
			},
			ContextWordsLimit: 0,
		},
		AI: AIDefaults{
			Model:             "gemini-2.5-flash",
			Temperature:       0.5,
			MaxTokens:         500,
			PromptStyle:       "Eres un asistente útil, breve y directo.",
			LengthInstruction: "Breve, directo al punto.",
		},
	},
	types.PlanFreemium: {
		ID:           "plan_free",
		Name:         "Mágico Free",
		Monetization: Monetization{ShowAds: true, Watermark: true},
		Access: Access{
			DailyLimit: 5,
			Occasions:  []string{"all"},
			ExclusiveTones: []string{
				"romántico", "divertido", "corto", "formal", "profundo", "directo", "sutil",
			},
			ContextWordsLimit: 0,
		},
		AI: AIDefaults{
			Model:             "gemini-2.5-flash",
			Temperature:       0.75,
			MaxTokens:         800,
			PromptStyle:       "Eres un asistente creativo, amigable y empático.",
			LengthInstruction: "Breve, directo al punto.",
		},
	},
	types.PlanPremium: {
		ID:           "plan_premium_gold",
		Name:         "Mágico Premium",
		Monetization: Monetization{ShowAds: false, Watermark: false},
		Access: Access{
			DailyLimit:        9999,
			Occasions:         []string{"all"},
			ExclusiveTones:    []string{"all"},
			ContextWordsLimit: 50,
		},
		AI: AIDefaults{
			Model:             "gemini-3-pro-preview",
			Temperature:       0.95,
			MaxTokens:         1500,
			PromptStyle:       "Eres un experto en redacción, con inteligencia emocional superior y gran creatividad.",
			LengthInstruction: "Extiéndete lo necesario, sin relleno.",
		},
	},
}

// ErrConfigNotFound indicates an unknown plan tier. It must never happen for
// valid PlanLevel values.
type ErrConfigNotFound struct {
	Level types.PlanLevel
}

func (e ErrConfigNotFound) Error() string {
	return fmt.Sprintf("plan configuration not found for tier %q", e.Level)
}

// GetConfig returns the immutable tier record.
func GetConfig(level types.PlanLevel) (Config, error) {
	cfg, ok := tiers[level]
	if !ok {
		return Config{}, ErrConfigNotFound{Level: level}
	}
	return cfg, nil
}

// AccessError is a user-facing denial. It is never retryable: the caller must
// not invoke generation after receiving one.
type AccessError struct {
	Status  int
	Message string
	Upsell  string
}

func (e *AccessError) Error() string {
	return e.Message
}

// UsageState tracks a user's daily generation count.
type UsageState struct {
	GenerationsCount int
	LastReset        time.Time
}

// CheckDailyReset zeroes the counter when the UTC day has advanced.
func (u *UsageState) CheckDailyReset(now time.Time) {
	if u.LastReset.IsZero() {
		u.LastReset = now
		return
	}
	if u.LastReset.UTC().Format("2006-01-02") != now.UTC().Format("2006-01-02") {
		u.GenerationsCount = 0
		u.LastReset = now
	}
}

// CheckInput is the request slice relevant to access validation.
type CheckInput struct {
	Occasion     string
	Tone         string
	ContextWords string
	Intention    string
}

// ValidateAccess runs the tier gates in order: daily quota, occasion, tone,
// context-word limit. Any failure aborts before an AI call is made.
func ValidateAccess(usage *UsageState, level types.PlanLevel, in CheckInput) error {
	cfg, err := GetConfig(level)
	if err != nil {
		return err
	}

	usage.CheckDailyReset(time.Now())
	if usage.GenerationsCount >= cfg.Access.DailyLimit {
		return &AccessError{Status: 403, Message: "Límite diario alcanzado", Upsell: UpsellLimitReached}
	}

	if !allowed(cfg.Access.Occasions, in.Occasion) {
		return &AccessError{Status: 403, Message: "Ocasión bloqueada en tu plan", Upsell: UpsellLockedOccasion}
	}

	if in.Tone != "" {
		if cfg.Access.ExclusiveTones == nil || !allowed(cfg.Access.ExclusiveTones, in.Tone) {
			return &AccessError{Status: 403, Message: "Tono exclusivo", Upsell: UpsellLockedTone}
		}
	}

	if in.ContextWords != "" {
		// Whitespace-only input still counts as one word: providing any
		// context at all is what the tier gates.
		words := len(strings.Fields(in.ContextWords))
		if words == 0 {
			words = 1
		}
		if words > cfg.Access.ContextWordsLimit {
			return &AccessError{
				Status:  400,
				Message: fmt.Sprintf("Tu plan solo permite %d palabras de contexto.", cfg.Access.ContextWordsLimit),
				Upsell:  UpsellContextLimit,
			}
		}
	}

	return nil
}

func allowed(list []string, value string) bool {
	for _, v := range list {
		if v == "all" || v == value {
			return true
		}
	}
	return false
}
