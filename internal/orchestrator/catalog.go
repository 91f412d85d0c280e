// Package orchestrator selects the serving model for a request and retries
// once against a designated fallback on quota or availability failures.
package orchestrator

import (
	"strings"
	"time"

	"github.com/mensajemagico/backend/internal/config"
	"github.com/mensajemagico/backend/internal/provider"
)

// QuotaClass splits models into the scarce specialists and the high-volume
// workhorses.
type QuotaClass int

const (
	QuotaGated QuotaClass = iota
	QuotaHighVolume
)

// ModelSpec is one catalog entry. Capabilities live here so adding a model
// never touches orchestrator logic.
type ModelSpec struct {
	ID     string
	Family provider.Family
	// SupportsSystemInstruction is false for families (Gemma) that only take
	// a single prompt channel; the composer concatenates for those.
	SupportsSystemInstruction bool
	QuotaClass                QuotaClass
	DailyQuota                int
}

// Catalog is the full model inventory plus the tier assignments.
type Catalog struct {
	Guest            ModelSpec
	Free             ModelSpec
	PremiumEfficient ModelSpec
	// PremiumLadder is tried in quality order when relational health clears
	// the complicity threshold; gated rungs consult the daily quota ledger.
	PremiumLadder []ModelSpec
	// GuestDelay is the artificial wait before guest-tier calls, a conversion
	// incentive for the lower tiers rather than a technical need.
	GuestDelay time.Duration
}

// Fallback is the single designated high-availability model for retries.
func (c Catalog) Fallback() ModelSpec {
	return c.PremiumEfficient
}

// familyOf infers the family from a model id. Used only when building the
// catalog from configuration; the runtime routes on the stored Family field.
func familyOf(id string) provider.Family {
	switch {
	case strings.HasPrefix(id, "gemma"):
		return provider.FamilyGemma
	case strings.HasPrefix(id, "gemini"):
		return provider.FamilyGemini
	default:
		return provider.FamilyOpenAI
	}
}

func spec(id string, class QuotaClass, quota int) ModelSpec {
	family := familyOf(id)
	return ModelSpec{
		ID:                        id,
		Family:                    family,
		SupportsSystemInstruction: family != provider.FamilyGemma,
		QuotaClass:                class,
		DailyQuota:                quota,
	}
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

const defaultGuestDelay = 8 * time.Second

// NewCatalog builds the catalog from configuration, with the stock
// Gemma/Gemini ladder as defaults. The specialist trio shares a 20 RPD quota
// each; the efficient workhorse carries 14400.
func NewCatalog(cfg config.Config) Catalog {
	guestDelay := cfg.GuestDelay
	if guestDelay == 0 {
		guestDelay = defaultGuestDelay
	}
	return Catalog{
		Guest:            spec(orDefault(cfg.ModelGuest, "gemma-3-4b-it"), QuotaHighVolume, 14400),
		Free:             spec(orDefault(cfg.ModelFree, "gemma-3-12b-it"), QuotaHighVolume, 14400),
		PremiumEfficient: spec(orDefault(cfg.ModelPremiumEfficient, "gemma-3-27b-it"), QuotaHighVolume, 14400),
		PremiumLadder: []ModelSpec{
			spec(orDefault(cfg.ModelGemini3, "gemini-3-flash-preview"), QuotaGated, 20),
			spec(orDefault(cfg.ModelGemini25, "gemini-2.5-flash"), QuotaGated, 20),
			spec(orDefault(cfg.ModelGeminiLite, "gemini-2.5-flash-lite"), QuotaGated, 20),
		},
		GuestDelay: guestDelay,
	}
}
