package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/mensajemagico/backend/internal/provider"
	"github.com/mensajemagico/backend/internal/types"
)

// complicityThreshold is the relational-health bar for the premium specialist
// ladder.
const complicityThreshold = 8.0

// Ledger reports and records daily per-model usage.
type Ledger interface {
	Count(ctx context.Context, model string) (int, error)
	Increment(ctx context.Context, model string) error
}

// Strategy is the initial model choice for a request.
type Strategy struct {
	Model ModelSpec
	// PreRequestDelay is an artificial wait applied before the call.
	PreRequestDelay time.Duration
}

// CallFunc executes one generation attempt against the given model.
type CallFunc func(ctx context.Context, model ModelSpec) (provider.Reply, error)

// StreamFunc executes one streaming attempt, delivering chunks through emit.
type StreamFunc func(ctx context.Context, model ModelSpec, emit func(provider.Chunk) error) error

// Orchestrator is a state machine over model identifiers: an initial
// selection per (tier, health bracket), then at most one fallback transition.
type Orchestrator struct {
	catalog Catalog
	ledger  Ledger
}

// New returns an Orchestrator.
func New(catalog Catalog, ledger Ledger) *Orchestrator {
	return &Orchestrator{catalog: catalog, ledger: ledger}
}

// SelectInitialStrategy picks the starting model for a plan tier and
// relational health. Premium users with high health walk the specialist
// ladder in quality order, each rung gated by its daily quota; everything
// else goes straight to a fixed assignment.
func (o *Orchestrator) SelectInitialStrategy(ctx context.Context, level types.PlanLevel, health float64) Strategy {
	switch level {
	case types.PlanGuest:
		return Strategy{Model: o.catalog.Guest, PreRequestDelay: o.catalog.GuestDelay}
	case types.PlanFreemium:
		return Strategy{Model: o.catalog.Free}
	case types.PlanPremium:
		if health >= complicityThreshold {
			for _, model := range o.catalog.PremiumLadder {
				if model.QuotaClass == QuotaGated {
					count, err := o.ledger.Count(ctx, model.ID)
					if err != nil {
						// A broken ledger read must not block generation; skip
						// the gated rung and keep descending.
						slog.Warn("usage ledger read failed, skipping gated model", "model", model.ID, "error", err)
						continue
					}
					if count >= model.DailyQuota {
						continue
					}
					slog.Info("orchestrator assigned specialist model", "model", model.ID, "usage", count, "quota", model.DailyQuota)
				}
				return Strategy{Model: model}
			}
			slog.Warn("specialist quota exhausted, using efficient workhorse")
		}
		return Strategy{Model: o.catalog.PremiumEfficient}
	default:
		return Strategy{Model: o.catalog.PremiumEfficient}
	}
}

func (o *Orchestrator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) recordUsage(ctx context.Context, model ModelSpec) {
	if err := o.ledger.Increment(ctx, model.ID); err != nil {
		slog.Error("failed to record model usage", "model", model.ID, "error", err)
	}
}

// ExecuteWithFallback runs call against the initially selected model and, on
// a quota or availability failure, retries exactly once against the
// designated fallback. Any other error, or a second failure, propagates
// unchanged. The ledger is incremented for whichever model ultimately served.
func (o *Orchestrator) ExecuteWithFallback(ctx context.Context, level types.PlanLevel, health float64, call CallFunc) (provider.Reply, ModelSpec, error) {
	strategy := o.SelectInitialStrategy(ctx, level, health)
	if err := o.wait(ctx, strategy.PreRequestDelay); err != nil {
		return provider.Reply{}, ModelSpec{}, err
	}

	reply, err := call(ctx, strategy.Model)
	if err == nil {
		o.recordUsage(ctx, strategy.Model)
		return reply, strategy.Model, nil
	}

	fallback := o.catalog.Fallback()
	if !provider.IsFallbackTrigger(err) || strategy.Model.ID == fallback.ID {
		return provider.Reply{}, ModelSpec{}, err
	}

	slog.Warn("generation failed, retrying on fallback model", "from", strategy.Model.ID, "to", fallback.ID, "error", err)
	reply, err = call(ctx, fallback)
	if err != nil {
		return provider.Reply{}, ModelSpec{}, err
	}
	o.recordUsage(ctx, fallback)
	return reply, fallback, nil
}

// ExecuteStreamWithFallback is the streaming variant. The fallback decision
// can only happen before the first chunk reaches the caller: once anything
// has been emitted, a failure ends the stream rather than mixing output from
// two models. Chunks already flushed are not retracted; callers must treat a
// failed stream as possibly partial.
func (o *Orchestrator) ExecuteStreamWithFallback(ctx context.Context, level types.PlanLevel, health float64, stream StreamFunc, emit func(provider.Chunk) error) (ModelSpec, error) {
	strategy := o.SelectInitialStrategy(ctx, level, health)
	if err := o.wait(ctx, strategy.PreRequestDelay); err != nil {
		return ModelSpec{}, err
	}

	emitted := false
	guarded := func(chunk provider.Chunk) error {
		emitted = true
		return emit(chunk)
	}

	err := stream(ctx, strategy.Model, guarded)
	if err == nil {
		o.recordUsage(ctx, strategy.Model)
		return strategy.Model, nil
	}

	fallback := o.catalog.Fallback()
	if emitted || !provider.IsFallbackTrigger(err) || strategy.Model.ID == fallback.ID {
		return ModelSpec{}, err
	}

	slog.Warn("stream failed before first chunk, restarting on fallback model", "from", strategy.Model.ID, "to", fallback.ID, "error", err)
	if err := stream(ctx, fallback, guarded); err != nil {
		return ModelSpec{}, err
	}
	o.recordUsage(ctx, fallback)
	return fallback, nil
}
