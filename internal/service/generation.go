// Package service is the application core: it runs a generation request
// through the plan gates, the response cache, the relational memory, and the
// model orchestrator, and queues the guardian writes that follow a served
// result.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mensajemagico/backend/internal/guardian"
	"github.com/mensajemagico/backend/internal/orchestrator"
	"github.com/mensajemagico/backend/internal/plan"
	"github.com/mensajemagico/backend/internal/prompt"
	"github.com/mensajemagico/backend/internal/provider"
	"github.com/mensajemagico/backend/internal/types"
	"github.com/mensajemagico/backend/internal/worker"
)

// Sampling defaults applied to every generation call.
const (
	defaultTopP = 0.95
	defaultTopK = 40
)

// Guardian is the relational-memory surface the service drives.
type Guardian interface {
	GetContext(ctx context.Context, userID, contactID string) (types.RelationalContext, []string)
	RecordInteraction(ctx context.Context, userID, contactID, content string) error
	MarkAsUsed(ctx context.Context, msg guardian.UsedMessage) error
}

// Executor is the orchestrator surface the service drives.
type Executor interface {
	ExecuteWithFallback(ctx context.Context, level types.PlanLevel, health float64, call orchestrator.CallFunc) (provider.Reply, orchestrator.ModelSpec, error)
	ExecuteStreamWithFallback(ctx context.Context, level types.PlanLevel, health float64, stream orchestrator.StreamFunc, emit func(provider.Chunk) error) (orchestrator.ModelSpec, error)
}

// ResponseCache stores raw generations keyed by the request plus the
// relational snapshot it was composed with.
type ResponseCache interface {
	GetResponse(ctx context.Context, req types.GenerationRequest, mem types.RelationalContext, avoidTopics []string) (string, bool)
	SetResponse(ctx context.Context, req types.GenerationRequest, mem types.RelationalContext, avoidTopics []string, text string)
}

// Router resolves the client for a model family.
type Router interface {
	For(family provider.Family) (provider.TextModel, error)
}

// Dispatcher queues guardian writes for background execution.
type Dispatcher interface {
	Dispatch(job worker.Job)
}

// Result is one successful generation.
type Result struct {
	Reply  provider.Reply
	Model  string
	Plan   plan.Config
	Cached bool
}

type GenerationService struct {
	router     Router
	executor   Executor
	memory     Guardian
	cache      ResponseCache
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewGenerationService(router Router, executor Executor, memory Guardian, cache ResponseCache, dispatcher Dispatcher, logger *slog.Logger) *GenerationService {
	return &GenerationService{
		router:     router,
		executor:   executor,
		memory:     memory,
		cache:      cache,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (s *GenerationService) validate(usage *plan.UsageState, req types.GenerationRequest) (plan.Config, error) {
	cfg, err := plan.GetConfig(req.PlanLevel)
	if err != nil {
		return plan.Config{}, err
	}
	if err := plan.ValidateAccess(usage, req.PlanLevel, plan.CheckInput{
		Occasion:     req.Occasion,
		Tone:         req.Tone,
		ContextWords: req.ContextWords,
		Intention:    req.Intention,
	}); err != nil {
		return plan.Config{}, err
	}
	return cfg, nil
}

func (s *GenerationService) generateParams(cfg plan.Config, req types.GenerationRequest, mem types.RelationalContext, avoid []string, model orchestrator.ModelSpec) provider.GenerateParams {
	composed := prompt.Compose(prompt.Input{
		Plan:                      cfg,
		Request:                   req,
		Memory:                    mem,
		AvoidTopics:               avoid,
		SupportsSystemInstruction: model.SupportsSystemInstruction,
	})
	return provider.GenerateParams{
		Model:             model.ID,
		SystemInstruction: composed.SystemInstruction,
		Prompt:            composed.UserPrompt,
		Temperature:       composed.Temperature,
		TopP:              defaultTopP,
		TopK:              defaultTopK,
		MaxTokens:         cfg.AI.MaxTokens,
	}
}

// recordInteraction queues the post-generation contact mutation: sentiment
// bonus, lastInteraction refresh, snooze reset. History stays untouched.
func (s *GenerationService) recordInteraction(req types.GenerationRequest, content string) {
	if req.ContactID == "" || strings.TrimSpace(content) == "" {
		return
	}
	userID, contactID := req.UserID, req.ContactID
	s.dispatcher.Dispatch(worker.Job{
		Name: "record_interaction",
		Run: func(ctx context.Context) error {
			return s.memory.RecordInteraction(ctx, userID, contactID, content)
		},
	})
}

// Generate runs the full single-shot pipeline. The usage state is mutated:
// the daily counter advances on every served result, cached or not.
func (s *GenerationService) Generate(ctx context.Context, usage *plan.UsageState, req types.GenerationRequest) (Result, error) {
	cfg, err := s.validate(usage, req)
	if err != nil {
		return Result{}, err
	}

	// The cache is consulted only after the relational snapshot is loaded:
	// a stale entry from before a guardian write must never be served.
	mem, avoid := s.memory.GetContext(ctx, req.UserID, req.ContactID)

	if raw, ok := s.cache.GetResponse(ctx, req, mem, avoid); ok {
		usage.GenerationsCount++
		return Result{Reply: provider.ParseReply(raw), Plan: cfg, Cached: true}, nil
	}

	var rawText string
	call := func(ctx context.Context, model orchestrator.ModelSpec) (provider.Reply, error) {
		client, err := s.router.For(model.Family)
		if err != nil {
			return provider.Reply{}, err
		}
		text, err := client.Generate(ctx, s.generateParams(cfg, req, mem, avoid, model))
		if err != nil {
			return provider.Reply{}, err
		}
		rawText = text
		return provider.ParseReply(text), nil
	}

	reply, model, err := s.executor.ExecuteWithFallback(ctx, req.PlanLevel, mem.RelationalHealth, call)
	if err != nil {
		return Result{}, err
	}

	usage.GenerationsCount++
	s.cache.SetResponse(ctx, req, mem, avoid, rawText)
	s.recordInteraction(req, reply.JoinedText())
	s.logger.Info("generation served",
		"user_id", req.UserID, "plan", req.PlanLevel, "model", model.ID, "occasion", req.Occasion)
	return Result{Reply: reply, Model: model.ID, Plan: cfg}, nil
}

// GenerateStream is the streaming pipeline. It bypasses the response cache:
// a replayed stream would collapse into one burst and defeat the purpose.
func (s *GenerationService) GenerateStream(ctx context.Context, usage *plan.UsageState, req types.GenerationRequest, emit func(provider.Chunk) error) (Result, error) {
	cfg, err := s.validate(usage, req)
	if err != nil {
		return Result{}, err
	}

	mem, avoid := s.memory.GetContext(ctx, req.UserID, req.ContactID)

	var full strings.Builder
	collecting := func(chunk provider.Chunk) error {
		full.WriteString(chunk.Text)
		return emit(chunk)
	}

	stream := func(ctx context.Context, model orchestrator.ModelSpec, emit func(provider.Chunk) error) error {
		client, err := s.router.For(model.Family)
		if err != nil {
			return err
		}
		return client.GenerateStream(ctx, s.generateParams(cfg, req, mem, avoid, model), emit)
	}

	model, err := s.executor.ExecuteStreamWithFallback(ctx, req.PlanLevel, mem.RelationalHealth, stream, collecting)
	if err != nil {
		return Result{}, err
	}

	usage.GenerationsCount++
	s.recordInteraction(req, provider.ParseReply(full.String()).JoinedText())
	s.logger.Info("stream served",
		"user_id", req.UserID, "plan", req.PlanLevel, "model", model.ID, "occasion", req.Occasion)
	return Result{Model: model.ID, Plan: cfg}, nil
}

// MarkUsed queues a confirmed send for background learning. The HTTP caller
// gets an immediate acknowledgement; learning failures only surface in logs.
func (s *GenerationService) MarkUsed(msg guardian.UsedMessage) {
	s.dispatcher.Dispatch(worker.Job{
		Name: "mark_as_used",
		Run: func(ctx context.Context) error {
			return s.memory.MarkAsUsed(ctx, msg)
		},
	})
}
