package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/mensajemagico/backend/internal/guardian"
	"github.com/mensajemagico/backend/internal/orchestrator"
	"github.com/mensajemagico/backend/internal/plan"
	"github.com/mensajemagico/backend/internal/provider"
	"github.com/mensajemagico/backend/internal/types"
	"github.com/mensajemagico/backend/internal/worker"
)

type fakeModel struct {
	text  string
	err   error
	calls int
	// lastParams captures what the service actually sent.
	lastParams provider.GenerateParams
}

func (f *fakeModel) Generate(_ context.Context, params provider.GenerateParams) (string, error) {
	f.calls++
	f.lastParams = params
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeModel) GenerateStream(_ context.Context, params provider.GenerateParams, emit func(provider.Chunk) error) error {
	f.calls++
	f.lastParams = params
	if f.err != nil {
		return f.err
	}
	for _, word := range strings.Fields(f.text) {
		if err := emit(provider.Chunk{Text: word + " "}); err != nil {
			return err
		}
	}
	return nil
}

type fakeRouter struct{ model *fakeModel }

func (f *fakeRouter) For(provider.Family) (provider.TextModel, error) { return f.model, nil }

// passthroughExecutor calls straight through on a fixed model, no fallback.
type passthroughExecutor struct{ model orchestrator.ModelSpec }

func (e *passthroughExecutor) ExecuteWithFallback(ctx context.Context, _ types.PlanLevel, _ float64, call orchestrator.CallFunc) (provider.Reply, orchestrator.ModelSpec, error) {
	reply, err := call(ctx, e.model)
	return reply, e.model, err
}

func (e *passthroughExecutor) ExecuteStreamWithFallback(ctx context.Context, _ types.PlanLevel, _ float64, stream orchestrator.StreamFunc, emit func(provider.Chunk) error) (orchestrator.ModelSpec, error) {
	return e.model, stream(ctx, e.model, emit)
}

type fakeGuardian struct {
	mem          types.RelationalContext
	topics       []string
	interactions []string
	marked       []guardian.UsedMessage
}

func (f *fakeGuardian) GetContext(context.Context, string, string) (types.RelationalContext, []string) {
	return f.mem, f.topics
}

func (f *fakeGuardian) RecordInteraction(_ context.Context, _, _ string, content string) error {
	f.interactions = append(f.interactions, content)
	return nil
}

func (f *fakeGuardian) MarkAsUsed(_ context.Context, msg guardian.UsedMessage) error {
	f.marked = append(f.marked, msg)
	return nil
}

// fakeCache keys entries on the same inputs the real cache hashes, so the
// tests observe hits and misses the way production would.
type fakeCache struct {
	entries map[string]string
	sets    int
	last    string
}

func fakeCacheKey(req types.GenerationRequest, mem types.RelationalContext, avoid []string) string {
	return fmt.Sprintf("%+v|%+v|%v", req, mem, avoid)
}

func (f *fakeCache) GetResponse(_ context.Context, req types.GenerationRequest, mem types.RelationalContext, avoid []string) (string, bool) {
	value, ok := f.entries[fakeCacheKey(req, mem, avoid)]
	return value, ok
}

func (f *fakeCache) SetResponse(_ context.Context, req types.GenerationRequest, mem types.RelationalContext, avoid []string, text string) {
	f.sets++
	f.last = text
	if f.entries == nil {
		f.entries = map[string]string{}
	}
	f.entries[fakeCacheKey(req, mem, avoid)] = text
}

// syncDispatcher runs jobs inline so tests can observe their effects.
type syncDispatcher struct{ names []string }

func (d *syncDispatcher) Dispatch(job worker.Job) {
	d.names = append(d.names, job.Name)
	_ = job.Run(context.Background())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func newService(model *fakeModel, cache *fakeCache, mem *fakeGuardian, dispatcher *syncDispatcher) *GenerationService {
	executor := &passthroughExecutor{model: orchestrator.ModelSpec{
		ID: "gemma-3-12b-it", Family: provider.FamilyGemma,
	}}
	return NewGenerationService(&fakeRouter{model: model}, executor, mem, cache, dispatcher, quietLogger())
}

func freemiumRequest() types.GenerationRequest {
	return types.GenerationRequest{
		UserID:    "u1",
		ContactID: "c1",
		PlanLevel: types.PlanFreemium,
		Occasion:  "pensamiento",
		Tone:      "romántico",
	}
}

func TestGenerateServesAndCounts(t *testing.T) {
	model := &fakeModel{text: "Hoy amanecí pensando en ti."}
	cache := &fakeCache{}
	svc := newService(model, cache, &fakeGuardian{mem: types.DefaultRelationalContext()}, &syncDispatcher{})

	usage := &plan.UsageState{}
	result, err := svc.Generate(context.Background(), usage, freemiumRequest())
	if err != nil {
		t.Fatal(err)
	}

	if result.Reply.Text != "Hoy amanecí pensando en ti." {
		t.Fatalf("unexpected reply: %+v", result.Reply)
	}
	if result.Model != "gemma-3-12b-it" {
		t.Fatalf("expected the serving model id, got %q", result.Model)
	}
	if usage.GenerationsCount != 1 {
		t.Fatalf("expected usage to advance, got %d", usage.GenerationsCount)
	}
	if cache.sets != 1 || cache.last != model.text {
		t.Fatalf("expected the raw text cached, got %q", cache.last)
	}
}

func TestGenerateRecordsInteraction(t *testing.T) {
	mem := &fakeGuardian{mem: types.DefaultRelationalContext()}
	dispatcher := &syncDispatcher{}
	svc := newService(&fakeModel{text: "hola"}, &fakeCache{}, mem, dispatcher)

	if _, err := svc.Generate(context.Background(), &plan.UsageState{}, freemiumRequest()); err != nil {
		t.Fatal(err)
	}

	if len(mem.interactions) != 1 || mem.interactions[0] != "hola" {
		t.Fatalf("expected one recorded interaction, got %v", mem.interactions)
	}
}

func TestGenerateWithoutContactSkipsInteraction(t *testing.T) {
	mem := &fakeGuardian{mem: types.DefaultRelationalContext()}
	svc := newService(&fakeModel{text: "hola"}, &fakeCache{}, mem, &syncDispatcher{})

	req := freemiumRequest()
	req.ContactID = ""
	if _, err := svc.Generate(context.Background(), &plan.UsageState{}, req); err != nil {
		t.Fatal(err)
	}

	if len(mem.interactions) != 0 {
		t.Fatalf("no contact means no interaction record, got %v", mem.interactions)
	}
}

func TestGenerateDeniedBeforeModelCall(t *testing.T) {
	model := &fakeModel{text: "no debería llamarse"}
	svc := newService(model, &fakeCache{}, &fakeGuardian{}, &syncDispatcher{})

	usage := &plan.UsageState{GenerationsCount: 5}
	_, err := svc.Generate(context.Background(), usage, freemiumRequest())
	var accessErr *plan.AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("expected an access error, got %v", err)
	}
	if model.calls != 0 {
		t.Fatal("a denied request must never reach the model")
	}
}

func TestGenerateCacheHitSkipsModel(t *testing.T) {
	model := &fakeModel{text: "respuesta cacheada"}
	cache := &fakeCache{}
	svc := newService(model, cache, &fakeGuardian{mem: types.DefaultRelationalContext()}, &syncDispatcher{})

	usage := &plan.UsageState{}
	if _, err := svc.Generate(context.Background(), usage, freemiumRequest()); err != nil {
		t.Fatal(err)
	}
	result, err := svc.Generate(context.Background(), usage, freemiumRequest())
	if err != nil {
		t.Fatal(err)
	}

	if !result.Cached || result.Reply.Text != "respuesta cacheada" {
		t.Fatalf("expected the cached reply, got %+v", result)
	}
	if model.calls != 1 {
		t.Fatalf("a cache hit must not call the model again, got %d calls", model.calls)
	}
	if usage.GenerationsCount != 2 {
		t.Fatal("cached results still consume a credit")
	}
}

func TestGenerateCacheInvalidatedByRelationalChange(t *testing.T) {
	model := &fakeModel{text: "versión vieja"}
	cache := &fakeCache{}
	mem := &fakeGuardian{mem: types.RelationalContext{RelationalHealth: 5}}
	svc := newService(model, cache, mem, &syncDispatcher{})

	if _, err := svc.Generate(context.Background(), &plan.UsageState{}, freemiumRequest()); err != nil {
		t.Fatal(err)
	}

	// A feedback write reshapes the snapshot; the identical request must be
	// composed fresh instead of replaying the pre-write text.
	mem.mem.RelationalHealth = 5.5
	mem.mem.PreferredLexicon = []string{"bollito"}
	model.text = "versión nueva con bollito"

	result, err := svc.Generate(context.Background(), &plan.UsageState{}, freemiumRequest())
	if err != nil {
		t.Fatal(err)
	}

	if result.Cached || result.Reply.Text != "versión nueva con bollito" {
		t.Fatalf("expected a fresh generation after the state change, got %+v", result)
	}
	if model.calls != 2 {
		t.Fatalf("expected a second model call, got %d", model.calls)
	}
}

func TestGenerateSamplingDefaults(t *testing.T) {
	model := &fakeModel{text: "hola"}
	svc := newService(model, &fakeCache{}, &fakeGuardian{mem: types.DefaultRelationalContext()}, &syncDispatcher{})

	if _, err := svc.Generate(context.Background(), &plan.UsageState{}, freemiumRequest()); err != nil {
		t.Fatal(err)
	}
	if model.lastParams.TopP != 0.95 || model.lastParams.TopK != 40 {
		t.Fatalf("unexpected sampling params: topP=%f topK=%f", model.lastParams.TopP, model.lastParams.TopK)
	}
}

func TestGenerateSingleChannelForGemma(t *testing.T) {
	model := &fakeModel{text: "hola"}
	svc := newService(model, &fakeCache{}, &fakeGuardian{mem: types.DefaultRelationalContext()}, &syncDispatcher{})

	if _, err := svc.Generate(context.Background(), &plan.UsageState{}, freemiumRequest()); err != nil {
		t.Fatal(err)
	}

	// The executor's model is a Gemma entry without system-instruction support.
	if model.lastParams.SystemInstruction != "" {
		t.Fatal("gemma calls must not carry a separate system instruction")
	}
	if !strings.Contains(model.lastParams.Prompt, "[SYSTEM_RULES]") {
		t.Fatal("gemma calls must concatenate rules into the prompt")
	}
}

func TestGenerateStructuredEnvelope(t *testing.T) {
	model := &fakeModel{text: `{"generated_messages":[{"content":"opción uno"},{"content":"opción dos"}]}`}
	svc := newService(model, &fakeCache{}, &fakeGuardian{mem: types.DefaultRelationalContext()}, &syncDispatcher{})

	result, err := svc.Generate(context.Background(), &plan.UsageState{}, freemiumRequest())
	if err != nil {
		t.Fatal(err)
	}
	if result.Reply.Kind != provider.ReplyStructuredMessages || len(result.Reply.Messages) != 2 {
		t.Fatalf("expected a parsed envelope, got %+v", result.Reply)
	}
}

func TestGenerateStreamEmitsChunks(t *testing.T) {
	model := &fakeModel{text: "uno dos tres"}
	mem := &fakeGuardian{mem: types.DefaultRelationalContext()}
	svc := newService(model, &fakeCache{}, mem, &syncDispatcher{})

	var got []string
	usage := &plan.UsageState{}
	result, err := svc.GenerateStream(context.Background(), usage, freemiumRequest(), func(c provider.Chunk) error {
		got = append(got, c.Text)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %v", got)
	}
	if result.Model != "gemma-3-12b-it" || usage.GenerationsCount != 1 {
		t.Fatalf("unexpected stream result: %+v usage=%d", result, usage.GenerationsCount)
	}
	if len(mem.interactions) != 1 || !strings.Contains(mem.interactions[0], "uno dos tres") {
		t.Fatalf("the full streamed text must feed the interaction, got %v", mem.interactions)
	}
}

func TestGenerateStreamDenied(t *testing.T) {
	model := &fakeModel{text: "nada"}
	svc := newService(model, &fakeCache{}, &fakeGuardian{}, &syncDispatcher{})

	req := freemiumRequest()
	req.Occasion = "ocasión-inexistente"
	req.PlanLevel = types.PlanGuest

	_, err := svc.GenerateStream(context.Background(), &plan.UsageState{}, req, func(provider.Chunk) error { return nil })
	var accessErr *plan.AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("expected an access error, got %v", err)
	}
	if model.calls != 0 {
		t.Fatal("a denied stream must never reach the model")
	}
}

func TestMarkUsedQueuesLearning(t *testing.T) {
	mem := &fakeGuardian{}
	dispatcher := &syncDispatcher{}
	svc := newService(&fakeModel{}, &fakeCache{}, mem, dispatcher)

	svc.MarkUsed(guardian.UsedMessage{UserID: "u1", ContactID: "c1", FinalText: "hola"})

	if len(dispatcher.names) != 1 || dispatcher.names[0] != "mark_as_used" {
		t.Fatalf("expected one queued mark_as_used job, got %v", dispatcher.names)
	}
	if len(mem.marked) != 1 || mem.marked[0].ContactID != "c1" {
		t.Fatalf("expected the guardian to receive the message, got %+v", mem.marked)
	}
}
