package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mensajemagico/backend/internal/guardian"
	"github.com/mensajemagico/backend/internal/plan"
	"github.com/mensajemagico/backend/internal/provider"
	"github.com/mensajemagico/backend/internal/service"
	"github.com/mensajemagico/backend/internal/types"
)

type fakeGenerator struct {
	result service.Result
	err    error
	chunks []string
	marked []guardian.UsedMessage
}

func (f *fakeGenerator) Generate(_ context.Context, usage *plan.UsageState, _ types.GenerationRequest) (service.Result, error) {
	if f.err != nil {
		return service.Result{}, f.err
	}
	usage.GenerationsCount++
	return f.result, nil
}

func (f *fakeGenerator) GenerateStream(_ context.Context, usage *plan.UsageState, _ types.GenerationRequest, emit func(provider.Chunk) error) (service.Result, error) {
	if f.err != nil {
		return service.Result{}, f.err
	}
	for _, chunk := range f.chunks {
		if err := emit(provider.Chunk{Text: chunk}); err != nil {
			return service.Result{}, err
		}
	}
	usage.GenerationsCount++
	return f.result, nil
}

func (f *fakeGenerator) MarkUsed(msg guardian.UsedMessage) {
	f.marked = append(f.marked, msg)
}

func newTestRouter(gen Generator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	return NewRouter(NewMagicHandler(gen, NewUsageTracker(), logger))
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func freemiumConfig(t *testing.T) plan.Config {
	t.Helper()
	cfg, err := plan.GetConfig(types.PlanFreemium)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestGenerateEndpoint(t *testing.T) {
	gen := &fakeGenerator{result: service.Result{
		Reply: provider.Reply{Kind: provider.ReplyPlainText, Text: "Hoy pensé en ti."},
		Model: "gemma-3-12b-it",
		Plan:  freemiumConfig(t),
	}}
	router := newTestRouter(gen)

	rec := postJSON(router, "/api/magic/generate", gin.H{
		"userId": "u1", "planLevel": "freemium", "occasion": "pensamiento",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Result           string            `json:"result"`
		RemainingCredits int               `json:"remaining_credits"`
		Monetization     plan.Monetization `json:"monetization"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Result != "Hoy pensé en ti." {
		t.Fatalf("unexpected result: %q", body.Result)
	}
	if body.RemainingCredits != 4 {
		t.Fatalf("freemium starts with 5 credits, expected 4 left, got %d", body.RemainingCredits)
	}
	if !body.Monetization.ShowAds {
		t.Fatal("freemium responses must carry the ads flag")
	}
}

func TestGenerateEndpointAccessDenied(t *testing.T) {
	gen := &fakeGenerator{err: &plan.AccessError{
		Status:  http.StatusForbidden,
		Message: "Límite diario alcanzado",
		Upsell:  plan.UpsellLimitReached,
	}}
	router := newTestRouter(gen)

	rec := postJSON(router, "/api/magic/generate", gin.H{"userId": "u1", "occasion": "amor"})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body struct {
		Error  string `json:"error"`
		Upsell string `json:"upsell"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Upsell == "" {
		t.Fatal("denials must carry an upsell message")
	}
}

func TestGenerateEndpointStructuredResult(t *testing.T) {
	gen := &fakeGenerator{result: service.Result{
		Reply: provider.Reply{
			Kind: provider.ReplyStructuredMessages,
			Messages: []provider.Message{
				{Content: "opción uno", Tone: "romántico"},
				{Content: "opción dos", Tone: "divertido"},
			},
		},
		Plan: freemiumConfig(t),
	}}
	router := newTestRouter(gen)

	rec := postJSON(router, "/api/magic/generate", gin.H{"userId": "u1", "occasion": "amor"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Result []provider.Message `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Result) != 2 || body.Result[0].Content != "opción uno" {
		t.Fatalf("unexpected structured result: %+v", body.Result)
	}
}

func TestGenerateEndpointBadJSON(t *testing.T) {
	router := newTestRouter(&fakeGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/api/magic/generate", strings.NewReader("{no es json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStreamEndpointEmitsSSE(t *testing.T) {
	gen := &fakeGenerator{
		chunks: []string{"Hoy ", "pensé ", "en ti."},
		result: service.Result{Model: "gemma-3-12b-it", Plan: freemiumConfig(t)},
	}
	router := newTestRouter(gen)

	rec := postJSON(router, "/api/magic/generate/stream", gin.H{
		"userId": "u1", "planLevel": "freemium", "occasion": "pensamiento",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected SSE content type, got %q", ct)
	}
	body := rec.Body.String()
	if strings.Count(body, `"delta"`) != 3 {
		t.Fatalf("expected 3 delta events, got: %s", body)
	}
	if !strings.Contains(body, "data: [DONE]") {
		t.Fatalf("expected the DONE terminator, got: %s", body)
	}
}

func TestStreamEndpointDeniedBeforeHeaders(t *testing.T) {
	gen := &fakeGenerator{err: &plan.AccessError{
		Status:  http.StatusForbidden,
		Message: "Tono exclusivo",
		Upsell:  plan.UpsellLockedTone,
	}}
	router := newTestRouter(gen)

	rec := postJSON(router, "/api/magic/generate/stream", gin.H{"userId": "u1"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("denial before first chunk must be a JSON 403, got %d", rec.Code)
	}
}

func TestLearnEndpoint(t *testing.T) {
	gen := &fakeGenerator{}
	router := newTestRouter(gen)

	rec := postJSON(router, "/api/guardian/learn", gin.H{
		"userId": "u1", "contactId": "c1",
		"originalText": "Hola", "finalText": "Hola bollito",
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(gen.marked) != 1 || gen.marked[0].FinalText != "Hola bollito" {
		t.Fatalf("expected the job queued, got %+v", gen.marked)
	}
}

func TestLearnEndpointValidation(t *testing.T) {
	router := newTestRouter(&fakeGenerator{})

	rec := postJSON(router, "/api/guardian/learn", gin.H{"userId": "u1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthcheck(t *testing.T) {
	router := newTestRouter(&fakeGenerator{})

	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
