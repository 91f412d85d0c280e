package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mensajemagico/backend/internal/guardian"
	"github.com/mensajemagico/backend/internal/plan"
	"github.com/mensajemagico/backend/internal/provider"
	"github.com/mensajemagico/backend/internal/service"
	"github.com/mensajemagico/backend/internal/types"
)

// Generator is the application surface the handlers call.
type Generator interface {
	Generate(ctx context.Context, usage *plan.UsageState, req types.GenerationRequest) (service.Result, error)
	GenerateStream(ctx context.Context, usage *plan.UsageState, req types.GenerationRequest, emit func(provider.Chunk) error) (service.Result, error)
	MarkUsed(msg guardian.UsedMessage)
}

// MagicHandler serves the generation and feedback endpoints.
type MagicHandler struct {
	svc    Generator
	usage  *UsageTracker
	logger *slog.Logger
}

func NewMagicHandler(svc Generator, usage *UsageTracker, logger *slog.Logger) *MagicHandler {
	return &MagicHandler{svc: svc, usage: usage, logger: logger}
}

func (h *MagicHandler) bindRequest(c *gin.Context) (types.GenerationRequest, bool) {
	var req types.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cuerpo de petición inválido"})
		return req, false
	}
	// Unknown tiers degrade to guest instead of failing.
	req.PlanLevel = types.ParsePlanLevel(string(req.PlanLevel))
	if req.UserID == "" {
		req.UserID = c.ClientIP()
	}
	return req, true
}

func writeAccessError(c *gin.Context, err error) bool {
	var accessErr *plan.AccessError
	if errors.As(err, &accessErr) {
		c.JSON(accessErr.Status, gin.H{
			"error":  accessErr.Message,
			"upsell": accessErr.Upsell,
		})
		return true
	}
	return false
}

// resultPayload shapes the success envelope: the parsed result, remaining
// daily credits, and the tier's monetization flags.
func resultPayload(result service.Result, usage plan.UsageState) gin.H {
	remaining := result.Plan.Access.DailyLimit - usage.GenerationsCount
	if remaining < 0 {
		remaining = 0
	}

	var body any
	if result.Reply.Kind == provider.ReplyStructuredMessages {
		body = result.Reply.Messages
	} else {
		body = result.Reply.Text
	}

	return gin.H{
		"result":            body,
		"model":             result.Model,
		"remaining_credits": remaining,
		"monetization":      result.Plan.Monetization,
	}
}

func (h *MagicHandler) Generate(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	usage, release := h.usage.Acquire(req.UserID)
	defer release()

	result, err := h.svc.Generate(c.Request.Context(), usage, req)
	if err != nil {
		if writeAccessError(c, err) {
			return
		}
		h.logger.Error("generation failed", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "La magia falló, inténtalo de nuevo."})
		return
	}

	c.JSON(http.StatusOK, resultPayload(result, *usage))
}

func (h *MagicHandler) GenerateStream(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	usage, release := h.usage.Acquire(req.UserID)
	defer release()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming no soportado"})
		return
	}

	headersSent := false
	sendHeaders := func() {
		if headersSent {
			return
		}
		headersSent = true
		c.Writer.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.WriteHeader(http.StatusOK)
		flusher.Flush()
	}

	result, err := h.svc.GenerateStream(c.Request.Context(), usage, req, func(chunk provider.Chunk) error {
		sendHeaders()
		payload, _ := json.Marshal(gin.H{"delta": chunk.Text})
		if _, err := c.Writer.WriteString("data: " + string(payload) + "\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !headersSent {
			if writeAccessError(c, err) {
				return
			}
			h.logger.Error("stream failed", "user_id", req.UserID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "La magia falló, inténtalo de nuevo."})
			return
		}
		// Mid-stream failure: the status line is gone, report in-band.
		payload, _ := json.Marshal(gin.H{"message": "stream interrumpido"})
		_, _ = c.Writer.WriteString("event: error\ndata: " + string(payload) + "\n\n")
		flusher.Flush()
		return
	}

	sendHeaders()
	remaining := result.Plan.Access.DailyLimit - usage.GenerationsCount
	if remaining < 0 {
		remaining = 0
	}
	payload, _ := json.Marshal(gin.H{"remaining_credits": remaining, "model": result.Model})
	_, _ = c.Writer.WriteString("event: done\ndata: " + string(payload) + "\n\n")
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	flusher.Flush()
}

func (h *MagicHandler) Learn(c *gin.Context) {
	var msg guardian.UsedMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cuerpo de petición inválido"})
		return
	}
	if msg.UserID == "" || msg.ContactID == "" || msg.FinalText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId, contactId y finalText son obligatorios"})
		return
	}

	h.svc.MarkUsed(msg)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
