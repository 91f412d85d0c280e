package guardian

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mensajemagico/backend/internal/provider"
	"github.com/mensajemagico/backend/internal/types"
)

const (
	historyCap = 15
	lexiconCap = 60
	styleCap   = 200

	// Cosine similarity above this means the "new" message is a resend of
	// one already learned from.
	duplicateSimilarity = 0.98

	minHealth = 1.0
	maxHealth = 10.0

	avoidTopicCount = 3
	avoidTopicRunes = 80
)

// ContactRepo is the persistence surface the guardian needs.
// GetContact returns (nil, nil) for an unknown contact.
type ContactRepo interface {
	GetContact(ctx context.Context, userID, contactID string) (*types.Contact, error)
	SaveContact(ctx context.Context, contact *types.Contact) error
	SimilarHistoryExists(ctx context.Context, contactID string, embedding []float32, minSimilarity float64) (bool, error)
}

// Claimer reserves an idempotency key, returning false when it was already
// taken. A nil Claimer disables the first dedupe layer.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// UsedMessage is one confirmed send reported by the client.
type UsedMessage struct {
	UserID       string `json:"userId"`
	ContactID    string `json:"contactId"`
	OriginalText string `json:"originalText"`
	FinalText    string `json:"finalText"`
	Occasion     string `json:"occasion"`
	Tone         string `json:"tone"`
}

// Service runs the relational learning loop: context reads for generation and
// feedback writes when a message is confirmed as sent.
type Service struct {
	repo     ContactRepo
	analyzer *SentimentAnalyzer
	claimer  Claimer
	logger   *slog.Logger
	nowFunc  func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo ContactRepo, analyzer *SentimentAnalyzer, claimer Claimer, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		analyzer: analyzer,
		claimer:  claimer,
		logger:   logger,
		nowFunc:  time.Now,
		locks:    map[string]*sync.Mutex{},
	}
}

// contactLock serializes read-modify-write cycles per contact so concurrent
// feedback calls do not clobber each other.
func (s *Service) contactLock(contactID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[contactID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[contactID] = lock
	}
	return lock
}

// GetContext loads the relational snapshot used to condition generation.
// Unknown contacts and storage failures both degrade to the neutral default:
// generation must never fail because memory is unavailable. Silence decay is
// written back immediately so the stored score reflects it even if the user
// never triggers another feedback write.
func (s *Service) GetContext(ctx context.Context, userID, contactID string) (types.RelationalContext, []string) {
	if contactID == "" {
		return types.DefaultRelationalContext(), nil
	}

	lock := s.contactLock(contactID)
	lock.Lock()
	defer lock.Unlock()

	contact, err := s.repo.GetContact(ctx, userID, contactID)
	if err != nil {
		s.logger.Warn("contact load failed, neutral context applied",
			"contact_id", contactID, "error", err)
		return types.DefaultRelationalContext(), nil
	}
	if contact == nil {
		return types.DefaultRelationalContext(), nil
	}

	decayed := decayedHealth(contact.RelationalHealth, contact.LastInteraction, s.nowFunc())
	if decayed != contact.RelationalHealth {
		contact.RelationalHealth = decayed
		contact.UpdatedAt = s.nowFunc()
		if err := s.repo.SaveContact(ctx, contact); err != nil {
			s.logger.Warn("decay persist failed, serving decayed value anyway",
				"contact_id", contactID, "error", err)
		}
	}

	rc := types.RelationalContext{
		RelationalHealth: decayed,
		SnoozeCount:      contact.SnoozeCount,
		LastInteraction:  contact.LastInteraction,
		LastUserStyle:    contact.Guardian.LastUserStyle,
		PreferredLexicon: contact.Guardian.PreferredLexicon,
	}
	return rc, recentTopics(contact.History)
}

// decayedHealth applies silence decay: after three days without interaction
// the score drops 0.1 per further three-day block, never below the floor.
func decayedHealth(health float64, lastInteraction, now time.Time) float64 {
	if lastInteraction.IsZero() {
		return clampHealth(health)
	}
	days := int(now.Sub(lastInteraction).Hours() / 24)
	if days > 3 {
		health -= float64(days/3) * 0.1
	}
	return clampHealth(health)
}

func clampHealth(health float64) float64 {
	return math.Min(maxHealth, math.Max(minHealth, health))
}

// recentTopics returns short excerpts of the latest sent messages so the
// composer can forbid repeating them.
func recentTopics(history []types.HistoryEntry) []string {
	var topics []string
	for i := len(history) - 1; i >= 0 && len(topics) < avoidTopicCount; i-- {
		content := []rune(strings.TrimSpace(history[i].Content))
		if len(content) == 0 {
			continue
		}
		if len(content) > avoidTopicRunes {
			content = content[:avoidTopicRunes]
		}
		topics = append(topics, string(content))
	}
	return topics
}

// RecordInteraction applies the post-generation mutation: a sentiment bonus
// for the served content, a fresh lastInteraction, and a snooze reset. It
// never writes history; only explicit acceptance does that, so discarded and
// regenerated drafts cannot pollute the learned style.
func (s *Service) RecordInteraction(ctx context.Context, userID, contactID, content string) error {
	if contactID == "" || strings.TrimSpace(content) == "" {
		return nil
	}

	lock := s.contactLock(contactID)
	lock.Lock()
	defer lock.Unlock()

	contact, err := s.repo.GetContact(ctx, userID, contactID)
	if err != nil {
		return fmt.Errorf("record interaction: load contact: %w", err)
	}
	if contact == nil {
		return nil
	}

	delta, _ := s.analyzer.HealthDelta(ctx, content)
	now := s.nowFunc()
	contact.RelationalHealth = clampHealth(contact.RelationalHealth + delta)
	contact.SnoozeCount = 0
	contact.LastInteraction = now
	contact.UpdatedAt = now

	if err := s.repo.SaveContact(ctx, contact); err != nil {
		return fmt.Errorf("record interaction: save contact: %w", err)
	}
	return nil
}

// MarkAsUsed ingests one confirmed send: dedupes it, scores the user's edit,
// and folds the result into the contact's health, lexicon, and history.
// Calling it twice with the same payload changes nothing the second time.
func (s *Service) MarkAsUsed(ctx context.Context, msg UsedMessage) error {
	if msg.UserID == "" || msg.ContactID == "" || strings.TrimSpace(msg.FinalText) == "" {
		return fmt.Errorf("mark as used: userId, contactId and finalText are required")
	}

	if s.claimer != nil {
		claimed, err := s.claimer.Claim(ctx, usedKey(msg))
		if err != nil {
			s.logger.Warn("idempotency claim failed, relying on history dedupe", "error", err)
		} else if !claimed {
			return nil
		}
	}

	lock := s.contactLock(msg.ContactID)
	lock.Lock()
	defer lock.Unlock()

	contact, err := s.repo.GetContact(ctx, msg.UserID, msg.ContactID)
	if err != nil {
		return fmt.Errorf("mark as used: load contact: %w", err)
	}
	now := s.nowFunc()
	if contact == nil {
		contact = &types.Contact{
			ID:               msg.ContactID,
			UserID:           msg.UserID,
			RelationalHealth: types.DefaultRelationalContext().RelationalHealth,
			CreatedAt:        now,
		}
	}

	if historyContains(contact.History, msg.FinalText) {
		return nil
	}

	wasEdited := strings.TrimSpace(msg.OriginalText) != "" &&
		CalculateFriction(msg.OriginalText, msg.FinalText) > 0

	delta := neutralHealthDelta
	var embedding []float32
	if wasEdited {
		delta, embedding = s.analyzer.HealthDelta(ctx, msg.FinalText)
	} else {
		_, embedding = s.analyzer.HealthDelta(ctx, msg.FinalText)
	}

	if embedding != nil {
		duplicate, err := s.repo.SimilarHistoryExists(ctx, contact.ID, embedding, duplicateSimilarity)
		if err != nil {
			s.logger.Warn("similar history lookup failed", "contact_id", contact.ID, "error", err)
		} else if duplicate {
			return nil
		}
	}

	contact.RelationalHealth = clampHealth(contact.RelationalHealth + delta)
	contact.SnoozeCount = 0
	contact.LastInteraction = now
	contact.UpdatedAt = now

	if wasEdited {
		contact.Guardian.LastUserStyle = truncateRunes(msg.FinalText, styleCap)
		contact.Guardian.Trained = true
		contact.Guardian.PreferredLexicon = mergeLexicon(
			contact.Guardian.PreferredLexicon,
			ExtractLexicalDNA(msg.OriginalText, msg.FinalText),
		)
	} else {
		// Accepting a draft untouched is also a signal: its vocabulary enters
		// the lexicon and tokens already there move to the recent end.
		contact.Guardian.PreferredLexicon = mergeLexicon(
			contact.Guardian.PreferredLexicon,
			SignificantTokens(msg.FinalText),
		)
	}

	entry := types.HistoryEntry{
		Date:            now,
		Occasion:        msg.Occasion,
		Tone:            msg.Tone,
		Content:         msg.FinalText,
		SentimentScore:  delta,
		WasEdited:       wasEdited,
		OriginalContent: msg.OriginalText,
		IsUsed:          true,
		Embedding:       embedding,
	}
	contact.History = appendHistory(contact.History, entry)

	if mined := MineLexiconFromHistory(contact.History); len(mined) > 0 {
		contact.Guardian.PreferredLexicon = mergeLexicon(contact.Guardian.PreferredLexicon, mined)
	}

	if err := s.repo.SaveContact(ctx, contact); err != nil {
		return fmt.Errorf("mark as used: save contact: %w", err)
	}
	return nil
}

// usedKey derives the idempotency key for a confirmed send.
func usedKey(msg UsedMessage) string {
	sum := sha256.Sum256([]byte(msg.UserID + "|" + msg.ContactID + "|" + msg.FinalText))
	return "guardian:used:" + hex.EncodeToString(sum[:])
}

// historyContains matches the exact text and, for structured replies, any of
// the envelope's message variants.
func historyContains(history []types.HistoryEntry, text string) bool {
	for _, entry := range history {
		if entry.Content == text {
			return true
		}
		if reply := provider.ParseReply(entry.Content); reply.Contains(text) {
			return true
		}
	}
	return false
}

func appendHistory(history []types.HistoryEntry, entry types.HistoryEntry) []types.HistoryEntry {
	history = append(history, entry)
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	return history
}

// mergeLexicon appends incoming tokens at the most-recent end. Tokens already
// present are re-freshened by moving there; the oldest entries are evicted
// past the cap.
func mergeLexicon(existing, incoming []string) []string {
	incomingSet := make(map[string]bool, len(incoming))
	for _, tok := range incoming {
		incomingSet[tok] = true
	}

	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, tok := range existing {
		if incomingSet[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		merged = append(merged, tok)
	}
	for _, tok := range incoming {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		merged = append(merged, tok)
	}
	if len(merged) > lexiconCap {
		merged = merged[len(merged)-lexiconCap:]
	}
	return merged
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
