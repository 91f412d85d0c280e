package provider

import (
	"encoding/json"
	"strings"
)

// ReplyKind tags the shape of a model response.
type ReplyKind int

const (
	ReplyPlainText ReplyKind = iota
	ReplyStructuredMessages
)

// Message is one entry of a multi-draft envelope.
type Message struct {
	Content string `json:"content"`
	Tone    string `json:"tone,omitempty"`
}

// Reply is the tagged result of a generation call. The envelope-vs-plain-text
// decision is made once here; consumers never re-sniff JSON shapes.
type Reply struct {
	Kind     ReplyKind
	Text     string
	Messages []Message
}

type messageEnvelope struct {
	GeneratedMessages []Message `json:"generated_messages"`
}

// ParseReply classifies raw model output. A JSON object carrying a
// generated_messages list becomes a structured reply; everything else is
// plain text.
func ParseReply(raw string) Reply {
	clean := strings.TrimSpace(raw)
	if strings.HasPrefix(clean, "{") {
		start := strings.Index(clean, "{")
		end := strings.LastIndex(clean, "}")
		if start >= 0 && end > start {
			var envelope messageEnvelope
			if err := json.Unmarshal([]byte(clean[start:end+1]), &envelope); err == nil && len(envelope.GeneratedMessages) > 0 {
				return Reply{Kind: ReplyStructuredMessages, Messages: envelope.GeneratedMessages}
			}
		}
	}
	return Reply{Kind: ReplyPlainText, Text: clean}
}

// JoinedText flattens the reply into one analyzable string.
func (r Reply) JoinedText() string {
	if r.Kind == ReplyPlainText {
		return r.Text
	}
	parts := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, " ")
}

// Contains reports whether the reply carries the given text, either as the
// whole plain reply or as one draft of a structured envelope.
func (r Reply) Contains(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if r.Kind == ReplyPlainText {
		return strings.TrimSpace(r.Text) == text
	}
	for _, m := range r.Messages {
		if strings.TrimSpace(m.Content) == text {
			return true
		}
	}
	return false
}
