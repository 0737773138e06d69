// Package conversation owns the conversation state machine: status, segment
// and audio preference per end-user identity, plus the per-turn reply
// decision.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive  Status = "active"
	StatusHandoff Status = "handoff"
	StatusClosed  Status = "closed"
)

// Segment is the topical category a conversation is classified into.
// Once set to a concrete category it is sticky and never cleared by
// automated classification.
type Segment string

const (
	SegmentUnknown        Segment = ""
	SegmentCreditRepair   Segment = "LIMPA_NOMES"
	SegmentContractReview Segment = "REVISAO_CONTRATUAL"
	SegmentTrafficFines   Segment = "MULTAS_CNH"
)

// ParseSegment maps a classifier answer onto a concrete segment.
// Anything else resolves to SegmentUnknown.
func ParseSegment(raw string) Segment {
	switch Segment(raw) {
	case SegmentCreditRepair, SegmentContractReview, SegmentTrafficFines:
		return Segment(raw)
	default:
		return SegmentUnknown
	}
}

// Label returns the human-readable segment name used in operator messages.
func (s Segment) Label() string {
	switch s {
	case SegmentCreditRepair:
		return "Limpa Nomes"
	case SegmentContractReview:
		return "Revisão Contratual"
	case SegmentTrafficFines:
		return "Multas CNH"
	default:
		return "Não identificado"
	}
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation is one thread with an end user on a channel.
// At most one active conversation exists per (channel, channel identity).
type Conversation struct {
	ID             uuid.UUID
	Channel        string
	ChannelID      string
	WhatsAppNumber string // company endpoint the user wrote to, when known
	Segment        Segment
	AudioEnabled   bool
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message is one turn of a conversation. Append-only; the repository keeps
// only the most recent entries per conversation.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           Role
	Content        string
	AudioRef       string
	CreatedAt      time.Time
}

// Reply is the content envelope delivered back to the end user.
// It is a closed set of variants so a reply can never carry an ambiguous
// combination of fields.
type Reply interface {
	replyVariant()
}

// TextReply is a plain text reply.
type TextReply struct {
	Text string
}

// AudioReply is a voice-note-only reply referencing a stored audio object.
type AudioReply struct {
	AudioRef string
}

// TextAndAudioReply carries both the text and its synthesized voice note.
type TextAndAudioReply struct {
	Text     string
	AudioRef string
}

func (TextReply) replyVariant()         {}
func (AudioReply) replyVariant()        {}
func (TextAndAudioReply) replyVariant() {}
