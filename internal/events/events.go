// Package events defines the domain events published by the conversation
// pipeline.
package events

import (
	"github.com/google/uuid"

	"atende_backend/internal/conversation"
	"atende_backend/platform/events"
)

const (
	ConversationHandedOffName = "conversation.handed_off"
	LeadCreatedName           = "lead.created"
	LeadQualifiedName         = "lead.qualified"
)

// ConversationHandedOff fires when a conversation moves to human handling.
type ConversationHandedOff struct {
	events.BaseEvent
	ConversationID uuid.UUID
	Channel        string
	ChannelID      string
	Segment        conversation.Segment
	LeadID         *uuid.UUID
	Automatic      bool // true for the long-conversation escalation, false for an explicit request
}

func (ConversationHandedOff) EventName() string { return ConversationHandedOffName }

// LeadCreated fires on the first successful qualification of a conversation.
// Temperature is carried as its raw value so the event package stays below
// the lead domain in the import graph.
type LeadCreated struct {
	events.BaseEvent
	LeadID         uuid.UUID
	ConversationID uuid.UUID
	Segment        conversation.Segment
	Temperature    string
}

func (LeadCreated) EventName() string { return LeadCreatedName }

// LeadQualified fires on every qualification pass that touched the lead.
type LeadQualified struct {
	events.BaseEvent
	LeadID          uuid.UUID
	ConversationID  uuid.UUID
	Temperature     string
	ReadyForHandoff bool
}

func (LeadQualified) EventName() string { return LeadQualifiedName }
