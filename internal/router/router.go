// Package router orchestrates one inbound message end to end: reply
// generation, delivery, escalation to human handling and periodic lead
// qualification.
package router

import (
	"context"

	"github.com/google/uuid"

	"atende_backend/internal/conversation"
	"atende_backend/internal/handoff"
	"atende_backend/internal/leads"
	"atende_backend/platform/logger"
)

// apologyReply is sent when the turn pipeline fails entirely.
const apologyReply = "Desculpe, tive um problema técnico. Pode repetir sua mensagem?"

// ReplySender delivers one reply back to the end user on their channel.
type ReplySender func(ctx context.Context, reply conversation.Reply) error

// InboundEvent is one normalized user message plus its delivery path.
type InboundEvent struct {
	Channel        string
	ChannelID      string
	WhatsAppNumber string
	FixedSegment   conversation.Segment
	Text           string
	Deliver        ReplySender
}

// Pipeline is the conversation surface the router drives.
type Pipeline interface {
	ProcessTurn(ctx context.Context, in conversation.TurnInput) (*conversation.TurnResult, error)
	Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
}

// Qualifier runs lead extraction for a conversation.
type Qualifier interface {
	Qualify(ctx context.Context, conversationID uuid.UUID) (*leads.Result, error)
}

// HandoffExecutor transfers a conversation to human handling.
type HandoffExecutor interface {
	Execute(ctx context.Context, conv *conversation.Conversation, lead *leads.Lead, automatic bool) error
}

// Router drives the full per-message flow.
type Router struct {
	pipeline  Pipeline
	qualifier Qualifier
	handoffs  HandoffExecutor
	log       *logger.Logger

	autoHandoffMinTurns int
	qualifyCadence      int
}

func New(pipeline Pipeline, qualifier Qualifier, handoffs HandoffExecutor, log *logger.Logger, autoHandoffMinTurns, qualifyCadence int) *Router {
	if autoHandoffMinTurns <= 0 {
		autoHandoffMinTurns = 16
	}
	if qualifyCadence <= 0 {
		qualifyCadence = 5
	}
	return &Router{
		pipeline:            pipeline,
		qualifier:           qualifier,
		handoffs:            handoffs,
		log:                 log,
		autoHandoffMinTurns: autoHandoffMinTurns,
		qualifyCadence:      qualifyCadence,
	}
}

// Route processes one inbound message. It never returns an error: failures
// end in an apology to the user and a log line, so a bad turn cannot poison
// the identity's task chain.
func (r *Router) Route(ctx context.Context, ev InboundEvent) {
	result, err := r.pipeline.ProcessTurn(ctx, conversation.TurnInput{
		Channel:        ev.Channel,
		ChannelID:      ev.ChannelID,
		WhatsAppNumber: ev.WhatsAppNumber,
		FixedSegment:   ev.FixedSegment,
		Text:           ev.Text,
	})
	if err != nil {
		r.log.Error("turn processing failed",
			"channel", ev.Channel,
			"channel_id", ev.ChannelID,
			"error", err.Error(),
		)
		r.sendApology(ctx, ev)
		return
	}

	// A human may have taken over while the turn was in flight. Re-read
	// the status and stay silent if so.
	conv, err := r.pipeline.Get(ctx, result.Conversation.ID)
	if err == nil && conv.Status == conversation.StatusHandoff {
		return
	}
	if err != nil {
		conv = result.Conversation
	}

	if err := ev.Deliver(ctx, result.Reply); err != nil {
		r.log.Error("reply delivery failed",
			"conversation_id", conv.ID.String(),
			"error", err.Error(),
		)
		return
	}

	if escalate, lead, automatic := r.shouldEscalate(ctx, result); escalate {
		// lead was qualified inside this same serialized turn; no message
		// for this identity can land before the handoff below completes, so
		// it is still current.
		if err := ev.Deliver(ctx, conversation.TextReply{Text: handoff.TransitionMessage(conv.Segment)}); err != nil {
			r.log.Error("transition message delivery failed",
				"conversation_id", conv.ID.String(),
				"error", err.Error(),
			)
		}
		if err := r.handoffs.Execute(ctx, conv, lead, automatic); err != nil {
			r.log.Error("handoff execution failed",
				"conversation_id", conv.ID.String(),
				"error", err.Error(),
			)
		}
		return
	}

	if result.TurnCount > 0 && result.TurnCount%r.qualifyCadence == 0 {
		if _, err := r.qualifier.Qualify(ctx, conv.ID); err != nil {
			r.log.Error("periodic lead qualification failed",
				"conversation_id", conv.ID.String(),
				"error", err.Error(),
			)
		}
	}
}

// shouldEscalate decides whether this turn ends in a handoff and returns the
// freshest lead when it does. An explicit request always escalates; long
// conversations escalate only when the lead is hot and marked ready.
func (r *Router) shouldEscalate(ctx context.Context, result *conversation.TurnResult) (bool, *leads.Lead, bool) {
	if result.WantsHandoff {
		lead := r.qualifyQuietly(ctx, result.Conversation.ID)
		return true, lead, false
	}

	if result.TurnCount < r.autoHandoffMinTurns {
		return false, nil, false
	}

	qualified, err := r.qualifier.Qualify(ctx, result.Conversation.ID)
	if err != nil {
		r.log.Error("auto-handoff qualification failed",
			"conversation_id", result.Conversation.ID.String(),
			"error", err.Error(),
		)
		return false, nil, false
	}
	if qualified.Lead != nil && qualified.Lead.Temperature == leads.TemperatureHot && qualified.ReadyForHandoff {
		return true, qualified.Lead, true
	}
	return false, nil, false
}

func (r *Router) qualifyQuietly(ctx context.Context, conversationID uuid.UUID) *leads.Lead {
	qualified, err := r.qualifier.Qualify(ctx, conversationID)
	if err != nil {
		r.log.Error("handoff qualification failed",
			"conversation_id", conversationID.String(),
			"error", err.Error(),
		)
		return nil
	}
	return qualified.Lead
}

func (r *Router) sendApology(ctx context.Context, ev InboundEvent) {
	if err := ev.Deliver(ctx, conversation.TextReply{Text: apologyReply}); err != nil {
		r.log.Error("apology delivery failed",
			"channel", ev.Channel,
			"channel_id", ev.ChannelID,
			"error", err.Error(),
		)
	}
}
