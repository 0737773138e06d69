// Package handoff moves conversations to human handling and notifies the
// operators who take over.
package handoff

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"atende_backend/internal/conversation"
	domainevents "atende_backend/internal/events"
	"atende_backend/internal/leads"
	"atende_backend/platform/events"
	"atende_backend/platform/logger"
)

// Notifier delivers the operator notice over one channel.
type Notifier interface {
	Send(ctx context.Context, notice string) error
}

// ConversationStatusWriter flips the conversation lifecycle state.
type ConversationStatusWriter interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status conversation.Status) error
}

// LeadStatusWriter moves the lead through the funnel.
type LeadStatusWriter interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status leads.Status) error
}

// Orchestrator executes handoffs: the durable status change comes first, so
// the assistant goes silent even when every notification channel fails.
type Orchestrator struct {
	conversations ConversationStatusWriter
	leads         LeadStatusWriter
	notifiers     []Notifier
	bus           events.Bus
	log           *logger.Logger
}

func NewOrchestrator(conversations ConversationStatusWriter, leadWriter LeadStatusWriter, notifiers []Notifier, bus events.Bus, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		conversations: conversations,
		leads:         leadWriter,
		notifiers:     notifiers,
		bus:           bus,
		log:           log,
	}
}

// Execute transfers one conversation to human handling. Notification
// failures are logged, not returned: once the status flip committed the
// handoff has happened.
func (o *Orchestrator) Execute(ctx context.Context, conv *conversation.Conversation, lead *leads.Lead, automatic bool) error {
	if err := o.conversations.UpdateStatus(ctx, conv.ID, conversation.StatusHandoff); err != nil {
		return fmt.Errorf("mark conversation handoff: %w", err)
	}
	conv.Status = conversation.StatusHandoff

	if lead != nil {
		if err := o.leads.UpdateStatus(ctx, lead.ID, leads.StatusContacted); err != nil {
			o.log.Error("handoff lead status update failed",
				"lead_id", lead.ID.String(),
				"error", err.Error(),
			)
		} else {
			lead.Status = leads.StatusContacted
		}
	}

	notice := OperatorNotice(conv, lead)
	for _, n := range o.notifiers {
		if err := n.Send(ctx, notice); err != nil {
			o.log.Error("handoff notification failed",
				"conversation_id", conv.ID.String(),
				"error", err.Error(),
			)
		}
	}

	event := domainevents.ConversationHandedOff{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		Channel:        conv.Channel,
		ChannelID:      conv.ChannelID,
		Segment:        conv.Segment,
		Automatic:      automatic,
	}
	if lead != nil {
		leadID := lead.ID
		event.LeadID = &leadID
	}
	o.bus.Publish(ctx, event)

	o.log.Info("conversation handed off",
		"conversation_id", conv.ID.String(),
		"channel", conv.Channel,
		"automatic", automatic,
	)
	return nil
}

// TransitionMessage is the farewell the end user receives when the
// assistant steps aside.
func TransitionMessage(segment conversation.Segment) string {
	switch segment {
	case conversation.SegmentCreditRepair:
		return "Vou conectar você com um dos nossos especialistas em regularização de crédito agora. Um momento! Em breve alguém entrará em contato."
	case conversation.SegmentContractReview:
		return "Vou te encaminhar para um dos nossos advogados especialistas em revisão contratual. Em breve entrarão em contato!"
	case conversation.SegmentTrafficFines:
		return "Dado o prazo, vou te conectar AGORA com um especialista em defesa de multas. Aguarde o contato!"
	default:
		return "Vou te conectar com um dos nossos especialistas. Em breve alguém entrará em contato!"
	}
}

// OperatorNotice formats the handoff summary sent to the operator channels.
func OperatorNotice(conv *conversation.Conversation, lead *leads.Lead) string {
	channelName := "Instagram"
	if conv.Channel == "whatsapp" {
		channelName = "WhatsApp"
	}

	var b strings.Builder
	b.WriteString("🔔 *NOVO LEAD - ATENDIMENTO HUMANO*\n\n")
	fmt.Fprintf(&b, "📱 Canal: %s\n", channelName)
	fmt.Fprintf(&b, "🎯 Segmento: %s\n", conv.Segment.Label())
	fmt.Fprintf(&b, "👤 Contato: %s\n", conv.ChannelID)

	if lead != nil {
		if lead.Name != "" {
			fmt.Fprintf(&b, "📛 Nome: %s\n", lead.Name)
		}
		if lead.Phone != "" {
			fmt.Fprintf(&b, "📞 Telefone: %s\n", lead.Phone)
		}
		if lead.NeedSummary != "" {
			fmt.Fprintf(&b, "📝 Necessidade: %s\n", lead.NeedSummary)
		}
		fmt.Fprintf(&b, "🌡️ Temperatura: %s\n", strings.ToUpper(string(lead.Temperature)))
		if lead.Notes != "" {
			fmt.Fprintf(&b, "📋 Obs: %s\n", lead.Notes)
		}
	}

	fmt.Fprintf(&b, "\n⏰ %s\n", time.Now().Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "\n_Responda diretamente para %s_", conv.ChannelID)
	return b.String()
}
