package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"atende_backend/internal/conversation"
	domainevents "atende_backend/internal/events"
	"atende_backend/platform/events"
	"atende_backend/platform/phone"
)

// qualifyHistoryWindow is how much history the extractor sees.
const qualifyHistoryWindow = 30

// Extractor runs the model extraction pass over a conversation.
type Extractor interface {
	ExtractLeadData(ctx context.Context, history []conversation.Message) (Extraction, error)
}

// ConversationReader is the conversation lookup surface the qualifier needs.
type ConversationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	RecentMessages(ctx context.Context, id uuid.UUID, limit int) ([]conversation.Message, error)
}

// Store is the lead persistence surface the qualifier needs.
type Store interface {
	FindByConversation(ctx context.Context, conversationID uuid.UUID) (*Lead, error)
	Create(ctx context.Context, lead *Lead) (*Lead, error)
	Save(ctx context.Context, lead *Lead) error
}

// Qualifier creates and refreshes leads from conversation history.
type Qualifier struct {
	store         Store
	conversations ConversationReader
	extractor     Extractor
	bus           events.Bus // nil disables event publishing
}

func NewQualifier(store Store, conversations ConversationReader, extractor Extractor, bus events.Bus) *Qualifier {
	return &Qualifier{store: store, conversations: conversations, extractor: extractor, bus: bus}
}

// Result is the outcome of one qualification pass. Lead is nil when the
// conversation is not yet qualifiable.
type Result struct {
	Lead            *Lead
	ReadyForHandoff bool
}

// Qualify extracts lead data for a conversation and creates or merges the
// lead record. Conversations without a segment, or with fewer than two
// turns, are skipped; any existing lead is still returned so callers can
// notify with the freshest data they have.
func (q *Qualifier) Qualify(ctx context.Context, conversationID uuid.UUID) (*Result, error) {
	conv, err := q.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	existing, err := q.store.FindByConversation(ctx, conversationID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if conv.Segment == conversation.SegmentUnknown {
		return &Result{Lead: existing}, nil
	}

	history, err := q.conversations.RecentMessages(ctx, conversationID, qualifyHistoryWindow)
	if err != nil {
		return nil, err
	}
	if len(history) < 2 {
		return &Result{Lead: existing}, nil
	}

	extracted, err := q.extractor.ExtractLeadData(ctx, history)
	if err != nil {
		return nil, fmt.Errorf("extract lead data: %w", err)
	}

	if existing == nil {
		lead, err := q.createLead(ctx, conv, extracted)
		if err != nil {
			return nil, err
		}
		if q.bus != nil {
			q.bus.Publish(ctx, domainevents.LeadCreated{
				BaseEvent:      events.NewBaseEvent(),
				LeadID:         lead.ID,
				ConversationID: conv.ID,
				Segment:        conv.Segment,
				Temperature:    string(lead.Temperature),
			})
		}
		return &Result{Lead: lead, ReadyForHandoff: extracted.ReadyForHandoff}, nil
	}

	if merge(existing, extracted) {
		if err := q.store.Save(ctx, existing); err != nil {
			return nil, err
		}
		if q.bus != nil {
			q.bus.Publish(ctx, domainevents.LeadQualified{
				BaseEvent:       events.NewBaseEvent(),
				LeadID:          existing.ID,
				ConversationID:  conv.ID,
				Temperature:     string(existing.Temperature),
				ReadyForHandoff: extracted.ReadyForHandoff,
			})
		}
	}
	return &Result{Lead: existing, ReadyForHandoff: extracted.ReadyForHandoff}, nil
}

func (q *Qualifier) createLead(ctx context.Context, conv *conversation.Conversation, extracted Extraction) (*Lead, error) {
	phoneNumber := extracted.Phone
	// Only a WhatsApp identity doubles as a phone number; an Instagram
	// channel id is an opaque user id.
	if phoneNumber == "" && conv.Channel == "whatsapp" {
		phoneNumber = conv.ChannelID
	}
	phoneNumber = phone.NormalizeE164(phoneNumber)

	temperature := extracted.Temperature
	if temperature == "" {
		temperature = TemperatureCold
	}

	convID := conv.ID
	return q.store.Create(ctx, &Lead{
		ConversationID: &convID,
		Channel:        conv.Channel,
		ChannelID:      conv.ChannelID,
		Segment:        conv.Segment,
		Name:           extracted.Name,
		Phone:          phoneNumber,
		NeedSummary:    extracted.NeedSummary,
		Temperature:    temperature,
		Status:         StatusNew,
		Notes:          extracted.Notes,
	})
}

// merge folds a fresh extraction into an existing lead. Name is fill-only;
// the remaining fields update whenever the extraction found something, so a
// later pass never blanks a populated field. Reports whether anything
// changed.
func merge(lead *Lead, extracted Extraction) bool {
	changed := false

	if extracted.Name != "" && lead.Name == "" {
		lead.Name = extracted.Name
		changed = true
	}
	if extracted.NeedSummary != "" && extracted.NeedSummary != lead.NeedSummary {
		lead.NeedSummary = extracted.NeedSummary
		changed = true
	}
	if extracted.Temperature != "" && extracted.Temperature != lead.Temperature {
		lead.Temperature = extracted.Temperature
		changed = true
	}
	if extracted.Notes != "" && extracted.Notes != lead.Notes {
		lead.Notes = extracted.Notes
		changed = true
	}
	return changed
}
