package leads

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"atende_backend/internal/conversation"
	domainevents "atende_backend/internal/events"
	"atende_backend/platform/events"
	"atende_backend/platform/logger"
)

type fakeLeadStore struct {
	byConversation map[uuid.UUID]*Lead
	saves          int
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{byConversation: make(map[uuid.UUID]*Lead)}
}

func (f *fakeLeadStore) FindByConversation(_ context.Context, conversationID uuid.UUID) (*Lead, error) {
	if lead, ok := f.byConversation[conversationID]; ok {
		copied := *lead
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (f *fakeLeadStore) Create(_ context.Context, lead *Lead) (*Lead, error) {
	lead.ID = uuid.New()
	copied := *lead
	f.byConversation[*lead.ConversationID] = &copied
	result := *lead
	return &result, nil
}

func (f *fakeLeadStore) Save(_ context.Context, lead *Lead) error {
	f.saves++
	copied := *lead
	f.byConversation[*lead.ConversationID] = &copied
	return nil
}

type fakeConversations struct {
	conv     *conversation.Conversation
	messages []conversation.Message
}

func (f *fakeConversations) GetByID(context.Context, uuid.UUID) (*conversation.Conversation, error) {
	copied := *f.conv
	return &copied, nil
}

func (f *fakeConversations) RecentMessages(context.Context, uuid.UUID, int) ([]conversation.Message, error) {
	return f.messages, nil
}

type fakeExtractor struct {
	extraction Extraction
	calls      int
}

func (f *fakeExtractor) ExtractLeadData(context.Context, []conversation.Message) (Extraction, error) {
	f.calls++
	return f.extraction, nil
}

func turns(n int) []conversation.Message {
	msgs := make([]conversation.Message, n)
	for i := range msgs {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		msgs[i] = conversation.Message{Role: role, Content: "msg"}
	}
	return msgs
}

func TestQualifyCreatesLeadWithSegmentAndHistory(t *testing.T) {
	store := newFakeLeadStore()
	convs := &fakeConversations{
		conv: &conversation.Conversation{
			ID:        uuid.New(),
			Channel:   "whatsapp",
			ChannelID: "11999990000",
			Segment:   conversation.SegmentCreditRepair,
		},
		messages: turns(4),
	}
	extractor := &fakeExtractor{extraction: Extraction{
		Name:            "Maria",
		NeedSummary:     "nome negativado",
		Temperature:     TemperatureWarm,
		ReadyForHandoff: false,
	}}

	q := NewQualifier(store, convs, extractor, nil)
	result, err := q.Qualify(context.Background(), convs.conv.ID)
	if err != nil {
		t.Fatalf("Qualify: %v", err)
	}

	if result.Lead == nil {
		t.Fatal("Lead is nil")
	}
	if result.Lead.Name != "Maria" || result.Lead.Temperature != TemperatureWarm {
		t.Errorf("lead = %+v", result.Lead)
	}
	if result.Lead.Status != StatusNew {
		t.Errorf("status = %q, want novo", result.Lead.Status)
	}
	if result.Lead.Phone != "+5511999990000" {
		t.Errorf("phone = %q, want normalized channel identity", result.Lead.Phone)
	}
}

func TestQualifyPublishesLeadCreated(t *testing.T) {
	store := newFakeLeadStore()
	convs := &fakeConversations{
		conv: &conversation.Conversation{
			ID:        uuid.New(),
			Channel:   "whatsapp",
			ChannelID: "11999990000",
			Segment:   conversation.SegmentCreditRepair,
		},
		messages: turns(4),
	}
	extractor := &fakeExtractor{extraction: Extraction{Temperature: TemperatureHot}}

	bus := events.NewInMemoryBus(logger.New("development"))
	created := make(chan domainevents.LeadCreated, 1)
	bus.Subscribe(domainevents.LeadCreatedName, events.HandlerFunc(func(_ context.Context, event events.Event) error {
		created <- event.(domainevents.LeadCreated)
		return nil
	}))

	q := NewQualifier(store, convs, extractor, bus)
	if _, err := q.Qualify(context.Background(), convs.conv.ID); err != nil {
		t.Fatalf("Qualify: %v", err)
	}

	select {
	case ev := <-created:
		if ev.Temperature != "quente" || ev.Segment != conversation.SegmentCreditRepair {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("LeadCreated event never arrived")
	}
}

func TestQualifySkipsWithoutSegment(t *testing.T) {
	store := newFakeLeadStore()
	convs := &fakeConversations{
		conv:     &conversation.Conversation{ID: uuid.New(), Channel: "whatsapp", ChannelID: "x"},
		messages: turns(10),
	}
	extractor := &fakeExtractor{}

	q := NewQualifier(store, convs, extractor, nil)
	result, err := q.Qualify(context.Background(), convs.conv.ID)
	if err != nil {
		t.Fatalf("Qualify: %v", err)
	}
	if result.Lead != nil {
		t.Error("lead created for unsegmented conversation")
	}
	if extractor.calls != 0 {
		t.Error("extractor called for unsegmented conversation")
	}
}

func TestQualifySkipsShortConversations(t *testing.T) {
	store := newFakeLeadStore()
	convs := &fakeConversations{
		conv: &conversation.Conversation{
			ID: uuid.New(), Channel: "whatsapp", ChannelID: "x",
			Segment: conversation.SegmentTrafficFines,
		},
		messages: turns(1),
	}
	extractor := &fakeExtractor{}

	q := NewQualifier(store, convs, extractor, nil)
	result, err := q.Qualify(context.Background(), convs.conv.ID)
	if err != nil {
		t.Fatalf("Qualify: %v", err)
	}
	if result.Lead != nil || extractor.calls != 0 {
		t.Error("qualification ran on a one-message conversation")
	}
}

func TestQualifyMergeKeepsExistingName(t *testing.T) {
	convID := uuid.New()
	store := newFakeLeadStore()
	store.byConversation[convID] = &Lead{
		ID:             uuid.New(),
		ConversationID: &convID,
		Name:           "Maria Souza",
		NeedSummary:    "dívida antiga",
		Temperature:    TemperatureCold,
	}

	convs := &fakeConversations{
		conv: &conversation.Conversation{
			ID: convID, Channel: "whatsapp", ChannelID: "x",
			Segment: conversation.SegmentCreditRepair,
		},
		messages: turns(6),
	}
	extractor := &fakeExtractor{extraction: Extraction{
		Name:            "M. S.",
		NeedSummary:     "dívida de cartão com juros",
		Temperature:     TemperatureHot,
		ReadyForHandoff: true,
	}}

	q := NewQualifier(store, convs, extractor, nil)
	result, err := q.Qualify(context.Background(), convID)
	if err != nil {
		t.Fatalf("Qualify: %v", err)
	}

	if result.Lead.Name != "Maria Souza" {
		t.Errorf("name = %q, existing name must not be overwritten", result.Lead.Name)
	}
	if result.Lead.Temperature != TemperatureHot {
		t.Errorf("temperature = %q, want updated quente", result.Lead.Temperature)
	}
	if result.Lead.NeedSummary != "dívida de cartão com juros" {
		t.Errorf("need = %q, want updated summary", result.Lead.NeedSummary)
	}
	if !result.ReadyForHandoff {
		t.Error("ReadyForHandoff = false")
	}
}

func TestQualifyMergeDoesNotBlankFields(t *testing.T) {
	convID := uuid.New()
	store := newFakeLeadStore()
	store.byConversation[convID] = &Lead{
		ID:             uuid.New(),
		ConversationID: &convID,
		Name:           "João",
		NeedSummary:    "revisão de financiamento",
		Temperature:    TemperatureWarm,
		Notes:          "prefere contato à tarde",
	}

	convs := &fakeConversations{
		conv: &conversation.Conversation{
			ID: convID, Channel: "whatsapp", ChannelID: "x",
			Segment: conversation.SegmentContractReview,
		},
		messages: turns(4),
	}
	// Extraction that found nothing new.
	extractor := &fakeExtractor{extraction: SafeDefaultExtraction()}

	q := NewQualifier(store, convs, extractor, nil)
	result, err := q.Qualify(context.Background(), convID)
	if err != nil {
		t.Fatalf("Qualify: %v", err)
	}

	lead := result.Lead
	if lead.Name != "João" || lead.NeedSummary != "revisão de financiamento" || lead.Notes != "prefere contato à tarde" {
		t.Errorf("populated fields regressed: %+v", lead)
	}
}
