package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"atende_backend/platform/logger"
)

type fakeStore struct {
	conversations map[uuid.UUID]*Conversation
	messages      map[uuid.UUID][]Message
	byIdentity    map[string]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[uuid.UUID]*Conversation),
		messages:      make(map[uuid.UUID][]Message),
		byIdentity:    make(map[string]uuid.UUID),
	}
}

func (f *fakeStore) FindOrCreateActive(_ context.Context, channel, channelID, whatsappNumber string, audioEnabled bool) (*Conversation, error) {
	key := channel + ":" + channelID
	if id, ok := f.byIdentity[key]; ok {
		if conv := f.conversations[id]; conv.Status == StatusActive {
			copied := *conv
			return &copied, nil
		}
	}
	conv := &Conversation{
		ID:             uuid.New(),
		Channel:        channel,
		ChannelID:      channelID,
		WhatsAppNumber: whatsappNumber,
		AudioEnabled:   audioEnabled,
		Status:         StatusActive,
	}
	f.conversations[conv.ID] = conv
	f.byIdentity[key] = conv.ID
	copied := *conv
	return &copied, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *conv
	return &copied, nil
}

func (f *fakeStore) UpdateSegment(_ context.Context, id uuid.UUID, segment Segment) error {
	f.conversations[id].Segment = segment
	return nil
}

func (f *fakeStore) SetAudioEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	f.conversations[id].AudioEnabled = enabled
	return nil
}

func (f *fakeStore) AppendMessage(_ context.Context, conversationID uuid.UUID, role Role, content, audioRef string) (*Message, error) {
	m := Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		AudioRef:       audioRef,
	}
	f.messages[conversationID] = append(f.messages[conversationID], m)
	return &m, nil
}

func (f *fakeStore) RecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	msgs := f.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeStore) MessageCount(_ context.Context, conversationID uuid.UUID) (int, error) {
	return len(f.messages[conversationID]), nil
}

type fakeGenerator struct {
	segment    Segment
	segmentErr error
	reply      string
	replyErr   error

	detectCalls int
}

func (f *fakeGenerator) DetectSegment(context.Context, string) (Segment, error) {
	f.detectCalls++
	return f.segment, f.segmentErr
}

func (f *fakeGenerator) GenerateReply(context.Context, *Conversation, []Message, string) (string, error) {
	return f.reply, f.replyErr
}

type fakeSynthesizer struct {
	ref string
	err error
}

func (f *fakeSynthesizer) Synthesize(context.Context, string) (string, error) {
	return f.ref, f.err
}

func newTestService(store *fakeStore, gen *fakeGenerator, synth Synthesizer) *Service {
	return NewService(store, gen, synth, logger.New("development"), 20, 500, true)
}

func TestProcessTurnGeneratesReplyAndPersistsBothTurns(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{segment: SegmentCreditRepair, reply: "Posso verificar a viabilidade do seu caso."}
	svc := newTestService(store, gen, nil)

	result, err := svc.ProcessTurn(context.Background(), TurnInput{
		Channel:   "whatsapp",
		ChannelID: "5511999990000",
		Text:      "meu nome está negativado no Serasa",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	text, ok := result.Reply.(TextReply)
	if !ok {
		t.Fatalf("Reply type = %T, want TextReply", result.Reply)
	}
	if text.Text != gen.reply {
		t.Errorf("reply = %q", text.Text)
	}
	if result.Conversation.Segment != SegmentCreditRepair {
		t.Errorf("segment = %q, want LIMPA_NOMES", result.Conversation.Segment)
	}
	if result.TurnCount != 2 {
		t.Errorf("TurnCount = %d, want 2", result.TurnCount)
	}

	msgs := store.messages[result.Conversation.ID]
	if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Fatalf("stored messages = %+v", msgs)
	}
}

func TestProcessTurnAudioToggleShortCircuits(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{segment: SegmentCreditRepair, reply: "should not be used"}
	svc := newTestService(store, gen, nil)

	result, err := svc.ProcessTurn(context.Background(), TurnInput{
		Channel:   "whatsapp",
		ChannelID: "5511999990000",
		Text:      "prefiro sem áudio, por favor",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	text, ok := result.Reply.(TextReply)
	if !ok || text.Text != audioDisabledAck {
		t.Fatalf("Reply = %+v, want disable acknowledgment", result.Reply)
	}
	if result.Conversation.AudioEnabled {
		t.Error("AudioEnabled still true after disable request")
	}
	if gen.detectCalls != 0 {
		t.Error("classifier called on an audio toggle turn")
	}
	if len(store.messages[result.Conversation.ID]) != 0 {
		t.Error("toggle turn was written to history")
	}
}

func TestProcessTurnStickySegmentSkipsClassifier(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{segment: SegmentCreditRepair, reply: "ok"}
	svc := newTestService(store, gen, nil)

	in := TurnInput{Channel: "whatsapp", ChannelID: "x", Text: "primeira mensagem sobre dívidas"}
	if _, err := svc.ProcessTurn(context.Background(), in); err != nil {
		t.Fatalf("first turn: %v", err)
	}

	gen.segment = SegmentTrafficFines
	in.Text = "agora quero falar de multas"
	result, err := svc.ProcessTurn(context.Background(), in)
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}

	if result.Conversation.Segment != SegmentCreditRepair {
		t.Errorf("segment = %q, want sticky LIMPA_NOMES", result.Conversation.Segment)
	}
	if gen.detectCalls != 1 {
		t.Errorf("detectCalls = %d, want 1", gen.detectCalls)
	}
}

func TestProcessTurnFixedSegmentWinsOverClassifier(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{segment: SegmentCreditRepair, reply: "ok"}
	svc := newTestService(store, gen, nil)

	result, err := svc.ProcessTurn(context.Background(), TurnInput{
		Channel:      "whatsapp",
		ChannelID:    "x",
		FixedSegment: SegmentTrafficFines,
		Text:         "recebi uma notificação",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if result.Conversation.Segment != SegmentTrafficFines {
		t.Errorf("segment = %q, want MULTAS_CNH", result.Conversation.Segment)
	}
	if gen.detectCalls != 0 {
		t.Error("classifier called despite a fixed segment")
	}
}

func TestProcessTurnDetectsHandoffRequest(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{segment: SegmentUnknown, reply: "claro"}
	svc := newTestService(store, gen, nil)

	result, err := svc.ProcessTurn(context.Background(), TurnInput{
		Channel:   "whatsapp",
		ChannelID: "x",
		Text:      "quero falar com um atendente",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if !result.WantsHandoff {
		t.Error("WantsHandoff = false for explicit request")
	}
}

func TestProcessTurnSynthesizesAudioOnWhatsApp(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{segment: SegmentUnknown, reply: "resposta curta"}
	svc := newTestService(store, gen, &fakeSynthesizer{ref: "2026-03-01/abc.mp3"})

	result, err := svc.ProcessTurn(context.Background(), TurnInput{
		Channel:   "whatsapp",
		ChannelID: "x",
		Text:      "oi",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	both, ok := result.Reply.(TextAndAudioReply)
	if !ok {
		t.Fatalf("Reply type = %T, want TextAndAudioReply", result.Reply)
	}
	if both.AudioRef != "2026-03-01/abc.mp3" {
		t.Errorf("AudioRef = %q", both.AudioRef)
	}

	msgs := store.messages[result.Conversation.ID]
	if msgs[1].AudioRef != both.AudioRef {
		t.Error("assistant message missing audio reference")
	}
}

func TestProcessTurnAudioSkippedOffWhatsApp(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{segment: SegmentUnknown, reply: "resposta"}
	svc := newTestService(store, gen, &fakeSynthesizer{ref: "x.mp3"})

	result, err := svc.ProcessTurn(context.Background(), TurnInput{
		Channel:   "instagram",
		ChannelID: "x",
		Text:      "oi",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if _, ok := result.Reply.(TextReply); !ok {
		t.Fatalf("Reply type = %T, want TextReply on instagram", result.Reply)
	}
}

func TestProcessTurnSynthesisFailureDegradesToText(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{segment: SegmentUnknown, reply: "resposta"}
	svc := newTestService(store, gen, &fakeSynthesizer{err: errors.New("tts down")})

	result, err := svc.ProcessTurn(context.Background(), TurnInput{
		Channel:   "whatsapp",
		ChannelID: "x",
		Text:      "oi",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if _, ok := result.Reply.(TextReply); !ok {
		t.Fatalf("Reply type = %T, want TextReply after synthesis failure", result.Reply)
	}
}

func TestProcessTurnGeneratorFailureFailsTurn(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{segment: SegmentUnknown, replyErr: errors.New("upstream down")}
	svc := newTestService(store, gen, nil)

	_, err := svc.ProcessTurn(context.Background(), TurnInput{
		Channel:   "whatsapp",
		ChannelID: "x",
		Text:      "oi",
	})
	if err == nil {
		t.Fatal("ProcessTurn returned nil error on generator failure")
	}
}
