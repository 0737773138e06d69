package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"atende_backend/platform/logger"
)

const (
	audioEnabledAck  = "Certo! Vou te responder em áudio quando possível."
	audioDisabledAck = "Perfeito! Vou te responder apenas por texto."
)

// Generator produces model output for a turn.
type Generator interface {
	DetectSegment(ctx context.Context, userMessage string) (Segment, error)
	GenerateReply(ctx context.Context, conv *Conversation, history []Message, userMessage string) (string, error)
}

// Synthesizer turns reply text into a stored voice note reference.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Store is the persistence surface the turn pipeline needs.
type Store interface {
	FindOrCreateActive(ctx context.Context, channel, channelID, whatsappNumber string, audioEnabled bool) (*Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	UpdateSegment(ctx context.Context, id uuid.UUID, segment Segment) error
	SetAudioEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	AppendMessage(ctx context.Context, conversationID uuid.UUID, role Role, content, audioRef string) (*Message, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
	MessageCount(ctx context.Context, conversationID uuid.UUID) (int, error)
}

// Service runs the per-turn pipeline: state resolution, classification,
// generation and optional voice synthesis.
type Service struct {
	store        Store
	generator    Generator
	synthesizer  Synthesizer // nil when voice replies are not configured
	log          *logger.Logger
	maxHistory   int
	audioMax     int
	audioDefault bool
}

func NewService(store Store, generator Generator, synthesizer Synthesizer, log *logger.Logger, maxHistory, audioMaxChars int, audioDefault bool) *Service {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	if audioMaxChars <= 0 {
		audioMaxChars = 500
	}
	return &Service{
		store:        store,
		generator:    generator,
		synthesizer:  synthesizer,
		log:          log,
		maxHistory:   maxHistory,
		audioMax:     audioMaxChars,
		audioDefault: audioDefault,
	}
}

// TurnInput is one inbound user message after webhook normalization.
type TurnInput struct {
	Channel        string
	ChannelID      string
	WhatsAppNumber string
	FixedSegment   Segment // non-empty when the receiving line is pinned to a segment
	Text           string
}

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	Conversation *Conversation
	Reply        Reply
	WantsHandoff bool
	TurnCount    int
}

// ProcessTurn runs one inbound message through the pipeline and returns the
// reply to deliver. An audio toggle request short-circuits: the preference
// is stored and acknowledged without a model call or history write.
func (s *Service) ProcessTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	conv, err := s.store.FindOrCreateActive(ctx, in.Channel, in.ChannelID, in.WhatsAppNumber, s.audioDefault)
	if err != nil {
		return nil, err
	}

	if toggle := DetectAudioToggle(in.Text); toggle != AudioToggleNone {
		enabled := toggle == AudioToggleEnable
		if err := s.store.SetAudioEnabled(ctx, conv.ID, enabled); err != nil {
			return nil, err
		}
		conv.AudioEnabled = enabled
		ack := audioDisabledAck
		if enabled {
			ack = audioEnabledAck
		}
		return &TurnResult{Conversation: conv, Reply: TextReply{Text: ack}}, nil
	}

	if err := s.resolveSegment(ctx, conv, in); err != nil {
		return nil, err
	}

	wantsHandoff := DetectsHandoffRequest(in.Text)

	if _, err := s.store.AppendMessage(ctx, conv.ID, RoleUser, in.Text, ""); err != nil {
		return nil, err
	}

	history, err := s.store.RecentMessages(ctx, conv.ID, s.maxHistory)
	if err != nil {
		return nil, err
	}

	replyText, err := s.generator.GenerateReply(ctx, conv, history, in.Text)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	reply, audioRef := s.buildReply(ctx, conv, in.Channel, replyText)

	if _, err := s.store.AppendMessage(ctx, conv.ID, RoleAssistant, replyText, audioRef); err != nil {
		return nil, err
	}

	turnCount, err := s.store.MessageCount(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	return &TurnResult{
		Conversation: conv,
		Reply:        reply,
		WantsHandoff: wantsHandoff,
		TurnCount:    turnCount,
	}, nil
}

// resolveSegment pins a segment for an unclassified conversation. A fixed
// segment on the receiving line wins over the classifier; once the
// conversation has a segment it is never reclassified.
func (s *Service) resolveSegment(ctx context.Context, conv *Conversation, in TurnInput) error {
	if conv.Segment != SegmentUnknown {
		return nil
	}

	segment := in.FixedSegment
	if segment == SegmentUnknown {
		detected, err := s.generator.DetectSegment(ctx, in.Text)
		if err != nil {
			return fmt.Errorf("detect segment: %w", err)
		}
		segment = detected
	}
	if segment == SegmentUnknown {
		return nil
	}

	if err := s.store.UpdateSegment(ctx, conv.ID, segment); err != nil {
		return err
	}
	conv.Segment = segment
	return nil
}

// buildReply decides the reply envelope. Voice notes are only attempted on
// WhatsApp, for short replies, when the user has them enabled; synthesis
// failures degrade to text without failing the turn.
func (s *Service) buildReply(ctx context.Context, conv *Conversation, channel, text string) (Reply, string) {
	if s.synthesizer == nil || !conv.AudioEnabled || channel != "whatsapp" || len([]rune(text)) > s.audioMax {
		return TextReply{Text: text}, ""
	}

	audioRef, err := s.synthesizer.Synthesize(ctx, text)
	if err != nil {
		s.log.Warn("voice_synthesis_failed",
			"conversation_id", conv.ID.String(),
			"error", err.Error(),
		)
		return TextReply{Text: text}, ""
	}
	if audioRef == "" {
		return TextReply{Text: text}, ""
	}
	return TextAndAudioReply{Text: text, AudioRef: audioRef}, audioRef
}

// Get fetches one conversation by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return s.store.GetByID(ctx, id)
}

// History returns up to limit recent messages in chronological order.
func (s *Service) History(ctx context.Context, id uuid.UUID, limit int) ([]Message, error) {
	return s.store.RecentMessages(ctx, id, limit)
}
