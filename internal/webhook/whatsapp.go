package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"atende_backend/internal/conversation"
	"atende_backend/internal/router"
	"atende_backend/platform/logger"
)

// WhatsAppSender is the outbound surface for replies on WhatsApp.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, phoneNumber string, message string) error
	SendAudio(ctx context.Context, phoneNumber string, audioURL string) error
}

// AudioStore resolves a stored voice note into a fetchable URL and releases
// it once the note has been handed to the gateway.
type AudioStore interface {
	PresignURL(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
}

const unsupportedMediaReply = "Desculpe, só consigo processar mensagens de texto por enquanto. Pode digitar sua dúvida?"

// gowaPayload is the inbound message callback posted by the gowa gateway.
type gowaPayload struct {
	DeviceID string `json:"device_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Pushname string `json:"pushname"`
	Message  struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"message"`
}

// WhatsAppHandler turns gowa callbacks into inbound events.
type WhatsAppHandler struct {
	dispatcher    *Dispatcher
	sender        WhatsAppSender
	audio         AudioStore // nil when audio storage is not configured
	fixedSegments map[string]conversation.Segment
	log           *logger.Logger
}

func NewWhatsAppHandler(dispatcher *Dispatcher, sender WhatsAppSender, audio AudioStore, fixedSegments map[string]string, log *logger.Logger) *WhatsAppHandler {
	segments := make(map[string]conversation.Segment, len(fixedSegments))
	for number, raw := range fixedSegments {
		if segment := conversation.ParseSegment(raw); segment != conversation.SegmentUnknown {
			segments[number] = segment
		}
	}
	return &WhatsAppHandler{
		dispatcher:    dispatcher,
		sender:        sender,
		audio:         audio,
		fixedSegments: segments,
		log:           log,
	}
}

// Handle processes one gowa inbound callback.
// POST /webhook/whatsapp
func (h *WhatsAppHandler) Handle(c *gin.Context) {
	var payload gowaPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	phoneNumber := jidToPhone(payload.From)
	if phoneNumber == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	receivingNumber := jidToPhone(payload.To)

	if strings.TrimSpace(payload.Message.Text) == "" {
		// Media-only message. Answer outside the pipeline so the turn
		// counter is not polluted.
		if err := h.sender.SendMessage(c.Request.Context(), phoneNumber, unsupportedMediaReply); err != nil {
			h.log.Error("media fallback reply failed", "error", err.Error())
		}
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ev := router.InboundEvent{
		Channel:        "whatsapp",
		ChannelID:      phoneNumber,
		WhatsAppNumber: receivingNumber,
		FixedSegment:   h.fixedSegments[receivingNumber],
		Text:           payload.Message.Text,
		Deliver:        h.deliverTo(phoneNumber),
	}

	accepted := h.dispatcher.Dispatch(payload.Message.ID, ev)
	c.JSON(http.StatusOK, gin.H{"status": statusWord(accepted)})
}

// deliverTo builds the reply sender for one phone number. Voice notes are
// presigned just before delivery so the link is fresh when the gateway
// fetches it.
func (h *WhatsAppHandler) deliverTo(phoneNumber string) router.ReplySender {
	return func(ctx context.Context, reply conversation.Reply) error {
		switch r := reply.(type) {
		case conversation.TextReply:
			return h.sender.SendMessage(ctx, phoneNumber, r.Text)
		case conversation.AudioReply:
			return h.sendAudio(ctx, phoneNumber, r.AudioRef)
		case conversation.TextAndAudioReply:
			if err := h.sender.SendMessage(ctx, phoneNumber, r.Text); err != nil {
				return err
			}
			return h.sendAudio(ctx, phoneNumber, r.AudioRef)
		default:
			return fmt.Errorf("unknown reply variant %T", reply)
		}
	}
}

func (h *WhatsAppHandler) sendAudio(ctx context.Context, phoneNumber, audioRef string) error {
	if h.audio == nil {
		return nil
	}

	// The voice note is transient: release it after the delivery attempt,
	// whatever its outcome. The sweeper only backstops notes that were never
	// delivered at all.
	defer func() {
		if err := h.audio.Remove(ctx, audioRef); err != nil {
			h.log.Error("voice note cleanup failed", "audio_ref", audioRef, "error", err.Error())
		}
	}()

	url, err := h.audio.PresignURL(ctx, audioRef)
	if err != nil {
		return fmt.Errorf("presign voice note: %w", err)
	}
	return h.sender.SendAudio(ctx, phoneNumber, url)
}

// jidToPhone extracts the phone number from a WhatsApp JID such as
// "5511999990000@s.whatsapp.net". Plain numbers pass through unchanged.
func jidToPhone(jid string) string {
	number, _, _ := strings.Cut(jid, "@")
	return strings.TrimSpace(number)
}

func statusWord(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "dropped"
}
