package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"atende_backend/internal/conversation"
	"atende_backend/internal/router"
	"atende_backend/platform/logger"
)

// InstagramSender is the outbound surface for replies on Instagram.
type InstagramSender interface {
	SendMessage(ctx context.Context, userID string, text string) error
	PageID() string
}

const instagramTextOnlyReply = "Oi! Por enquanto só consigo responder mensagens de texto. Pode me contar o que você precisa?"

// metaEventPayload is the Meta webhook envelope for Instagram messaging.
type metaEventPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message struct {
				MID  string `json:"mid"`
				Text string `json:"text"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// InstagramHandler implements the Meta webhook verification handshake and
// inbound DM processing.
type InstagramHandler struct {
	dispatcher  *Dispatcher
	sender      InstagramSender
	verifyToken string
	appSecret   string
	log         *logger.Logger
}

func NewInstagramHandler(dispatcher *Dispatcher, sender InstagramSender, verifyToken, appSecret string, log *logger.Logger) *InstagramHandler {
	return &InstagramHandler{
		dispatcher:  dispatcher,
		sender:      sender,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		log:         log,
	}
}

// Verify answers the Meta subscription handshake.
// GET /webhook/instagram
func (h *InstagramHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// Handle processes inbound Instagram messaging events. Meta requires a fast
// 2xx, so the work is handed to the dispatcher before responding.
// POST /webhook/instagram
func (h *InstagramHandler) Handle(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !h.validSignature(body, c.GetHeader("X-Hub-Signature-256")) {
		h.log.Warn("instagram webhook signature rejected")
		c.Status(http.StatusForbidden)
		return
	}

	var payload metaEventPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Object != "instagram" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	for _, entry := range payload.Entry {
		for _, messaging := range entry.Messaging {
			h.processMessaging(c.Request.Context(), messaging.Sender.ID, messaging.Message.MID, messaging.Message.Text)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *InstagramHandler) processMessaging(ctx context.Context, senderID, messageID, text string) {
	if senderID == "" || senderID == h.sender.PageID() {
		return
	}

	if text == "" {
		if err := h.sender.SendMessage(ctx, senderID, instagramTextOnlyReply); err != nil {
			h.log.Error("instagram media fallback failed", "error", err.Error())
		}
		return
	}

	h.dispatcher.Dispatch(messageID, router.InboundEvent{
		Channel:   "instagram",
		ChannelID: senderID,
		Text:      text,
		Deliver:   h.deliverTo(senderID),
	})
}

// deliverTo builds the reply sender for one Instagram user. The Graph API
// only carries text, so audio variants fall back to their text.
func (h *InstagramHandler) deliverTo(userID string) router.ReplySender {
	return func(ctx context.Context, reply conversation.Reply) error {
		switch r := reply.(type) {
		case conversation.TextReply:
			return h.sender.SendMessage(ctx, userID, r.Text)
		case conversation.TextAndAudioReply:
			return h.sender.SendMessage(ctx, userID, r.Text)
		case conversation.AudioReply:
			return h.sender.SendMessage(ctx, userID, "🎧 Prefere receber essa resposta em áudio? Posso continuar nosso atendimento pelo WhatsApp! Me informe seu número.")
		default:
			return nil
		}
	}
}

// validSignature checks the Meta HMAC header. An empty app secret disables
// verification, for local development.
func (h *InstagramHandler) validSignature(body []byte, header string) bool {
	if h.appSecret == "" {
		return true
	}
	if header == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(expected))
}
