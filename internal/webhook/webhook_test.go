package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"atende_backend/internal/conversation"
	"atende_backend/internal/dedup"
	"atende_backend/internal/router"
	"atende_backend/internal/sequencer"
	"atende_backend/platform/logger"
)

type recordingRouter struct {
	mu     sync.Mutex
	events []router.InboundEvent
}

func (r *recordingRouter) Route(_ context.Context, ev router.InboundEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingRouter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingRouter, *sequencer.Sequencer) {
	t.Helper()
	log := logger.New("development")

	d := dedup.New(5 * time.Minute)
	t.Cleanup(d.Close)

	seq := sequencer.New(context.Background(), 0, 10, log)
	rec := &recordingRouter{}
	return NewDispatcher(d, seq, rec, log), rec, seq
}

func TestDispatchDropsDuplicateDeliveries(t *testing.T) {
	dispatcher, rec, seq := newTestDispatcher(t)

	ev := router.InboundEvent{Channel: "whatsapp", ChannelID: "5511999990000", Text: "oi"}

	if !dispatcher.Dispatch("msg-1", ev) {
		t.Fatal("first delivery dropped")
	}
	if dispatcher.Dispatch("msg-1", ev) {
		t.Fatal("duplicate delivery accepted")
	}

	seq.Wait()
	if rec.count() != 1 {
		t.Fatalf("routed %d events, want 1", rec.count())
	}
}

type nopInstagramSender struct{ pageID string }

func (n *nopInstagramSender) SendMessage(context.Context, string, string) error { return nil }
func (n *nopInstagramSender) PageID() string                                    { return n.pageID }

func TestInstagramVerifyHandshake(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dispatcher, _, _ := newTestDispatcher(t)
	h := NewInstagramHandler(dispatcher, &nopInstagramSender{}, "secret-token", "", logger.New("development"))

	engine := gin.New()
	engine.GET("/webhook/instagram", h.Verify)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhook/instagram?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Fatalf("verify response = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/webhook/instagram?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad token status = %d, want 403", rec.Code)
	}
}

func TestInstagramEventDispatchesMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dispatcher, routed, seq := newTestDispatcher(t)
	h := NewInstagramHandler(dispatcher, &nopInstagramSender{pageID: "page-1"}, "secret", "", logger.New("development"))

	engine := gin.New()
	engine.POST("/webhook/instagram", h.Handle)

	body := `{"object":"instagram","entry":[{"messaging":[
		{"sender":{"id":"user-9"},"message":{"mid":"m-1","text":"quero limpar meu nome"}},
		{"sender":{"id":"page-1"},"message":{"mid":"m-2","text":"echo"}}
	]}]}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/instagram", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	seq.Wait()
	if routed.count() != 1 {
		t.Fatalf("routed %d events, want 1 (echo must be dropped)", routed.count())
	}
	routed.mu.Lock()
	ev := routed.events[0]
	routed.mu.Unlock()
	if ev.Channel != "instagram" || ev.ChannelID != "user-9" {
		t.Errorf("event = %+v", ev)
	}
}

type recordingWhatsAppSender struct {
	mu        sync.Mutex
	messages  []string
	audioURLs []string
	audioErr  error
}

func (r *recordingWhatsAppSender) SendMessage(_ context.Context, _ string, message string) error {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
	return nil
}

func (r *recordingWhatsAppSender) SendAudio(_ context.Context, _ string, audioURL string) error {
	r.mu.Lock()
	r.audioURLs = append(r.audioURLs, audioURL)
	r.mu.Unlock()
	return r.audioErr
}

func TestWhatsAppHandlerRoutesTextAndPinsSegment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dispatcher, routed, seq := newTestDispatcher(t)
	sender := &recordingWhatsAppSender{}
	h := NewWhatsAppHandler(dispatcher, sender, nil, map[string]string{
		"5511888880000": "MULTAS_CNH",
	}, logger.New("development"))

	engine := gin.New()
	engine.POST("/webhook/whatsapp", h.Handle)

	body := `{"device_id":"dev-1","from":"5511999990000@s.whatsapp.net","to":"5511888880000@s.whatsapp.net",
		"message":{"id":"wamid-1","text":"tomei uma multa"}}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	seq.Wait()
	if routed.count() != 1 {
		t.Fatalf("routed %d events, want 1", routed.count())
	}
	routed.mu.Lock()
	ev := routed.events[0]
	routed.mu.Unlock()
	if ev.ChannelID != "5511999990000" {
		t.Errorf("ChannelID = %q", ev.ChannelID)
	}
	if ev.FixedSegment != "MULTAS_CNH" {
		t.Errorf("FixedSegment = %q, want MULTAS_CNH", ev.FixedSegment)
	}
}

type fakeAudioStore struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeAudioStore) PresignURL(_ context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

func (f *fakeAudioStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	f.removed = append(f.removed, key)
	f.mu.Unlock()
	return nil
}

func TestWhatsAppDeliveryReleasesVoiceNote(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher(t)
	sender := &recordingWhatsAppSender{}
	store := &fakeAudioStore{}
	h := NewWhatsAppHandler(dispatcher, sender, store, nil, logger.New("development"))

	deliver := h.deliverTo("5511999990000")

	if err := deliver(context.Background(), conversation.AudioReply{AudioRef: "audio/a1.mp3"}); err != nil {
		t.Fatalf("deliver audio: %v", err)
	}

	sender.audioErr = errors.New("gateway down")
	if err := deliver(context.Background(), conversation.TextAndAudioReply{Text: "oi", AudioRef: "audio/a2.mp3"}); err == nil {
		t.Fatal("expected delivery error")
	}

	store.mu.Lock()
	removed := append([]string(nil), store.removed...)
	store.mu.Unlock()
	if len(removed) != 2 || removed[0] != "audio/a1.mp3" || removed[1] != "audio/a2.mp3" {
		t.Errorf("removed = %v, want both voice notes released", removed)
	}
}

func TestWhatsAppHandlerMediaFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dispatcher, routed, seq := newTestDispatcher(t)
	sender := &recordingWhatsAppSender{}
	h := NewWhatsAppHandler(dispatcher, sender, nil, nil, logger.New("development"))

	engine := gin.New()
	engine.POST("/webhook/whatsapp", h.Handle)

	body := `{"from":"5511999990000@s.whatsapp.net","message":{"id":"wamid-2","text":""}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	seq.Wait()
	if routed.count() != 0 {
		t.Error("media message entered the pipeline")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.messages) != 1 || !strings.Contains(sender.messages[0], "mensagens de texto") {
		t.Errorf("fallback messages = %v", sender.messages)
	}
}
