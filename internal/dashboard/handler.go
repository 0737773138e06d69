// Package dashboard exposes the operator-facing admin API: funnel stats,
// lead listings and CSV export.
package dashboard

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"atende_backend/internal/conversation"
	"atende_backend/internal/http/response"
	"atende_backend/internal/leads"
	"atende_backend/platform/apperr"
	"atende_backend/platform/logger"
	"atende_backend/platform/validator"
)

// Pinger exposes a connectivity check, typically the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the admin endpoints.
type Handler struct {
	conversations *conversation.Repository
	leads         *leads.Repository
	db            Pinger
	val           *validator.Validator
	log           *logger.Logger
	startedAt     time.Time
}

func NewHandler(conversations *conversation.Repository, leadRepo *leads.Repository, db Pinger, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{
		conversations: conversations,
		leads:         leadRepo,
		db:            db,
		val:           val,
		log:           log,
		startedAt:     time.Now(),
	}
}

// Status is the public service banner.
// GET /status
func (h *Handler) Status(c *gin.Context) {
	response.OK(c, gin.H{
		"service":   "atende-backend",
		"status":    "online",
		"timestamp": time.Now().UTC(),
	})
}

// Health is the readiness probe.
// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	dbStatus := "ok"
	status := http.StatusOK
	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			dbStatus = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	response.JSON(c, status, gin.H{
		"status":   dbStatus,
		"uptime_s": int(time.Since(h.startedAt).Seconds()),
	})
}

// Stats aggregates conversation and lead counts.
// GET /api/stats
func (h *Handler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	convStats, err := h.conversations.CountByStatus(ctx)
	if err != nil {
		h.log.DatabaseError("conversation stats", err)
		response.Error(c, http.StatusInternalServerError, "failed to load stats", nil)
		return
	}

	leadStats, err := h.leads.GetStats(ctx)
	if err != nil {
		h.log.DatabaseError("lead stats", err)
		response.Error(c, http.StatusInternalServerError, "failed to load stats", nil)
		return
	}

	response.OK(c, gin.H{
		"timestamp":     time.Now().UTC(),
		"conversations": convStats,
		"leads":         leadStats,
	})
}

// ListLeads returns filtered leads.
// GET /api/leads
func (h *Handler) ListLeads(c *gin.Context) {
	opts, err := h.leadListOptions(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	result, err := h.leads.List(c.Request.Context(), opts)
	if err != nil {
		h.log.DatabaseError("list leads", err)
		response.Error(c, http.StatusInternalServerError, "failed to list leads", nil)
		return
	}

	response.OK(c, gin.H{"total": len(result), "leads": toLeadResponses(result)})
}

// ListConversations returns conversation summaries with message counts.
// GET /api/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	opts := conversation.ListOptions{
		Status:  conversation.Status(c.Query("status")),
		Segment: conversation.Segment(c.Query("segment")),
		Limit:   queryInt(c, "limit", 100),
		Offset:  queryInt(c, "offset", 0),
	}

	result, err := h.conversations.List(c.Request.Context(), opts)
	if err != nil {
		h.log.DatabaseError("list conversations", err)
		response.Error(c, http.StatusInternalServerError, "failed to list conversations", nil)
		return
	}

	out := make([]gin.H, 0, len(result))
	for _, s := range result {
		out = append(out, gin.H{
			"id":            s.ID,
			"channel":       s.Channel,
			"channel_id":    s.ChannelID,
			"segment":       s.Segment,
			"status":        s.Status,
			"audio_enabled": s.AudioEnabled,
			"message_count": s.MessageCount,
			"created_at":    s.CreatedAt,
			"updated_at":    s.UpdatedAt,
		})
	}
	response.OK(c, gin.H{"total": len(out), "conversations": out})
}

// GetConversation returns one conversation and its recent message history.
// GET /api/conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FromError(c, apperr.Validation("invalid conversation id"))
		return
	}

	conv, err := h.conversations.GetByID(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	history, err := h.conversations.RecentMessages(c.Request.Context(), id, 40)
	if err != nil {
		h.log.DatabaseError("conversation history", err)
		response.Error(c, http.StatusInternalServerError, "failed to load history", nil)
		return
	}

	messages := make([]gin.H, 0, len(history))
	for _, m := range history {
		messages = append(messages, gin.H{
			"role":       m.Role,
			"content":    m.Content,
			"audio_ref":  m.AudioRef,
			"created_at": m.CreatedAt,
		})
	}

	response.OK(c, gin.H{
		"id":            conv.ID,
		"channel":       conv.Channel,
		"channel_id":    conv.ChannelID,
		"segment":       conv.Segment,
		"status":        conv.Status,
		"audio_enabled": conv.AudioEnabled,
		"created_at":    conv.CreatedAt,
		"updated_at":    conv.UpdatedAt,
		"messages":      messages,
	})
}

// ExportLeads streams the filtered leads as CSV. The UTF-8 BOM keeps Excel
// from mangling accented characters.
// GET /api/leads/export
func (h *Handler) ExportLeads(c *gin.Context) {
	opts, err := h.leadListOptions(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	opts.Limit = 500

	result, err := h.leads.List(c.Request.Context(), opts)
	if err != nil {
		h.log.DatabaseError("export leads", err)
		response.Error(c, http.StatusInternalServerError, "failed to export leads", nil)
		return
	}

	filename := fmt.Sprintf("leads_%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if _, err := c.Writer.WriteString("\xEF\xBB\xBF"); err != nil {
		return
	}

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"ID", "Canal", "Contato", "Nome", "Telefone", "Segmento", "Necessidade", "Temperatura", "Status", "Observações", "Data"})
	for _, l := range result {
		_ = w.Write([]string{
			l.ID.String(),
			l.Channel,
			l.ChannelID,
			l.Name,
			l.Phone,
			l.Segment.Label(),
			l.NeedSummary,
			string(l.Temperature),
			string(l.Status),
			l.Notes,
			l.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
}

type leadResponse struct {
	ID          string `json:"id"`
	Channel     string `json:"channel"`
	ChannelID   string `json:"channel_id"`
	Segment     string `json:"segment"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	NeedSummary string `json:"need_summary"`
	Temperature string `json:"temperature"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toLeadResponses(in []leads.Lead) []leadResponse {
	out := make([]leadResponse, 0, len(in))
	for _, l := range in {
		out = append(out, leadResponse{
			ID:          l.ID.String(),
			Channel:     l.Channel,
			ChannelID:   l.ChannelID,
			Segment:     string(l.Segment),
			Name:        l.Name,
			Phone:       l.Phone,
			NeedSummary: l.NeedSummary,
			Temperature: string(l.Temperature),
			Status:      string(l.Status),
			Notes:       l.Notes,
			CreatedAt:   l.CreatedAt.Format(time.RFC3339),
			UpdatedAt:   l.UpdatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func (h *Handler) leadListOptions(c *gin.Context) (leads.ListOptions, error) {
	opts := leads.ListOptions{
		Segment:     c.Query("segment"),
		Temperature: c.Query("temperatura"),
		Status:      c.Query("status"),
		Limit:       queryInt(c, "limit", 100),
		Offset:      queryInt(c, "offset", 0),
	}

	if err := h.val.Var(opts.Segment, "omitempty,oneof=LIMPA_NOMES REVISAO_CONTRATUAL MULTAS_CNH"); err != nil {
		return leads.ListOptions{}, apperr.Validation("invalid segment filter")
	}
	if err := h.val.Var(opts.Temperature, "omitempty,oneof=frio morno quente"); err != nil {
		return leads.ListOptions{}, apperr.Validation("invalid temperatura filter")
	}
	if err := h.val.Var(opts.Status, "omitempty,oneof=novo em_contato convertido perdido"); err != nil {
		return leads.ListOptions{}, apperr.Validation("invalid status filter")
	}

	if from, err := time.Parse("2006-01-02", c.Query("from")); err == nil {
		opts.From = &from
	}
	if to, err := time.Parse("2006-01-02", c.Query("to")); err == nil {
		end := to.Add(24*time.Hour - time.Nanosecond)
		opts.To = &end
	}
	return opts, nil
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
