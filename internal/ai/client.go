// Package ai talks to the language model: segment classification, reply
// generation, lead extraction and voice synthesis. All model calls share the
// bounded retry executor.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"atende_backend/internal/conversation"
	"atende_backend/internal/leads"
	"atende_backend/platform/logger"
)

const fallbackReply = "Desculpe, tive um problema ao processar sua mensagem. Pode repetir?"

// Options configures the model client.
type Options struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	MaxHistory  int
	Retry       RetryOptions
}

// Client wraps the OpenAI API for the conversation pipeline.
// Retries are handled here, not by the SDK, so the backoff policy stays in
// one place.
type Client struct {
	api  openai.Client
	opts Options
	log  *logger.Logger
}

func NewClient(opts Options, log *logger.Logger) *Client {
	if opts.Model == "" {
		opts.Model = openai.ChatModelGPT4o
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 20
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryOptions()
	}

	return &Client{
		api: openai.NewClient(
			option.WithAPIKey(opts.APIKey),
			option.WithMaxRetries(0),
		),
		opts: opts,
		log:  log,
	}
}

// DetectSegment classifies a user message into one of the service segments.
// Anything the model returns outside the known set maps to SegmentUnknown.
func (c *Client) DetectSegment(ctx context.Context, userMessage string) (conversation.Segment, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(segmentClassifierPrompt),
			openai.UserMessage(userMessage),
		},
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(20),
	}

	content, err := c.complete(ctx, params)
	if err != nil {
		return conversation.SegmentUnknown, err
	}
	return conversation.ParseSegment(strings.TrimSpace(content)), nil
}

// GenerateReply produces the assistant's answer for the latest user message.
// History is already bounded by the caller's repository query; a second cap
// here protects against oversized inputs.
func (c *Client) GenerateReply(ctx context.Context, conv *conversation.Conversation, history []conversation.Message, userMessage string) (string, error) {
	if len(history) > c.opts.MaxHistory {
		history = history[len(history)-c.opts.MaxHistory:]
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemPromptFor(conv.Segment)))
	for _, m := range history {
		switch m.Role {
		case conversation.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case conversation.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userMessage))

	params := openai.ChatCompletionNewParams{
		Model:               c.opts.Model,
		Messages:            messages,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxTokens),
	}

	content, err := c.complete(ctx, params)
	if err != nil {
		return "", err
	}
	if reply := strings.TrimSpace(content); reply != "" {
		return reply, nil
	}
	return fallbackReply, nil
}

// extractionPayload mirrors the JSON shape the extraction prompt asks for.
type extractionPayload struct {
	Nome              *string `json:"nome"`
	Telefone          *string `json:"telefone"`
	Necessidade       *string `json:"necessidade"`
	Temperatura       string  `json:"temperatura"`
	ProntoParaHandoff bool    `json:"pronto_para_handoff"`
	Observacoes       *string `json:"observacoes"`
}

// ExtractLeadData runs an extraction pass over the conversation history.
// Malformed model output degrades to the safe default instead of failing the
// turn.
func (c *Client) ExtractLeadData(ctx context.Context, history []conversation.Message) (leads.Extraction, error) {
	var b strings.Builder
	for _, m := range history {
		switch m.Role {
		case conversation.RoleUser:
			b.WriteString("Cliente: ")
		case conversation.RoleAssistant:
			b.WriteString("Assistente: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}

	params := openai.ChatCompletionNewParams{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(leadExtractionPrompt),
			openai.UserMessage(b.String()),
		},
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(300),
	}

	content, err := c.complete(ctx, params)
	if err != nil {
		return leads.Extraction{}, err
	}
	return parseExtraction(content), nil
}

// parseExtraction turns raw model output into a validated Extraction.
// Models sometimes wrap JSON in a markdown fence despite instructions.
func parseExtraction(raw string) leads.Extraction {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var payload extractionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return leads.SafeDefaultExtraction()
	}

	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return strings.TrimSpace(*s)
	}

	return leads.Extraction{
		Name:            deref(payload.Nome),
		Phone:           deref(payload.Telefone),
		NeedSummary:     deref(payload.Necessidade),
		Temperature:     leads.ParseTemperature(payload.Temperatura),
		ReadyForHandoff: payload.ProntoParaHandoff,
		Notes:           deref(payload.Observacoes),
	}
}

// complete runs one chat completion under the retry policy and returns the
// first choice's content.
func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	var content string
	err := WithRetry(ctx, c.log, c.opts.Retry, func(ctx context.Context) error {
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			return classifyAPIError(err)
		}
		if len(resp.Choices) == 0 {
			content = ""
			return nil
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

// classifyAPIError maps SDK errors onto StatusError so the retry executor
// can tell transient failures from permanent ones.
func classifyAPIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	statusErr := &StatusError{Status: apiErr.StatusCode, Err: err}
	if apiErr.Response != nil {
		statusErr.RetryAfter = parseRetryAfter(apiErr.Response.Header)
	}
	return statusErr
}

func parseRetryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
