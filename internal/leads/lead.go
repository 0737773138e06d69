// Package leads derives structured contact/qualification records from
// conversations and keeps them current as the conversation evolves.
package leads

import (
	"time"

	"github.com/google/uuid"

	"atende_backend/internal/conversation"
)

// Temperature is the qualitative interest tier of a lead.
type Temperature string

const (
	TemperatureCold Temperature = "frio"
	TemperatureWarm Temperature = "morno"
	TemperatureHot  Temperature = "quente"
)

// ParseTemperature validates a raw temperature value, falling back to cold.
func ParseTemperature(raw string) Temperature {
	switch Temperature(raw) {
	case TemperatureCold, TemperatureWarm, TemperatureHot:
		return Temperature(raw)
	default:
		return TemperatureCold
	}
}

// Status is the sales-funnel state of a lead.
type Status string

const (
	StatusNew       Status = "novo"
	StatusContacted Status = "em_contato"
	StatusConverted Status = "convertido"
	StatusLost      Status = "perdido"
)

// Lead is the qualification record extracted from a conversation.
// A lead references at most one conversation; populated scalar fields are
// never regressed to empty by a later merge.
type Lead struct {
	ID             uuid.UUID
	ConversationID *uuid.UUID
	Channel        string
	ChannelID      string
	Segment        conversation.Segment
	Name           string
	Phone          string
	Email          string
	NeedSummary    string
	Temperature    Temperature
	Status         Status
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Extraction is the validated result of an extraction pass over the
// conversation history. Empty strings mean the extractor found nothing for
// that field.
type Extraction struct {
	Name            string
	Phone           string
	NeedSummary     string
	Temperature     Temperature
	ReadyForHandoff bool
	Notes           string
}

// SafeDefaultExtraction is the fallback applied when the extractor returns
// malformed output.
func SafeDefaultExtraction() Extraction {
	return Extraction{Temperature: TemperatureCold, ReadyForHandoff: false}
}
