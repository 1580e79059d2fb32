// Package events defines the message contract published on RabbitMQ.
// Every Quill service imports ONLY this package — no direct service-to-service calls.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ── Routing keys (RabbitMQ topic exchange: quill.events) ─────────────────────
const (
	GenerateRequested = "generate.requested"
	GenerateDelta     = "generate.delta"
	GenerateComplete  = "generate.complete"
	GenerateFailed    = "generate.failed"
	BatchRequested    = "batch.requested"
	BatchComplete     = "batch.complete"
	BatchFailed       = "batch.failed"
	VisionRequested   = "vision.requested"
	VisionComplete    = "vision.complete"
	VisionFailed      = "vision.failed"
	LogEvent          = "log.event"
)

const (
	StyleViral        = "viral"
	StyleProfessional = "professional"
	StyleCasual       = "casual"
	StyleHumorous     = "humorous"
)

// Length tiers map to the character budget applied to every generated tweet.
const (
	LengthShort  = "short"  // 150 chars
	LengthMedium = "medium" // 230 chars
	LengthLong   = "long"   // 280 chars
)

// ── Envelope wraps every message ─────────────────────────────────────────────

type Envelope struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Timestamp  time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func Wrap(routingKey string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.New().String(),
		RoutingKey: routingKey,
		Timestamp:  time.Now(),
		Payload:    p,
	})
}

func Unwrap[T any](raw []byte) (*T, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var t T
	return &t, json.Unmarshal(env.Payload, &t)
}

func UnwrapEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	return &env, json.Unmarshal(raw, &env)
}

// ── Payload types ─────────────────────────────────────────────────────────────

// AdvancedSettings carries the optional generation tuning knobs.
type AdvancedSettings struct {
	Temperature float64 `json:"temperature,omitempty"`
	Tone        string  `json:"tone,omitempty"`
	Length      string  `json:"length,omitempty"` // short | medium | long
}

type GenerateRequestedPayload struct {
	JobID           string            `json:"job_id"`
	SessionID       string            `json:"session_id"`
	Topic           string            `json:"topic"`
	Style           string            `json:"style"`
	IncludeHashtags bool              `json:"include_hashtags"`
	IncludeEmojis   bool              `json:"include_emojis"`
	Template        string            `json:"template,omitempty"`
	Mood            string            `json:"mood,omitempty"`
	Audience        string            `json:"audience,omitempty"`
	Hook            string            `json:"hook,omitempty"`
	Personal        bool              `json:"personal,omitempty"`
	Advanced        *AdvancedSettings `json:"advanced,omitempty"`
}

type GenerateDeltaPayload struct {
	JobID string `json:"job_id"`
	Seq   int    `json:"seq"`
	Text  string `json:"text"`
}

type GenerateCompletePayload struct {
	JobID     string `json:"job_id"`
	Tweet     string `json:"tweet"`
	Provider  string `json:"provider"`
	IntentURL string `json:"intent_url,omitempty"`
}

type GenerateFailedPayload struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

type BatchRequestedPayload struct {
	JobID   string                   `json:"job_id"`
	Count   int                      `json:"count"`
	Request GenerateRequestedPayload `json:"request"`
}

type BatchCompletePayload struct {
	JobID    string   `json:"job_id"`
	Tweets   []string `json:"tweets"`
	Provider string   `json:"provider"`
}

type BatchFailedPayload struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

type VisionRequestedPayload struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	// ImageData is a base64 data URL (see shared/vision). Kept small by the
	// gateway resizing before publish.
	ImageData string `json:"image_data"`
	Style     string `json:"style"`
}

type VisionCompletePayload struct {
	JobID       string `json:"job_id"`
	Description string `json:"description"`
	Tweet       string `json:"tweet"`
	Location    string `json:"location,omitempty"`
	Provider    string `json:"provider"`
}

type VisionFailedPayload struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

type LogEventPayload struct {
	JobID   string         `json:"job_id"`
	Level   string         `json:"level"`
	Step    string         `json:"step"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}
