package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const maxAnswerTokens = 1024

// chatCall is one fully-shaped provider request, ready for the Transport.
type chatCall struct {
	url     string
	header  http.Header
	body    []byte
	stream  bool
	wire    WireFormat
	model   string
	visuals string // base64 data URL for vision calls, "" otherwise
}

// buildChatCall shapes the HTTP request for cfg's wire format and attaches
// its credential.
func buildChatCall(cfg ProviderConfig, creds Credentials, system, user string, temp float64, stream bool, now time.Time) (*chatCall, error) {
	return buildCall(cfg, cfg.Model, creds, system, user, "", temp, stream, now)
}

// buildVisionCall is buildChatCall against the provider's vision model with
// an attached image.
func buildVisionCall(cfg ProviderConfig, creds Credentials, system, user, imageData string, temp float64, now time.Time) (*chatCall, error) {
	return buildCall(cfg, cfg.VisionModel, creds, system, user, imageData, temp, false, now)
}

func buildCall(cfg ProviderConfig, model string, creds Credentials, system, user, imageData string, temp float64, stream bool, now time.Time) (*chatCall, error) {
	call := &chatCall{
		header:  http.Header{},
		stream:  stream && cfg.Streaming,
		wire:    cfg.Wire,
		model:   model,
		visuals: imageData,
	}

	var payload any
	switch cfg.Wire {
	case WireGemini:
		call.url = fmt.Sprintf("%s/%s:generateContent", strings.TrimRight(cfg.Endpoint, "/"), model)
		payload = geminiBody(system, user, imageData, temp)
	default:
		call.url = cfg.Endpoint
		payload = openAIBody(model, system, user, imageData, temp, call.stream)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", cfg.ID, err)
	}
	call.body = body

	if err := applyAuth(call.header, cfg, creds, now); err != nil {
		return nil, err
	}
	return call, nil
}

func openAIBody(model, system, user, imageData string, temp float64, stream bool) map[string]any {
	var userContent any = user
	if imageData != "" {
		userContent = []map[string]any{
			{"type": "text", "text": user},
			{"type": "image_url", "image_url": map[string]string{"url": imageData}},
		}
	}
	body := map[string]any{
		"model": model,
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": userContent},
		},
		"max_tokens":  maxAnswerTokens,
		"temperature": temp,
	}
	if stream {
		body["stream"] = true
	}
	return body
}

func geminiBody(system, user, imageData string, temp float64) map[string]any {
	parts := []map[string]any{
		{"text": system + "\n\n" + user},
	}
	if imageData != "" {
		mime, data := splitDataURL(imageData)
		parts = append(parts, map[string]any{
			"inline_data": map[string]string{"mime_type": mime, "data": data},
		})
	}
	return map[string]any{
		"contents": []map[string]any{
			{"parts": parts},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": maxAnswerTokens,
			"temperature":     temp,
		},
	}
}

// splitDataURL splits "data:image/jpeg;base64,XXX" into mime type and raw
// base64; the contents/parts shape wants them separate.
func splitDataURL(dataURL string) (mime, data string) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "image/jpeg", dataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "image/jpeg", dataURL
	}
	mime = strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = "image/jpeg"
	}
	return mime, payload
}

func applyAuth(h http.Header, cfg ProviderConfig, creds Credentials, now time.Time) error {
	h.Set("Content-Type", "application/json")
	key := creds.Get(cfg.CredentialKey)

	switch cfg.AuthScheme {
	case AuthHeader:
		h.Set(cfg.HeaderName, key)
	case AuthSignedToken:
		token, err := SignedToken(key, now)
		if err != nil {
			return fmt.Errorf("%s credential: %w", cfg.ID, err)
		}
		h.Set("Authorization", "Bearer "+token)
	default:
		h.Set("Authorization", "Bearer "+key)
	}
	return nil
}

// parseAnswer extracts the full answer text from a non-streaming response
// body.
func parseAnswer(wire WireFormat, raw []byte) string {
	s := string(raw)
	switch wire {
	case WireGemini:
		return gjson.Get(s, "candidates.0.content.parts.0.text").String()
	default:
		return gjson.Get(s, "choices.0.message.content").String()
	}
}

// readErrorMessage digs a human-oriented message out of a failing response
// body, falling back to a trimmed slice of the raw body.
func readErrorMessage(raw []byte) string {
	s := string(raw)
	if msg := gjson.Get(s, "error.message").String(); msg != "" {
		return msg
	}
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
