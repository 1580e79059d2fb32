package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quill-ai/quill/shared/extract"
	"github.com/quill-ai/quill/shared/ratelimit"
)

// batchConcurrency bounds parallel upstream calls inside one batch.
const batchConcurrency = 3

// Generator is the orchestration point of the pipeline: selector → rate
// limiter → transport → stream decode → normalize → truncate. It is the only
// place failures become user-facing strings; below it everything is typed
// errors. Safe for concurrent use.
type Generator struct {
	Creds     Credentials
	Transport *Transport
	Limits    *ratelimit.Set
	Now       func() time.Time
}

// NewGenerator builds a Generator with the default transport and quota set.
func NewGenerator(creds Credentials) *Generator {
	return &Generator{
		Creds:     creds,
		Transport: NewTransport(),
		Limits:    ratelimit.NewSet(),
		Now:       time.Now,
	}
}

// Result is the uniform outcome of one generation. Error, when set, is a
// ready-to-display string — never a structured object.
type Result struct {
	Tweet    string `json:"tweet"`
	Provider string `json:"provider,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResult is Result for an n-draft batch.
type BatchResult struct {
	Tweets   []string `json:"tweets"`
	Provider string   `json:"provider,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// VisionResult is the outcome of a photo analysis.
type VisionResult struct {
	Description string `json:"description"`
	Tweet       string `json:"tweet"`
	Location    string `json:"location,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Generate runs the full pipeline for one request. onDelta, when non-nil,
// receives each incremental text chunk in receipt order — a thin callback
// adapter over the decoder's channel; non-streaming providers deliver one
// terminal chunk. Never panics outward; a cancelled context resolves quietly
// with whatever partial text had streamed.
func (g *Generator) Generate(ctx context.Context, sessionID string, req Request, onDelta func(string)) Result {
	if res := g.Limits.Check(ratelimit.CategorySingle, ratelimit.SessionKey(sessionID)); !res.Allowed {
		return Result{Error: rateLimitMessage(res)}
	}

	cfg := SelectProvider(g.Creds)
	if g.Creds.Get(cfg.CredentialKey) == "" {
		return Result{Error: configurationMessage()}
	}

	text, err := g.complete(ctx, cfg, systemPrompt, buildPrompt(req, 0), req.temperature(), onDelta)
	if err != nil {
		return Result{Error: displayError(cfg.ID, err)}
	}

	tweet := g.finishTweet(cfg.ID, text, req.lengthTier())
	if tweet == "" {
		return Result{Error: displayError(cfg.ID, ErrUnusable)}
	}
	return Result{Tweet: tweet, Provider: cfg.ID}
}

// GenerateBatch produces count distinct drafts for one request. The batch
// admits once against the batch quota; its upstream fan-out is bounded.
func (g *Generator) GenerateBatch(ctx context.Context, sessionID string, req Request, count int) BatchResult {
	if count <= 0 {
		count = 3
	}
	if count > 10 {
		count = 10
	}

	if res := g.Limits.Check(ratelimit.CategoryBatch, ratelimit.SessionKey(sessionID)); !res.Allowed {
		return BatchResult{Error: rateLimitMessage(res)}
	}

	cfg := SelectProvider(g.Creds)
	if g.Creds.Get(cfg.CredentialKey) == "" {
		return BatchResult{Error: configurationMessage()}
	}

	tweets := make([]string, count)
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(batchConcurrency)

	for i := 0; i < count; i++ {
		i := i
		grp.Go(func() error {
			text, err := g.complete(ctx, cfg, systemPrompt, buildPrompt(req, i), req.temperature(), nil)
			if err != nil {
				return err
			}
			tweet := g.finishTweet(cfg.ID, text, req.lengthTier())
			if tweet == "" {
				return fmt.Errorf("draft %d: %w", i+1, ErrUnusable)
			}
			tweets[i] = tweet
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return BatchResult{Error: displayError(cfg.ID, err)}
	}
	return BatchResult{Tweets: tweets, Provider: cfg.ID}
}

// AnalyzeImage asks a vision-capable provider to describe a photo and draft a
// tweet about it. imageData is a base64 data URL (see shared/vision). The
// structured answer goes through the strict normalizer: vision models are the
// ones that bury JSON inside deliberation traces.
func (g *Generator) AnalyzeImage(ctx context.Context, sessionID, imageData, style string) VisionResult {
	if res := g.Limits.Check(ratelimit.CategoryVision, ratelimit.SessionKey(sessionID)); !res.Allowed {
		return VisionResult{Error: rateLimitMessage(res)}
	}

	cfg := selectVisionProvider(g.Creds)
	if g.Creds.Get(cfg.CredentialKey) == "" {
		return VisionResult{Error: configurationMessage()}
	}
	if cfg.VisionModel == "" {
		return VisionResult{Error: fmt.Sprintf("Photo analysis is not available on %s — configure a vision-capable provider.", cfg.ID)}
	}

	user := fmt.Sprintf("Analyze this photo and write a %s tweet about it.", styleOr(style))
	call, err := buildVisionCall(cfg, g.Creds, visionSystemPrompt, user, imageData, 0.7, g.Now())
	if err != nil {
		return VisionResult{Error: displayError(cfg.ID, err)}
	}

	raw, err := g.oneShot(ctx, call)
	if err != nil {
		return VisionResult{Error: displayError(cfg.ID, err)}
	}

	out, ok := extract.NormalizeFor(cfg.ID, parseAnswer(call.wire, raw))
	if !ok {
		return VisionResult{Error: displayError(cfg.ID, ErrUnusable)}
	}
	return VisionResult{
		Description: out.Description,
		Tweet:       extract.Truncate(out.Tweet, extract.BudgetLong),
		Location:    out.Location,
		Provider:    cfg.ID,
	}
}

// complete executes one chat call and returns the full answer text, feeding
// onDelta along the way when streaming.
func (g *Generator) complete(ctx context.Context, cfg ProviderConfig, system, user string, temp float64, onDelta func(string)) (string, error) {
	call, err := buildChatCall(cfg, g.Creds, system, user, temp, true, g.Now())
	if err != nil {
		return "", err
	}

	if !call.stream {
		raw, err := g.oneShot(ctx, call)
		if err != nil {
			return "", err
		}
		text := parseAnswer(call.wire, raw)
		if text != "" && onDelta != nil {
			// One-shot providers yield their whole answer as a single
			// terminal delta so both caller kinds observe identical content.
			onDelta(text)
		}
		return text, nil
	}

	resp, err := g.send(ctx, call)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for d := range DecodeSSE(ctx, resp.Body) {
		if d.Err != nil {
			if sb.Len() == 0 {
				return "", fmt.Errorf("%w: %v", ErrUpstream, d.Err)
			}
			// The stream died mid-answer; the accumulated prefix is still
			// the best answer we will get.
			log.Warn().Err(d.Err).Str("provider", cfg.ID).Msg("stream interrupted — keeping partial answer")
			break
		}
		sb.WriteString(d.Text)
		if onDelta != nil {
			onDelta(d.Text)
		}
	}
	return sb.String(), nil
}

// send runs the transport and turns any non-2xx status into ErrUpstream.
func (g *Generator) send(ctx context.Context, call *chatCall) (*http.Response, error) {
	resp, err := g.Transport.Do(ctx, http.MethodPost, call.url, call.header, call.body)
	if err != nil {
		// Cancellation is the caller's doing, not an upstream fault.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, readErrorMessage(raw))
	}
	return resp, nil
}

// oneShot is send plus reading the whole body.
func (g *Generator) oneShot(ctx context.Context, call *chatCall) ([]byte, error) {
	resp, err := g.send(ctx, call)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil && len(raw) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return raw, nil
}

// finishTweet normalizes raw answer text into the final tweet. Structured
// answers win; otherwise the cleaned raw text is the tweet.
func (g *Generator) finishTweet(providerID, text, lengthTier string) string {
	tweet := ""
	if out, ok := extract.NormalizeFor(providerID, text); ok && out.Tweet != "" {
		tweet = out.Tweet
	} else {
		tweet = extract.Clean(text)
	}
	return extract.Truncate(strings.TrimSpace(tweet), extract.Budget(lengthTier))
}

// ── Failure boundary: every error kind becomes a display string here ─────────

func configurationMessage() string {
	return fmt.Sprintf("No provider API key configured. Set one of: %s.", credentialHint())
}

func rateLimitMessage(res ratelimit.Result) string {
	secs := int(math.Ceil(res.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("Rate limit reached — try again in %d seconds.", secs)
}

func displayError(providerID string, err error) string {
	switch {
	case errors.Is(err, ErrUnusable):
		return fmt.Sprintf("%s returned no usable answer — try rephrasing and generating again.", providerID)
	case errors.Is(err, context.Canceled):
		return "Generation was cancelled."
	case errors.Is(err, ErrUpstream):
		detail := strings.TrimPrefix(err.Error(), ErrUpstream.Error()+": ")
		return fmt.Sprintf("%s request failed (%s). Please try again.", providerID, detail)
	default:
		return fmt.Sprintf("Request to %s failed: %v.", providerID, err)
	}
}
