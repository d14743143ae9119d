// Package gateway drives streaming calls to the Gemini API and isolates all
// failure modes of the remote model behind a fixed escalation response.
package gateway

import (
	"context"
	"fmt"
	"iter"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/oz-solar/jerry/internal/config"
)

// EscalationNotice is the fixed response returned whenever the model call
// fails. Callers treat it as a terminal, displayable result — never as a
// retryable error.
const EscalationNotice = "Sorry mate, I couldn't reach my AI brain just now. " +
	"I've flagged this for a human to follow up — please try again in a little while!"

// contextPreamble wraps an injected knowledge snippet so the model treats it
// as supporting material rather than a user turn of its own.
const contextPreamble = "Use the following background reference material together " +
	"with the conversation history and the user's message when forming your answer:\n\n"

// Role tags a transcript entry's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one role-tagged message in a reconstructed conversation.
type Entry struct {
	Role Role
	Text string
}

// Mode selects which generation configuration governs a call.
type Mode int

const (
	// ModeDirect is a multi-turn conversation with history (DMs).
	ModeDirect Mode = iota
	// ModeBroadcast is a single-shot call with no history (slash commands,
	// scheduled posts); its configuration favors complete answers.
	ModeBroadcast
)

// Request carries everything needed for one model call.
type Request struct {
	Transcript     []Entry // oldest first; the last entry is the current user message
	ContextSnippet string  // optional; injected as a synthetic leading entry
	Mode           Mode
}

// streamFunc matches genai's Models.GenerateContentStream, giving tests a
// seam to inject canned streams without a network client.
type streamFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]

// Gateway issues one streaming Gemini request per conversation turn.
type Gateway struct {
	direct    config.ModeConfig
	broadcast config.ModeConfig
	timeout   time.Duration
	stream    streamFunc
}

// Opts holds parameters for creating a Gateway.
type Opts struct {
	APIKey    string
	Direct    config.ModeConfig
	Broadcast config.ModeConfig
	Timeout   time.Duration // bound on the whole streaming call
}

// New creates a Gateway backed by the Gemini API.
func New(ctx context.Context, opts Opts) (*Gateway, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gateway: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: create client: %w", err)
	}
	g := newWithStream(opts, client.Models.GenerateContentStream)
	return g, nil
}

// newWithStream wires a Gateway to an arbitrary stream source (tests).
func newWithStream(opts Opts, stream streamFunc) *Gateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Gateway{
		direct:    opts.Direct,
		broadcast: opts.Broadcast,
		timeout:   timeout,
		stream:    stream,
	}
}

// Generate performs one streaming model call and returns the accumulated
// text. Fragments are concatenated in arrival order; non-text stream events
// contribute nothing. Any transport or API failure yields EscalationNotice.
// An empty return value means the model produced no content.
func (g *Gateway) Generate(ctx context.Context, req Request) string {
	mc := g.modeConfig(req.Mode)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := buildContents(req)
	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(mc.Temperature),
		MaxOutputTokens:   mc.MaxOutputTokens,
		SystemInstruction: genai.NewContentFromText(mc.SystemPrompt, genai.RoleUser),
		SafetySettings:    safetySettings(mc.SafetyThreshold),
	}

	var b strings.Builder
	for resp, err := range g.stream(ctx, mc.Model, contents, cfg) {
		if err != nil {
			log.Printf("gateway: stream failed (model %s): %v", mc.Model, err)
			return EscalationNotice
		}
		b.WriteString(resp.Text())
	}
	return b.String()
}

// ModelName returns the model identifier a mode's calls use.
func (g *Gateway) ModelName(mode Mode) string {
	return g.modeConfig(mode).Model
}

// modeConfig returns the generation configuration for a mode.
func (g *Gateway) modeConfig(mode Mode) config.ModeConfig {
	if mode == ModeBroadcast {
		return g.broadcast
	}
	return g.direct
}

// buildContents converts a Request into the ordered genai content list. A
// non-empty context snippet becomes a synthetic leading user entry carrying
// the synthesis instruction.
func buildContents(req Request) []*genai.Content {
	var contents []*genai.Content
	if req.ContextSnippet != "" {
		contents = append(contents, genai.NewContentFromText(contextPreamble+req.ContextSnippet, genai.RoleUser))
	}
	for _, e := range req.Transcript {
		role := genai.Role(genai.RoleUser)
		if e.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(e.Text, role))
	}
	return contents
}

// safetySettings expands a config threshold name into per-category settings.
// "low" blocks the most content; "high" only the most severe.
func safetySettings(threshold string) []*genai.SafetySetting {
	var level genai.HarmBlockThreshold
	switch threshold {
	case "low":
		level = genai.HarmBlockThresholdBlockLowAndAbove
	case "high":
		level = genai.HarmBlockThresholdBlockOnlyHigh
	default:
		level = genai.HarmBlockThresholdBlockMediumAndAbove
	}

	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{Category: c, Threshold: level})
	}
	return settings
}
