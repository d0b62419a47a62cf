// Package validator wraps the external reasoning model that second-guesses
// trading signals. The model's output is untrusted input: it is parsed into
// a strict envelope and rejected on any schema violation.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"tokenradar/internal/domain"
)

// unavailableWarning is attached whenever validation falls back to the
// original signal.
const unavailableWarning = "AI validation unavailable - original signal retained"

// DefaultModel is used when the config names none.
const DefaultModel = openai.GPT4oMini

// UserProfile describes the caller's risk appetite for the prompt.
type UserProfile struct {
	RiskTolerance   string  `json:"risk_tolerance"`
	MaxPositionUSD  float64 `json:"max_position_usd"`
	ExperienceLevel string  `json:"experience_level"`
}

// completionClient is the slice of the model API the validator uses.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Validator asks the reasoning model to approve, adjust, or reject a signal.
type Validator struct {
	client  completionClient
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures Validator.
type Option func(*Validator)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(v *Validator) {
		v.model = model
	}
}

// WithTimeout bounds one validation call.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		v.timeout = d
	}
}

// WithLogger sets the validator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// withClient replaces the API client, used by tests.
func withClient(c completionClient) Option {
	return func(v *Validator) {
		v.client = c
	}
}

// New creates a validator. The API key is held by the client only and never
// logged or serialized.
func New(apiKey string, opts ...Option) *Validator {
	v := &Validator{
		client:  openai.NewClient(apiKey),
		model:   DefaultModel,
		timeout: 30 * time.Second,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// envelope is the strict response schema expected from the model.
type envelope struct {
	ValidationStatus       string   `json:"validation_status"`
	FinalAction            string   `json:"final_action"`
	AdjustedConfidence     *float64 `json:"adjusted_confidence"`
	ConfidenceChangeReason string   `json:"confidence_change_reason"`

	AIAnalysis *struct {
		TechnicalAssessment string   `json:"technical_assessment"`
		RiskAssessment      string   `json:"risk_assessment"`
		MarketContext       string   `json:"market_context"`
		KeyConcerns         []string `json:"key_concerns"`
		KeyStrengths        []string `json:"key_strengths"`
	} `json:"ai_analysis"`

	AdjustedTargets *struct {
		StopLoss     float64 `json:"stop_loss"`
		TakeProfit   float64 `json:"take_profit"`
		PositionSize float64 `json:"position_size"`
	} `json:"adjusted_targets"`

	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
	OverallVerdict  string   `json:"overall_verdict"`
}

// Validate submits the signal for a second opinion. On any failure the
// original signal is retained with status error; the caller decides whether
// that clears the execution bar.
func (v *Validator) Validate(ctx context.Context, s *domain.Signal, r *domain.TokenRecord, profile UserProfile) *domain.ValidatedSignal {
	out := &domain.ValidatedSignal{
		Signal:             *s,
		FinalAction:        s.Action,
		AdjustedConfidence: s.Confidence,
		ValidatedAt:        time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(s, r, profile)},
		},
	})
	if err != nil {
		v.logger.Warn().Err(err).Str("token", r.Address).Msg("validation call failed")
		return errorFallback(out)
	}
	if len(resp.Choices) == 0 {
		v.logger.Warn().Str("token", r.Address).Msg("validation returned no choices")
		return errorFallback(out)
	}

	env, err := parseEnvelope(resp.Choices[0].Message.Content)
	if err != nil {
		v.logger.Warn().Err(err).Str("token", r.Address).Msg("validation response rejected")
		return errorFallback(out)
	}

	out.Status = domain.ValidationStatus(env.ValidationStatus)
	out.FinalAction = domain.Action(env.FinalAction)
	out.ConfidenceReason = env.ConfidenceChangeReason
	out.Warnings = env.Warnings
	out.Recommendations = env.Recommendations
	out.Verdict = env.OverallVerdict

	// Validation can only lower confidence, never raise it above the
	// scoring engine's value.
	out.AdjustedConfidence = *env.AdjustedConfidence
	if out.AdjustedConfidence > s.Confidence {
		out.AdjustedConfidence = s.Confidence
	}
	if out.AdjustedConfidence < 0 {
		out.AdjustedConfidence = 0
	}

	if env.AIAnalysis != nil {
		out.Analysis = &domain.SignalAnalysis{
			TechnicalAssessment: env.AIAnalysis.TechnicalAssessment,
			RiskAssessment:      env.AIAnalysis.RiskAssessment,
			MarketContext:       env.AIAnalysis.MarketContext,
			KeyConcerns:         env.AIAnalysis.KeyConcerns,
			KeyStrengths:        env.AIAnalysis.KeyStrengths,
		}
	}
	if env.AdjustedTargets != nil {
		out.AdjustedTargets = &domain.AdjustedTargets{
			StopLoss:        env.AdjustedTargets.StopLoss,
			TakeProfit:      env.AdjustedTargets.TakeProfit,
			PositionSizePct: env.AdjustedTargets.PositionSize,
		}
	}

	return out
}

func errorFallback(out *domain.ValidatedSignal) *domain.ValidatedSignal {
	out.Status = domain.ValidationError
	out.Warnings = append(out.Warnings, unavailableWarning)
	return out
}

// parseEnvelope decodes and validates the model response. Anything outside
// the schema is an error, never forwarded downstream.
func parseEnvelope(content string) (*envelope, error) {
	content = strings.TrimSpace(content)

	// Some models wrap JSON in a code fence despite instructions.
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var env envelope
	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch domain.ValidationStatus(env.ValidationStatus) {
	case domain.ValidationApproved, domain.ValidationAdjusted, domain.ValidationRejected:
	default:
		return nil, fmt.Errorf("invalid validation_status %q", env.ValidationStatus)
	}

	switch domain.Action(env.FinalAction) {
	case domain.ActionBuy, domain.ActionSell, domain.ActionHold:
	default:
		return nil, fmt.Errorf("invalid final_action %q", env.FinalAction)
	}

	if env.AdjustedConfidence == nil {
		return nil, fmt.Errorf("missing adjusted_confidence")
	}

	return &env, nil
}

const systemPrompt = `You are a conservative cryptocurrency trading risk reviewer.
You receive a proposed trading signal with the token's market, security, and
social data. Review it and respond with a single JSON object and nothing else:
{
  "validation_status": "approved" | "adjusted" | "rejected",
  "final_action": "BUY" | "SELL" | "HOLD",
  "adjusted_confidence": <0-100>,
  "confidence_change_reason": "<present when confidence changed>",
  "ai_analysis": {
    "technical_assessment": "...",
    "risk_assessment": "...",
    "market_context": "...",
    "key_concerns": ["..."],
    "key_strengths": ["..."]
  },
  "adjusted_targets": {"stop_loss": <price>, "take_profit": <price>, "position_size": <pct>},
  "warnings": ["..."],
  "recommendations": ["..."],
  "overall_verdict": "..."
}
Lower the confidence when in doubt. Never invent data that was not provided.`

func buildPrompt(s *domain.Signal, r *domain.TokenRecord, profile UserProfile) string {
	payload := map[string]any{
		"signal": map[string]any{
			"action":             s.Action,
			"confidence":         s.Confidence,
			"global_score":       s.GlobalScore,
			"technical_score":    s.TechnicalScore,
			"fundamental_score":  s.FundamentalScore,
			"sentiment_score":    s.SentimentScore,
			"risk_score":         s.RiskScore,
			"entry_price":        s.EntryPrice,
			"stop_loss":          s.StopLoss,
			"take_profit":        s.TakeProfit,
			"position_size_pct":  s.PositionSizePct,
			"risk_reward_ratio":  s.RiskRewardRatio,
			"reasons":            s.Reasons,
		},
		"token": map[string]any{
			"address":    r.Address,
			"chain":      r.Chain,
			"symbol":     r.Symbol,
			"market":     r.Market,
			"security":   r.Security,
			"social":     r.Social,
			"indicators": r.Indicators,
		},
		"user_profile": profile,
	}

	b, _ := json.MarshalIndent(payload, "", "  ")
	return "Review this trading signal:\n" + string(b)
}
