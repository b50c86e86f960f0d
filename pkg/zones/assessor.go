package zones

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"argusgo/pkg/config"
	"argusgo/pkg/model"
)

// Verdict is the model's second opinion on a high-risk zone.
type Verdict struct {
	RiskLevel  string  `json:"risk_level"`
	Escalation float64 `json:"escalation_probability"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Amplification converts a verdict into the score bonus. A critical
// verdict is worth the full bonus; an escalating one scales with the
// stated probability. Anything else adds nothing.
func Amplification(v Verdict) float64 {
	switch {
	case strings.EqualFold(v.RiskLevel, "critical"):
		return 0.1
	case v.Escalation >= 0.5:
		return math.Min(0.1, 0.1*v.Escalation)
	default:
		return 0
	}
}

// GeminiAssessor asks a generative model for the second opinion. Like
// the translation provider it talks to the SDK directly; the SDK owns
// its own transport and retry behavior.
type GeminiAssessor struct {
	client *genai.Client
	model  string
}

// NewGeminiAssessor builds the assessor from the shared Gemini
// credentials.
func NewGeminiAssessor(ctx context.Context, cfg config.GeminiConfig) (*GeminiAssessor, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.Key})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	m := cfg.Model
	if m == "" {
		m = "gemini-2.5-flash-lite"
	}
	return &GeminiAssessor{client: client, model: m}, nil
}

// Assess classifies one zone. The caller decides what to do with the
// verdict; errors here must never lower a zone's score.
func (a *GeminiAssessor) Assess(ctx context.Context, z *model.ConflictZone) (Verdict, error) {
	if a.client == nil {
		return Verdict{}, fmt.Errorf("assessor client not configured")
	}
	temp := float32(0.2)
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(assessPrompt(z)),
		&genai.GenerateContentConfig{Temperature: &temp})
	if err != nil {
		return Verdict{}, fmt.Errorf("generate content error: %w", err)
	}
	text, err := assessorResponseText(resp)
	if err != nil {
		return Verdict{}, err
	}
	return parseVerdict(text)
}

func assessPrompt(z *model.ConflictZone) string {
	var sb strings.Builder
	sb.WriteString("You are a conflict analyst. Assess the risk of the following monitored zone.\n")
	fmt.Fprintf(&sb, "Location: %s (%.3f, %.3f)\n", z.LocationLabel, z.CentroidLat, z.CentroidLon)
	if z.Country != "" {
		fmt.Fprintf(&sb, "Country: %s\n", z.Country)
	}
	fmt.Fprintf(&sb, "Aggregate risk score: %.2f\n", z.FinalRiskScore)
	fmt.Fprintf(&sb, "Events in window: %d, fatalities: %d\n", z.TotalEvents, z.TotalFatalities)
	if len(z.EventTypes) > 0 {
		fmt.Fprintf(&sb, "Event types: %s\n", strings.Join(z.EventTypes, ", "))
	}
	if len(z.Actors) > 0 {
		fmt.Fprintf(&sb, "Actors: %s\n", strings.Join(z.Actors, ", "))
	}
	sb.WriteString("\nRespond with JSON only, no prose, matching exactly:\n")
	sb.WriteString(`{"risk_level": "low|medium|high|critical", "escalation_probability": 0.0, "reasoning": "one sentence"}`)
	return sb.String()
}

func assessorResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("candidate has no content")
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// parseVerdict tolerates markdown fences around the JSON body.
func parseVerdict(text string) (Verdict, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "{"); i >= 0 {
		if j := strings.LastIndex(text, "}"); j > i {
			text = text[i : j+1]
		}
	}
	var v Verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Verdict{}, fmt.Errorf("unparseable verdict: %w", err)
	}
	v.RiskLevel = strings.ToLower(strings.TrimSpace(v.RiskLevel))
	if v.Escalation < 0 || v.Escalation > 1 {
		v.Escalation = clamp01(v.Escalation)
	}
	return v, nil
}
