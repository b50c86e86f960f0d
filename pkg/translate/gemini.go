package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/iterator"
	"google.golang.org/genai"

	"argusgo/pkg/config"
)

// Gemini uses the genai SDK directly rather than the shared request
// client; the SDK owns its own transport and retry behavior.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, cfg config.GeminiConfig) (*Gemini, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.Key})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// HealthCheck verifies the configured model exists for this key. A
// missing model logs the available ones and passes, since generation
// surfaces the real error anyway; only a dead credential fails.
func (g *Gemini) HealthCheck(ctx context.Context) error {
	name := g.model
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}

	if _, err := g.client.Models.Get(ctx, name, nil); err == nil {
		return nil
	}

	iter, err := g.client.Models.List(ctx, nil)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	var available []string
	for {
		m, nextErr := iter.Next(ctx)
		if nextErr == iterator.Done {
			break
		}
		if nextErr != nil {
			return fmt.Errorf("page models: %w", nextErr)
		}
		if strings.Contains(strings.ToLower(m.Name), "gemini") {
			available = append(available, m.Name)
		}
	}

	slog.Warn("Configured Gemini model not found, generation may fail", "model", g.model, "available", available)
	return nil
}

func (g *Gemini) Translate(ctx context.Context, text, src, dst string) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("gemini client not configured")
	}

	prompt := translationPrompt(text, src, dst)
	temp := float32(0.1)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt),
		&genai.GenerateContentConfig{Temperature: &temp})
	if err != nil {
		return "", fmt.Errorf("generate content error: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
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
