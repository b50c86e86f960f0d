package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"argusgo/pkg/config"
	"argusgo/pkg/request"
)

// OpenAI speaks the Chat Completions dialect, which covers OpenAI
// itself plus the compatible hosts (Groq, OpenRouter, ...) by
// swapping the base URL.
type OpenAI struct {
	rc      *request.Client
	baseURL string
	model   string
	apiKey  string
}

func NewOpenAI(rc *request.Client, cfg config.OpenAIConfig) *OpenAI {
	return &OpenAI{
		rc:      rc,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.Key,
	}
}

func (o *OpenAI) Name() string { return "openai" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (o *OpenAI) Translate(ctx context.Context, text, src, dst string) (string, error) {
	if o.apiKey == "" {
		return "", fmt.Errorf("api key is missing")
	}
	if o.baseURL == "" {
		return "", fmt.Errorf("base url is missing")
	}

	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "user", Content: translationPrompt(text, src, dst)},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"Content-Type":  "application/json",
	}
	respBody, err := o.rc.PostWithHeaders(ctx, o.baseURL+"/chat/completions", body, headers)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse chat response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("openai api error: %s (%s)", resp.Error.Message, resp.Error.Type)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("api returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
