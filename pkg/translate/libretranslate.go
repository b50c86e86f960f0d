package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"argusgo/pkg/config"
	"argusgo/pkg/request"
)

// LibreTranslate talks to a self-hosted LibreTranslate instance. It
// is the cheapest provider in the chain and therefore usually first.
type LibreTranslate struct {
	rc  *request.Client
	url string
	key string
}

func NewLibreTranslate(rc *request.Client, cfg config.LibreTranslateConfig) *LibreTranslate {
	return &LibreTranslate{
		rc:  rc,
		url: strings.TrimSuffix(cfg.URL, "/"),
		key: cfg.Key,
	}
}

func (l *LibreTranslate) Name() string { return "libretranslate" }

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

func (l *LibreTranslate) Translate(ctx context.Context, text, src, dst string) (string, error) {
	if l.url == "" {
		return "", fmt.Errorf("libretranslate url not configured")
	}

	body, err := json.Marshal(libreRequest{
		Q:      text,
		Source: src,
		Target: dst,
		Format: "text",
		APIKey: l.key,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	respBody, err := l.rc.PostWithHeaders(ctx, l.url+"/translate", body, headers)
	if err != nil {
		return "", err
	}

	var resp libreResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse libretranslate response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("libretranslate: %s", resp.Error)
	}
	return resp.TranslatedText, nil
}
