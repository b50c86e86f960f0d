package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"argusgo/pkg/config"
	"argusgo/pkg/request"
)

// DeepL is the commercial MT fallback at the end of the default
// chain. The configured URL carries the full /v2/translate path so
// free and pro endpoints are interchangeable.
type DeepL struct {
	rc  *request.Client
	url string
	key string
}

func NewDeepL(rc *request.Client, cfg config.DeepLConfig) *DeepL {
	return &DeepL{rc: rc, url: cfg.URL, key: cfg.Key}
}

func (d *DeepL) Name() string { return "deepl" }

type deeplRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
	Message string `json:"message,omitempty"`
}

func (d *DeepL) Translate(ctx context.Context, text, src, dst string) (string, error) {
	if d.key == "" {
		return "", fmt.Errorf("deepl api key not configured")
	}
	if d.url == "" {
		return "", fmt.Errorf("deepl url not configured")
	}

	body, err := json.Marshal(deeplRequest{
		Text:       []string{text},
		SourceLang: strings.ToUpper(src),
		TargetLang: strings.ToUpper(dst),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{
		"Authorization": "DeepL-Auth-Key " + d.key,
		"Content-Type":  "application/json",
	}
	respBody, err := d.rc.PostWithHeaders(ctx, d.url, body, headers)
	if err != nil {
		return "", err
	}

	var resp deeplResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse deepl response: %w", err)
	}
	if len(resp.Translations) == 0 {
		if resp.Message != "" {
			return "", fmt.Errorf("deepl: %s", resp.Message)
		}
		return "", fmt.Errorf("deepl returned no translations")
	}
	return resp.Translations[0].Text, nil
}
