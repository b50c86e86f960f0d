package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"argusgo/pkg/config"
)

func TestDeepL(t *testing.T) {
	var got deeplRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "DeepL-Auth-Key free-key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{"translations":[{"detected_source_language":"ES","text":"Hello world"}]}`))
	}))
	defer srv.Close()

	p := NewDeepL(newTestRC(), config.DeepLConfig{URL: srv.URL, Key: "free-key"})
	if p.Name() != "deepl" {
		t.Errorf("Name = %s", p.Name())
	}

	out, err := p.Translate(context.Background(), "Hola mundo", "es", "en")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello world" {
		t.Errorf("Translate = %q", out)
	}
	if len(got.Text) != 1 || got.Text[0] != "Hola mundo" {
		t.Errorf("text = %v", got.Text)
	}
	// DeepL wants uppercase language codes.
	if got.SourceLang != "ES" || got.TargetLang != "EN" {
		t.Errorf("langs = %s/%s, want ES/EN", got.SourceLang, got.TargetLang)
	}
}

func TestDeepL_EmptyTranslations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"translations":[],"message":"Quota exceeded"}`))
	}))
	defer srv.Close()

	p := NewDeepL(newTestRC(), config.DeepLConfig{URL: srv.URL, Key: "k"})
	_, err := p.Translate(context.Background(), "hola", "es", "en")
	if err == nil || !strings.Contains(err.Error(), "Quota exceeded") {
		t.Errorf("err = %v, want Quota exceeded", err)
	}
}
