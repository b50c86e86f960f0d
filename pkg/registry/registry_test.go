package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"argusgo/pkg/model"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuiltInCatalog(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	enabled, total := r.Count()
	if total != len(defaultCatalog()) {
		t.Errorf("total = %d, want %d", total, len(defaultCatalog()))
	}
	if enabled != total {
		t.Errorf("enabled = %d, want all %d", enabled, total)
	}

	if _, ok := r.Get("bbc-world"); !ok {
		t.Error("built-in bbc-world missing")
	}
}

func TestMissingCatalogFileUsesDefaults(t *testing.T) {
	r, err := New(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, total := r.Count(); total == 0 {
		t.Error("expected built-in catalog")
	}
}

func TestOverlayReplacesAndAdds(t *testing.T) {
	path := writeCatalog(t, `
sources:
  - name: bbc-world
    feed_url: https://feeds.bbci.co.uk/news/world/rss.xml
    language: en
    country: gb
    priority: high
    enabled: false
  - name: local-wire
    feed_url: https://wire.example.org/feed.xml
    language: de
    country: DE
`)
	r, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bbc, ok := r.Get("bbc-world")
	if !ok {
		t.Fatal("bbc-world missing after overlay")
	}
	if bbc.Enabled {
		t.Error("overlay should have disabled bbc-world")
	}

	custom, ok := r.Get("local-wire")
	if !ok {
		t.Fatal("overlay-added source missing")
	}
	if custom.Protocol != model.ProtocolRSS {
		t.Errorf("protocol default = %s, want rss", custom.Protocol)
	}
	if custom.Priority != model.PriorityStandard {
		t.Errorf("priority default = %s, want standard", custom.Priority)
	}
	if !custom.Enabled {
		t.Error("omitted enabled key must default to true")
	}
	if custom.Country != "DE" {
		t.Errorf("country = %s, want DE", custom.Country)
	}

	// Disabled sources appear in All but in no projection.
	for _, s := range r.Enabled() {
		if s.Name == "bbc-world" {
			t.Error("disabled source leaked into Enabled()")
		}
	}
	found := false
	for _, s := range r.All() {
		if s.Name == "bbc-world" {
			found = true
		}
	}
	if !found {
		t.Error("All() must include disabled sources")
	}
}

func TestProjections(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range r.ByLanguage("EN") {
		if s.Language != "en" {
			t.Errorf("ByLanguage(EN) returned %s source %s", s.Language, s.Name)
		}
	}
	if len(r.ByLanguage("en")) == 0 {
		t.Error("ByLanguage(en) empty")
	}

	critical := r.ByPriority(model.PriorityCritical)
	if len(critical) == 0 {
		t.Fatal("no critical sources in built-in catalog")
	}
	for _, s := range critical {
		if s.Priority != model.PriorityCritical {
			t.Errorf("ByPriority returned %s source %s", s.Priority, s.Name)
		}
	}

	ukraine := r.ByConflictZone("ukraine")
	if len(ukraine) != 2 {
		t.Errorf("ByConflictZone(ukraine) = %d sources, want 2", len(ukraine))
	}

	me := r.ByRegion("middle-east")
	if len(me) == 0 {
		t.Error("ByRegion(middle-east) empty")
	}

	// Names come back sorted.
	all := r.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].Name > all[i].Name {
			t.Fatalf("All() not sorted: %s before %s", all[i-1].Name, all[i].Name)
		}
	}
}

func TestDisablingRemovesFromProjections(t *testing.T) {
	path := writeCatalog(t, `
sources:
  - name: kyiv-independent
    feed_url: https://kyivindependent.com/feed/rss
    language: en
    country: UA
    priority: critical
    conflict_zone_tag: ukraine
    enabled: false
`)
	r, err := New(path)
	if err != nil {
		t.Fatal(err)
	}

	ukraine := r.ByConflictZone("ukraine")
	if len(ukraine) != 1 || ukraine[0].Name != "ukrinform-en" {
		t.Errorf("ByConflictZone(ukraine) = %v, want only ukrinform-en", names(ukraine))
	}
}

func TestDuplicateFeedURLRejected(t *testing.T) {
	path := writeCatalog(t, `
sources:
  - name: bbc-clone
    feed_url: https://feeds.bbci.co.uk/news/world/rss.xml
    language: en
`)
	if _, err := New(path); err == nil {
		t.Fatal("expected duplicate feed url error")
	} else if !strings.Contains(err.Error(), "share feed url") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInvalidSourceRejected(t *testing.T) {
	path := writeCatalog(t, `
sources:
  - name: bad-proto
    feed_url: https://example.org/feed
    protocol: gopher
    language: en
`)
	if _, err := New(path); err == nil {
		t.Fatal("expected validation error")
	} else if !strings.Contains(err.Error(), "bad-proto") {
		t.Errorf("error should name the source: %v", err)
	}

	path = writeCatalog(t, `
sources:
  - name: no-url
    language: en
`)
	if _, err := New(path); err == nil {
		t.Fatal("expected validation error for missing url")
	}
}

func TestReloadKeepsOldOnError(t *testing.T) {
	path := writeCatalog(t, `
sources:
  - name: local-wire
    feed_url: https://wire.example.org/feed.xml
    language: de
`)
	r, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get("local-wire"); !ok {
		t.Fatal("local-wire missing")
	}

	if err := os.WriteFile(path, []byte("sources: [not: {valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err == nil {
		t.Fatal("expected reload error")
	}

	// Previous catalog intact.
	if _, ok := r.Get("local-wire"); !ok {
		t.Error("reload failure must not drop the old catalog")
	}

	// A fixed file reloads cleanly.
	if err := os.WriteFile(path, []byte(`
sources:
  - name: second-wire
    feed_url: https://second.example.org/feed.xml
    language: fr
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := r.Get("second-wire"); !ok {
		t.Error("second-wire missing after reload")
	}
	if _, ok := r.Get("local-wire"); ok {
		t.Error("stale overlay entry survived reload")
	}
}

func names(sources []model.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Name
	}
	return out
}
