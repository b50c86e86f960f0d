// Package registry holds the source catalog: every feed the fetcher
// polls, with language, country, priority and conflict-zone metadata.
// The compiled-in default set can be replaced or extended per entry by
// a YAML catalog file; the merged set is validated as a whole and
// swapped atomically, so a broken catalog file never takes down a
// running registry.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"argusgo/pkg/model"
)

// Registry is the in-memory source catalog. Reload builds a new map
// off to the side and swaps it in one step, so readers never see a
// half-merged catalog.
type Registry struct {
	path     string
	validate *validator.Validate

	mu      sync.RWMutex
	sources map[string]model.Source
}

// catalogFile is the on-disk YAML shape.
type catalogFile struct {
	Sources []sourceEntry `yaml:"sources"`
}

// sourceEntry mirrors model.Source for YAML. Enabled is a pointer so
// an omitted key means "on" rather than "off".
type sourceEntry struct {
	Name            string `yaml:"name"`
	FeedURL         string `yaml:"feed_url"`
	Protocol        string `yaml:"protocol"`
	Language        string `yaml:"language"`
	Country         string `yaml:"country"`
	Region          string `yaml:"region"`
	Priority        string `yaml:"priority"`
	ConflictZoneTag string `yaml:"conflict_zone_tag"`
	Enabled         *bool  `yaml:"enabled"`
}

func (e sourceEntry) toSource() model.Source {
	s := model.Source{
		Name:            strings.TrimSpace(e.Name),
		FeedURL:         strings.TrimSpace(e.FeedURL),
		Protocol:        model.Protocol(e.Protocol),
		Language:        e.Language,
		Country:         strings.ToUpper(e.Country),
		Region:          e.Region,
		Priority:        model.Priority(e.Priority),
		ConflictZoneTag: e.ConflictZoneTag,
		Enabled:         true,
	}
	if s.Protocol == "" {
		s.Protocol = model.ProtocolRSS
	}
	if s.Priority == "" {
		s.Priority = model.PriorityStandard
	}
	if e.Enabled != nil {
		s.Enabled = *e.Enabled
	}
	return s
}

// New loads the compiled-in catalog, overlays the YAML file at path
// (when it exists), and validates the merged set. An unreadable or
// invalid file fails construction; a missing file is fine.
func New(path string) (*Registry, error) {
	r := &Registry{
		path:     path,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the catalog file. On any error the previous catalog
// stays in place.
func (r *Registry) Reload() error {
	return r.load()
}

func (r *Registry) load() error {
	merged := make(map[string]model.Source)
	for _, s := range defaultCatalog() {
		merged[s.Name] = s
	}

	overlayed := 0
	if r.path != "" {
		data, err := os.ReadFile(r.path)
		switch {
		case os.IsNotExist(err):
			slog.Info("Source catalog file not found, using built-in catalog", "path", r.path)
		case err != nil:
			return fmt.Errorf("read source catalog: %w", err)
		default:
			var file catalogFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse source catalog: %w", err)
			}
			for _, entry := range file.Sources {
				s := entry.toSource()
				merged[s.Name] = s
				overlayed++
			}
		}
	}

	// Validate the merged set as a whole.
	seenURL := make(map[string]string, len(merged))
	for name, s := range merged {
		if name == "" {
			return fmt.Errorf("source with empty name in catalog")
		}
		if err := r.validate.Struct(s); err != nil {
			return fmt.Errorf("source %q: %w", name, err)
		}
		if prev, dup := seenURL[s.FeedURL]; dup {
			return fmt.Errorf("sources %q and %q share feed url %s", prev, name, s.FeedURL)
		}
		seenURL[s.FeedURL] = name
	}

	r.mu.Lock()
	r.sources = merged
	r.mu.Unlock()

	enabled, total := r.Count()
	slog.Info("Source catalog loaded", "total", total, "enabled", enabled, "overlay_entries", overlayed)
	return nil
}

// Get returns a source by name, enabled or not.
func (r *Registry) Get(name string) (model.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// All returns every catalog entry, including disabled ones, sorted by
// name. Used by the sources API; pollers want Enabled.
func (r *Registry) All() []model.Source {
	return r.collect(func(model.Source) bool { return true })
}

// Enabled returns the sources the fetcher should poll.
func (r *Registry) Enabled() []model.Source {
	return r.collect(func(s model.Source) bool { return s.Enabled })
}

// ByLanguage returns enabled sources publishing in lang.
func (r *Registry) ByLanguage(lang string) []model.Source {
	lang = strings.ToLower(lang)
	return r.collect(func(s model.Source) bool {
		return s.Enabled && strings.ToLower(s.Language) == lang
	})
}

// ByRegion returns enabled sources covering the given region.
func (r *Registry) ByRegion(region string) []model.Source {
	region = strings.ToLower(region)
	return r.collect(func(s model.Source) bool {
		return s.Enabled && strings.ToLower(s.Region) == region
	})
}

// ByPriority returns enabled sources with the given priority.
func (r *Registry) ByPriority(p model.Priority) []model.Source {
	return r.collect(func(s model.Source) bool {
		return s.Enabled && s.Priority == p
	})
}

// ByConflictZone returns enabled sources tagged for the given zone.
func (r *Registry) ByConflictZone(tag string) []model.Source {
	return r.collect(func(s model.Source) bool {
		return s.Enabled && s.ConflictZoneTag == tag
	})
}

// Count reports enabled and total source counts.
func (r *Registry) Count() (enabled, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sources {
		total++
		if s.Enabled {
			enabled++
		}
	}
	return enabled, total
}

func (r *Registry) collect(keep func(model.Source) bool) []model.Source {
	r.mu.RLock()
	out := make([]model.Source, 0, len(r.sources))
	for _, s := range r.sources {
		if keep(s) {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
