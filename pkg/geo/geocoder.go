package geo

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"argusgo/pkg/config"
	"argusgo/pkg/logging"
	"argusgo/pkg/tracker"
)

// ErrNotFound reports that no geocoding step could place the name.
var ErrNotFound = errors.New("place not found")

// Location is a resolved place.
type Location struct {
	Name        string
	Lat         float64
	Lon         float64
	CountryCode string
	CountryName string
	Region      string
	// Zone is set on reverse lookups: land, territorial, eez or
	// international.
	Zone string
	// Source names the step that resolved the place.
	Source string
}

type forwardGeocoder interface {
	Geocode(ctx context.Context, place, countryHint string) (*Location, error)
}

type chainStep struct {
	name string
	fg   forwardGeocoder
}

// Geocoder walks the configured chain of forward geocoders and serves
// reverse lookups from the gazetteer plus the country layer.
type Geocoder struct {
	steps     []chainStep
	gazetteer *Gazetteer
	countries *CountryService
	trk       *tracker.Tracker
}

// NewGeocoder assembles the chain from cfg.Chain. Steps whose backing
// component is unavailable are skipped with a warning, so a missing
// cities file degrades to Nominatim-only operation instead of failing
// startup.
func NewGeocoder(cfg config.GeocoderConfig, gaz *Gazetteer, nom *NominatimClient, countries *CountryService, trk *tracker.Tracker) *Geocoder {
	g := &Geocoder{
		gazetteer: gaz,
		countries: countries,
		trk:       trk,
	}

	for _, name := range cfg.Chain {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "gazetteer":
			if gaz == nil {
				slog.Warn("Geocoder: gazetteer step configured but no cities loaded, skipping")
				continue
			}
			g.steps = append(g.steps, chainStep{name: "geocode.gazetteer", fg: &gazetteerGeocoder{gaz: gaz, countries: countries}})
		case "nominatim":
			if nom == nil {
				slog.Warn("Geocoder: nominatim step configured but not constructed, skipping")
				continue
			}
			g.steps = append(g.steps, chainStep{name: "geocode.nominatim", fg: nom})
		default:
			slog.Warn("Geocoder: unknown chain step", "step", name)
		}
	}

	return g
}

// Resolve tries each step in order and returns the first hit. A step
// error other than ErrNotFound moves on to the next step; the chain
// only fails entirely when every step missed or failed.
func (g *Geocoder) Resolve(ctx context.Context, place, countryHint string) (*Location, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, ErrNotFound
	}

	for _, step := range g.steps {
		loc, err := step.fg.Geocode(ctx, place, countryHint)
		if err == nil {
			g.trk.TrackAPISuccess(step.name)
			return loc, nil
		}
		if errors.Is(err, ErrNotFound) {
			g.trk.TrackAPIZero(step.name)
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.trk.TrackAPIFailure(step.name)
		logging.Trace("Geocode step failed", "step", step.name, "place", place, "error", err)
	}

	return nil, ErrNotFound
}

// Reverse names the area around a coordinate. It always returns a
// Location; over open water the country fields stay empty and Zone
// says how far offshore the point is.
func (g *Geocoder) Reverse(lat, lon float64) *Location {
	loc := &Location{Lat: lat, Lon: lon, Source: "reverse"}

	if g.gazetteer != nil {
		if city, ok := g.gazetteer.Nearest(lat, lon); ok {
			loc.Name = city.Name
			loc.CountryCode = city.CountryCode
			loc.Region = city.Admin1Code
		}
	}

	if g.countries != nil {
		res := g.countries.GetCountryAtPoint(lat, lon)
		loc.Zone = res.Zone
		if res.CountryCode != "" {
			loc.CountryCode = res.CountryCode
			loc.CountryName = res.CountryName
		}
		if res.Zone == ZoneInternational {
			// Nearest-city hit beyond the EEZ is misleading.
			loc.Name = ""
			loc.CountryCode = ""
			loc.Region = ""
		}
	}

	return loc
}

// gazetteerGeocoder adapts the offline gazetteer to the chain.
type gazetteerGeocoder struct {
	gaz       *Gazetteer
	countries *CountryService
}

func (s *gazetteerGeocoder) Geocode(ctx context.Context, place, countryHint string) (*Location, error) {
	city, ok := s.gaz.Lookup(place, countryHint)
	if !ok {
		return nil, ErrNotFound
	}

	loc := &Location{
		Name:        city.Name,
		Lat:         city.Lat,
		Lon:         city.Lon,
		CountryCode: city.CountryCode,
		Region:      city.Admin1Code,
		Source:      "gazetteer",
	}
	if s.countries != nil {
		loc.CountryName = s.countries.GetCountryName(city.CountryCode)
	}
	return loc, nil
}
