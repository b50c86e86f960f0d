package geo

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Maritime zone distance thresholds in meters
const (
	TerritorialWatersNM = 12   // 12 nautical miles
	EEZNM               = 200  // 200 nautical miles
	NMToMeters          = 1852 // 1 nautical mile = 1852 meters

	TerritorialWatersM = TerritorialWatersNM * NMToMeters // 22,224 meters
	EEZM               = EEZNM * NMToMeters               // 370,400 meters
)

// Zone constants. Conflict zones over water (shipping attacks, naval
// incidents) are classified by how far offshore the centroid sits.
const (
	ZoneLand          = "land"
	ZoneTerritorial   = "territorial"
	ZoneEEZ           = "eez"
	ZoneInternational = "international"
)

// CountryResult represents the result of a country lookup.
type CountryResult struct {
	CountryCode string  // ISO 3166-1 Alpha-2 (e.g., "UA")
	CountryName string  // Full name (e.g., "Ukraine")
	Zone        string  // "land", "territorial", "eez", "international"
	DistanceM   float64 // Distance to nearest coast in meters (0 if on land)
}

type countryCacheEntry struct {
	result       CountryResult
	lastAccessed time.Time
}

// CountryService provides country boundary detection using GeoJSON polygons.
type CountryService struct {
	features *geojson.FeatureCollection

	// Cache for expensive lookups
	mu    sync.RWMutex
	cache map[string]*countryCacheEntry

	nameOnce  sync.Once
	nameIndex map[string]string
}

// NewCountryService loads country boundaries from a GeoJSON file
// (Natural Earth admin-0 shaped properties).
func NewCountryService(geojsonPath string) (*CountryService, error) {
	data, err := os.ReadFile(geojsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read countries GeoJSON: %w", err)
	}
	return NewCountryServiceFromData(data)
}

// NewCountryServiceFromData parses country boundaries from raw GeoJSON.
func NewCountryServiceFromData(data []byte) (*CountryService, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse countries GeoJSON: %w", err)
	}

	slog.Info("CountryService: Loaded country boundaries", "features", len(fc.Features))

	s := &CountryService{
		features: fc,
		cache:    make(map[string]*countryCacheEntry),
	}

	// Start background pruning
	go s.startPruner()

	return s, nil
}

func (s *CountryService) startPruner() {
	ticker := time.NewTicker(30 * time.Second)
	for range ticker.C {
		s.pruneCache()
	}
}

func (s *CountryService) pruneCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for key, entry := range s.cache {
		if now.Sub(entry.lastAccessed) > 30*time.Second {
			delete(s.cache, key)
			count++
		}
	}
	if count > 0 {
		slog.Debug("CountryService: Pruned cache", "removed", count, "remaining", len(s.cache))
	}
}

// GetCountryAtPoint returns the country at the given coordinates.
// Results are cached using ~1km (0.01 degree) quantization and 30s TTL.
func (s *CountryService) GetCountryAtPoint(lat, lon float64) CountryResult {
	key := fmt.Sprintf("%.2f,%.2f", lat, lon)

	// 1. Concurrent-safe cache check (RLock)
	s.mu.RLock()
	if entry, ok := s.cache[key]; ok {
		entry.lastAccessed = time.Now()
		result := entry.result
		s.mu.RUnlock()
		return result
	}
	result := s.lookupCountry(lat, lon)
	s.mu.RUnlock()

	// 2. Update cache (Lock)
	s.mu.Lock()
	s.cache[key] = &countryCacheEntry{
		result:       result,
		lastAccessed: time.Now(),
	}
	s.mu.Unlock()
	return result
}

// ResetCache clears all entries from the cache.
func (s *CountryService) ResetCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*countryCacheEntry)
}

// CodeForName resolves a country referred to by display name or by the
// ISO code itself to its ISO 3166-1 alpha-2 code. Matching is
// case-insensitive; dots are ignored so "U.S." and "US" both resolve.
func (s *CountryService) CodeForName(name string) (string, bool) {
	s.nameOnce.Do(s.buildNameIndex)
	key := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(name, ".", "")))
	code, ok := s.nameIndex[key]
	return code, ok
}

func (s *CountryService) buildNameIndex() {
	idx := make(map[string]string, 2*len(s.features.Features))
	for _, feature := range s.features.Features {
		code := getISOCode(feature.Properties)
		if code == "" {
			continue
		}
		idx[strings.ToLower(code)] = code
		if name := getCountryName(feature.Properties); name != "" {
			idx[strings.ToLower(name)] = code
		}
	}
	s.nameIndex = idx
}

// GetCountryName returns the full name of a country given its ISO code.
func (s *CountryService) GetCountryName(code string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, feature := range s.features.Features {
		if getISOCode(feature.Properties) == code {
			return getCountryName(feature.Properties)
		}
	}
	return ""
}

// lookupCountry performs the actual point-in-polygon and distance calculations.
func (s *CountryService) lookupCountry(lat, lon float64) CountryResult {
	point := orb.Point{lon, lat} // orb uses [lon, lat] order

	// 1. Check if point is inside any country polygon
	for _, feature := range s.features.Features {
		if !feature.Geometry.Bound().Contains(point) {
			continue
		}
		if containsPoint(feature.Geometry, point) {
			return CountryResult{
				CountryCode: getISOCode(feature.Properties),
				CountryName: getCountryName(feature.Properties),
				Zone:        ZoneLand,
				DistanceM:   0,
			}
		}
	}

	// 2. Point is over water - find nearest country
	minDist := math.MaxFloat64
	var nearestCode, nearestName string

	for _, feature := range s.features.Features {
		dist := boundaryDistance(point, feature.Geometry)
		if dist < minDist {
			minDist = dist
			nearestCode = getISOCode(feature.Properties)
			nearestName = getCountryName(feature.Properties)
		}
	}

	// Convert planar distance to approximate meters at this latitude.
	// Good enough for zone classification.
	distMeters := degreesToMeters(minDist, lat)

	// 3. Determine maritime zone
	var zone string
	switch {
	case distMeters <= TerritorialWatersM:
		zone = ZoneTerritorial
	case distMeters <= EEZM:
		zone = ZoneEEZ
	default:
		zone = ZoneInternational
		nearestCode = ""
		nearestName = ""
	}

	return CountryResult{
		CountryCode: nearestCode,
		CountryName: nearestName,
		Zone:        zone,
		DistanceM:   distMeters,
	}
}
