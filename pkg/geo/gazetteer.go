package geo

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// City is one populated place from a geonames cities dump.
type City struct {
	Name        string
	ASCIIName   string
	Lat         float64
	Lon         float64
	CountryCode string
	Admin1Code  string
	Population  int64
}

// Gazetteer resolves place names to coordinates (forward) and
// coordinates to the nearest city (reverse) without touching the
// network. Cities are indexed by normalized name and by 1-degree grid
// cell.
type Gazetteer struct {
	cities []City
	byName map[string][]int
	grid   map[int][]int
}

// LoadGazetteer reads a geonames cities file (tab-separated, 19
// columns) and builds both indexes.
func LoadGazetteer(path string) (*Gazetteer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cities file: %w", err)
	}
	defer file.Close()

	g := &Gazetteer{
		byName: make(map[string][]int),
		grid:   make(map[int][]int),
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "\t")
		if len(parts) < 19 {
			continue
		}

		lat, _ := strconv.ParseFloat(parts[4], 64)
		lon, _ := strconv.ParseFloat(parts[5], 64)
		pop, _ := strconv.ParseInt(parts[14], 10, 64)

		city := City{
			Name:        parts[1],
			ASCIIName:   parts[2],
			Lat:         lat,
			Lon:         lon,
			CountryCode: parts[8],
			Admin1Code:  parts[10],
			Population:  pop,
		}

		idx := len(g.cities)
		g.cities = append(g.cities, city)

		g.index(city.Name, idx)
		if city.ASCIIName != "" && city.ASCIIName != city.Name {
			g.index(city.ASCIIName, idx)
		}

		key := g.getGridKey(lat, lon)
		g.grid[key] = append(g.grid[key], idx)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return g, nil
}

// Size reports the number of loaded cities.
func (g *Gazetteer) Size() int {
	return len(g.cities)
}

func (g *Gazetteer) index(name string, idx int) {
	key := normalizeName(name)
	if key == "" {
		return
	}
	g.byName[key] = append(g.byName[key], idx)
}

// Lookup resolves a place name. When countryHint (ISO 3166-1 alpha-2)
// is set and any candidate matches it, only those candidates are
// considered; ties go to the largest population. The hint is advisory:
// if nothing matches it, all candidates stay in play.
func (g *Gazetteer) Lookup(name, countryHint string) (City, bool) {
	indices, ok := g.byName[normalizeName(name)]
	if !ok {
		return City{}, false
	}

	hint := strings.ToUpper(strings.TrimSpace(countryHint))
	candidates := indices
	if hint != "" {
		var filtered []int
		for _, idx := range indices {
			if g.cities[idx].CountryCode == hint {
				filtered = append(filtered, idx)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	best := candidates[0]
	for _, idx := range candidates[1:] {
		if g.cities[idx].Population > g.cities[best].Population {
			best = idx
		}
	}
	return g.cities[best], true
}

// Nearest returns the closest city within two grid cells (roughly 200
// to 300 km depending on latitude) of the given point.
func (g *Gazetteer) Nearest(lat, lon float64) (City, bool) {
	originLatKey := int(math.Floor(lat))
	originLonKey := int(math.Floor(lon))
	target := Point{Lat: lat, Lon: lon}

	var best City
	found := false
	minDist := math.MaxFloat64

	for dLat := -2; dLat <= 2; dLat++ {
		for dLon := -2; dLon <= 2; dLon++ {
			key := g.makeKey(originLatKey+dLat, originLonKey+dLon)
			for _, idx := range g.grid[key] {
				city := g.cities[idx]
				d := Distance(target, Point{Lat: city.Lat, Lon: city.Lon})
				if d < minDist {
					minDist = d
					best = city
					found = true
				}
			}
		}
	}

	return best, found
}

func (g *Gazetteer) getGridKey(lat, lon float64) int {
	return g.makeKey(int(math.Floor(lat)), int(math.Floor(lon)))
}

func (g *Gazetteer) makeKey(lat, lon int) int {
	// Combine two ints into one.
	// Offset lat to be positive (Lat -90 to 90 -> 0 to 180)
	// Offset lon to be positive (Lon -180 to 180 -> 0 to 360)
	// Key = (Lat+90) * 360 + (Lon+180)
	return (lat+90)*360 + (lon + 180)
}

// normalizeName lowercases and strips diacritics and apostrophes so
// spelling variants of the same place collapse to one key.
func normalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		if r == '\'' || r == '’' {
			return -1
		}
		return r
	}, folded)
	return strings.ToLower(strings.TrimSpace(folded))
}
