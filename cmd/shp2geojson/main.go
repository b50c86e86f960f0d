// Converts a Natural Earth admin-0 countries shapefile into the
// trimmed GeoJSON boundary layer the geocoder loads at startup.
// Properties are cut down to the fields the country service reads;
// an optional tolerance simplifies the geometry so the 10m dataset
// stays small enough to ship.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
)

// keptFields are the attributes the country service reads. Everything
// else Natural Earth carries (90+ columns in admin-0) is dropped.
var keptFields = []string{"ISO_A2", "ISO_A2_EH", "NAME"}

func main() {
	inputPath := flag.String("input", "", "Path to the admin-0 .shp file")
	outputPath := flag.String("output", "data/countries.geojson", "Path to the output .geojson file")
	tolerance := flag.Float64("tolerance", 0, "Douglas-Peucker tolerance in degrees, 0 keeps full detail")
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		log.Fatal("Input path is required")
	}

	if err := run(*inputPath, *outputPath, *tolerance); err != nil {
		log.Fatal(err)
	}
}

func run(inputPath, outputPath string, tolerance float64) error {
	shape, err := shp.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shape.Close()

	fieldIdx := make(map[string]int, len(keptFields))
	for i, f := range shape.Fields() {
		name := f.String()
		for _, want := range keptFields {
			if name == want {
				fieldIdx[want] = i
			}
		}
	}
	if _, ok := fieldIdx["ISO_A2"]; !ok {
		return fmt.Errorf("input has no ISO_A2 attribute, not an admin-0 file?")
	}

	fc := geojson.NewFeatureCollection()
	skipped := 0

	for shape.Next() {
		n, p := shape.Shape()

		poly, ok := p.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}

		var geometry orb.Geometry = assembleMultiPolygon(poly)
		if tolerance > 0 {
			geometry = simplify.DouglasPeucker(tolerance).Simplify(geometry)
		}

		f := geojson.NewFeature(geometry)
		for _, name := range keptFields {
			idx, ok := fieldIdx[name]
			if !ok {
				continue
			}
			// Natural Earth writes -99 where a code is unknown; the
			// loader's fallback cascade wants those keys absent.
			if val := shape.ReadAttribute(n, idx); val != "" && val != "-99" {
				f.Properties[name] = val
			}
		}
		fc.Append(f)
	}
	if err := shape.Err(); err != nil {
		return fmt.Errorf("error iterating shapes: %w", err)
	}
	if skipped > 0 {
		log.Printf("Skipped %d non-polygon shapes", skipped)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Printf("Converted %d countries to %s (%d bytes)\n", len(fc.Features), outputPath, len(data))
	return nil
}

// assembleMultiPolygon splits a shapefile polygon record into proper
// GeoJSON polygons. Shapefile rings come in one flat list: clockwise
// rings open a new landmass, counter-clockwise rings are holes in the
// one opened last.
func assembleMultiPolygon(s *shp.Polygon) orb.MultiPolygon {
	var mp orb.MultiPolygon

	for i := 0; i < int(s.NumParts); i++ {
		start := s.Parts[i]
		end := s.NumPoints
		if i < int(s.NumParts)-1 {
			end = s.Parts[i+1]
		}

		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{s.Points[j].X, s.Points[j].Y})
		}

		if ring.Orientation() == orb.CW || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], ring)
	}
	return mp
}
