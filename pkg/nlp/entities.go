package nlp

import (
	"strings"
	"unicode"

	"argusgo/pkg/model"
)

// PlaceIndex reports whether a name is a known place. The geo layer
// (gazetteer plus country polygons) implements it; tests use a map.
type PlaceIndex interface {
	IsPlace(name string) bool
}

const maxEntitiesPerKind = 12

// Extractor pulls named entities out of canonical text using
// capitalization heuristics: no model files, tuned for news English.
type Extractor struct {
	places PlaceIndex
}

// NewExtractor builds an extractor. places may be nil; location
// recognition then falls back to the builtin region names only.
func NewExtractor(places PlaceIndex) *Extractor {
	return &Extractor{places: places}
}

// candidate is a capitalized run with the lowercased word preceding
// it, which disambiguates persons ("president X") from the rest.
type candidate struct {
	name string
	prev string
}

// Extract returns the entities mentioned in title and body, deduplicated
// in order of first appearance and capped per kind.
func (e *Extractor) Extract(title, body string) *model.Entities {
	cands := collectCandidates(title + ". " + body)

	ents := &model.Entities{}
	seen := make(map[string]bool, len(cands))
	for _, c := range cands {
		key := strings.ToLower(c.name)
		if seen[key] {
			continue
		}
		seen[key] = true

		switch e.classify(c) {
		case kindLocation:
			ents.Locations = appendCapped(ents.Locations, c.name)
		case kindOrganization:
			ents.Organizations = appendCapped(ents.Organizations, c.name)
		case kindPerson:
			ents.Persons = appendCapped(ents.Persons, c.name)
		default:
			ents.Misc = appendCapped(ents.Misc, c.name)
		}
	}
	return ents
}

type entityKind int

const (
	kindMisc entityKind = iota
	kindLocation
	kindOrganization
	kindPerson
)

func (e *Extractor) classify(c candidate) entityKind {
	lower := strings.ToLower(c.name)
	if builtinRegions[lower] {
		return kindLocation
	}
	if e.places != nil && e.places.IsPlace(c.name) {
		return kindLocation
	}
	if knownOrgs[lower] {
		return kindOrganization
	}
	for _, tok := range strings.Fields(lower) {
		if orgKeywords[tok] {
			return kindOrganization
		}
	}
	if isAcronym(c.name) {
		return kindOrganization
	}
	if honorifics[c.prev] {
		return kindPerson
	}
	if strings.Contains(c.name, " ") {
		return kindPerson
	}
	return kindMisc
}

func appendCapped(list []string, name string) []string {
	if len(list) >= maxEntitiesPerKind {
		return list
	}
	return append(list, name)
}

// collectCandidates walks sentence by sentence and gathers runs of
// capitalized words. Connectors ("of", "al") join a run only when
// another capitalized word follows; leading honorifics shift into the
// prev slot so "Prime Minister Ana Brnabić" yields the bare name.
func collectCandidates(text string) []candidate {
	var out []candidate
	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)
		prev := ""
		i := 0
		for i < len(words) {
			w := cleanWord(words[i])
			if w == "" || !isCapitalized(w) {
				prev = strings.ToLower(w)
				i++
				continue
			}

			run := []string{w}
			j := i + 1
			for j < len(words) {
				next := cleanWord(words[j])
				if next == "" {
					break
				}
				if isCapitalized(next) {
					run = append(run, next)
					j++
					continue
				}
				if connectors[strings.ToLower(next)] && j+1 < len(words) {
					after := cleanWord(words[j+1])
					if after != "" && isCapitalized(after) {
						run = append(run, strings.ToLower(next), after)
						j += 2
						continue
					}
				}
				break
			}

			// "The President" must not survive as a name: shed the
			// leading article and titles, keep only a real remainder.
			if strings.EqualFold(run[0], "the") {
				prev = "the"
				run = run[1:]
			}
			for len(run) > 1 && honorifics[strings.ToLower(run[0])] {
				prev = strings.ToLower(run[0])
				run = run[1:]
			}

			skip := len(run) == 0 ||
				(len(run) == 1 && honorifics[strings.ToLower(run[0])]) ||
				(i == 0 && len(run) == 1 && commonWords[strings.ToLower(run[0])])
			if !skip {
				out = append(out, candidate{name: strings.Join(run, " "), prev: prev})
			}
			prev = ""
			i = j
		}
	}
	return out
}

// cleanWord strips surrounding punctuation and a trailing possessive,
// keeping internal hyphens, apostrophes and dots ("U.S", "al-Shabaab").
func cleanWord(w string) string {
	w = strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, suffix := range []string{"'s", "’s"} {
		if strings.HasSuffix(w, suffix) {
			w = w[:len(w)-len(suffix)]
			break
		}
	}
	if len([]rune(w)) < 2 {
		return ""
	}
	return w
}

func isCapitalized(w string) bool {
	for _, part := range strings.Split(w, "-") {
		for _, r := range part {
			if unicode.IsUpper(r) {
				return true
			}
			break
		}
	}
	return false
}

// isAcronym matches short all-caps tokens like NATO or IAEA.
func isAcronym(w string) bool {
	w = strings.ReplaceAll(w, ".", "")
	runes := []rune(w)
	if len(runes) < 2 || len(runes) > 6 {
		return false
	}
	for _, r := range runes {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// PrimaryLocation picks the place an article is most likely about: the
// most frequent in the body, else the first one the title mentions,
// else the first extracted.
func PrimaryLocation(locations []string, title, body string) string {
	if len(locations) == 0 {
		return ""
	}

	lowBody := strings.ToLower(body)
	best, bestCount, bestPos := "", 0, -1
	for _, loc := range locations {
		l := strings.ToLower(loc)
		n := strings.Count(lowBody, l)
		if n == 0 {
			continue
		}
		pos := strings.Index(lowBody, l)
		if n > bestCount || (n == bestCount && pos < bestPos) {
			best, bestCount, bestPos = loc, n, pos
		}
	}
	if best != "" {
		return best
	}

	lowTitle := strings.ToLower(title)
	for _, loc := range locations {
		if strings.Contains(lowTitle, strings.ToLower(loc)) {
			return loc
		}
	}
	return locations[0]
}

// builtinRegions are conflict-reporting areas no city gazetteer or
// country polygon carries.
var builtinRegions = map[string]bool{
	"middle east": true, "eastern europe": true, "north africa": true,
	"west africa": true, "east africa": true, "horn of africa": true,
	"south china sea": true, "black sea": true, "red sea": true,
	"persian gulf": true, "gaza strip": true, "west bank": true,
	"donbas": true, "sahel": true, "balkans": true, "caucasus": true,
	"latin america": true, "central asia": true, "southeast asia": true,
}

var connectors = map[string]bool{
	"of": true, "the": true, "al": true, "bin": true, "van": true,
	"von": true, "der": true, "de": true, "el": true, "and": true,
}

var orgKeywords = map[string]bool{
	"ministry": true, "army": true, "forces": true, "force": true,
	"brigade": true, "battalion": true, "group": true, "council": true,
	"committee": true, "union": true, "nations": true,
	"organization": true, "organisation": true, "agency": true,
	"police": true, "court": true, "parliament": true,
	"government": true, "party": true, "corporation": true,
	"company": true, "bank": true, "university": true,
	"institute": true, "front": true, "movement": true, "militia": true,
	"guard": true, "corps": true, "command": true, "coalition": true,
	"administration": true, "association": true, "federation": true,
	"authority": true, "state": true,
}

var knownOrgs = map[string]bool{
	"taliban": true, "hamas": true, "hezbollah": true, "al-qaeda": true,
	"al-shabaab": true, "wagner": true, "pentagon": true,
	"kremlin": true, "interpol": true, "europol": true,
}

var honorifics = map[string]bool{
	"president": true, "minister": true, "prime": true, "general": true,
	"colonel": true, "chancellor": true, "senator": true,
	"ambassador": true, "mr": true, "mrs": true, "ms": true, "dr": true,
	"king": true, "queen": true, "prince": true, "sheikh": true,
	"ayatollah": true, "commander": true, "captain": true, "major": true,
	"sergeant": true, "governor": true, "mayor": true, "secretary": true,
	"spokesman": true, "spokeswoman": true, "leader": true,
	"chief": true, "premier": true, "pope": true,
}

// commonWords suppresses bare sentence-starters that only look like
// names because of position.
var commonWords = map[string]bool{
	"the": true, "a": true, "an": true, "in": true, "on": true,
	"at": true, "but": true, "and": true, "he": true, "she": true,
	"it": true, "they": true, "we": true, "this": true, "that": true,
	"these": true, "those": true, "after": true, "before": true,
	"as": true, "when": true, "while": true, "if": true, "since": true,
	"during": true, "under": true, "over": true, "from": true,
	"to": true, "for": true, "with": true, "by": true, "of": true,
	"his": true, "her": true, "their": true, "our": true, "its": true,
	"there": true, "here": true, "now": true, "then": true,
	"however": true, "meanwhile": true, "thousands": true,
	"hundreds": true, "dozens": true, "many": true, "some": true,
	"several": true, "more": true, "most": true, "other": true,
	"others": true, "new": true, "last": true, "first": true,
	"two": true, "three": true, "four": true, "five": true,
	"monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true,
	"december": true,
}
