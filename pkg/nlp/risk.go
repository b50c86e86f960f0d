package nlp

import (
	"fmt"
	"math"

	"argusgo/pkg/model"
)

// Assessment is the risk classifier's verdict with the factor trail
// that produced it.
type Assessment struct {
	Score    float64
	Level    model.RiskLevel
	Category string
	Factors  []string
}

// riskGroup ties event-type keywords to a score weight and the
// category the article lands in when the group dominates. Two distinct
// matches saturate a group.
type riskGroup struct {
	name     string
	category string
	weight   float64
	words    map[string]bool
}

var riskGroups = []riskGroup{
	{name: "armed conflict", category: "armed_conflict", weight: 0.35, words: wordSet(
		"war", "invasion", "offensive", "airstrike", "airstrikes",
		"strike", "strikes", "shelling", "missile", "missiles",
		"artillery", "troops", "frontline", "combat", "clashes",
		"bombardment", "drone", "drones", "rocket", "rockets")},
	{name: "violence", category: "armed_conflict", weight: 0.3, words: wordSet(
		"killed", "kills", "killing", "massacre", "casualties",
		"wounded", "injured", "dead", "deaths", "fatalities", "slain",
		"bombing", "explosion", "blast", "gunfire", "gunmen",
		"shooting", "attack", "attacks", "attacked")},
	{name: "terrorism", category: "terrorism", weight: 0.35, words: wordSet(
		"terror", "terrorist", "terrorists", "terrorism", "suicide",
		"hostage", "hostages", "kidnapped", "kidnapping", "insurgents",
		"insurgency", "extremists", "militants")},
	{name: "civil unrest", category: "civil_unrest", weight: 0.25, words: wordSet(
		"protest", "protests", "protesters", "riot", "riots", "coup",
		"uprising", "demonstrations", "unrest", "crackdown",
		"martial")},
	{name: "geopolitics", category: "geopolitics", weight: 0.2, words: wordSet(
		"sanctions", "blockade", "mobilization", "escalation",
		"nuclear", "treaty", "ceasefire", "embargo", "annexation",
		"referendum", "ultimatum")},
	{name: "humanitarian", category: "humanitarian", weight: 0.2, words: wordSet(
		"refugees", "displaced", "famine", "starvation", "humanitarian",
		"evacuation", "evacuated", "epidemic", "outbreak", "cholera")},
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// AssessRisk classifies conflict risk from canonical text, the
// sentiment score and the extracted entities. modelProb is an optional
// external classifier probability blended in when present. The score
// is additive over keyword groups plus entity and sentiment bonuses,
// clamped to [0, 1]; a failure of any single signal can only lower the
// score, never error.
func AssessRisk(text string, sentiment float64, ents *model.Entities, modelProb *float64) Assessment {
	present := make(map[string]bool)
	for _, tok := range tokenizeWords(text) {
		present[tok] = true
	}

	var score float64
	var factors []string
	category := "general"
	bestMatches := 0

	for _, g := range riskGroups {
		matched := 0
		for w := range g.words {
			if present[w] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		contrib := g.weight * math.Min(1, float64(matched)/2)
		score += contrib
		factors = append(factors, fmt.Sprintf("%s terms (%d): +%.2f", g.name, matched, contrib))
		if matched > bestMatches {
			bestMatches, category = matched, g.category
		}
	}

	if ents != nil && len(ents.Locations) > 0 &&
		(len(ents.Persons) > 0 || len(ents.Organizations) > 0) {
		score += 0.1
		factors = append(factors, "named actors in a named place: +0.10")
	}

	if sentiment < 0 {
		bonus := 0.25 * math.Min(1, -sentiment)
		score += bonus
		factors = append(factors, fmt.Sprintf("negative sentiment (%.2f): +%.2f", sentiment, bonus))
	}

	if modelProb != nil {
		p := clamp(*modelProb, 0, 1)
		score = 0.65*score + 0.35*p
		factors = append(factors, fmt.Sprintf("external model (%.2f): blended", p))
	}

	score = clamp(score, 0, 1)
	return Assessment{
		Score:    score,
		Level:    model.RiskLevelForScore(score),
		Category: category,
		Factors:  factors,
	}
}
