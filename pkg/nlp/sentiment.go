package nlp

import (
	"math"
	"strings"
)

// negators flip the valence of a sentiment word up to two tokens later,
// so "no ceasefire" reads negative and "not destroyed" softens.
var negators = map[string]bool{
	"not": true, "no": true, "never": true, "without": true,
	"none": true, "neither": true, "nor": true, "cannot": true,
}

var intensifiers = map[string]float64{
	"very": 1.5, "extremely": 1.8, "highly": 1.5,
	"severely": 1.8, "heavily": 1.5, "deeply": 1.5,
}

// valences is a conflict-domain word list on [-1, 1]. General-purpose
// lexicons miss the register of war reporting; this one is small and
// biased toward it on purpose.
var valences = map[string]float64{
	// violence and loss
	"killed": -0.9, "kills": -0.9, "killing": -0.9, "massacre": -1,
	"genocide": -1, "dead": -0.8, "death": -0.8, "deaths": -0.8,
	"casualties": -0.8, "fatalities": -0.8, "wounded": -0.7,
	"injured": -0.6, "slain": -0.9, "executed": -0.9,

	// military action
	"war": -0.7, "invasion": -0.8, "attack": -0.7, "attacks": -0.7,
	"attacked": -0.7, "bombing": -0.9, "bombed": -0.8, "airstrike": -0.8,
	"airstrikes": -0.8, "shelling": -0.7, "missile": -0.6,
	"missiles": -0.6, "strike": -0.5, "strikes": -0.5, "offensive": -0.5,
	"siege": -0.7, "fighting": -0.6, "clashes": -0.6, "combat": -0.5,
	"gunfire": -0.7, "explosion": -0.7, "blast": -0.7, "destroyed": -0.7,
	"destruction": -0.7,

	// terror and coercion
	"terror": -0.9, "terrorist": -0.9, "terrorism": -0.9,
	"hostage": -0.8, "hostages": -0.8, "kidnapped": -0.8,
	"kidnapping": -0.8, "torture": -0.9, "atrocities": -0.9,

	// instability
	"crisis": -0.6, "violence": -0.8, "threat": -0.6, "threats": -0.6,
	"coup": -0.7, "riot": -0.6, "riots": -0.6, "unrest": -0.5,
	"escalation": -0.6, "tension": -0.4, "tensions": -0.4,
	"sanctions": -0.4, "blockade": -0.5, "collapse": -0.6,
	"famine": -0.8, "starvation": -0.8, "refugees": -0.5,
	"displaced": -0.5, "fear": -0.5, "panic": -0.6, "warning": -0.3,
	"dispute": -0.3, "protest": -0.3, "protests": -0.3,

	// de-escalation and recovery
	"peace": 0.7, "ceasefire": 0.6, "truce": 0.6, "agreement": 0.5,
	"treaty": 0.5, "stability": 0.5, "aid": 0.4, "recovery": 0.5,
	"rebuilt": 0.5, "reconciliation": 0.7, "resolution": 0.4,
	"cooperation": 0.5, "dialogue": 0.4, "breakthrough": 0.6,
	"liberated": 0.4, "celebration": 0.6, "success": 0.5,
	"progress": 0.4, "safe": 0.4, "calm": 0.4, "humanitarian": 0.2,
	"support": 0.3,
}

// Sentiment scores text on [-1, 1]. The sum of matched valences grows
// with sqrt of the hit count, so consistently negative text saturates
// while one grim word in a long piece does not.
func Sentiment(text string) float64 {
	tokens := tokenizeWords(text)

	var sum float64
	hits := 0
	for i, tok := range tokens {
		v, ok := valences[tok]
		if !ok {
			continue
		}

		mult := 1.0
		negated := false
		for back := 1; back <= 2 && i-back >= 0; back++ {
			prev := tokens[i-back]
			if negators[prev] || strings.HasSuffix(prev, "n't") {
				negated = true
			}
			if m, ok := intensifiers[prev]; ok {
				mult = m
			}
		}

		v *= mult
		if negated {
			v = -v * 0.75
		}
		sum += clamp(v, -1, 1)
		hits++
	}

	if hits == 0 {
		return 0
	}
	return clamp(sum/math.Sqrt(float64(hits)), -1, 1)
}
