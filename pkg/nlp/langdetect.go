package nlp

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Detection is the language detector's verdict. Confidence is the
// share of evidence behind the pick, so short or mixed text scores low.
type Detection struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// stopwordProfiles lists high-frequency function words per Latin-script
// language. Counting hits against each profile is crude but needs no
// model files and is reliable at news-article length.
var stopwordProfiles = map[string][]string{
	"en": {"the", "and", "of", "to", "in", "is", "was", "for", "that", "with",
		"has", "have", "been", "were", "are", "this", "from", "not", "but", "said"},
	"es": {"el", "la", "los", "las", "del", "que", "en", "un", "una", "por",
		"con", "para", "como", "pero", "más", "fue", "este", "esta", "son", "también"},
	"fr": {"le", "les", "des", "du", "et", "une", "qui", "dans", "pour", "par",
		"sur", "avec", "est", "sont", "pas", "plus", "cette", "aux", "été", "se"},
	"de": {"der", "die", "das", "und", "den", "von", "zu", "mit", "auf", "für",
		"ist", "im", "dem", "nicht", "ein", "eine", "als", "auch", "nach", "wird"},
	"it": {"il", "gli", "di", "che", "per", "con", "della", "sono", "da", "al",
		"si", "ma", "come", "anche", "più", "nel", "alla", "questo", "dopo", "stato"},
	"pt": {"não", "uma", "para", "com", "por", "mais", "como", "mas", "foi",
		"dos", "das", "está", "são", "pelo", "pela", "também", "já", "sua", "seu", "os"},
	"tr": {"ve", "bir", "bu", "için", "ile", "olarak", "daha", "çok", "gibi",
		"kadar", "sonra", "ancak", "ama", "olan", "yüzde", "olduğunu", "göre", "kendi", "yeni", "dedi"},
	"so": {"iyo", "oo", "ka", "ku", "ah", "waa", "uu", "ay", "loo", "soo",
		"ee", "ugu", "inuu", "ayaa", "wuxuu", "dhan"},
}

// latinOrder fixes the comparison order so ties resolve the same way
// on every run.
var latinOrder = []string{"en", "es", "fr", "de", "it", "pt", "tr", "so"}

var profileSets = buildProfileSets()

func buildProfileSets() map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(stopwordProfiles))
	for lang, words := range stopwordProfiles {
		set := make(map[string]bool, len(words))
		for _, w := range words {
			set[w] = true
		}
		out[lang] = set
	}
	return out
}

// Detect guesses the language of text. Script statistics decide the
// non-Latin cases; Latin-script languages are separated by stopword
// profiles. An empty Language means the text carried no usable signal.
func Detect(text string) Detection {
	t := tallyScripts(text)
	if t.letters == 0 {
		return Detection{}
	}

	share := func(n int) float64 { return float64(n) / float64(t.letters) }
	switch {
	case t.han*2 > t.letters:
		return Detection{Language: "zh", Confidence: share(t.han)}
	case t.hebrew*2 > t.letters:
		return Detection{Language: "he", Confidence: share(t.hebrew)}
	case t.arabic*2 > t.letters:
		return Detection{Language: detectArabicScript(text), Confidence: share(t.arabic)}
	case t.cyrillic*2 > t.letters:
		return Detection{Language: detectCyrillic(text), Confidence: share(t.cyrillic)}
	}

	return detectLatin(text)
}

type scriptTally struct {
	latin, cyrillic, arabic, hebrew, han int
	letters                              int
}

func tallyScripts(text string) scriptTally {
	var t scriptTally
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		t.letters++
		switch {
		case unicode.Is(unicode.Latin, r):
			t.latin++
		case unicode.Is(unicode.Cyrillic, r):
			t.cyrillic++
		case unicode.Is(unicode.Arabic, r):
			t.arabic++
		case unicode.Is(unicode.Hebrew, r):
			t.hebrew++
		case unicode.Is(unicode.Han, r):
			t.han++
		}
	}
	return t
}

// detectCyrillic separates Ukrainian from Russian by letters exclusive
// to each alphabet. Shared-only text defaults to Russian.
func detectCyrillic(text string) string {
	var uk, ru int
	for _, r := range text {
		switch r {
		case 'і', 'ї', 'є', 'ґ', 'І', 'Ї', 'Є', 'Ґ':
			uk++
		case 'ы', 'э', 'ъ', 'ё', 'Ы', 'Э', 'Ъ', 'Ё':
			ru++
		}
	}
	if uk > ru {
		return "uk"
	}
	return "ru"
}

var persianStopwords = map[string]bool{
	"که": true, "از": true, "به": true, "را": true, "در": true,
	"این": true, "است": true, "با": true, "برای": true, "های": true,
}

// detectArabicScript separates Persian from Arabic: four consonants
// exist only in the Persian alphabet, and the function words differ.
func detectArabicScript(text string) string {
	for _, r := range text {
		switch r {
		case 'پ', 'چ', 'ژ', 'گ':
			return "fa"
		}
	}
	for _, tok := range tokenizeWords(text) {
		if persianStopwords[tok] {
			return "fa"
		}
	}
	return "ar"
}

func detectLatin(text string) Detection {
	tokens := tokenizeWords(text)
	if len(tokens) == 0 {
		return Detection{}
	}

	best, bestHits := "", 0
	for _, lang := range latinOrder {
		set := profileSets[lang]
		hits := 0
		for _, tok := range tokens {
			if set[tok] {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = lang, hits
		}
	}
	if bestHits < 2 {
		return Detection{}
	}
	return Detection{Language: best, Confidence: float64(bestHits) / float64(len(tokens))}
}

// NormalizeLang canonicalizes a language tag to its ISO 639-1 base:
// "EN-us" and "ukr" both become "en" and "uk". Input the parser cannot
// place is lowercased and passed through.
func NormalizeLang(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return strings.ToLower(code)
	}
	return base.String()
}
