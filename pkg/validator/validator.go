// Package validator gates transcript fragments before any expensive work.
// Validation is stateless, deterministic, and never calls out.
package validator

import (
	"strings"
	"unicode"
)

// Quality classifies why a fragment was accepted or rejected.
type Quality string

const (
	QualityValid       Quality = "VALID"
	QualityEmpty       Quality = "EMPTY"
	QualityNoise       Quality = "NOISE"
	QualityPunctuation Quality = "PUNCTUATION"
	QualityTooShort    Quality = "TOO_SHORT"
	QualityLowSignal   Quality = "LOW_SIGNAL"
)

// Result is the outcome of validating one transcript fragment.
type Result struct {
	IsValid   bool    `json:"is_valid"`
	Quality   Quality `json:"quality"`
	Reason    string  `json:"reason,omitempty"`
	WordCount int     `json:"word_count"`
	CharCount int     `json:"char_count"`
}

// noiseMarkers are exact (case-insensitive) non-speech annotations produced
// by transcription engines.
var noiseMarkers = map[string]struct{}{
	"[music]":           {},
	"[applause]":        {},
	"[laughter]":        {},
	"[noise]":           {},
	"[silence]":         {},
	"[inaudible]":       {},
	"[crosstalk]":       {},
	"[background]":      {},
	"[static]":          {},
	"[coughing]":        {},
	"(music)":           {},
	"(applause)":        {},
	"(laughter)":        {},
	"(inaudible)":       {},
	"♪♪":  {},
	"♪ ♪": {},
	"♫♫":  {},
}

// fillerWords are excluded when computing the meaningful-word ratio.
var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "er": {}, "ah": {}, "eh": {}, "hm": {}, "hmm": {},
	"mhm": {}, "uhh": {}, "umm": {}, "like": {}, "you": {}, "know": {},
	"yeah": {}, "okay": {}, "ok": {}, "so": {}, "well": {}, "right": {},
	"just": {}, "kinda": {}, "sorta": {}, "gonna": {}, "basically": {},
	"actually": {}, "literally": {},
}

// Config holds the tunable validation thresholds.
type Config struct {
	// MinWords is the minimum number of words for a fragment to be useful.
	MinWords int

	// MinMeaningfulRatio is the minimum fraction of non-filler words.
	MinMeaningfulRatio float64
}

// DefaultConfig returns the default validation thresholds.
func DefaultConfig() Config {
	return Config{
		MinWords:           3,
		MinMeaningfulRatio: 0.3,
	}
}

// Validator classifies transcript fragments as worth processing or not.
type Validator struct {
	cfg Config
}

// New creates a Validator with the given thresholds.
func New(cfg Config) *Validator {
	if cfg.MinWords <= 0 {
		cfg.MinWords = DefaultConfig().MinWords
	}
	if cfg.MinMeaningfulRatio <= 0 {
		cfg.MinMeaningfulRatio = DefaultConfig().MinMeaningfulRatio
	}
	return &Validator{cfg: cfg}
}

// Validate classifies one fragment. Rules are checked in priority order and
// the first match wins: empty, noise marker, punctuation-only, too short,
// low signal. Anything else is VALID.
func (v *Validator) Validate(text string) Result {
	trimmed := strings.TrimSpace(text)
	res := Result{CharCount: len(trimmed)}

	if len(trimmed) < 3 {
		res.Quality = QualityEmpty
		res.Reason = "empty or near-empty fragment"
		return res
	}

	if _, ok := noiseMarkers[strings.ToLower(trimmed)]; ok {
		res.Quality = QualityNoise
		res.Reason = "non-speech annotation"
		return res
	}
	if isMusicWrapped(trimmed) {
		res.Quality = QualityNoise
		res.Reason = "non-speech annotation"
		return res
	}

	if isPunctuationOnly(trimmed) {
		res.Quality = QualityPunctuation
		res.Reason = "punctuation or whitespace only"
		return res
	}

	words := strings.Fields(trimmed)
	res.WordCount = len(words)
	if len(words) < v.cfg.MinWords {
		res.Quality = QualityTooShort
		res.Reason = "below minimum word count"
		return res
	}

	if ratio := meaningfulRatio(words); ratio < v.cfg.MinMeaningfulRatio {
		res.Quality = QualityLowSignal
		res.Reason = "mostly filler words"
		return res
	}

	res.IsValid = true
	res.Quality = QualityValid
	return res
}

// isMusicWrapped reports whether the fragment is wrapped in musical notes,
// another common non-speech convention.
func isMusicWrapped(s string) bool {
	runes := []rune(s)
	if len(runes) < 2 {
		return false
	}
	first, last := runes[0], runes[len(runes)-1]
	return (first == '♪' || first == '♫') && (last == '♪' || last == '♫')
}

// isPunctuationOnly reports whether s contains no letters or digits.
func isPunctuationOnly(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// meaningfulRatio is the fraction of words that carry signal: not in the
// filler set and at least 2 characters long.
func meaningfulRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	meaningful := 0
	for _, w := range words {
		cleaned := strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if len(cleaned) < 2 {
			continue
		}
		if _, filler := fillerWords[cleaned]; filler {
			continue
		}
		meaningful++
	}
	return float64(meaningful) / float64(len(words))
}
