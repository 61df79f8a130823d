package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Empty(t *testing.T) {
	v := New(DefaultConfig())

	for _, input := range []string{"", "   ", "a", "ab", "\t\n"} {
		res := v.Validate(input)
		assert.False(t, res.IsValid, "input %q", input)
		assert.Equal(t, QualityEmpty, res.Quality, "input %q", input)
	}
}

func TestValidate_NoiseMarkers(t *testing.T) {
	v := New(DefaultConfig())

	inputs := []string{
		"[music]", "[MUSIC]", "[Music]",
		"[applause]", "[inaudible]", "(laughter)",
		"♪♪", "♪ humming along ♪",
	}
	for _, input := range inputs {
		res := v.Validate(input)
		assert.False(t, res.IsValid, "input %q", input)
		assert.Equal(t, QualityNoise, res.Quality, "input %q", input)
	}
}

func TestValidate_PunctuationOnly(t *testing.T) {
	v := New(DefaultConfig())

	for _, input := range []string{"...", "?!?!", "--- ---", ", , ,"} {
		res := v.Validate(input)
		assert.False(t, res.IsValid, "input %q", input)
		assert.Equal(t, QualityPunctuation, res.Quality, "input %q", input)
	}
}

func TestValidate_TooShort(t *testing.T) {
	v := New(DefaultConfig())

	for _, input := range []string{"hello there", "deploy now", "yes"} {
		res := v.Validate(input)
		assert.False(t, res.IsValid, "input %q", input)
		assert.Equal(t, QualityTooShort, res.Quality, "input %q", input)
	}
}

func TestValidate_TooShort_NeverValidUnderThreeTokens(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Validate("shipping tomorrow")
	assert.False(t, res.IsValid)
	assert.NotEqual(t, QualityValid, res.Quality)
	assert.Equal(t, 2, res.WordCount)
}

func TestValidate_LowSignal(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Validate("um uh yeah like okay so well um uh")
	assert.False(t, res.IsValid)
	assert.Equal(t, QualityLowSignal, res.Quality)
}

func TestValidate_Valid(t *testing.T) {
	v := New(DefaultConfig())

	inputs := []string{
		"We decided to use GraphQL for all APIs.",
		"The migration is at risk because staging is down.",
		"Can someone own the rollback plan for Friday?",
	}
	for _, input := range inputs {
		res := v.Validate(input)
		assert.True(t, res.IsValid, "input %q", input)
		assert.Equal(t, QualityValid, res.Quality, "input %q", input)
		assert.GreaterOrEqual(t, res.WordCount, 3)
	}
}

func TestValidate_FirstMatchingRuleWins(t *testing.T) {
	v := New(DefaultConfig())

	// "[music]" is both a noise marker and fewer than 3 words; noise is
	// checked first so that is the reported quality.
	res := v.Validate("[music]")
	assert.Equal(t, QualityNoise, res.Quality)
}

func TestValidate_ConfigurableThresholds(t *testing.T) {
	v := New(Config{MinWords: 5, MinMeaningfulRatio: 0.3})

	res := v.Validate("we will ship tomorrow")
	assert.Equal(t, QualityTooShort, res.Quality)

	res = v.Validate("we will ship the release tomorrow")
	assert.True(t, res.IsValid)
}

func TestValidate_NeverPanics(t *testing.T) {
	v := New(DefaultConfig())

	for _, input := range []string{"", "\x00", "♪", "日本語のテキストです、会議の内容"} {
		assert.NotPanics(t, func() { v.Validate(input) }, "input %q", input)
	}
}
