package voice

import (
	"regexp"
	"strings"

	"koihealth/internal/domain"
	"koihealth/internal/ports"
)

var speechCleanup = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`#{1,6}\s+`), ""},
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "$1"},
	{regexp.MustCompile(`\*(.*?)\*`), "$1"},
	{regexp.MustCompile("`(.*?)`"), "$1"},
	{regexp.MustCompile(`\[(.*?)\]\(.*?\)`), "$1"},
	{regexp.MustCompile(`\n+`), " "},
	{regexp.MustCompile(`\s+`), " "},
}

// NormalizeSpeechText strips markdown syntax that should not be read aloud
// and collapses whitespace.
func NormalizeSpeechText(text string) string {
	for _, step := range speechCleanup {
		text = step.pattern.ReplaceAllString(text, step.replacement)
	}
	return strings.TrimSpace(text)
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// utteranceFor builds a clamped utterance for text.
func utteranceFor(text string, voice string, lang string, rate, pitch, volume float64) ports.Utterance {
	if lang == "" {
		lang = domain.DefaultVoicePreferences().Lang
	}
	return ports.Utterance{
		Text:   NormalizeSpeechText(text),
		Voice:  voice,
		Lang:   lang,
		Rate:   clamp(rate, 0.5, 2.0),
		Pitch:  clamp(pitch, 0.5, 2.0),
		Volume: clamp(volume, 0.1, 1.0),
	}
}
