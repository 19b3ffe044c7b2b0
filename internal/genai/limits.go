package genai

import (
	"strings"
	"unicode/utf8"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// platformLimits caps variant content length per platform, in runes.
var platformLimits = map[model.Platform]int{
	model.PlatformTwitter:   280,
	model.PlatformLinkedIn:  3000,
	model.PlatformInstagram: 2200,
	model.PlatformFacebook:  63206,
}

// PlatformLimit returns the content cap for a platform, 0 meaning
// unbounded.
func PlatformLimit(p model.Platform) int {
	return platformLimits[p]
}

// enforceLimit truncates content to the platform cap on a word
// boundary, appending an ellipsis when anything was cut.
func enforceLimit(content string, p model.Platform) string {
	limit := platformLimits[p]
	if limit == 0 || utf8.RuneCountInString(content) <= limit {
		return content
	}

	runes := []rune(content)
	cut := limit - 1 // room for the ellipsis
	truncated := string(runes[:cut])
	if idx := strings.LastIndexAny(truncated, " \n\t"); idx > cut/2 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated) + "…"
}
