package worker

import "strings"

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "shall": {}, "should": {}, "may": {},
	"might": {}, "must": {}, "can": {}, "could": {},
}

// extractTopic derives a single-keyword topic from a user message: the
// first lowercase token longer than three characters that is not a stop
// word, or "general" when none qualifies.
func extractTopic(message string) string {
	for _, word := range strings.Fields(strings.ToLower(message)) {
		if len(word) <= 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		return word
	}
	return "general"
}
