package naming

import (
	"github.com/jinzhu/inflection"
)

// Pluralize converts a singular word to its plural form.
// Checks custom overrides first, then falls back to the inflection library.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	plural := inflection.Plural(word)
	if plural == word {
		// uncountable words would otherwise collide with the singular query
		return word + "s"
	}
	return plural
}
