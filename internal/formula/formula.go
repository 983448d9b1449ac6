// Package formula builds and parses the spreadsheet expressions that stand in
// for reference fields in a flat record.
package formula

import (
	"fmt"
	"regexp"
	"strings"
)

// RelationshipsSheet is the name of the edge index sheet.
const RelationshipsSheet = "RELATIONSHIPS"

// Lookup identifies one reference slot: every edge matching it contributes a target id.
type Lookup struct {
	SourceType string
	SourceID   string
	Field      string
	TargetType string
}

// Relationship returns the formula that recomputes a reference field from the
// edge index. Only the source slot is needed; target ids are resolved when the
// store evaluates the formula.
func Relationship(sourceType, sourceID, field, targetType string) string {
	return fmt.Sprintf(
		`=JOIN(",", QUERY(%s!A:F, "SELECT F WHERE B='%s' AND C='%s' AND D='%s' and E='%s'"))`,
		RelationshipsSheet, sourceType, sourceID, field, targetType,
	)
}

// ValidLiteral reports whether s can be placed inside a quoted literal of a
// relationship formula. The query language has no escape for quotes.
func ValidLiteral(s string) bool {
	return !strings.ContainsAny(s, `'"`)
}

// String renders the lookup as a formula.
func (l Lookup) String() string {
	return Relationship(l.SourceType, l.SourceID, l.Field, l.TargetType)
}

var relationshipPattern = regexp.MustCompile(
	`^=JOIN\(",", QUERY\(` + RelationshipsSheet + `!A:F, "SELECT F WHERE B='([^']*)' AND C='([^']*)' AND D='([^']*)' and E='([^']*)'"\)\)$`,
)

// Parse recognizes a relationship formula. The boolean is false for any other value.
func Parse(value string) (Lookup, bool) {
	m := relationshipPattern.FindStringSubmatch(value)
	if m == nil {
		return Lookup{}, false
	}
	return Lookup{SourceType: m[1], SourceID: m[2], Field: m[3], TargetType: m[4]}, true
}

// IsFormula reports whether v is a string carrying a relationship formula.
func IsFormula(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, ok = Parse(s)
	return ok
}
