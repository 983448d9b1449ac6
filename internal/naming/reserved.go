package naming

import "strings"

// Sheets that exist in every spreadsheet but never hold object records.
const (
	WelcomeSheet       = "WELCOME"
	RelationshipsSheet = "RELATIONSHIPS"
)

var reservedSheets = map[string]bool{
	WelcomeSheet:       true,
	RelationshipsSheet: true,
}

// IsReservedSheet reports whether a sheet is excluded from the object model.
func IsReservedSheet(name string) bool {
	return reservedSheets[strings.ToUpper(name)]
}

// isReservedFieldName checks if a generated query or mutation name is reserved.
func isReservedFieldName(name string) bool {
	return strings.HasPrefix(name, "__")
}
