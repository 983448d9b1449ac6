package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelationship_Exact(t *testing.T) {
	got := Relationship("Person", "1", "father", "Person")
	want := `=JOIN(",", QUERY(RELATIONSHIPS!A:F, "SELECT F WHERE B='Person' AND C='1' AND D='father' and E='Person'"))`
	assert.Equal(t, want, got)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  Lookup
		ok    bool
	}{
		{
			name:  "generated formula",
			value: Relationship("Product", "abc-1", "owner", "Person"),
			want:  Lookup{SourceType: "Product", SourceID: "abc-1", Field: "owner", TargetType: "Person"},
			ok:    true,
		},
		{name: "plain string", value: "peter griffin"},
		{name: "other formula", value: "=SUM(A1:A3)"},
		{name: "empty", value: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupString_RoundTrip(t *testing.T) {
	l := Lookup{SourceType: "Person", SourceID: "7", Field: "products", TargetType: "Product"}
	parsed, ok := Parse(l.String())
	assert.True(t, ok)
	assert.Equal(t, l, parsed)
}

func TestIsFormula(t *testing.T) {
	assert.True(t, IsFormula(Relationship("A", "1", "b", "C")))
	assert.False(t, IsFormula("x"))
	assert.False(t, IsFormula(42))
	assert.False(t, IsFormula(nil))
}

func TestValidLiteral(t *testing.T) {
	assert.True(t, ValidLiteral("Person"))
	assert.True(t, ValidLiteral("0190a3c4-7b1e-7c3a-9f00-1a2b3c4d5e6f"))
	assert.False(t, ValidLiteral("o'brien"))
	assert.False(t, ValidLiteral(`say "hi"`))
}
