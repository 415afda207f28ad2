package location

import (
	"regexp"
	"strings"
)

const partSeparator = "].["

var (
	bracketed = regexp.MustCompile(`^\[(.+)\]$`)
	qualified = regexp.MustCompile(`^\[.+\](\.\[.+\])*$`)
)

// Location is the ordered path of identifiers addressing a catalog object,
// e.g. database, schema, table.
type Location []string

// New builds a location from its parts, dropping brackets already present.
func New(parts ...string) Location {
	loc := make(Location, 0, len(parts))
	for _, p := range parts {
		loc = append(loc, PeelOffBrackets(p))
	}
	return loc
}

// Parse reads a bracket-escaped, dot-joined name such as "[db].[dbo].[t1]".
// Anything that is not in that form is treated as a single part.
func Parse(s string) Location {
	if s == "" {
		return nil
	}
	if !qualified.MatchString(s) {
		return Location{s}
	}
	return Location(strings.Split(s[1:len(s)-1], partSeparator))
}

// String returns the bracket-escaped form. Two locations are equal iff
// their string forms are equal.
func (l Location) String() string {
	parts := make([]string, len(l))
	for i, p := range l {
		parts[i] = EncloseWithBrackets(p)
	}
	return strings.Join(parts, ".")
}

// Equal reports whether both locations address the same object. Comparison
// is case-sensitive.
func (l Location) Equal(other Location) bool {
	return l.String() == other.String()
}

// Database returns the first part.
func (l Location) Database() string {
	if len(l) == 0 {
		return ""
	}
	return PeelOffBrackets(l[0])
}

// SchemaName returns the schema part, or "" when the location has no schema
// level (fewer than three parts).
func (l Location) SchemaName() string {
	if len(l) < 3 {
		return ""
	}
	return PeelOffBrackets(l[len(l)-2])
}

// TableName returns the last part.
func (l Location) TableName() string {
	if len(l) == 0 {
		return ""
	}
	return PeelOffBrackets(l[len(l)-1])
}

// Label is the display name of a leaf: "schema.table", or "table" when
// there is no schema.
func (l Location) Label() string {
	if s := l.SchemaName(); s != "" {
		return s + "." + l.TableName()
	}
	return l.TableName()
}

// Child returns a copy of l extended with name.
func (l Location) Child(name string) Location {
	out := make(Location, len(l), len(l)+1)
	copy(out, l)
	return append(out, PeelOffBrackets(name))
}

// IsEnclosedWithBrackets reports whether s is already wrapped in brackets.
func IsEnclosedWithBrackets(s string) bool {
	return bracketed.MatchString(s)
}

// EncloseWithBrackets wraps s in brackets unless it already is.
func EncloseWithBrackets(s string) string {
	if IsEnclosedWithBrackets(s) {
		return s
	}
	return "[" + s + "]"
}

// PeelOffBrackets removes one pair of enclosing brackets, if present.
func PeelOffBrackets(s string) string {
	if m := bracketed.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
