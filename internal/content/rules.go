package content

import (
	"errors"
	"fmt"
)

// ErrInvalidRule is returned when an extraction rule is missing one of
// its required parts.
var ErrInvalidRule = errors.New("invalid extraction rule")

// Rule maps one output field to an HTML extraction selector. An element
// matches when its name equals Tag and it carries every attribute value
// listed in Match; the rule then emits the value of the Attr attribute.
//
// Design decision: Rules are plain data rather than callback functions
// because:
//  1. They round-trip through YAML configuration unchanged
//  2. The parser stays a single pass regardless of how many rules run
//  3. Every field in the output can be traced back to one selector
type Rule struct {
	// Field is the output field name, for example "og_title".
	Field string `yaml:"field"`

	// Tag is the element name to match, for example "meta".
	Tag string `yaml:"tag"`

	// Match lists attribute values the element must carry, for example
	// {"property": "og:title"}.
	Match map[string]string `yaml:"match"`

	// Attr names the attribute whose value becomes the field value,
	// for example "content".
	Attr string `yaml:"attr"`
}

// Rules is an ordered list of extraction rules. When two rules write the
// same field, the first match wins.
type Rules []Rule

// Validate checks that every rule names a field, a tag, and a source
// attribute. Match may be empty; such a rule matches every element with
// the given tag. Field names must be safe as column names in every
// output format: letters, digits, and underscores, not starting with a
// digit.
func (rs Rules) Validate() error {
	for i, r := range rs {
		if r.Field == "" {
			return fmt.Errorf("%w: rule %d has no field name", ErrInvalidRule, i)
		}
		if !validFieldName(r.Field) {
			return fmt.Errorf("%w: rule field %q is not a valid column name", ErrInvalidRule, r.Field)
		}
		if r.Tag == "" {
			return fmt.Errorf("%w: rule %q has no tag", ErrInvalidRule, r.Field)
		}
		if r.Attr == "" {
			return fmt.Errorf("%w: rule %q has no source attribute", ErrInvalidRule, r.Field)
		}
	}
	return nil
}

// validFieldName reports whether the name works as a column name in
// every output format, XML element names included.
func validFieldName(name string) bool {
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// DefaultRules returns the built-in extraction rules: the Open Graph
// basics plus the classic description and generator meta tags. Colons in
// the upstream property names become underscores in the field names so
// the fields stay valid column names in every output format.
func DefaultRules() Rules {
	return Rules{
		{Field: "og_title", Tag: "meta", Match: map[string]string{"property": "og:title"}, Attr: "content"},
		{Field: "og_description", Tag: "meta", Match: map[string]string{"property": "og:description"}, Attr: "content"},
		{Field: "og_image", Tag: "meta", Match: map[string]string{"property": "og:image"}, Attr: "content"},
		{Field: "og_site_name", Tag: "meta", Match: map[string]string{"property": "og:site_name"}, Attr: "content"},
		{Field: "og_type", Tag: "meta", Match: map[string]string{"property": "og:type"}, Attr: "content"},
		{Field: "description", Tag: "meta", Match: map[string]string{"name": "description"}, Attr: "content"},
		{Field: "generator", Tag: "meta", Match: map[string]string{"name": "generator"}, Attr: "content"},
	}
}
