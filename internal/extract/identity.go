package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Identity derives the site-local key of a record. An empty key means the
// record has no usable identity.
type Identity interface {
	Key(r Record) string
}

// RegexIdentity reads the key out of a record's URL (or raw id when Field is
// "id"). The first capture group is used when the pattern has one,
// otherwise the whole match; only its digits are kept.
type RegexIdentity struct {
	Pattern *regexp.Regexp
	Field   string
}

// NewRegexIdentity compiles pattern.
func NewRegexIdentity(pattern, field string) (*RegexIdentity, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("identity pattern %q: %w", pattern, err)
	}
	switch field {
	case "", FieldURL, FieldID:
	default:
		return nil, fmt.Errorf("identity field %q: use url or id", field)
	}
	return &RegexIdentity{Pattern: re, Field: field}, nil
}

// Key implements Identity.
func (i *RegexIdentity) Key(r Record) string {
	source := r.URL
	if i.Field == FieldID {
		source = r.RawID
	}
	m := i.Pattern.FindStringSubmatch(source)
	if m == nil {
		return ""
	}
	if len(m) > 1 {
		return digits(m[1])
	}
	return digits(m[0])
}

// FieldIdentity uses the record's mapped id field, which must be numeric.
type FieldIdentity struct{}

// Key implements Identity.
func (FieldIdentity) Key(r Record) string {
	return digits(r.RawID)
}

func digits(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
