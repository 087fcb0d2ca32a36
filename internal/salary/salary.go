// Package salary guesses annual and monthly pay from free-text salary fields
// and job descriptions, as written on German and English listing sites.
package salary

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jmylchreest/jobsift/internal/posting"
)

// Parser extracts a salary estimate from text.
type Parser struct {
	AnnualKeywords  []string
	MonthlyKeywords []string
	ThousandsSep    string // Removed before matching, "." for "4.500"
	DecimalSep      string // "," for "4500,00"
	Payments        int    // Monthly payments per year, 14 in Austria

	text *textPatterns
}

// textPatterns are the FromText amount patterns for one decimal separator.
type textPatterns struct {
	dec          string
	annual       []*regexp.Regexp
	monthlyCents []*regexp.Regexp
	monthly      []*regexp.Regexp
	annualAny    []*regexp.Regexp
	monthlyAny   []*regexp.Regexp
}

func compileTextPatterns(sep string) *textPatterns {
	dec := regexp.QuoteMeta(sep)
	compile := func(exprs ...string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(exprs))
		for i, expr := range exprs {
			out[i] = regexp.MustCompile(expr)
		}
		return out
	}
	return &textPatterns{
		dec:          sep,
		annual:       compile(`\d{6}`, `\d{5}`),
		monthlyCents: compile(`\d{4}` + dec + `\d{2}`),
		monthly:      compile(`\d{4}`),
		annualAny:    compile(`\d{6}`+dec+`\d{2}`, `\d{5}`+dec+`\d{2}`, `\d{6}`, `\d{5}`),
		monthlyAny:   compile(`\d{4}`+dec+`\d{2}`, `\d{4}`),
	}
}

// patterns returns the compiled patterns, compiling them only when the
// parser was not built by DefaultParser or its separator changed.
func (p Parser) patterns() *textPatterns {
	if p.text != nil && p.text.dec == p.decimalSep() {
		return p.text
	}
	return compileTextPatterns(p.decimalSep())
}

// DefaultParser returns a parser for German and English postings.
func DefaultParser() Parser {
	return Parser{
		AnnualKeywords:  []string{"jährlich", "yearly", "per year", "annual", "jährige", "pro jahr", "p.a."},
		MonthlyKeywords: []string{"monatlich", "monthly", "per month", "pro monat"},
		ThousandsSep:    ".",
		DecimalSep:      ",",
		Payments:        12,
		text:            compileTextPatterns(","),
	}
}

// FromText parses a salary field such as "ab EUR 4.500,00 brutto monatlich"
// or "€55.000 per year". Returns nil when no plausible amount is found.
func (p Parser) FromText(text string) *posting.Salary {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lower := strings.ToLower(text)
	cleaned := lower
	if p.ThousandsSep != "" {
		cleaned = strings.ReplaceAll(lower, p.ThousandsSep, "")
	}
	pats := p.patterns()

	var annual, monthly int
	if containsAny(lower, p.AnnualKeywords) {
		annual = p.first(cleaned, pats.annual...)
	}
	if annual == 0 {
		monthly = p.first(cleaned, pats.monthlyCents...)
		if monthly == 0 && containsAny(lower, p.MonthlyKeywords) {
			monthly = p.first(cleaned, pats.monthly...)
		}
	}
	if annual == 0 && monthly == 0 {
		annual = p.first(cleaned, pats.annualAny...)
		if annual == 0 {
			monthly = p.first(cleaned, pats.monthlyAny...)
		}
	}

	payments := p.Payments
	if payments <= 0 {
		payments = 12
	}
	switch {
	case annual > 0:
		return &posting.Salary{Annual: posting.IntPtr(annual), Monthly: posting.IntPtr(annual / payments)}
	case monthly > 0:
		return &posting.Salary{Annual: posting.IntPtr(monthly * payments), Monthly: posting.IntPtr(monthly)}
	default:
		return nil
	}
}

// first returns the value of the first pattern that matches text.
func (p Parser) first(text string, patterns ...*regexp.Regexp) int {
	for _, re := range patterns {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		if v, err := strconv.Atoi(m); err == nil {
			return v
		}
		f, err := strconv.ParseFloat(strings.Replace(m, p.decimalSep(), ".", 1), 64)
		if err == nil {
			return int(f)
		}
	}
	return 0
}

func (p Parser) decimalSep() string {
	if p.DecimalSep == "" {
		return ","
	}
	return p.DecimalSep
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

var labelled = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(salary|gehalt|compensation|vergütung):.*`),
	regexp.MustCompile(`(?i)\b(gross|brutto|net|netto)\b:.*`),
}

var (
	grossKeyword = regexp.MustCompile(`(?i)\b(netto|brutto|gross)\b`)
	taxKeyword   = regexp.MustCompile(`(?i)\b(net|taxes|tax)\b`)
)

// amountNear is an amount pattern that only counts when followed on the
// same line by a keyword, with no other such amount in between. A nil
// keyword matches the amount anywhere.
type amountNear struct {
	amount  *regexp.Regexp
	keyword *regexp.Regexp
}

// Tried in order; the first hit decides.
var amountPatterns = []amountNear{
	{regexp.MustCompile(`\d{5}[.,]\d+`), grossKeyword},
	{regexp.MustCompile(`\d{2}[.,]\d{3}[.,]\d+`), grossKeyword},
	{regexp.MustCompile(`\d{4}[.,]\d+`), grossKeyword},
	{regexp.MustCompile(`\d[.,]\d{3}[.,]\d+`), grossKeyword},
	{regexp.MustCompile(`\d{5}`), grossKeyword},
	{regexp.MustCompile(`\d{2}[.,]\d{3}`), grossKeyword},
	{regexp.MustCompile(`\d{5}[.,]\d+`), taxKeyword},
	{regexp.MustCompile(`\d{4}[.,]\d+`), taxKeyword},
	{regexp.MustCompile(`\d[.,]\d{3}`), grossKeyword},
	{regexp.MustCompile(`\d{4,5}[.,]\d{2}`), nil},
	{regexp.MustCompile(`\d{5}`), taxKeyword},
}

// FromDescription finds the salary section of a job description and parses
// it. Labelled sections ("Gehalt: ...") win, then amounts next to a
// gross/net keyword, then any amount with cents.
func (p Parser) FromDescription(text string) *posting.Salary {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	for _, re := range labelled {
		if m := re.FindString(text); m != "" {
			return p.FromText(m)
		}
	}
	for _, a := range amountPatterns {
		if section := a.find(text); section != "" {
			return p.FromText(section)
		}
	}
	return nil
}

// find returns the text from the last amount preceding the first keyword
// occurrence that has an amount before it on its line, up to the keyword.
func (a amountNear) find(text string) string {
	if a.keyword == nil {
		return a.amount.FindString(text)
	}
	for _, kw := range a.keyword.FindAllStringIndex(text, -1) {
		lineStart := strings.LastIndexByte(text[:kw[0]], '\n') + 1
		prefix := text[lineStart:kw[0]]
		amounts := a.amount.FindAllStringIndex(prefix, -1)
		if len(amounts) == 0 {
			continue
		}
		last := amounts[len(amounts)-1]
		return text[lineStart+last[0] : kw[1]]
	}
	return ""
}
