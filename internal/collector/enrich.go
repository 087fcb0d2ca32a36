package collector

import (
	"github.com/jmylchreest/jobsift/internal/language"
	"github.com/jmylchreest/jobsift/internal/posting"
	"github.com/jmylchreest/jobsift/internal/salary"
)

// Enrich derives the salary guess and the description language of every
// posting. The salary field is parsed first; the description is searched
// only when it yields nothing.
func Enrich(set posting.Set, p salary.Parser) posting.Set {
	out := make(posting.Set, len(set))
	for id, item := range set {
		item = item.Clone()
		guess := p.FromText(item.Salary)
		if guess == nil {
			guess = p.FromDescription(item.Description)
		}
		item.SalaryGuessed = guess
		item.SalaryMonthlyGuessed = nil
		if guess != nil && guess.Monthly != nil {
			item.SalaryMonthlyGuessed = posting.IntPtr(*guess.Monthly)
		}
		item.Language = language.Detect(item.Title, item.Description)
		out[id] = item
	}
	return out
}
