package scoring

import (
	"strings"

	"github.com/jmylchreest/jobsift/internal/posting"
)

// DefaultBaseline is the monthly salary worth zero points.
const DefaultBaseline = 5000.0

// SalaryModel turns a monthly salary estimate into points.
type SalaryModel struct {
	Baseline     float64 // 0 means DefaultBaseline
	Ratio        float64 // points per currency unit above the baseline
	DropoffRatio float64 // points mirror above Baseline*DropoffRatio
	Dropoff      bool
}

// DefaultSalaryModel returns the model the default rule files are tuned for.
func DefaultSalaryModel() SalaryModel {
	return SalaryModel{
		Baseline:     DefaultBaseline,
		Ratio:        0.0015,
		DropoffRatio: 1.25,
		Dropoff:      true,
	}
}

// SalaryPoints scores a monthly salary. Points grow linearly from the
// baseline up to the drop-off salary and are mirrored around it beyond, so
// implausibly high offers lose points without a hard cap.
func SalaryPoints(monthly float64, m SalaryModel) float64 {
	baseline := m.Baseline
	if baseline == 0 {
		baseline = DefaultBaseline
	}
	points := (monthly - baseline) * m.Ratio
	if threshold := baseline * m.DropoffRatio; m.Dropoff && monthly > threshold {
		peak := (threshold - baseline) * m.Ratio
		points = 2*peak - points
	}
	return points
}

// Engine scores postings. It is read-only after construction and safe to
// share.
type Engine struct {
	Rules        *RuleTree // applied to title and, weighted, description
	TitleRules   *RuleTree // title only
	CompanyRules *RuleTree // company only
	DescRatio    float64
	Salary       SalaryModel

	// Postings located in none of DesiredLocations lose a point, and one
	// more when also in none of SecondaryLocations. Matching is a
	// case-insensitive substring test ("wien" matches "Wien 04").
	DesiredLocations   []string
	SecondaryLocations []string
}

// ScorePosting returns the posting's score, rounded to three decimals.
func (e Engine) ScorePosting(p posting.Posting) float64 {
	points := Score(p.Title, e.Rules) + e.DescRatio*Score(p.Description, e.Rules)
	points += Score(p.Title, e.TitleRules)
	points += Score(p.Company, e.CompanyRules)
	if p.SalaryMonthlyGuessed != nil {
		points += SalaryPoints(float64(*p.SalaryMonthlyGuessed), e.Salary)
	}
	points += e.locationPenalty(p.Locations)
	return posting.Round(points, 3)
}

func (e Engine) locationPenalty(locations []string) float64 {
	if len(locations) == 0 || len(e.DesiredLocations) == 0 {
		return 0
	}
	if anyLocation(locations, e.DesiredLocations) {
		return 0
	}
	if anyLocation(locations, e.SecondaryLocations) {
		return -1
	}
	return -2
}

func anyLocation(locations, wanted []string) bool {
	for _, loc := range locations {
		loc = strings.ToLower(loc)
		for _, w := range wanted {
			if strings.Contains(loc, strings.ToLower(w)) {
				return true
			}
		}
	}
	return false
}

// Rank scores every posting of set and returns a new set. Without overwrite,
// postings that already carry a score keep it.
func (e Engine) Rank(set posting.Set, overwrite bool) posting.Set {
	out := make(posting.Set, len(set))
	for id, p := range set {
		if !overwrite && p.HasScore() {
			out[id] = p
			continue
		}
		out[id] = p.WithScore(e.ScorePosting(p))
	}
	return out
}
