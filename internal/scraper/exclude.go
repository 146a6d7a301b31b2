package scraper

import (
	"strings"

	"jobmate/aggregator-service/internal/model"
)

// ExcludeParam names the optional connection parameter holding comma-separated
// terms. Postings that mention any of them are dropped before persistence.
const ExcludeParam = "exclude"

// ExcludeTerms returns the lowercased, non-empty terms configured under
// ExcludeParam.
func ExcludeTerms(params Params) []string {
	raw := params[ExcludeParam]
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var terms []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// Excluded returns true if any term appears (case-insensitive) anywhere in the
// combined title + company + description text. terms must be lowercased, as
// returned by ExcludeTerms.
func Excluded(p model.Posting, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	combined := strings.ToLower(p.Title + " " + p.CompanyName + " " + p.Description)
	for _, term := range terms {
		if strings.Contains(combined, term) {
			return true
		}
	}
	return false
}
