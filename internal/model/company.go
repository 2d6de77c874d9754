package model

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Company is a customer entity. Read-mostly; cached verbatim per user in
// the company-directory partition.
type Company struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Document string   `json:"document"`
	City     string   `json:"city"`
	State    string   `json:"state"`
	Tags     []string `json:"tags,omitempty"`

	// Rolling aggregate over the last three months, used for ordering
	// the directory (highest value first).
	Last3MonthsValue    float64 `json:"last3MonthsValue"`
	Last3MonthsQuantity int     `json:"last3MonthsQuantity"`
}

// SortCompanies orders the directory by the last-3-months value aggregate
// (descending), breaking ties by locale-aware name comparison so accented
// company names collate the way a pt-BR user expects.
func SortCompanies(companies []Company) {
	coll := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	sort.SliceStable(companies, func(i, j int) bool {
		if companies[i].Last3MonthsValue != companies[j].Last3MonthsValue {
			return companies[i].Last3MonthsValue > companies[j].Last3MonthsValue
		}
		return coll.CompareString(companies[i].Name, companies[j].Name) < 0
	})
}
