package core

import "strings"

// DefaultYear is used whenever the year selection control is empty
const DefaultYear = "2021"

// KnownYears lists the years the backend holds data for
var KnownYears = []string{"2019", "2020", "2021"}

// NormalizeYear trims the token and falls back to DefaultYear when nothing is left.
// Any other value is passed through; the backend decides whether it is valid.
func NormalizeYear(year string) string {
	year = strings.TrimSpace(year)
	if year == "" {
		return DefaultYear
	}
	return year
}
