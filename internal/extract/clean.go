package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?$`)
	leadingYearRe = regexp.MustCompile(`^(\d{4})`)

	// Suffixes the review site decorates page titles with, stripped in order.
	titleSuffixRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s*-\s*SensCritique\s*$`),
		regexp.MustCompile(`(?i)\s*-\s*Film\s*$`),
		regexp.MustCompile(`(?i)\s*-\s*Série\s*$`),
	}

	trailingYearRe      = regexp.MustCompile(`\((\d{4})\)\s*$`)
	stripTrailingYearRe = regexp.MustCompile(`\s*\(\d{4}\)\s*$`)
)

// ISODurationMinutes converts an ISO 8601 duration of the restricted
// "PT<h>H<m>M" form into total minutes. Both parts are optional. Zero total
// minutes is not a meaningful runtime and reports false, as does any other
// form of input.
func ISODurationMinutes(duration string) (int, bool) {
	m := isoDurationRe.FindStringSubmatch(strings.TrimSpace(duration))
	if m == nil {
		return 0, false
	}

	total := 0
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		total += h * 60
	}
	if m[2] != "" {
		min, _ := strconv.Atoi(m[2])
		total += min
	}
	if total <= 0 {
		return 0, false
	}
	return total, true
}

// CleanTitle collapses whitespace, strips the site's known title suffixes,
// and extracts a trailing parenthesized year when present. The returned
// title may be empty if nothing survives cleaning.
func CleanTitle(text string) (title string, year int, hasYear bool) {
	if text == "" {
		return "", 0, false
	}

	s := strings.Join(strings.Fields(text), " ")
	for _, re := range titleSuffixRes {
		s = re.ReplaceAllString(s, "")
	}

	if m := trailingYearRe.FindStringSubmatch(s); m != nil {
		year, _ = strconv.Atoi(m[1])
		hasYear = true
		s = strings.TrimSpace(stripTrailingYearRe.ReplaceAllString(s, ""))
	}

	return s, year, hasYear
}

// YearFromDate extracts the leading four-digit year of a date string such
// as "2019-03-01".
func YearFromDate(date string) (int, bool) {
	m := leadingYearRe.FindStringSubmatch(strings.TrimSpace(date))
	if m == nil {
		return 0, false
	}
	y, _ := strconv.Atoi(m[1])
	return y, true
}
