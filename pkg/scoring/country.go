package scoring

import "strings"

var countryAliases = map[string]string{
	"united states of america": "united states",
	"usa":                      "united states",
	"uk":                       "united kingdom",
	"czechia":                  "czech republic",
	"eswatini":                 "swaziland",
}

// NormalizeCountry lowercases, collapses whitespace and resolves common
// alternative names.
func NormalizeCountry(name string) string {
	n := strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.ToLower(name), " "))
	if alias, ok := countryAliases[n]; ok {
		return alias
	}
	return n
}

// CountryFromLocation picks the country out of a client location block:
// the last comma separated part of the last non-empty line.
func CountryFromLocation(text string) string {
	var last string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			last = line
		}
	}
	if last == "" {
		return ""
	}
	parts := strings.Split(last, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			return p
		}
	}
	return ""
}

// Country scores the client's location: preferred countries get the
// preferred score, everything else the other score. Missing text is absent.
func Country(text string, cfg Config) Value {
	country := CountryFromLocation(text)
	if country == "" {
		return Absent
	}
	if cfg.isPreferred(NormalizeCountry(country)) {
		return Present(cfg.CountryPreferredScore)
	}
	return Present(cfg.CountryOtherScore)
}
