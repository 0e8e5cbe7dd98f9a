package scoring

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Factor names, also used as keys of Config.Weights.
const (
	FactorHireRate        = "hireRate"
	FactorProposals       = "proposals"
	FactorExperience      = "experience"
	FactorBudget          = "budget"
	FactorTime            = "time"
	FactorPaymentVerified = "paymentVerified"
	FactorClientPaid      = "clientPaid"
	FactorClientRating    = "clientRating"
	FactorPostingTime     = "postingTime"
	FactorFeatured        = "featured"
	FactorClientCountry   = "clientCountry"
)

// FactorNames lists every factor in evaluation order.
var FactorNames = []string{
	FactorHireRate,
	FactorProposals,
	FactorExperience,
	FactorBudget,
	FactorTime,
	FactorPaymentVerified,
	FactorClientPaid,
	FactorClientRating,
	FactorPostingTime,
	FactorFeatured,
	FactorClientCountry,
}

// Config holds the user's scoring settings. It is stored as JSON in the
// settings scope under the scoreSettings key.
type Config struct {
	Enabled               bool               `json:"enabled"`
	HireRateMin           float64            `json:"hireRateMin"`
	HireRateTarget        float64            `json:"hireRateTarget"`
	BudgetTarget          float64            `json:"budgetTarget"`
	ClientPaidTarget      float64            `json:"clientPaidTarget"`
	ClientRatingTarget    float64            `json:"clientRatingTarget"`
	ZeroSpendScore        float64            `json:"zeroSpendScore"`
	Weights               map[string]float64 `json:"weights"`
	CountryPreferredScore float64            `json:"countryPreferredScore"`
	CountryOtherScore     float64            `json:"countryOtherScore"`
	PreferredCountries    []string           `json:"preferredCountries"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		HireRateMin:        60,
		HireRateTarget:     70,
		BudgetTarget:       1000,
		ClientPaidTarget:   5000,
		ClientRatingTarget: 4.5,
		ZeroSpendScore:     -5,
		Weights: map[string]float64{
			FactorHireRate:        5,
			FactorClientPaid:      4,
			FactorClientCountry:   3,
			FactorBudget:          3,
			FactorClientRating:    3,
			FactorPaymentVerified: 1,
			FactorExperience:      1,
			FactorProposals:       0.5,
			FactorTime:            0.5,
			FactorPostingTime:     0.5,
			FactorFeatured:        0.5,
		},
		CountryPreferredScore: 10,
		CountryOtherScore:     0,
		PreferredCountries: []string{
			"Australia", "Austria", "Belgium", "Canada", "Cyprus",
			"Czech Republic", "Denmark", "Estonia", "Finland", "France",
			"Germany", "Greenland", "Israel", "Italy", "Japan", "Latvia",
			"Liechtenstein", "Lithuania", "Luxembourg", "Monaco",
			"Netherlands", "New Zealand", "Norway", "San Marino", "Singapore",
			"Slovakia", "Swaziland", "Sweden", "Switzerland",
			"United Kingdom", "United States",
		},
	}
}

// ParseConfig merges stored settings over the defaults.
func ParseConfig(raw []byte) Config {
	return DefaultConfig().Merge(raw)
}

// Merge overlays the JSON object raw onto c. Top-level fields replace
// their counterpart, weights merge key by key and preferredCountries is
// replaced wholesale when it is an array. Values that are not numbers keep
// the current setting; a weight that is not a number becomes 0. Anything
// that is not a JSON object leaves c unchanged.
func (c Config) Merge(raw []byte) Config {
	out := c.clone()
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return out
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return out
	}

	if r := root.Get("enabled"); r.Exists() {
		out.Enabled = truthy(r)
	}
	for key, field := range map[string]*float64{
		"hireRateMin":           &out.HireRateMin,
		"hireRateTarget":        &out.HireRateTarget,
		"budgetTarget":          &out.BudgetTarget,
		"clientPaidTarget":      &out.ClientPaidTarget,
		"clientRatingTarget":    &out.ClientRatingTarget,
		"zeroSpendScore":        &out.ZeroSpendScore,
		"countryPreferredScore": &out.CountryPreferredScore,
		"countryOtherScore":     &out.CountryOtherScore,
	} {
		if r := root.Get(key); r.Exists() {
			*field = toNumber(r, *field)
		}
	}

	if w := root.Get("weights"); w.IsObject() {
		w.ForEach(func(k, v gjson.Result) bool {
			out.Weights[k.String()] = toNumber(v, 0)
			return true
		})
	}

	if pc := root.Get("preferredCountries"); pc.IsArray() {
		countries := []string{}
		for _, e := range pc.Array() {
			if s := strings.TrimSpace(e.String()); s != "" {
				countries = append(countries, s)
			}
		}
		out.PreferredCountries = countries
	}
	return out
}

// Weight returns the configured weight for a factor, 0 if unset.
func (c Config) Weight(factor string) float64 {
	return c.Weights[factor]
}

func (c Config) clone() Config {
	out := c
	out.Weights = make(map[string]float64, len(c.Weights))
	for k, v := range c.Weights {
		out.Weights[k] = v
	}
	out.PreferredCountries = append([]string(nil), c.PreferredCountries...)
	return out
}

func (c Config) isPreferred(normalized string) bool {
	for _, p := range c.PreferredCountries {
		if NormalizeCountry(p) == normalized {
			return true
		}
	}
	return false
}

func toNumber(r gjson.Result, fallback float64) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Num
	case gjson.String:
		if num := leadingNumRe.FindString(strings.TrimSpace(r.Str)); num != "" {
			if f, err := strconv.ParseFloat(num, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	case gjson.JSON:
		return true
	}
	return false
}
