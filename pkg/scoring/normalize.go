package scoring

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	hireRateRe    = regexp.MustCompile(`(?i)(\d{1,3})%\s*hire rate`)
	percentRe     = regexp.MustCompile(`(\d{1,3})%`)
	moneyRe       = regexp.MustCompile(`\$?([\d,]+(?:\.\d{2})?)`)
	leadingNumRe  = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)`)
	agoRe         = regexp.MustCompile(`(\d+)\s*(second|minute|hour|day|month|year)s?\s*ago`)
	postedRe      = regexp.MustCompile(`(?i)^posted\s*`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	spendStripper = strings.NewReplacer("+", "", "$", "")
)

var proposalBands = map[string]float64{
	"less than 5": 10,
	"5 to 10":     9,
	"10 to 15":    8,
	"15 to 20":    7,
	"20 to 50":    5,
	"50+":         2,
}

var experienceLevels = map[string]float64{
	"expert":       10,
	"intermediate": 7.5,
	"entry level":  5,
}

var postingPresets = map[string]float64{
	"yesterday":      2,
	"last week":      0,
	"2 weeks ago":    0,
	"last month":     0,
	"2 months ago":   0,
	"last quarter":   0,
	"2 quarters ago": 0,
	"3 quarters ago": 0,
	"last year":      0,
	"2 years ago":    0,
}

var unitSeconds = map[string]int64{
	"second": 1,
	"minute": 60,
	"hour":   3600,
	"day":    86400,
	"month":  2592000,
	"year":   31536000,
}

// recencySteps maps elapsed seconds to a score; the first bound the age is
// below wins.
var recencySteps = []struct {
	below int64
	score float64
}{
	{900, 10},
	{1800, 9},
	{3600, 8},
	{7200, 7},
	{14400, 6},
	{21600, 5},
	{43200, 4},
	{86400, 3},
}

// ParseHireRate extracts the client's hire rate in percent, clamped to
// 0..100. "NN% hire rate" is preferred; a bare "NN%" is accepted otherwise.
func ParseHireRate(text string) (float64, bool) {
	m := hireRateRe.FindStringSubmatch(text)
	if m == nil {
		m = percentRe.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return clamp(float64(n), 0, 100), true
}

// HireRate scores a hire rate linearly between low (0) and high (10).
func HireRate(text string, low, high float64) Value {
	rate, ok := ParseHireRate(text)
	if !ok {
		return Absent
	}
	return hireRateScore(rate, low, high)
}

func hireRateScore(rate, low, high float64) Value {
	low = clamp(low, 0, 100)
	high = math.Max(low+1, math.Min(high, 100))
	switch {
	case rate <= low:
		return Present(0)
	case rate >= high:
		return Present(10)
	}
	return Present((rate - low) / (high - low) * 10)
}

// Budget scores the first dollar amount in text against target.
func Budget(text string, target float64) Value {
	m := moneyRe.FindStringSubmatch(text)
	if m == nil {
		return Absent
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || amount < 0 {
		return Absent
	}
	return againstTarget(amount, target)
}

// ClientSpend scores the client's total spend, e.g. "$10K+". A spend of
// exactly zero scores zeroScore.
func ClientSpend(text string, target, zeroScore float64) Value {
	amount, ok := parseSpend(text)
	if !ok {
		return Absent
	}
	if amount == 0 {
		return Present(zeroScore)
	}
	return againstTarget(amount, target)
}

func parseSpend(text string) (float64, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(spendStripper.Replace(text)))
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	num := leadingNumRe.FindString(cleaned)
	if num == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	switch rest := strings.TrimSpace(cleaned[len(num):]); {
	case strings.HasPrefix(rest, "k"):
		amount *= 1e3
	case strings.HasPrefix(rest, "m"):
		amount *= 1e6
	}
	return amount, true
}

// Rating scores a 0-5 star rating against target. Values outside 0..5 are
// absent.
func Rating(text string, target float64) Value {
	cleaned := strings.TrimSpace(strings.NewReplacer("Rating is", "", "out of 5.", "").Replace(text))
	num := leadingNumRe.FindString(cleaned)
	if num == "" {
		return Absent
	}
	rating, err := strconv.ParseFloat(num, 64)
	if err != nil || rating < 0 || rating > 5 {
		return Absent
	}
	return againstTarget(rating, target)
}

func againstTarget(amount, target float64) Value {
	if target <= 0 {
		return Absent
	}
	return Present(math.Min(10, amount/target*10))
}

// Proposals scores the applicant band; fewer applicants score higher.
func Proposals(text string) Value {
	return lookup(proposalBands, text)
}

// Experience scores the requested experience level.
func Experience(text string) Value {
	return lookup(experienceLevels, text)
}

func lookup(table map[string]float64, text string) Value {
	key := strings.ToLower(strings.TrimSpace(text))
	if key == "" {
		return Absent
	}
	if v, ok := table[key]; ok {
		return Present(v)
	}
	return Absent
}

// PostingAge scores how recently the job was posted.
func PostingAge(text string) Value {
	lower := strings.ToLower(strings.TrimSpace(postedRe.ReplaceAllString(strings.TrimSpace(text), "")))
	if lower == "" {
		return Absent
	}
	if v, ok := postingPresets[lower]; ok {
		return Present(v)
	}
	seconds, ok := ageSeconds(lower)
	if !ok {
		return Absent
	}
	for _, step := range recencySteps {
		if seconds < step.below {
			return Present(step.score)
		}
	}
	return Present(0)
}

func ageSeconds(text string) (int64, bool) {
	m := agoRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n * unitSeconds[m[2]], true
}

// Commitment scores the engagement length (0-3) plus weekly hours (0-2)
// out of a maximum of 7.
func Commitment(text string) Value {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Absent
	}

	var duration, hours float64
	switch {
	case strings.Contains(lower, "less than 1 month"):
		duration = 0
	case strings.Contains(lower, "1 to 3 months"):
		duration = 1
	case strings.Contains(lower, "3 to 6 months"):
		duration = 2
	case strings.Contains(lower, "more than 6 months"):
		duration = 3
	}
	switch {
	case strings.Contains(lower, "less than 30 hrs/week"):
		hours = 1
	case strings.Contains(lower, "30+ hrs/week"):
		hours = 2
	}
	return Present(clamp((duration+hours)/7*10, 0, 10))
}

// PaymentVerified is 10 for a verified payment method and -10 otherwise.
// Missing text is absent.
func PaymentVerified(text string) Value {
	if strings.TrimSpace(text) == "" {
		return Absent
	}
	if strings.Contains(text, "Payment verified") {
		return Present(10)
	}
	return Present(-10)
}

// Featured is 10 when the featured marker was seen. Its absence is not
// scored since the marker may not have rendered.
func Featured(present bool) Value {
	if present {
		return Present(10)
	}
	return Absent
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
