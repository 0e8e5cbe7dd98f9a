package scoring

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func assertValue(t *testing.T, name string, got Value, want float64, wantOK bool) {
	t.Helper()
	v, ok := got.Get()
	if ok != wantOK {
		t.Fatalf("%s: expected present=%v, got %v (%v)", name, wantOK, ok, v)
	}
	if ok && !approx(v, want) {
		t.Fatalf("%s: expected %v, got %v", name, want, v)
	}
}

func TestHireRate(t *testing.T) {
	tests := []struct {
		text   string
		low    float64
		high   float64
		want   float64
		wantOK bool
	}{
		{"72% hire rate", 60, 70, 10, true},
		{"65% hire rate, 3 open jobs", 60, 70, 5, true},
		{"65%", 60, 70, 5, true},
		{"60% hire rate", 60, 70, 0, true},
		{"12 jobs posted\n100% hire rate", 60, 70, 10, true},
		{"100% hire rate", 150, 70, 0, true},
		{"75% hire rate", 50, 50, 10, true},
		{"no rate here", 60, 70, 0, false},
		{"", 60, 70, 0, false},
	}
	for _, tc := range tests {
		assertValue(t, tc.text, HireRate(tc.text, tc.low, tc.high), tc.want, tc.wantOK)
	}
}

func TestBudget(t *testing.T) {
	tests := []struct {
		text   string
		target float64
		want   float64
		wantOK bool
	}{
		{"$2,500.00", 1000, 10, true},
		{"$300", 1000, 3, true},
		{"Est. budget: $750", 1000, 7.5, true},
		{"$300", 0, 0, false},
		{"Hourly", 1000, 0, false},
		{"", 1000, 0, false},
	}
	for _, tc := range tests {
		assertValue(t, tc.text, Budget(tc.text, tc.target), tc.want, tc.wantOK)
	}
}

func TestClientSpend(t *testing.T) {
	tests := []struct {
		text   string
		want   float64
		wantOK bool
	}{
		{"$10K+ spent", 10, true},
		{"$2.5k", 5, true},
		{"$1M+", 10, true},
		{"$500 total spent", 1, true},
		{"$1,500", 3, true},
		{"$0 spent", -5, true},
		{"no history", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		assertValue(t, tc.text, ClientSpend(tc.text, 5000, -5), tc.want, tc.wantOK)
	}
	assertValue(t, "custom zero score", ClientSpend("$0", 5000, -2), -2, true)
}

func TestRating(t *testing.T) {
	tests := []struct {
		text   string
		want   float64
		wantOK bool
	}{
		{"Rating is 4.5 out of 5.", 10, true},
		{"Rating is 5 out of 5.", 10, true},
		{"3.6", 8, true},
		{"0", 0, true},
		{"6", 0, false},
		{"-1", 0, false},
		{"No feedback yet", 0, false},
	}
	for _, tc := range tests {
		assertValue(t, tc.text, Rating(tc.text, 4.5), tc.want, tc.wantOK)
	}
}

func TestLookups(t *testing.T) {
	assertValue(t, "less than 5", Proposals(" Less than 5 "), 10, true)
	assertValue(t, "20 to 50", Proposals("20 to 50"), 5, true)
	assertValue(t, "50+", Proposals("50+"), 2, true)
	assertValue(t, "unknown band", Proposals("a few"), 0, false)
	assertValue(t, "expert", Experience("Expert"), 10, true)
	assertValue(t, "intermediate", Experience("Intermediate"), 7.5, true)
	assertValue(t, "entry", Experience("Entry level"), 5, true)
	assertValue(t, "empty", Experience(""), 0, false)
}

func TestPostingAge(t *testing.T) {
	tests := []struct {
		text   string
		want   float64
		wantOK bool
	}{
		{"5 minutes ago", 10, true},
		{"Posted 14 minutes ago", 10, true},
		{"15 minutes ago", 9, true},
		{"30 minutes ago", 8, true},
		{"1 hour ago", 7, true},
		{"Posted 3 hours ago", 6, true},
		{"5 hours ago", 5, true},
		{"11 hours ago", 4, true},
		{"23 hours ago", 3, true},
		{"2 days ago", 0, true},
		{"yesterday", 2, true},
		{"Last week", 0, true},
		{"2 quarters ago", 0, true},
		{"just now", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		assertValue(t, tc.text, PostingAge(tc.text), tc.want, tc.wantOK)
	}
}

func TestCommitment(t *testing.T) {
	assertValue(t, "long full time", Commitment("More than 6 months, 30+ hrs/week"), 50.0/7, true)
	assertValue(t, "short part time", Commitment("Less than 1 month, Less than 30 hrs/week"), 10.0/7, true)
	assertValue(t, "mid not sure", Commitment("3 to 6 months, Hours to be determined"), 20.0/7, true)
	assertValue(t, "unrecognized", Commitment("whenever"), 0, true)
	assertValue(t, "empty", Commitment(""), 0, false)
}

func TestPaymentVerifiedAndFeatured(t *testing.T) {
	assertValue(t, "verified", PaymentVerified("Payment verified"), 10, true)
	assertValue(t, "unverified", PaymentVerified("Payment unverified"), -10, true)
	assertValue(t, "missing", PaymentVerified(" "), 0, false)
	assertValue(t, "featured", Featured(true), 10, true)
	assertValue(t, "not featured", Featured(false), 0, false)
}

func TestCountry(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		text   string
		want   float64
		wantOK bool
	}{
		{"USA", 10, true},
		{"Brazil", 0, true},
		{"New York, USA", 10, true},
		{"Client location\nLondon, UK", 10, true},
		{"  united   states of America ", 10, true},
		{"Czechia", 10, true},
		{"Eswatini", 10, true},
		{"Sao Paulo,  Brazil,", 0, true},
		{"", 0, false},
		{"\n \n", 0, false},
	}
	for _, tc := range tests {
		assertValue(t, tc.text, Country(tc.text, cfg), tc.want, tc.wantOK)
	}

	cfg.CountryOtherScore = 2
	assertValue(t, "custom other score", Country("Brazil", cfg), 2, true)
}

func TestScore(t *testing.T) {
	if _, ok := Score(nil); ok {
		t.Fatal("no factors must yield no score")
	}
	if _, ok := Score([]Factor{{Name: "a", Value: Absent, Weight: 5}}); ok {
		t.Fatal("absent factors must yield no score")
	}
	if _, ok := Score([]Factor{{Name: "a", Value: Present(8), Weight: 0}, {Name: "b", Value: Present(4), Weight: -1}}); ok {
		t.Fatal("non-positive weights must yield no score")
	}

	factors := []Factor{
		{Name: "a", Value: Present(10), Weight: 5},
		{Name: "b", Value: Present(3), Weight: 3},
		{Name: "c", Value: Absent, Weight: 4},
		{Name: "d", Value: Present(-10), Weight: 0},
		{Name: "e", Value: Present(10), Weight: 3},
	}
	got, ok := Score(factors)
	if !ok || !approx(got, 89.0/11) {
		t.Fatalf("expected %v, got %v %v", 89.0/11, got, ok)
	}

	scaled := make([]Factor, len(factors))
	for i, f := range factors {
		f.Weight *= 3.7
		scaled[i] = f
	}
	again, _ := Score(scaled)
	if !approx(got, again) {
		t.Fatalf("scaling all weights changed the score: %v vs %v", got, again)
	}
}

func TestScoreSignals(t *testing.T) {
	cfg := DefaultConfig()
	got, ok := ScoreSignals(Signals{
		HireRate:       "72% hire rate",
		Budget:         "$300",
		ClientLocation: "USA",
	}, cfg)
	if !ok || !approx(got, 89.0/11) {
		t.Fatalf("expected %v, got %v %v", 89.0/11, got, ok)
	}

	if _, ok := ScoreSignals(Signals{}, cfg); ok {
		t.Fatal("a posting with no signals has no score")
	}

	factors := Factors(Signals{Featured: true}, cfg)
	if len(factors) != len(FactorNames) {
		t.Fatalf("expected %d factors, got %d", len(FactorNames), len(factors))
	}
	for _, f := range factors {
		if f.Name == FactorFeatured && (!f.Counts() || f.Weight != 0.5) {
			t.Fatalf("unexpected featured factor %+v", f)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		score float64
		tier  Tier
		badge string
		row   string
	}{
		{10, High, "badge-green", "row-green"},
		{7, High, "badge-green", "row-green"},
		{6.99, MediumHigh, "badge-light-green", "row-light-green"},
		{5, MediumHigh, "badge-light-green", "row-light-green"},
		{3, MediumLow, "badge-yellow", "row-yellow"},
		{2.99, Low, "badge-red", "row-red"},
		{-4, Low, "badge-red", "row-red"},
	}
	for _, tc := range tests {
		tier := Classify(tc.score)
		if tier != tc.tier || tier.BadgeClass() != tc.badge || tier.RowClass() != tc.row {
			t.Fatalf("score %v: got %v %s %s", tc.score, tier, tier.BadgeClass(), tier.RowClass())
		}
		if back, ok := ParseTier(tier.String()); !ok || back != tier {
			t.Fatalf("tier %v does not round trip", tier)
		}
	}
	if Format(89.0/11, true) != "8.1" || Format(0, false) != "n/a" {
		t.Fatal("unexpected formatting")
	}
}

func TestConfigMerge(t *testing.T) {
	cfg := ParseConfig([]byte(`{
		"enabled": false,
		"hireRateMin": "65",
		"hireRateTarget": "abc",
		"budgetTarget": 2000,
		"weights": {"budget": 10, "featured": "x"},
		"preferredCountries": ["Brazil", " ", "Chile"]
	}`))

	if cfg.Enabled {
		t.Fatal("expected enabled to be overridden")
	}
	if cfg.HireRateMin != 65 || cfg.HireRateTarget != 70 || cfg.BudgetTarget != 2000 {
		t.Fatalf("unexpected thresholds %+v", cfg)
	}
	if cfg.Weight(FactorBudget) != 10 || cfg.Weight(FactorHireRate) != 5 || cfg.Weight(FactorFeatured) != 0 {
		t.Fatalf("unexpected weights %v", cfg.Weights)
	}
	if len(cfg.PreferredCountries) != 2 || cfg.PreferredCountries[0] != "Brazil" {
		t.Fatalf("expected countries to be replaced, got %v", cfg.PreferredCountries)
	}
	assertValue(t, "brazil preferred", Country("Brazil", cfg), 10, true)
	assertValue(t, "usa no longer preferred", Country("USA", cfg), 0, true)

	defaults := DefaultConfig()
	for _, raw := range []string{"", "not json", "[1,2]", `"str"`, `{"preferredCountries": "Brazil"}`} {
		got := ParseConfig([]byte(raw))
		if !got.Enabled || len(got.PreferredCountries) != len(defaults.PreferredCountries) || got.Weight(FactorHireRate) != 5 {
			t.Fatalf("%q: expected defaults, got %+v", raw, got)
		}
	}

	// Merging must not alias the receiver's maps and slices.
	base := DefaultConfig()
	_ = base.Merge([]byte(`{"weights": {"hireRate": 1}}`))
	if base.Weight(FactorHireRate) != 5 {
		t.Fatal("merge mutated the receiver")
	}
}
