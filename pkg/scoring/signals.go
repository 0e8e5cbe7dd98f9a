package scoring

// Signals are the raw texts read from a posting. Empty strings mean the
// field was not found.
type Signals struct {
	HireRate        string
	Proposals       string
	Experience      string
	Budget          string
	Commitment      string
	PaymentVerified string
	ClientSpend     string
	ClientRating    string
	PostedAt        string
	ClientLocation  string
	Featured        bool
}

// Factors normalizes every signal and attaches its configured weight.
func Factors(s Signals, cfg Config) []Factor {
	values := map[string]Value{
		FactorHireRate:        HireRate(s.HireRate, cfg.HireRateMin, cfg.HireRateTarget),
		FactorProposals:       Proposals(s.Proposals),
		FactorExperience:      Experience(s.Experience),
		FactorBudget:          Budget(s.Budget, cfg.BudgetTarget),
		FactorTime:            Commitment(s.Commitment),
		FactorPaymentVerified: PaymentVerified(s.PaymentVerified),
		FactorClientPaid:      ClientSpend(s.ClientSpend, cfg.ClientPaidTarget, cfg.ZeroSpendScore),
		FactorClientRating:    Rating(s.ClientRating, cfg.ClientRatingTarget),
		FactorPostingTime:     PostingAge(s.PostedAt),
		FactorFeatured:        Featured(s.Featured),
		FactorClientCountry:   Country(s.ClientLocation, cfg),
	}
	factors := make([]Factor, 0, len(FactorNames))
	for _, name := range FactorNames {
		factors = append(factors, Factor{Name: name, Value: values[name], Weight: cfg.Weight(name)})
	}
	return factors
}

// ScoreSignals scores a posting with cfg.
func ScoreSignals(s Signals, cfg Config) (float64, bool) {
	return Score(Factors(s, cfg))
}
