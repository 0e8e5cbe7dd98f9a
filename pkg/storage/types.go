package storage

import "time"

// Result is the persisted outcome of scoring one listing item.
type Result struct {
	ItemID   string
	URL      string
	Title    string
	HasScore bool
	Score    float64
	Tier     string
	Status   string // ok | unavailable | deferred
	Details  string
	Verdict  string

	FirstSeenAt time.Time
	ScoredAt    time.Time
}

// TierStats counts stored results per score tier.
type TierStats struct {
	Tier  string
	Count int
}
