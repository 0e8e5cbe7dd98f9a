package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sw33tLie/jobscope/pkg/pipeline"
	"github.com/sw33tLie/jobscope/pkg/scoring"
	"github.com/sw33tLie/jobscope/pkg/storage"
)

type resultView struct {
	ItemID    string    `json:"item_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Score     *float64  `json:"score"`
	Display   string    `json:"display"`
	Tier      string    `json:"tier,omitempty"`
	Badge     string    `json:"badge,omitempty"`
	Status    string    `json:"status,omitempty"`
	Details   any       `json:"details,omitempty"`
	Verdict   string    `json:"verdict,omitempty"`
	FirstSeen time.Time `json:"first_seen_at"`
	ScoredAt  time.Time `json:"scored_at"`
}

func newResultView(r storage.Result) resultView {
	v := resultView{
		ItemID:    r.ItemID,
		URL:       r.URL,
		Title:     r.Title,
		Display:   scoring.Format(r.Score, r.HasScore),
		Tier:      r.Tier,
		Status:    r.Status,
		Verdict:   r.Verdict,
		FirstSeen: r.FirstSeenAt,
		ScoredAt:  r.ScoredAt,
	}
	if r.HasScore {
		score := r.Score
		v.Score = &score
	}
	if tier, ok := scoring.ParseTier(r.Tier); ok {
		v.Badge = tier.BadgeClass()
	}
	if r.Details != "" {
		var d pipeline.Details
		if err := json.Unmarshal([]byte(r.Details), &d); err == nil {
			v.Details = d
		}
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		IncludeUnscored: q.Get("unscored") == "true",
	}
	if v := q.Get("min_score"); v != "" {
		min, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "bad min_score", http.StatusBadRequest)
			return
		}
		opts.MinScore = min
	} else if opts.IncludeUnscored {
		opts.MinScore = -10
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "bad since, expected RFC3339", http.StatusBadRequest)
			return
		}
		opts.Since = since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		opts.Limit = limit
	}

	results, err := s.DB.ListResults(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]resultView, 0, len(results))
	for _, res := range results {
		views = append(views, newResultView(res))
	}
	writeJSON(w, views)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.DB.ListKeys(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, keys)
}

type settingsView struct {
	Score   scoring.Config   `json:"score"`
	Toggles pipeline.Toggles `json:"toggles"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	kv := s.DB.Scope(storage.ScopeSettings)
	view := settingsView{Score: scoring.DefaultConfig(), Toggles: pipeline.DefaultToggles()}

	raw, ok, err := kv.Get(r.Context(), storage.KeyScoreSettings)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ok {
		view.Score = view.Score.Merge(raw)
	}
	raw, ok, err = kv.Get(r.Context(), storage.KeyToggles)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ok {
		view.Toggles = pipeline.ParseToggles(raw)
	}
	writeJSON(w, view)
}

type VerdictRequest struct {
	Verdict string `json:"verdict"`
}

func (s *Server) handleSetVerdict(w http.ResponseWriter, r *http.Request) {
	var req VerdictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	verdict := strings.TrimSpace(req.Verdict)
	if verdict == "" {
		http.Error(w, "verdict is required", http.StatusBadRequest)
		return
	}

	err := s.DB.SetVerdict(r.Context(), r.PathValue("id"), verdict)
	if errors.Is(err, storage.ErrResultNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.Trigger == nil {
		http.Error(w, "not watching", http.StatusConflict)
		return
	}
	select {
	case s.Trigger <- struct{}{}:
	default:
		// A pass is already pending.
	}
	w.WriteHeader(http.StatusAccepted)
}
