package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertResults stores the outcome of one pass. Existing rows keep their
// first_seen_at; a previously stored verdict is kept when the new result
// carries none.
func (d *DB) UpsertResults(ctx context.Context, results []Result) error {
	if len(results) == 0 {
		return nil
	}
	now := time.Now().UTC()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, r := range results {
		if r.ItemID == "" {
			continue
		}
		var score interface{}
		if r.HasScore {
			score = r.Score
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO job_results(item_id, url, title, score, tier, status, details, verdict, first_seen_at, scored_at)
VALUES(?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(item_id) DO UPDATE SET
  url = excluded.url,
  title = COALESCE(excluded.title, job_results.title),
  score = excluded.score,
  tier = excluded.tier,
  status = excluded.status,
  details = COALESCE(excluded.details, job_results.details),
  verdict = COALESCE(excluded.verdict, job_results.verdict),
  scored_at = excluded.scored_at`,
			r.ItemID, NormalizeURL(r.URL), nullIfEmpty(r.Title), score, nullIfEmpty(r.Tier), nullIfEmpty(r.Status),
			nullIfEmpty(r.Details), nullIfEmpty(r.Verdict), now, now)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	return err
}

// SetVerdict records an evaluation verdict for an already stored item.
func (d *DB) SetVerdict(ctx context.Context, itemID, verdict string) error {
	res, err := d.sql.ExecContext(ctx, "UPDATE job_results SET verdict = ? WHERE item_id = ?", verdict, itemID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrResultNotFound
	}
	return nil
}

// ErrResultNotFound is returned when an item has never been stored.
var ErrResultNotFound = errors.New("result not found")

// ListOptions controls selection when listing results.
type ListOptions struct {
	MinScore float64
	Since    time.Time
	Limit    int
	// IncludeUnscored also returns items without a score.
	IncludeUnscored bool
}

// ListResults returns stored results, best score first.
func (d *DB) ListResults(ctx context.Context, opts ListOptions) ([]Result, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.IncludeUnscored {
		where += " AND (score IS NULL OR score >= ?)"
	} else {
		where += " AND score IS NOT NULL AND score >= ?"
	}
	args = append(args, opts.MinScore)
	if !opts.Since.IsZero() {
		where += " AND scored_at >= ?"
		args = append(args, opts.Since.UTC())
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	q := "SELECT item_id, url, title, score, tier, status, details, verdict, first_seen_at, scored_at FROM job_results " + where + " ORDER BY score IS NULL, score DESC, scored_at DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			r                                      Result
			title, tier, status, details, verdict sql.NullString
			score                                  sql.NullFloat64
			firstSeen, scored                      string
		)
		if err := rows.Scan(&r.ItemID, &r.URL, &title, &score, &tier, &status, &details, &verdict, &firstSeen, &scored); err != nil {
			return nil, err
		}
		r.Title = title.String
		r.Tier = tier.String
		r.Status = status.String
		r.Details = details.String
		r.Verdict = verdict.String
		r.HasScore = score.Valid
		r.Score = score.Float64
		r.FirstSeenAt = parseTime(firstSeen)
		r.ScoredAt = parseTime(scored)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStats counts stored results per tier. Unscored items are reported
// under the empty tier.
func (d *DB) GetStats(ctx context.Context) ([]TierStats, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT COALESCE(tier, ''), COUNT(*)
		FROM job_results
		GROUP BY COALESCE(tier, '')
		ORDER BY 1;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []TierStats
	for rows.Next() {
		var s TierStats
		if err := rows.Scan(&s.Tier, &s.Count); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// PruneResults deletes results not scored since cutoff.
func (d *DB) PruneResults(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM job_results WHERE scored_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
