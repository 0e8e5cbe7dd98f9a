package evaluate

import (
	"context"
	"strings"
	"time"

	"github.com/sw33tLie/jobscope/pkg/cache"
)

const (
	DefaultCacheTTL      = 48 * time.Hour
	DefaultCacheMax      = 300
	DefaultCacheDebounce = time.Second
)

// Evaluation is a cached verdict together with the reply it came from.
type Evaluation struct {
	Verdict string `json:"verdict"`
	Content string `json:"content"`
}

// OpenCache loads the evaluation cache persisted under key.
func OpenCache(ctx context.Context, store cache.Store, key string, onError func(error)) (*cache.Persisted[Evaluation], error) {
	return cache.Open[Evaluation](ctx, store, key, cache.Options{
		TTL:        DefaultCacheTTL,
		MaxEntries: DefaultCacheMax,
		Debounce:   DefaultCacheDebounce,
		OnError:    onError,
	})
}

// Service answers evaluation requests from the cache when it can and from
// the provider otherwise.
type Service struct {
	Provider Provider
	Cache    *cache.Persisted[Evaluation]
	Tokens   Tokens
	Log      Logger
}

// Cached returns the stored evaluation for itemID, if any.
func (s *Service) Cached(itemID string) (Evaluation, bool) {
	if s.Cache == nil {
		return Evaluation{}, false
	}
	return s.Cache.Get(itemID)
}

// Evaluate returns the verdict for itemID. A cached evaluation is returned
// without calling the provider; the second return value reports that.
// Provider failures come back as *ProviderError and are not cached.
func (s *Service) Evaluate(ctx context.Context, itemID string, req Request) (Evaluation, bool, error) {
	if ev, ok := s.Cached(itemID); ok {
		if ev.Verdict == "" {
			ev.Verdict = ParseVerdict(ev.Content, s.tokens()).Label
		}
		return ev, true, nil
	}
	if strings.TrimSpace(req.Description) == "" {
		return Evaluation{}, false, ErrNoDescription
	}

	res := s.Provider.Evaluate(ctx, req)
	if !res.OK {
		s.logger().Warnf("Evaluation of %s failed: %v", itemID, res.Err())
		return Evaluation{}, false, res.Err()
	}
	if strings.TrimSpace(res.Content) == "" {
		return Evaluation{}, false, ErrEmptyContent
	}

	ev := Evaluation{
		Verdict: ParseVerdict(res.Content, s.tokens()).Label,
		Content: res.Content,
	}
	if s.Cache != nil {
		s.Cache.Set(itemID, ev)
	}
	return ev, false, nil
}

func (s *Service) tokens() Tokens {
	if s.Tokens.Positive == "" && s.Tokens.Negative == "" {
		return DefaultTokens
	}
	return s.Tokens
}

func (s *Service) logger() Logger {
	if s.Log == nil {
		return nopLogger{}
	}
	return s.Log
}
