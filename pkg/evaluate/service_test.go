package evaluate

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

type fakeProvider struct {
	calls  int
	result Result
}

func (f *fakeProvider) Evaluate(context.Context, Request) Result {
	f.calls++
	return f.result
}

func newService(t *testing.T, res Result) (*Service, *fakeProvider, *memStore) {
	t.Helper()
	store := &memStore{data: map[string][]byte{}}
	c, err := OpenCache(context.Background(), store, "evalCache", nil)
	if err != nil {
		t.Fatal(err)
	}
	p := &fakeProvider{result: res}
	return &Service{Provider: p, Cache: c}, p, store
}

func TestServiceCachesVerdict(t *testing.T) {
	svc, p, store := newService(t, Result{OK: true, Content: "worth\nreasons"})
	ctx := context.Background()
	req := Request{Title: "t", Description: "d"}

	ev, cached, err := svc.Evaluate(ctx, "01abc", req)
	if err != nil || cached || ev.Verdict != "WORTH" || ev.Content != "worth\nreasons" {
		t.Fatalf("unexpected first evaluation %+v %v %v", ev, cached, err)
	}
	ev, cached, err = svc.Evaluate(ctx, "01abc", req)
	if err != nil || !cached || ev.Verdict != "WORTH" {
		t.Fatalf("expected cached evaluation, got %+v %v %v", ev, cached, err)
	}
	if p.calls != 1 {
		t.Fatalf("expected one provider call, got %d", p.calls)
	}

	if err := svc.Cache.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, "evalCache"); !ok {
		t.Fatal("expected evaluation cache to be persisted")
	}
}

func TestServiceErrors(t *testing.T) {
	ctx := context.Background()

	svc, p, _ := newService(t, Result{OK: true, Content: "x"})
	if _, _, err := svc.Evaluate(ctx, "a", Request{Description: "  "}); !errors.Is(err, ErrNoDescription) {
		t.Fatalf("expected ErrNoDescription, got %v", err)
	}
	if p.calls != 0 {
		t.Fatal("provider must not be called without a description")
	}

	svc, _, _ = newService(t, Result{OK: true, Content: "   "})
	if _, _, err := svc.Evaluate(ctx, "a", Request{Description: "d"}); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}

	svc, _, _ = newService(t, Result{Error: KindDataPolicy, Message: "no endpoints found", Details: "no endpoints found"})
	_, _, err := svc.Evaluate(ctx, "a", Request{Description: "d"})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindDataPolicy {
		t.Fatalf("expected data_policy ProviderError, got %v", err)
	}
	if _, ok := svc.Cached("a"); ok {
		t.Fatal("failures must not be cached")
	}
}
