// Package evaluate asks a language model whether a posting is worth
// applying to and caches the verdict per item.
package evaluate

import (
	"context"
	"errors"
)

// Kind classifies a failed evaluation.
type Kind string

const (
	KindMissingAPIKey Kind = "missing_api_key"
	KindDataPolicy    Kind = "data_policy"
	KindRequestFailed Kind = "request_failed"
)

var (
	// ErrEmptyContent is returned when the provider answered with no text.
	ErrEmptyContent = errors.New("empty response from model")
	// ErrNoDescription is returned when there is nothing to evaluate yet.
	ErrNoDescription = errors.New("open the job details to load its description")
)

// Request is the posting sent to the provider.
type Request struct {
	Title       string
	URL         string
	Skills      string
	Description string
}

// Result is a provider's answer. When OK is false, Error names the failure
// class and Message/Details carry the provider's own wording.
type Result struct {
	OK      bool
	Content string
	Error   Kind
	Message string
	Details string
}

// Err converts a failed Result into a *ProviderError.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &ProviderError{Kind: r.Error, Message: r.Message, Details: r.Details}
}

// Provider evaluates a posting.
type Provider interface {
	Evaluate(ctx context.Context, req Request) Result
}

// ProviderError is a failed evaluation surfaced to the user.
type ProviderError struct {
	Kind    Kind
	Message string
	Details string
}

func (e *ProviderError) Error() string {
	switch {
	case e.Details != "":
		return e.Details
	case e.Message != "":
		return e.Message
	case e.Kind == KindMissingAPIKey:
		return "missing OpenRouter API key (set openrouter.apikey)"
	}
	return string(e.Kind)
}

// Logger abstracts logging so callers can plug in logrus or anything else
// with the same method set.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}
