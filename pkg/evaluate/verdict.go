package evaluate

import (
	"regexp"
	"strings"
)

// Tone is the sentiment of a verdict.
type Tone int

const (
	Neutral Tone = iota
	Positive
	Negative
)

func (t Tone) String() string {
	switch t {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	}
	return "neutral"
}

// NoAnswer is the verdict label for an empty reply.
const NoAnswer = "no answer"

// Tokens are the words the prompt asks the model to answer with. The
// negative token is checked first since it usually contains the positive
// one.
type Tokens struct {
	Positive string
	Negative string
}

// DefaultTokens match DefaultPrompt.
var DefaultTokens = Tokens{Positive: "worth", Negative: "not worth"}

// Verdict is the short answer extracted from a model reply.
type Verdict struct {
	Tone  Tone
	Label string
}

// ParseVerdict reads the verdict out of content: the negative token wins,
// then the positive token; otherwise the first non-empty line is used as
// is.
func ParseVerdict(content string, tokens Tokens) Verdict {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Verdict{Label: NoAnswer}
	}
	if tokens.Negative != "" && tokenRe(tokens.Negative).MatchString(trimmed) {
		return Verdict{Tone: Negative, Label: strings.ToUpper(tokens.Negative)}
	}
	if tokens.Positive != "" && tokenRe(tokens.Positive).MatchString(trimmed) {
		return Verdict{Tone: Positive, Label: strings.ToUpper(tokens.Positive)}
	}
	for _, line := range strings.Split(trimmed, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return Verdict{Label: line}
		}
	}
	return Verdict{Label: trimmed}
}

// ToneOf recovers the tone of a stored label.
func ToneOf(label string, tokens Tokens) Tone {
	switch {
	case tokens.Negative != "" && strings.EqualFold(label, tokens.Negative):
		return Negative
	case tokens.Positive != "" && strings.EqualFold(label, tokens.Positive):
		return Positive
	}
	return Neutral
}

// tokenRe matches token case-insensitively with any spacing between its
// words.
func tokenRe(token string) *regexp.Regexp {
	words := strings.Fields(token)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(words, `\s*`))
}
