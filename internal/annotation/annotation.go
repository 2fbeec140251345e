// Package annotation parses whitespace-separated token/LABEL lines.
//
// A field "New/York/B-LOC" yields the token "new" (text before the first
// separator, lower-cased) and the label "B-LOC" (text after the last
// separator, upper-cased).
package annotation

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Separator splits a field into token and label.
const Separator = "/"

// ErrMalformedLine is returned when a field is not in token/LABEL form and the
// policy does not allow it.
var ErrMalformedLine = errors.New("malformed annotation line")

// Policy controls how fields without a usable token/LABEL pair are handled.
type Policy string

const (
	// PolicyLenient treats a field without a separator as both token and label.
	PolicyLenient Policy = "lenient"
	// PolicySkip drops lines containing a malformed field.
	PolicySkip Policy = "skip"
	// PolicyReject fails the run on the first malformed field.
	PolicyReject Policy = "reject"
)

// ParsePolicy normalizes a config value into a Policy.
func ParsePolicy(raw string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(raw)))
	if p == "" {
		return PolicyLenient, nil
	}
	switch p {
	case PolicyLenient, PolicySkip, PolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("invalid malformed-line policy %q (expected %s|%s|%s)", raw, PolicyLenient, PolicySkip, PolicyReject)
	}
}

// ExtractTokens returns the lower-cased token part of every field in line.
func ExtractTokens(line string) []string {
	fields := strings.Fields(line)
	lower := cases.Lower(language.Und)

	out := make([]string, len(fields))
	for i, f := range fields {
		tok, _, _ := strings.Cut(f, Separator)
		out[i] = lower.String(tok)
	}

	return out
}

// ExtractLabels returns the upper-cased label part of every field in line.
// A field without a separator is its own label.
func ExtractLabels(line string) []string {
	fields := strings.Fields(line)
	upper := cases.Upper(language.Und)

	out := make([]string, len(fields))
	for i, f := range fields {
		label := f
		if idx := strings.LastIndex(f, Separator); idx >= 0 {
			label = f[idx+len(Separator):]
		}
		out[i] = upper.String(label)
	}

	return out
}

// Sentence is a parsed line: aligned tokens and labels.
type Sentence struct {
	Tokens []string
	Labels []string
}

// Len returns the number of fields in the sentence.
func (s Sentence) Len() int { return len(s.Tokens) }

// Parser extracts sentences under a malformed-line policy.
type Parser struct {
	policy Policy
}

// NewParser returns a Parser applying policy.
func NewParser(policy Policy) *Parser {
	if policy == "" {
		policy = PolicyLenient
	}

	return &Parser{policy: policy}
}

// Policy returns the parser's policy.
func (p *Parser) Policy() Policy { return p.policy }

// Parse extracts tokens and labels from line. A blank line returns an empty
// Sentence and no error. Under PolicySkip and PolicyReject a malformed field
// returns an error wrapping ErrMalformedLine; the caller decides whether to
// drop the line or abort.
func (p *Parser) Parse(line string) (Sentence, error) {
	if p.policy != PolicyLenient {
		if err := validate(line); err != nil {
			return Sentence{}, err
		}
	}

	return Sentence{
		Tokens: ExtractTokens(line),
		Labels: ExtractLabels(line),
	}, nil
}

func validate(line string) error {
	for i, f := range strings.Fields(line) {
		first := strings.Index(f, Separator)
		last := strings.LastIndex(f, Separator)

		switch {
		case first < 0:
			return fmt.Errorf("%w: field %d %q has no %q separator", ErrMalformedLine, i+1, f, Separator)
		case first == 0:
			return fmt.Errorf("%w: field %d %q has an empty token", ErrMalformedLine, i+1, f)
		case last == len(f)-len(Separator):
			return fmt.Errorf("%w: field %d %q has an empty label", ErrMalformedLine, i+1, f)
		}
	}

	return nil
}
