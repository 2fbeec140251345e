// Package vocab assigns stable, contiguous integer ids to strings in the order
// they are first seen, with a reserved id 0 for the unknown token.
package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// UnknownID is the id always bound to the indexer's unknown token.
const UnknownID = 0

// ErrEmptyVocabulary is returned by Read when the input has no lines.
var ErrEmptyVocabulary = errors.New("vocabulary is empty")

// Fallback selects what LookupTokens returns for ids that were never assigned.
type Fallback int

const (
	// FallbackFirst resolves unknown ids to the token bound to id 1, the first
	// token ingested after the unknown token. This is the historical behavior
	// and the default.
	FallbackFirst Fallback = iota
	// FallbackUnknown resolves unknown ids to the unknown token.
	FallbackUnknown
)

// ParseFallback maps a config value ("first" or "unknown") to a Fallback.
func ParseFallback(s string) (Fallback, error) {
	switch s {
	case "", "first":
		return FallbackFirst, nil
	case "unknown":
		return FallbackUnknown, nil
	default:
		return FallbackFirst, fmt.Errorf("invalid vocab fallback %q (expected first|unknown)", s)
	}
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithFallback sets the LookupTokens fallback mode.
func WithFallback(f Fallback) Option {
	return func(ix *Indexer) { ix.fallback = f }
}

// Indexer maps tokens to ids and back. Ids are never reassigned or removed.
// An Indexer is not safe for concurrent use.
type Indexer struct {
	unknown  string
	ids      map[string]int
	tokens   []string // tokens[id] is the token bound to id
	fallback Fallback
}

// New returns an Indexer holding only the unknown token at id 0.
func New(unknown string, opts ...Option) *Indexer {
	ix := &Indexer{
		unknown: unknown,
		ids:     map[string]int{unknown: UnknownID},
		tokens:  []string{unknown},
	}
	for _, opt := range opts {
		opt(ix)
	}

	return ix
}

// Unknown returns the unknown token.
func (ix *Indexer) Unknown() string { return ix.unknown }

// Len returns the number of assigned ids, including the unknown token.
func (ix *Indexer) Len() int { return len(ix.tokens) }

// Ingest returns the id of every token, assigning the next id to tokens not
// seen before. The result has the same length and order as tokens.
func (ix *Indexer) Ingest(tokens []string) []int {
	out := make([]int, len(tokens))
	for i, tok := range tokens {
		id, ok := ix.ids[tok]
		if !ok {
			id = len(ix.tokens)
			ix.ids[tok] = id
			ix.tokens = append(ix.tokens, tok)
		}
		out[i] = id
	}

	return out
}

// ExtractAndIngest runs extract over raw and ingests the result.
func (ix *Indexer) ExtractAndIngest(raw string, extract func(string) []string) []int {
	return ix.Ingest(extract(raw))
}

// LookupIDs returns the id of each token, or UnknownID for tokens that were
// never ingested. It does not modify the indexer.
func (ix *Indexer) LookupIDs(tokens []string) []int {
	out := make([]int, len(tokens))
	for i, tok := range tokens {
		if id, ok := ix.ids[tok]; ok {
			out[i] = id
		} else {
			out[i] = UnknownID
		}
	}

	return out
}

// LookupTokens returns the token bound to each id. Ids that were never
// assigned resolve according to the indexer's Fallback. With FallbackFirst and
// nothing ingested yet there is no id 1, so the unknown token is used.
func (ix *Indexer) LookupTokens(ids []int) []string {
	fallback := ix.unknown
	if ix.fallback == FallbackFirst && len(ix.tokens) > 1 {
		fallback = ix.tokens[1]
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		if id >= 0 && id < len(ix.tokens) {
			out[i] = ix.tokens[id]
		} else {
			out[i] = fallback
		}
	}

	return out
}

// Vocabulary returns a copy of all tokens ordered by id.
func (ix *Indexer) Vocabulary() []string {
	return append([]string(nil), ix.tokens...)
}

// WriteTo writes the vocabulary to w, one token per line in id order.
func (ix *Indexer) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)

	var n int64
	for _, tok := range ix.tokens {
		c, err := bw.WriteString(tok)
		n += int64(c)
		if err != nil {
			return n, err
		}

		if err := bw.WriteByte('\n'); err != nil {
			return n, err
		}
		n++
	}

	return n, bw.Flush()
}

// Read rebuilds an Indexer from a vocabulary written by WriteTo. The first
// line becomes the unknown token.
func Read(r io.Reader, opts ...Option) (*Indexer, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var ix *Indexer
	line := 0
	for sc.Scan() {
		tok := sc.Text()
		line++

		if ix == nil {
			ix = New(tok, opts...)
			continue
		}

		if _, dup := ix.ids[tok]; dup {
			return nil, fmt.Errorf("vocabulary line %d: duplicate token %q", line, tok)
		}
		ix.Ingest([]string{tok})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	if ix == nil {
		return nil, ErrEmptyVocabulary
	}

	return ix, nil
}
