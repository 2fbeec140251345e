// Package pipeline turns annotated lines into serialized training examples,
// routing each line to train, dev or test and growing the vocabularies from
// training lines only.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/example/go-fnbtagger/internal/annotation"
	"github.com/example/go-fnbtagger/internal/example"
	"github.com/example/go-fnbtagger/internal/metrics"
	"github.com/example/go-fnbtagger/internal/split"
	"github.com/example/go-fnbtagger/internal/vocab"
)

// DefaultMaxLineBytes bounds the length of a single input line.
const DefaultMaxLineBytes = 1 << 20

// RecordSink accepts serialized records in arrival order.
type RecordSink interface {
	Write(record []byte) error
}

// Sinks are the three record outputs of a run.
type Sinks struct {
	Train RecordSink
	Dev   RecordSink
	Test  RecordSink
}

func (s Sinks) validate() error {
	if s.Train == nil || s.Dev == nil || s.Test == nil {
		return errors.New("pipeline: train, dev and test sinks are required")
	}

	return nil
}

// Options configures a Generator.
type Options struct {
	// TrainFraction and TestFraction split the input into train and test.
	TrainFraction float64
	TestFraction  float64
	// DevFraction and DevComplement split the training lines again; lines in
	// the complement share are also written to the dev sink.
	DevFraction   float64
	DevComplement float64

	UnknownToken string
	UnknownLabel string
	Fallback     vocab.Fallback

	Policy       annotation.Policy
	MaxLineBytes int

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// DefaultOptions returns the stock 90/10 splits with "unk" and "O" as the
// unknown entries.
func DefaultOptions() Options {
	return Options{
		TrainFraction: 0.9,
		TestFraction:  0.1,
		DevFraction:   0.9,
		DevComplement: 0.1,
		UnknownToken:  "unk",
		UnknownLabel:  "O",
		Policy:        annotation.PolicyLenient,
		MaxLineBytes:  DefaultMaxLineBytes,
	}
}

// Stats summarizes a run.
type Stats struct {
	Lines   int // non-blank lines read
	Blank   int
	Skipped int // malformed lines dropped under the skip policy
	Train   int
	Dev     int
	Test    int

	TokenVocab int
	LabelVocab int
}

// LineError attaches a 1-based input line number to an error.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *LineError) Unwrap() error { return e.Err }

// NewLineScanner returns a scanner that accepts lines of up to maxLineBytes
// bytes, excluding the trailing newline. A non-positive limit uses
// DefaultMaxLineBytes.
func NewLineScanner(r io.Reader, maxLineBytes int) *bufio.Scanner {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}

	// The buffer holds the line plus its newline; the scanner's limit is the
	// larger of max and the initial capacity.
	limit := maxLineBytes + 1
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64*1024, limit)), limit)

	return sc
}

// Generator owns the splitters and indexers for one run. It processes lines
// strictly in order and is not safe for concurrent use.
type Generator struct {
	opts      Options
	log       *slog.Logger
	parser    *annotation.Parser
	testSplit *split.Splitter
	devSplit  *split.Splitter
	tokens    *vocab.Indexer
	labels    *vocab.Indexer
	stats     Stats
}

// New validates opts and returns a Generator. Invalid split fractions fail
// here with split.ErrInvalidConfiguration before any input is read.
func New(opts Options) (*Generator, error) {
	testSplit, err := split.New(opts.TrainFraction, opts.TestFraction)
	if err != nil {
		return nil, fmt.Errorf("train/test split: %w", err)
	}

	devSplit, err := split.New(opts.DevFraction, opts.DevComplement)
	if err != nil {
		return nil, fmt.Errorf("dev split: %w", err)
	}

	policy, err := annotation.ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}

	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Generator{
		opts:      opts,
		log:       logger,
		parser:    annotation.NewParser(policy),
		testSplit: testSplit,
		devSplit:  devSplit,
		tokens:    vocab.New(opts.UnknownToken, vocab.WithFallback(opts.Fallback)),
		labels:    vocab.New(opts.UnknownLabel, vocab.WithFallback(opts.Fallback)),
	}, nil
}

// Tokens returns the token vocabulary built so far.
func (g *Generator) Tokens() *vocab.Indexer { return g.tokens }

// Labels returns the label vocabulary built so far.
func (g *Generator) Labels() *vocab.Indexer { return g.labels }

// Stats returns the counters accumulated so far.
func (g *Generator) Stats() Stats {
	s := g.stats
	s.TokenVocab = g.tokens.Len()
	s.LabelVocab = g.labels.Len()

	return s
}

// Run reads r line by line and processes each line. It stops at the first
// fatal error: a read or write failure, a rejected malformed line, or ctx
// cancellation.
func (g *Generator) Run(ctx context.Context, r io.Reader, sinks Sinks) (Stats, error) {
	if err := sinks.validate(); err != nil {
		return g.Stats(), err
	}

	sc := NewLineScanner(r, g.opts.MaxLineBytes)

	lineNo := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return g.Stats(), err
		}
		lineNo++

		if err := g.Process(lineNo, sc.Text(), sinks); err != nil {
			return g.Stats(), err
		}
	}
	if err := sc.Err(); err != nil {
		return g.Stats(), &LineError{Line: lineNo + 1, Err: fmt.Errorf("read input: %w", err)}
	}

	stats := g.Stats()
	g.opts.Metrics.VocabSize("tokens", stats.TokenVocab)
	g.opts.Metrics.VocabSize("labels", stats.LabelVocab)

	return stats, nil
}

// Process handles one input line. lineNo is used for diagnostics only.
func (g *Generator) Process(lineNo int, line string, sinks Sinks) error {
	sent, err := g.parser.Parse(line)
	if err != nil {
		if g.parser.Policy() == annotation.PolicySkip {
			g.stats.Skipped++
			g.opts.Metrics.Line(metrics.LineSkipped)
			g.log.Warn("skipping malformed line", "line", lineNo, "err", err)

			return nil
		}

		return &LineError{Line: lineNo, Err: err}
	}

	if sent.Len() == 0 {
		g.stats.Blank++
		g.opts.Metrics.Line(metrics.LineBlank)

		return nil
	}

	g.stats.Lines++
	g.opts.Metrics.Line(metrics.LineProcessed)

	bucket := g.testSplit.Allocate()

	record, err := example.Build(sent.Tokens, sent.Labels)
	if err != nil {
		return &LineError{Line: lineNo, Err: err}
	}

	if bucket == split.BucketB {
		if err := sinks.Test.Write(record); err != nil {
			return fmt.Errorf("write test record (line %d): %w", lineNo, err)
		}
		g.stats.Test++
		g.opts.Metrics.Example(metrics.BucketTest)
		g.log.Debug("routed line", "line", lineNo, "bucket", metrics.BucketTest, "tokens", sent.Len())

		return nil
	}

	g.tokens.Ingest(sent.Tokens)
	g.labels.Ingest(sent.Labels)

	if err := sinks.Train.Write(record); err != nil {
		return fmt.Errorf("write train record (line %d): %w", lineNo, err)
	}
	g.stats.Train++
	g.opts.Metrics.Example(metrics.BucketTrain)

	toDev := g.devSplit.Allocate() == split.BucketB
	if toDev {
		if err := sinks.Dev.Write(record); err != nil {
			return fmt.Errorf("write dev record (line %d): %w", lineNo, err)
		}
		g.stats.Dev++
		g.opts.Metrics.Example(metrics.BucketDev)
	}
	g.log.Debug("routed line", "line", lineNo, "bucket", metrics.BucketTrain, "dev", toDev, "tokens", sent.Len())

	return nil
}

// WriteVocabularies writes the token and label vocabularies, one entry per
// line in id order.
func (g *Generator) WriteVocabularies(tokens, labels io.Writer) error {
	if _, err := g.tokens.WriteTo(tokens); err != nil {
		return fmt.Errorf("write token vocabulary: %w", err)
	}
	if _, err := g.labels.WriteTo(labels); err != nil {
		return fmt.Errorf("write label vocabulary: %w", err)
	}

	return nil
}
