// Package doctor provides preflight checks for a generate run.
package doctor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/example/go-fnbtagger/internal/annotation"
	"github.com/example/go-fnbtagger/internal/pipeline"
	"github.com/example/go-fnbtagger/internal/split"
	"github.com/example/go-fnbtagger/internal/tfrecord"
)

// PassMark, WarnMark and FailMark are the prefix symbols printed for each
// check result. Warnings do not fail the run.
const (
	PassMark = "✓"
	WarnMark = "!"
	FailMark = "✗"
)

// SplitCheck names one pair of split fractions to validate.
type SplitCheck struct {
	Name string
	A, B float64
}

// Config holds the inputs of each doctor check.
type Config struct {
	// InputPath is the annotated input file.
	InputPath string
	// SampleLines is how many leading lines are parsed. Zero skips the sample
	// check.
	SampleLines int
	// Policy is the malformed-line policy generate will apply. Malformed
	// sample lines fail under reject and warn under skip.
	Policy annotation.Policy
	// MaxLineBytes is the longest accepted input line; zero uses the
	// pipeline default.
	MaxLineBytes int
	// OutputDir must be writable, or creatable under an existing parent.
	OutputDir   string
	Splits      []SplitCheck
	Compression string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- input file -------------------------------------------------------
	if err := checkReadable(cfg.InputPath); err != nil {
		res.fail(fmt.Sprintf("input file %q: %v", cfg.InputPath, err))
		fmt.Fprintf(w, "%s input file %s: %v\n", FailMark, cfg.InputPath, err)
	} else {
		fmt.Fprintf(w, "%s input file: %s\n", PassMark, cfg.InputPath)

		if cfg.SampleLines > 0 {
			checked, bad, err := sampleInput(cfg)
			switch {
			case err != nil:
				res.fail(fmt.Sprintf("input sample: %v", err))
				fmt.Fprintf(w, "%s input sample: %v\n", FailMark, err)
			case bad > 0 && cfg.Policy == annotation.PolicySkip:
				fmt.Fprintf(w, "%s input sample: %d of %d lines malformed, will be skipped\n", WarnMark, bad, checked)
			case bad > 0:
				res.fail(fmt.Sprintf("input sample: %d of %d lines malformed", bad, checked))
				fmt.Fprintf(w, "%s input sample: %d of %d lines malformed\n", FailMark, bad, checked)
			default:
				fmt.Fprintf(w, "%s input sample: %d lines ok\n", PassMark, checked)
			}
		}
	}

	// ---- output directory -------------------------------------------------
	if err := checkWritableDir(cfg.OutputDir); err != nil {
		res.fail(fmt.Sprintf("output dir %q: %v", cfg.OutputDir, err))
		fmt.Fprintf(w, "%s output dir %s: %v\n", FailMark, cfg.OutputDir, err)
	} else {
		fmt.Fprintf(w, "%s output dir: %s\n", PassMark, cfg.OutputDir)
	}

	// ---- split fractions --------------------------------------------------
	for _, s := range cfg.Splits {
		if _, err := split.New(s.A, s.B); err != nil {
			res.fail(fmt.Sprintf("%s split: %v", s.Name, err))
			fmt.Fprintf(w, "%s %s split: %v\n", FailMark, s.Name, err)
		} else {
			fmt.Fprintf(w, "%s %s split: %g/%g\n", PassMark, s.Name, s.A, s.B)
		}
	}

	// ---- compression ------------------------------------------------------
	if c, err := tfrecord.ParseCompression(cfg.Compression); err != nil {
		res.fail(fmt.Sprintf("compression: %v", err))
		fmt.Fprintf(w, "%s compression: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s compression: %s\n", PassMark, c)
	}

	return res
}

func checkReadable(path string) error {
	if path == "" {
		return errors.New("no path configured")
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	return f.Close()
}

// sampleInput parses up to cfg.SampleLines lines under cfg.Policy and counts
// the malformed ones. Lines are read with the pipeline's length limit.
func sampleInput(cfg Config) (checked, bad int, err error) {
	f, err := os.Open(cfg.InputPath)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	parser := annotation.NewParser(cfg.Policy)

	sc := pipeline.NewLineScanner(f, cfg.MaxLineBytes)
	for checked < cfg.SampleLines && sc.Scan() {
		checked++
		if _, err := parser.Parse(sc.Text()); err != nil {
			bad++
		}
	}

	return checked, bad, sc.Err()
}

// checkWritableDir probes dir with a temp file. A missing dir passes when its
// parent is writable.
func checkWritableDir(dir string) error {
	if dir == "" {
		dir = "."
	}

	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		parent := filepath.Dir(dir)
		if parent == dir {
			return err
		}

		return checkWritableDir(parent)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}

	f, err := os.CreateTemp(dir, ".fnbtagger-doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()

	return os.Remove(name)
}
