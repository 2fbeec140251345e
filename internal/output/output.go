// Package output creates the files a generate run writes: three TFRecord
// files and two vocabulary files. Existing files are truncated.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-fnbtagger/internal/pipeline"
	"github.com/example/go-fnbtagger/internal/tfrecord"
)

// Layout names the output files. Relative names are resolved against Dir.
type Layout struct {
	Dir         string
	Train       string
	Dev         string
	Test        string
	TokensVocab string
	LabelsVocab string
}

// Resolve joins name onto Dir unless name is absolute or Dir is empty.
func (l Layout) Resolve(name string) string {
	if name == "" || filepath.IsAbs(name) || l.Dir == "" {
		return name
	}

	return filepath.Join(l.Dir, name)
}

// RecordPaths returns the resolved train, dev and test paths.
func (l Layout) RecordPaths() (train, dev, test string) {
	return l.Resolve(l.Train), l.Resolve(l.Dev), l.Resolve(l.Test)
}

// Records holds the open record writers of a run.
type Records struct {
	Train *tfrecord.Writer
	Dev   *tfrecord.Writer
	Test  *tfrecord.Writer
}

// Sinks adapts the writers to the pipeline's sink set.
func (r *Records) Sinks() pipeline.Sinks {
	return pipeline.Sinks{Train: r.Train, Dev: r.Dev, Test: r.Test}
}

// Close closes every writer and reports all failures.
func (r *Records) Close() error {
	var errs []error
	for _, w := range []*tfrecord.Writer{r.Train, r.Dev, r.Test} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// CreateRecords creates the output directory and the three record files. It
// also truncates both vocabulary files, which stay empty until
// WriteVocabularies runs, so a failed run never leaves vocabularies from an
// earlier run next to new records.
func CreateRecords(l Layout, c tfrecord.Compression) (*Records, error) {
	if l.Dir != "" {
		if err := os.MkdirAll(l.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir %s: %w", l.Dir, err)
		}
	}

	for _, name := range []string{l.TokensVocab, l.LabelsVocab} {
		if name == "" {
			continue
		}
		path := l.Resolve(name)
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		if err := closeFile(f); err != nil {
			return nil, err
		}
	}

	trainPath, devPath, testPath := l.RecordPaths()

	recs := &Records{}
	var err error
	if recs.Train, err = tfrecord.Create(trainPath, c); err != nil {
		return nil, err
	}
	if recs.Dev, err = tfrecord.Create(devPath, c); err != nil {
		_ = recs.Close()
		return nil, err
	}
	if recs.Test, err = tfrecord.Create(testPath, c); err != nil {
		_ = recs.Close()
		return nil, err
	}

	return recs, nil
}

// WriteVocabularies writes both vocabulary files from gen.
func WriteVocabularies(l Layout, gen *pipeline.Generator) (err error) {
	tokensPath := l.Resolve(l.TokensVocab)
	labelsPath := l.Resolve(l.LabelsVocab)

	tf, err := os.Create(tokensPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", tokensPath, err)
	}
	defer func() { err = errors.Join(err, closeFile(tf)) }()

	lf, err := os.Create(labelsPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", labelsPath, err)
	}
	defer func() { err = errors.Join(err, closeFile(lf)) }()

	return gen.WriteVocabularies(tf, lf)
}

func closeFile(f *os.File) error {
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.Name(), err)
	}

	return nil
}
