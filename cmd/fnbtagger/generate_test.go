package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-fnbtagger/internal/annotation"
	"github.com/example/go-fnbtagger/internal/config"
	"github.com/example/go-fnbtagger/internal/pipeline"
	"github.com/example/go-fnbtagger/internal/vocab"
	"github.com/google/go-cmp/cmp"
)

func TestGenerateCmd_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	input := writeAnnotations(t, dir, 20)
	outDir := filepath.Join(dir, "out")
	metricsFile := filepath.Join(dir, "run.prom")

	out, err := execute(t, "generate",
		"--paths-input", input,
		"--paths-output-dir", outDir,
		"--compression", "gzip",
		"--metrics-file", metricsFile,
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if out != "Done. 18 train, 2 test, 1 dev\n" {
		t.Errorf("summary = %q", out)
	}

	for _, name := range []string{"train.tfrecords", "dev.tfrecords", "test.tfrecords", "tokens.vocab", "labels.vocab"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}

	labels, err := os.ReadFile(filepath.Join(outDir, "labels.vocab"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(labels) != "O\nB-ANIMAL\n" {
		t.Errorf("labels.vocab = %q; want %q", labels, "O\nB-ANIMAL\n")
	}

	prom, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("ReadFile metrics: %v", err)
	}
	for _, want := range []string{"fnbtagger_examples_total", `bucket="train"`, "run_id="} {
		if !strings.Contains(string(prom), want) {
			t.Errorf("metrics file missing %q:\n%s", want, prom)
		}
	}
}

func TestGenerateCmd_InvalidSplit(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "generate",
		"--paths-input", writeAnnotations(t, dir, 2),
		"--paths-output-dir", filepath.Join(dir, "out"),
		"--train-fraction", "0.5",
		"--log-level", "error",
	)
	if err == nil {
		t.Fatal("generate should fail when train and test fractions do not sum to 1")
	}
}

func TestGenerateCmd_MissingInput(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "generate",
		"--paths-input", filepath.Join(dir, "missing.txt"),
		"--paths-output-dir", filepath.Join(dir, "out"),
		"--log-level", "error",
	)
	if err == nil {
		t.Fatal("generate should fail on a missing input file")
	}
}

func TestRunGenerate_RejectPolicy(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(input, []byte("ok/O\nbroken\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Paths.Input = input
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	cfg.Input.Malformed = "reject"

	if _, err := runGenerate(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("runGenerate error = %v; want a line 2 error", err)
	}
}

func TestPipelineOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Vocab.Fallback = "unknown"
	cfg.Input.Malformed = "skip"
	cfg.Input.MaxLineBytes = 512

	got, err := pipelineOptions(cfg)
	if err != nil {
		t.Fatalf("pipelineOptions: %v", err)
	}

	want := pipeline.DefaultOptions()
	want.Fallback = vocab.FallbackUnknown
	want.Policy = annotation.PolicySkip
	want.MaxLineBytes = 512

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pipelineOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateCmd_FailedRerunLeavesNoStaleVocabulary(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	if _, err := execute(t, "generate",
		"--paths-input", writeAnnotations(t, dir, 5),
		"--paths-output-dir", outDir,
		"--log-level", "error",
	); err != nil {
		t.Fatalf("first generate: %v", err)
	}

	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("fresh/O\nbroken\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := execute(t, "generate",
		"--paths-input", bad,
		"--paths-output-dir", outDir,
		"--malformed", "reject",
		"--log-level", "error",
	); err == nil {
		t.Fatal("second generate should fail on the rejected line")
	}

	for _, name := range []string{"tokens.vocab", "labels.vocab"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("ReadFile %s: %v", name, err)
		}
		if len(data) != 0 {
			t.Errorf("%s = %q after a failed rerun; want empty", name, data)
		}
	}
}
