package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-fnbtagger/internal/tfrecord"
	"github.com/example/go-fnbtagger/internal/vocab"
)

// generateFixture runs generate into a temp dir and returns the output dir.
func generateFixture(t *testing.T, lines int) string {
	t.Helper()

	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	if _, err := execute(t, "generate",
		"--paths-input", writeAnnotations(t, dir, lines),
		"--paths-output-dir", outDir,
		"--log-level", "error",
	); err != nil {
		t.Fatalf("generate: %v", err)
	}

	return outDir
}

func TestInspectCmd_PrintsRecords(t *testing.T) {
	outDir := generateFixture(t, 20)

	out, err := execute(t, "inspect", filepath.Join(outDir, "test.tfrecords"),
		"--paths-output-dir", outDir,
		"--vocab",
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}

	want := "#1 length=3\n  the/O dog/B-ANIMAL barks/O\n  tokens=[1 2 3] labels=[0 1 0]\n" +
		"#2 length=3\n  the/O dog/B-ANIMAL barks/O\n  tokens=[1 2 3] labels=[0 1 0]\n"
	if out != want {
		t.Errorf("inspect output = %q; want %q", out, want)
	}
}

func TestRunInspect_Limit(t *testing.T) {
	outDir := generateFixture(t, 20)

	var buf bytes.Buffer
	err := runInspect(&buf, inspectOptions{
		Path:        filepath.Join(outDir, "train.tfrecords"),
		Compression: tfrecord.CompressionNone,
		Limit:       3,
	})
	if err != nil {
		t.Fatalf("runInspect: %v", err)
	}

	if got := strings.Count(buf.String(), "#"); got != 3 {
		t.Errorf("printed %d records; want 3", got)
	}
}

func TestRunInspect_UnknownTokens(t *testing.T) {
	outDir := generateFixture(t, 20)

	tokens := vocab.New("unk")
	tokens.Ingest([]string{"dog"})
	labels := vocab.New("O")

	var buf bytes.Buffer
	err := runInspect(&buf, inspectOptions{
		Path:   filepath.Join(outDir, "dev.tfrecords"),
		Limit:  1,
		Tokens: tokens,
		Labels: labels,
	})
	if err != nil {
		t.Fatalf("runInspect: %v", err)
	}

	if !strings.Contains(buf.String(), "tokens=[0 1 0] labels=[0 0 0]") {
		t.Errorf("inspect output = %q", buf.String())
	}
}

func TestRunInspect_MissingFile(t *testing.T) {
	err := runInspect(&bytes.Buffer{}, inspectOptions{Path: filepath.Join(t.TempDir(), "nope.tfrecords")})
	if err == nil {
		t.Fatal("runInspect should fail on a missing file")
	}
}
