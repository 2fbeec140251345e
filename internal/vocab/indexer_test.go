package vocab

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var sentenceTokens = []string{"the", "quick", "brown", "fox", "jumps", "over", "the", "lazy", "dog", "."}

var sentenceLabels = []string{"O", "B-ORG", "I-ORG", "I-ORG", "O", "O", "O", "B-PER", "I-PER", "O"}

func extractWords(s string) []string { return strings.Fields(s) }

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

func TestIngest_Tokens(t *testing.T) {
	ix := New("unk")

	got := ix.Ingest(sentenceTokens)
	want := []int{1, 2, 3, 4, 5, 6, 1, 7, 8, 9}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Ingest mismatch (-want +got):\n%s", diff)
	}

	if ix.Len() != 10 {
		t.Errorf("Len() = %d; want 10", ix.Len())
	}
}

func TestIngest_LabelsWithUnknownO(t *testing.T) {
	ix := New("O")

	got := ix.Ingest(sentenceLabels)
	want := []int{0, 1, 2, 2, 0, 0, 0, 3, 4, 0}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Ingest mismatch (-want +got):\n%s", diff)
	}

	if ix.Len() != 5 {
		t.Errorf("Len() = %d; want 5", ix.Len())
	}
}

func TestIngest_KnownTokenKeepsFirstID(t *testing.T) {
	ix := New("unk")
	first := ix.Ingest([]string{"a", "b", "c"})
	again := ix.Ingest([]string{"c", "b", "a", "d"})

	if diff := cmp.Diff([]int{1, 2, 3}, first); diff != "" {
		t.Errorf("first Ingest mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]int{3, 2, 1, 4}, again); diff != "" {
		t.Errorf("second Ingest mismatch (-want +got):\n%s", diff)
	}
}

func TestIngest_UnknownTokenIsZero(t *testing.T) {
	ix := New("unk")

	if got := ix.Ingest([]string{"unk", "x", "unk"}); !cmp.Equal(got, []int{0, 1, 0}) {
		t.Errorf("Ingest = %v; want [0 1 0]", got)
	}
}

func TestIngest_Empty(t *testing.T) {
	ix := New("unk")

	if got := ix.Ingest(nil); len(got) != 0 {
		t.Errorf("Ingest(nil) = %v; want empty", got)
	}
	if ix.Len() != 1 {
		t.Errorf("Len() = %d; want 1", ix.Len())
	}
}

func TestExtractAndIngest(t *testing.T) {
	ix := New("unk")

	got := ix.ExtractAndIngest("a b a c", extractWords)
	if diff := cmp.Diff([]int{1, 2, 1, 3}, got); diff != "" {
		t.Errorf("ExtractAndIngest mismatch (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// LookupIDs
// ---------------------------------------------------------------------------

func TestLookupIDs_UnseenResolveToUnknown(t *testing.T) {
	ix := New("unk")
	ix.Ingest(sentenceTokens)

	words := strings.Fields("sometimes life is going to hit you in the head with a brick .")
	got := ix.LookupIDs(words)
	want := []int{0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 9}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LookupIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupIDs_DoesNotMutate(t *testing.T) {
	ix := New("unk")
	ix.Ingest([]string{"a"})

	if got := ix.LookupIDs([]string{"b"}); !cmp.Equal(got, []int{0}) {
		t.Fatalf("LookupIDs([b]) = %v; want [0]", got)
	}
	if ix.Len() != 2 {
		t.Fatalf("Len() after lookup = %d; want 2", ix.Len())
	}

	if got := ix.Ingest([]string{"b"}); !cmp.Equal(got, []int{2}) {
		t.Errorf("Ingest([b]) after lookup = %v; want [2]", got)
	}
}

// ---------------------------------------------------------------------------
// LookupTokens
// ---------------------------------------------------------------------------

func TestLookupTokens_RoundTrip(t *testing.T) {
	ix := New("unk")
	in := []string{"alpha", "beta", "gamma"}

	ids := ix.Ingest(in)
	if got := ix.LookupTokens(ids); !cmp.Equal(got, in) {
		t.Errorf("LookupTokens(%v) = %v; want %v", ids, got, in)
	}

	if got := ix.LookupIDs(ix.LookupTokens(ids)); !cmp.Equal(got, ids) {
		t.Errorf("id->token->id = %v; want %v", got, ids)
	}
}

func TestLookupTokens_FallbackFirst(t *testing.T) {
	ix := New("unk")
	ix.Ingest([]string{"first", "second"})

	got := ix.LookupTokens([]int{0, 2, 99, -1})
	want := []string{"unk", "second", "first", "first"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LookupTokens mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupTokens_FallbackUnknown(t *testing.T) {
	ix := New("unk", WithFallback(FallbackUnknown))
	ix.Ingest([]string{"first"})

	got := ix.LookupTokens([]int{1, 42})
	want := []string{"first", "unk"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LookupTokens mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupTokens_FallbackFirstWithoutIngest(t *testing.T) {
	ix := New("unk")

	if got := ix.LookupTokens([]int{7}); !cmp.Equal(got, []string{"unk"}) {
		t.Errorf("LookupTokens([7]) = %v; want [unk]", got)
	}
}

func TestParseFallback(t *testing.T) {
	tests := []struct {
		in      string
		want    Fallback
		wantErr bool
	}{
		{"", FallbackFirst, false},
		{"first", FallbackFirst, false},
		{"unknown", FallbackUnknown, false},
		{"zero", FallbackFirst, true},
	}

	for _, tt := range tests {
		got, err := ParseFallback(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFallback(%q) error = %v; wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFallback(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Vocabulary files
// ---------------------------------------------------------------------------

func TestWriteTo_OrderedByID(t *testing.T) {
	ix := New("O")
	ix.Ingest(sentenceLabels)

	var buf bytes.Buffer

	n, err := ix.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	want := "O\nB-ORG\nI-ORG\nB-PER\nI-PER\n"
	if buf.String() != want {
		t.Errorf("WriteTo wrote %q; want %q", buf.String(), want)
	}
	if n != int64(len(want)) {
		t.Errorf("WriteTo returned %d; want %d", n, len(want))
	}
}

func TestRead_RebuildsIndexer(t *testing.T) {
	src := New("unk")
	src.Ingest(sentenceTokens)

	var buf bytes.Buffer
	if _, err := src.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if diff := cmp.Diff(src.Vocabulary(), got.Vocabulary()); diff != "" {
		t.Errorf("vocabulary mismatch (-want +got):\n%s", diff)
	}
	if got.Unknown() != "unk" {
		t.Errorf("Unknown() = %q; want unk", got.Unknown())
	}
	if ids := got.LookupIDs([]string{"fox"}); ids[0] != 4 {
		t.Errorf("LookupIDs([fox]) = %v; want [4]", ids)
	}
}

func TestRead_Empty(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	if !errors.Is(err, ErrEmptyVocabulary) {
		t.Errorf("Read(empty) error = %v; want ErrEmptyVocabulary", err)
	}
}

func TestRead_Duplicate(t *testing.T) {
	if _, err := Read(strings.NewReader("unk\na\na\n")); err == nil {
		t.Error("Read with duplicate token should fail")
	}
}
