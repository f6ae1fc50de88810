package scenario

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
)

func TestFormatForPath(t *testing.T) {
	cases := map[string]Format{
		"input.txt":          FormatNotes,
		"scenario.json":      FormatJSON,
		"scenario.JSON.zst":  FormatJSON,
		"notes.zst":          FormatNotes,
		"dir.json/notes.txt": FormatNotes,
	}
	for path, want := range cases {
		if got := FormatForPath(path); got != want {
			t.Fatalf("FormatForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoadFileFormats(t *testing.T) {
	dir := t.TempDir()

	notesPath := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(notesPath, []byte(CanonicalNotes), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	var jsonBuf bytes.Buffer
	if err := EncodeJSON(&jsonBuf, Canonical()); err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	jsonPath := filepath.Join(dir, "scenario.json")
	if err := os.WriteFile(jsonPath, jsonBuf.Bytes(), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	compressed := enc.EncodeAll([]byte(CanonicalNotes), nil)
	_ = enc.Close()
	zstPath := filepath.Join(dir, "input.txt.zst")
	if err := os.WriteFile(zstPath, compressed, 0o644); err != nil {
		t.Fatalf("write zst: %v", err)
	}

	for _, path := range []string{notesPath, jsonPath, zstPath} {
		specs, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", filepath.Base(path), err)
		}
		if diff := cmp.Diff(Canonical(), specs); diff != "" {
			t.Fatalf("LoadFile(%s) mismatch (-want +got):\n%s", filepath.Base(path), diff)
		}
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil || !strings.Contains(err.Error(), "open") {
		t.Fatalf("LoadFile(missing) error = %v, want open error", err)
	}
}

func TestDecodeInline(t *testing.T) {
	var doc bytes.Buffer
	if err := EncodeJSON(&doc, Canonical()); err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}

	fromDoc, err := DecodeInline(doc.Bytes(), "not notes at all")
	if err != nil {
		t.Fatalf("DecodeInline(doc): %v", err)
	}
	fromNotes, err := DecodeInline(nil, CanonicalNotes)
	if err != nil {
		t.Fatalf("DecodeInline(notes): %v", err)
	}
	if diff := cmp.Diff(fromDoc, fromNotes); diff != "" {
		t.Fatalf("doc and notes decode differently (-doc +notes):\n%s", diff)
	}

	for _, doc := range [][]byte{nil, []byte("  "), []byte("null")} {
		if _, err := DecodeInline(doc, " \n"); !errors.Is(err, ErrNoScenario) || !errors.Is(err, ErrInvalidScenario) {
			t.Fatalf("DecodeInline(%q, blank) = %v, want ErrNoScenario", doc, err)
		}
	}
}
