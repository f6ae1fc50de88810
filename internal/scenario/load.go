package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

// Format names a scenario encoding.
type Format string

const (
	FormatNotes Format = "notes"
	FormatJSON  Format = "json"
)

// FormatForPath picks a format from the file extension, ignoring a
// trailing ".zst".
func FormatForPath(path string) Format {
	path = strings.TrimSuffix(path, ".zst")
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatNotes
}

// Decode reads specs in the given format.
func Decode(r io.Reader, f Format) ([]model.AgentSpec, error) {
	switch f {
	case FormatJSON:
		return DecodeJSON(r)
	case FormatNotes, "":
		return ParseNotes(r)
	default:
		return nil, fmt.Errorf("scenario: unknown format %q", f)
	}
}

// LoadFile reads a scenario from disk. Files ending in ".zst" are
// decompressed first; ".json" (before any ".zst") selects the JSON format,
// anything else is parsed as notes.
func LoadFile(path string) ([]model.AgentSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: open %q: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("scenario: zstd %q: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}

	specs, err := Decode(r, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("scenario: load %q: %w", path, err)
	}
	return specs, nil
}

// ErrNoScenario is returned by DecodeInline when neither source is set.
var ErrNoScenario = errors.New("no scenario supplied")

// DecodeInline decodes a request-embedded scenario: doc, a JSON scenario
// document, wins over notes text.
func DecodeInline(doc []byte, notes string) ([]model.AgentSpec, error) {
	switch {
	case len(bytes.TrimSpace(doc)) > 0 && string(bytes.TrimSpace(doc)) != "null":
		return DecodeJSON(bytes.NewReader(doc))
	case strings.TrimSpace(notes) != "":
		return ParseNotes(strings.NewReader(notes))
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, ErrNoScenario)
	}
}
