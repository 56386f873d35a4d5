package pattern

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk pattern file layout.
//
//	include_defaults: true
//	patterns:
//	  - id: payments.card_declined
//	    category: permanent
//	    signature: {kind: substring, values: ["card declined"]}
//	    strategy: permanently_failed
//	    base_confidence: 0.9
//	    max_attempts: 1
type File struct {
	// IncludeDefaults appends the built-in patterns after the file's own.
	// File patterns with the same id replace the built-in ones.
	IncludeDefaults bool      `yaml:"include_defaults"`
	Patterns        []Pattern `yaml:"patterns"`
}

// Parse decodes a pattern file and builds a library from it.
func Parse(data []byte) (*Library, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode pattern file: %w", err)
	}
	return f.Library()
}

// LoadFile reads and parses a pattern file.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	lib, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}

// Library builds the library described by f.
func (f File) Library() (*Library, error) {
	patterns := append([]Pattern(nil), f.Patterns...)
	if f.IncludeDefaults {
		patterns = appendDefaults(patterns)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("pattern file defines no patterns")
	}
	return NewLibrary(patterns...)
}

// appendDefaults adds built-in patterns whose ids are not already taken.
func appendDefaults(patterns []Pattern) []Pattern {
	taken := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		taken[p.ID] = true
	}
	for _, p := range DefaultPatterns() {
		if !taken[p.ID] {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// Marshal renders patterns in the pattern file layout.
func Marshal(patterns []Pattern) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(File{Patterns: patterns}); err != nil {
		return nil, fmt.Errorf("encode pattern file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode pattern file: %w", err)
	}
	return buf.Bytes(), nil
}
