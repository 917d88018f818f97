// Package keywords loads the configured keyword list and matches message
// text against it.
package keywords

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Defaults is written to a fresh keyword file on first start.
var Defaults = []string{
	"важливо",
	"терміново",
	"робота",
	"проект",
	"зустріч",
	"дедлайн",
}

type file struct {
	Keywords []string `json:"keywords"`
}

// Store reads the keyword file at path.
type Store struct {
	path string
}

// NewStore creates a Store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the keyword file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the lowercased keywords. A missing file is created with
// Defaults. Any read, parse or write failure yields an empty list together
// with the error, so callers can log it and keep running without keywords.
func (s *Store) Load() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if err := s.writeDefaults(); err != nil {
			return []string{}, err
		}
		slog.Info("created keyword file with example keywords", "path", s.path, "count", len(Defaults))
		return normalize(Defaults), nil
	}
	if err != nil {
		return []string{}, fmt.Errorf("read keywords: %w", err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return []string{}, fmt.Errorf("parse keywords %s: %w", s.path, err)
	}
	return normalize(f.Keywords), nil
}

func (s *Store) writeDefaults() error {
	data, err := json.MarshalIndent(file{Keywords: Defaults}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode default keywords: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write default keywords: %w", err)
	}
	return nil
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out = append(out, k)
	}
	return out
}
