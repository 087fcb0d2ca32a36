// Package output writes posting report sets for downstream consumers.
package output

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/jobsift/internal/posting"
	"github.com/jmylchreest/jobsift/internal/snapshot"
)

// Format represents output format types.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatJSONL, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// Writer serializes postings in report order.
type Writer interface {
	// Write adds a single posting.
	Write(p posting.Posting) error

	// WriteAll adds postings in order.
	WriteAll(ps []posting.Posting) error

	// Flush ensures all data is written.
	Flush() error

	// Close releases resources.
	Close() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty bool
	indent string
}

// WithPretty enables pretty-printing.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		pretty: true,
		indent: "  ",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatJSON:
		return NewJSONWriter(w, cfg.pretty, cfg.indent), nil
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// ReportName returns the file name of a named report in format f, e.g.
// "added_postings.json".
func ReportName(kind string, f Format) string {
	return fmt.Sprintf("%s_postings.%s", kind, f.Ext())
}

// WriteReport renders postings into dir/<kind>_postings.<ext>, replacing any
// previous report atomically. It returns the written path.
func WriteReport(dir, kind string, f Format, ps []posting.Posting, opts ...WriterOption) (string, error) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, f, opts...)
	if err != nil {
		return "", err
	}
	if err := w.WriteAll(ps); err != nil {
		return "", fmt.Errorf("render %s report: %w", kind, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("render %s report: %w", kind, err)
	}
	path := filepath.Join(dir, ReportName(kind, f))
	if err := snapshot.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}
