package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/jobsift/internal/posting"
)

// YAMLWriter writes postings as a YAML sequence.
type YAMLWriter struct {
	w     *bufio.Writer
	items []posting.Posting
	done  bool
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{
		w:     bufio.NewWriter(w),
		items: make([]posting.Posting, 0),
	}
}

// Write buffers a single posting.
func (w *YAMLWriter) Write(p posting.Posting) error {
	w.items = append(w.items, p)
	w.done = false
	return nil
}

// WriteAll buffers postings.
func (w *YAMLWriter) WriteAll(ps []posting.Posting) error {
	w.items = append(w.items, ps...)
	w.done = false
	return nil
}

// Flush writes the buffered postings as YAML.
func (w *YAMLWriter) Flush() error {
	encoder := yaml.NewEncoder(w.w)
	encoder.SetIndent(2)
	if err := encoder.Encode(w.items); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	w.items = w.items[:0]
	w.done = true
	return w.w.Flush()
}

// Close flushes anything not yet flushed.
func (w *YAMLWriter) Close() error {
	if w.done {
		return nil
	}
	return w.Flush()
}
