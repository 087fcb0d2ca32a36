package output

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/jmylchreest/jobsift/internal/posting"
)

// JSONWriter writes postings as one JSON array.
type JSONWriter struct {
	w      *bufio.Writer
	pretty bool
	indent string
	items  []posting.Posting
	done   bool
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{
		w:      bufio.NewWriter(w),
		pretty: pretty,
		indent: indent,
		items:  make([]posting.Posting, 0),
	}
}

// Write buffers a single posting.
func (w *JSONWriter) Write(p posting.Posting) error {
	w.items = append(w.items, p)
	w.done = false
	return nil
}

// WriteAll buffers postings.
func (w *JSONWriter) WriteAll(ps []posting.Posting) error {
	w.items = append(w.items, ps...)
	w.done = false
	return nil
}

// Flush writes the buffered postings as a JSON array, empty included.
func (w *JSONWriter) Flush() error {
	var (
		output []byte
		err    error
	)
	if w.pretty {
		output, err = json.MarshalIndent(w.items, "", w.indent)
	} else {
		output, err = json.Marshal(w.items)
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	w.items = w.items[:0]
	w.done = true
	return w.w.Flush()
}

// Close flushes anything not yet flushed.
func (w *JSONWriter) Close() error {
	if w.done {
		return nil
	}
	return w.Flush()
}

// JSONLWriter writes one posting per line.
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		w: bufio.NewWriter(w),
	}
}

// Write writes a single posting as a JSON line.
func (w *JSONLWriter) Write(p posting.Posting) error {
	output, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(output); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// WriteAll writes postings as JSON lines.
func (w *JSONLWriter) WriteAll(ps []posting.Posting) error {
	for _, p := range ps {
		if err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the buffer.
func (w *JSONLWriter) Flush() error {
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONLWriter) Close() error {
	return w.Flush()
}
