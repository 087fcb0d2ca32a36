package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/jobsift/internal/fetch"
)

// FieldSelector locates one field inside a DOM item. An empty Selector is
// the item itself; an empty Attr reads the element text.
type FieldSelector struct {
	Selector string `mapstructure:"selector" yaml:"selector,omitempty"`
	Attr     string `mapstructure:"attr" yaml:"attr,omitempty"`
}

// DOMMapping reads records from HTML. Every element matching Items is one
// record.
type DOMMapping struct {
	Items  string
	Fields map[string]FieldSelector
}

// NewDOMMapping validates the field names.
func NewDOMMapping(items string, fields map[string]FieldSelector) (*DOMMapping, error) {
	if strings.TrimSpace(items) == "" {
		return nil, fmt.Errorf("dom mapping: items selector is required")
	}
	if err := checkFields(fields); err != nil {
		return nil, fmt.Errorf("dom mapping: %w", err)
	}
	return &DOMMapping{Items: items, Fields: fields}, nil
}

// Records implements Mapping.
func (m *DOMMapping) Records(doc fetch.Document) ([]Record, int, error) {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, 0, fmt.Errorf("parse html: %w", err)
	}
	var records []Record
	d.Find(m.Items).Each(func(_ int, item *goquery.Selection) {
		var r Record
		for name, fs := range m.Fields {
			r.set(name, fs.values(item))
		}
		records = append(records, r)
	})
	return records, 0, nil
}

func (fs FieldSelector) values(item *goquery.Selection) []string {
	sel := item
	if fs.Selector != "" {
		sel = item.Find(fs.Selector)
	}
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if fs.Attr == "" {
			out = append(out, clean(s.Text()))
			return
		}
		if v, ok := s.Attr(fs.Attr); ok {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}
