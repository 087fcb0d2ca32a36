package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/jmylchreest/jobsift/internal/fetch"
)

// PayloadMapping reads records from a JSON payload. Items is a gjson path to
// the item array (empty for a top-level array). When Wrapper is set each
// item must hold that path, and field paths are relative to it; items
// without it are skipped. Script selects a JSON script element when the
// payload is embedded in an HTML page.
type PayloadMapping struct {
	Items   string
	Wrapper string
	Script  string
	Fields  map[string]string
}

// NewPayloadMapping validates the field names.
func NewPayloadMapping(items, wrapper, script string, fields map[string]string) (*PayloadMapping, error) {
	if err := checkFields(fields); err != nil {
		return nil, fmt.Errorf("payload mapping: %w", err)
	}
	return &PayloadMapping{Items: items, Wrapper: wrapper, Script: script, Fields: fields}, nil
}

// Records implements Mapping.
func (m *PayloadMapping) Records(doc fetch.Document) ([]Record, int, error) {
	body, err := payload(doc.Body, m.Script)
	if err != nil {
		return nil, 0, err
	}
	items := gjson.ParseBytes(body)
	if m.Items != "" {
		items = items.Get(m.Items)
	}
	if !items.IsArray() {
		return nil, 0, fmt.Errorf("items path %q is not an array", m.Items)
	}

	var (
		records []Record
		skipped int
	)
	for _, item := range items.Array() {
		if m.Wrapper != "" {
			item = item.Get(m.Wrapper)
			if !item.Exists() {
				skipped++
				continue
			}
		}
		var r Record
		for name, path := range m.Fields {
			r.set(name, resultValues(item.Get(path)))
		}
		records = append(records, r)
	}
	return records, skipped, nil
}

// payload returns the JSON document in body, reading it out of an HTML
// script element when script is set.
func payload(body []byte, script string) ([]byte, error) {
	if script != "" {
		d, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		sel := d.Find(script).First()
		if sel.Length() == 0 {
			return nil, fmt.Errorf("no element matches %q", script)
		}
		body = []byte(sel.Text())
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json payload")
	}
	return body, nil
}

// resultValues flattens a gjson value into field values.
func resultValues(res gjson.Result) []string {
	if !res.Exists() || res.Type == gjson.Null {
		return nil
	}
	if !res.IsArray() {
		return []string{res.String()}
	}
	var out []string
	for _, v := range res.Array() {
		if v.Type != gjson.Null {
			out = append(out, v.String())
		}
	}
	return out
}
