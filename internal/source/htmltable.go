package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tabular/internal/record"
)

func init() {
	Register("htmltable", newHTMLTableSource)
}

// fieldMapping describes how one record field is extracted from a record
// container element.
type fieldMapping struct {
	Name     string
	Selector string
	Extract  string // "text" or "attr"
	Attr     string
	Match    string // optional regex filter
	All      bool   // collect every match into a string array
}

// htmlTableSource extracts records from an HTML listing document. Each element
// matched by record_selector becomes one record; mappings are evaluated
// relative to that element, in mapping order, so column order is stable.
//
// Options:
//   - path             HTML file to read (required)
//   - record_selector  CSS selector for record containers (required)
//   - mappings         array of {name, selector, extract, attr, match, all}
type htmlTableSource struct {
	records  []*record.Record
	pageSize int
	offset   int
}

func newHTMLTableSource(params Params) (Source, error) {
	path := params.Options.String("path", "")
	recordSel := params.Options.String("record_selector", "")
	if path == "" || recordSel == "" {
		return nil, fmt.Errorf("htmltable source: options path and record_selector are required")
	}

	mappings, err := parseFieldMappings(params.Options.Any("mappings"))
	if err != nil {
		return nil, fmt.Errorf("htmltable source: %w", err)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("htmltable source: at least one mapping is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("htmltable source: open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("htmltable source: parse html: %w", err)
	}

	recs, err := extractHTMLRecords(doc, recordSel, mappings)
	if err != nil {
		return nil, fmt.Errorf("htmltable source: %w", err)
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = len(recs)
	}
	return &htmlTableSource{records: recs, pageSize: pageSize}, nil
}

func (s *htmlTableSource) Next(_ context.Context) ([]*record.Record, error) {
	if s.offset >= len(s.records) {
		return nil, io.EOF
	}
	end := s.offset + s.pageSize
	if end > len(s.records) {
		end = len(s.records)
	}
	batch := s.records[s.offset:end]
	s.offset = end
	return batch, nil
}

func (s *htmlTableSource) Close() error { return nil }

func parseFieldMappings(raw any) ([]fieldMapping, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("mappings must be an array")
	}

	mappings := make([]fieldMapping, 0, len(list))
	for i, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mapping %d: must be an object", i)
		}
		m := fieldMapping{
			Name:     stringField(obj, "name"),
			Selector: stringField(obj, "selector"),
			Extract:  stringField(obj, "extract"),
			Attr:     stringField(obj, "attr"),
			Match:    stringField(obj, "match"),
		}
		if b, ok := obj["all"].(bool); ok {
			m.All = b
		}
		if m.Name == "" || m.Selector == "" {
			return nil, fmt.Errorf("mapping %d: name and selector are required", i)
		}
		if m.Extract == "" {
			m.Extract = "text"
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// extractHTMLRecords iterates all record containers and extracts one record
// per container. A container yielding no values is skipped rather than
// producing an empty record.
func extractHTMLRecords(doc *goquery.Document, recordSelector string, mappings []fieldMapping) ([]*record.Record, error) {
	compiled := make([]*regexp.Regexp, len(mappings))
	for i, m := range mappings {
		if strings.TrimSpace(m.Match) == "" {
			continue
		}
		re, err := regexp.Compile(m.Match)
		if err != nil {
			return nil, fmt.Errorf("invalid regex for mapping %q: %w", m.Name, err)
		}
		compiled[i] = re
	}

	var records []*record.Record
	doc.Find(recordSelector).Each(func(_ int, root *goquery.Selection) {
		rec := record.New()
		for i, m := range mappings {
			extractMapping(root, m, compiled[i], rec)
		}
		if rec.Len() > 0 {
			records = append(records, rec)
		}
	})
	return records, nil
}

func extractMapping(root *goquery.Selection, m fieldMapping, re *regexp.Regexp, rec *record.Record) {
	if m.All {
		var vals []any
		root.Find(m.Selector).Each(func(_ int, sel *goquery.Selection) {
			if v := regexFilter(extractNode(sel, m), re); v != "" {
				vals = append(vals, v)
			}
		})
		if len(vals) > 0 {
			rec.Set(m.Name, vals)
		}
		return
	}

	sel := root.Find(m.Selector).First()
	if sel.Length() == 0 {
		return
	}
	if v := regexFilter(extractNode(sel, m), re); v != "" {
		rec.Set(m.Name, v)
	}
}

func extractNode(sel *goquery.Selection, m fieldMapping) string {
	switch m.Extract {
	case "text":
		return strings.TrimSpace(sel.Text())
	case "attr":
		if m.Attr == "" {
			return ""
		}
		if val, ok := sel.Attr(m.Attr); ok {
			return strings.TrimSpace(val)
		}
		return ""
	default:
		return ""
	}
}

// regexFilter applies an optional regex post-processing step. A non-matching
// regex yields "" so the field is omitted; a regex with capture groups yields
// group 1, otherwise the full match.
func regexFilter(value string, re *regexp.Regexp) string {
	if value == "" || re == nil {
		return value
	}
	sm := re.FindStringSubmatch(value)
	if len(sm) == 0 {
		return ""
	}
	if len(sm) > 1 {
		return sm[1]
	}
	return sm[0]
}
