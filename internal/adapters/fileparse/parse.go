// Package fileparse decodes uploaded files into tagged record sets.
package fileparse

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

// Parse decodes content by extension first, then by MIME type. Content that
// does not decode is returned as RecordsUnsupported; parsing never fails.
func Parse(name, mimeType string, content []byte) domain.Records {
	switch detect(name, mimeType) {
	case domain.RecordsCSV:
		if rec, ok := parseDelimited(content, delimiterFor(name)); ok {
			return rec
		}
	case domain.RecordsJSON:
		if rec, ok := parseJSON(content); ok {
			return rec
		}
	}
	return domain.Records{Kind: domain.RecordsUnsupported}
}

func detect(name, mimeType string) domain.RecordsKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv":
		return domain.RecordsCSV
	case ".json":
		return domain.RecordsJSON
	}
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "csv"), strings.Contains(mt, "tab-separated"):
		return domain.RecordsCSV
	case strings.Contains(mt, "json"):
		return domain.RecordsJSON
	}
	return domain.RecordsUnsupported
}

func delimiterFor(name string) rune {
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		return '\t'
	}
	return ','
}

func parseDelimited(content []byte, delim rune) (domain.Records, bool) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return domain.Records{}, false
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := []map[string]any{}
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.Records{}, false
		}
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(fields) {
				row[col] = fields[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return domain.Records{Kind: domain.RecordsCSV, Columns: header, Rows: rows}, true
}

func parseJSON(content []byte) (domain.Records, bool) {
	var v any
	if err := json.Unmarshal(content, &v); err != nil {
		return domain.Records{}, false
	}

	var rows []map[string]any
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			obj, ok := item.(map[string]any)
			if !ok {
				return domain.Records{}, false
			}
			rows = append(rows, obj)
		}
	case map[string]any:
		rows = []map[string]any{t}
	default:
		return domain.Records{}, false
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return domain.Records{Kind: domain.RecordsJSON, Columns: columnsOf(rows), Rows: rows}, true
}

// columnsOf lists keys in first-seen row order, each row's keys sorted.
func columnsOf(rows []map[string]any) []string {
	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
