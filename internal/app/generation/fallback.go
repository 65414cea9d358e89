package generation

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/agent-dash/internal/app/targeting"
	"github.com/PabloGalante/agent-dash/internal/domain"
)

var headerDelimiters = []string{",", ";", "\t"}

// FallbackAnalysis derives a DataAnalysis from the raw files alone. It is
// deterministic and never fails for a non-empty batch.
func FallbackAnalysis(files []domain.UploadedFile) domain.DataAnalysis {
	var (
		columns []string
		rows    int
		size    int64
	)

	for _, f := range files {
		size += f.SizeBytes
		if f.Records.Kind == domain.RecordsJSON {
			if len(f.Records.Columns) > 0 {
				columns = append([]string(nil), f.Records.Columns...)
			}
			rows += len(f.Records.Rows)
			continue
		}
		if !utf8.Valid(f.RawContent) {
			continue
		}
		text := string(f.RawContent)
		lines := nonEmptyLines(text)
		if len(lines) == 0 {
			continue
		}
		first, _, _ := strings.Cut(text, "\n")
		if header := SniffHeader(first); len(header) > 0 {
			columns = header
		}
		rows += len(lines) - 1
	}

	if len(columns) == 0 {
		columns = defaultColumns(files)
	}
	if rows == 0 {
		rows = int(size / 50)
	}

	kind := "business"
	if strings.Contains(strings.ToLower(columns[0]), "customer") {
		kind = "customer and business"
	}

	shape := "categorical"
	for _, c := range columns {
		if strings.Contains(strings.ToLower(c), "date") {
			shape = "time-series"
			break
		}
	}
	scale := "medium-scale"
	if rows > 1000 {
		scale = "large-scale"
	}

	return domain.DataAnalysis{
		Summary: fmt.Sprintf("Analyzed %d file(s) containing %s data with approximately %d records across %d columns.",
			len(files), kind, rows, len(columns)),
		Columns:          columns,
		RowCountEstimate: rows,
		Suggestions: []string{
			fmt.Sprintf("Create visualizations for %s analysis", strings.Join(head(columns, 3), ", ")),
			"Build distribution charts for categorical data",
			"Add trend analysis for time-based columns",
			"Include filtering and search capabilities",
		},
		KeyInsights: []string{
			fmt.Sprintf("Dataset contains %d records with %d data points each", rows, len(columns)),
			fmt.Sprintf("Primary data categories include: %s", strings.Join(head(columns, 4), ", ")),
			fmt.Sprintf("Data structure suggests %s analysis opportunities", shape),
			fmt.Sprintf("File size indicates %s dataset suitable for comprehensive analysis", scale),
		},
	}
}

// SniffHeader splits a delimiter-separated header line into column names,
// trimming whitespace and surrounding quotes. It returns nil when the line
// has no known delimiter.
func SniffHeader(line string) []string {
	line = strings.TrimPrefix(strings.TrimSpace(line), "\ufeff")
	delim, best := "", 0
	for _, d := range headerDelimiters {
		if n := strings.Count(line, d); n > best {
			delim, best = d, n
		}
	}
	if delim == "" {
		return nil
	}

	parts := strings.Split(line, delim)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(strings.Trim(strings.TrimSpace(p), `"'`)))
	}
	return out
}

func defaultColumns(files []domain.UploadedFile) []string {
	if len(files) > 0 && strings.Contains(strings.ToLower(files[0].Name), "customer") {
		return []string{"Customer ID", "First Name", "Last Name", "Email", "Company", "Country", "Subscription Date"}
	}
	return []string{"ID", "Name", "Category", "Value", "Date", "Status"}
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

const fallbackTitle = "Data Overview Dashboard"

var fallbackTmpl = template.Must(template.New("fallback").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
{{.Meta}}
<title>{{.Title}}</title>
<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
body { font-family: 'Inter', -apple-system, BlinkMacSystemFont, sans-serif; background: #f8fafc; color: #1f2937; }
.container { max-width: 1200px; margin: 0 auto; padding: 20px; }
.header, .panel, .kpi-card { background: #fff; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
.header { padding: 20px; margin-bottom: 20px; }
.header p { color: #6b7280; margin-top: 8px; }
.kpi-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 20px; margin-bottom: 20px; }
.kpi-card { padding: 20px; }
.kpi-value { font-size: 2rem; font-weight: bold; }
.kpi-label { color: #6b7280; font-size: 0.875rem; margin-top: 4px; }
.columns { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; margin-bottom: 20px; }
.panel { padding: 20px; }
.panel h2 { font-size: 1.125rem; margin-bottom: 12px; }
.panel li { margin: 6px 0 6px 18px; }
table { width: 100%; border-collapse: collapse; }
th, td { padding: 10px; text-align: left; border-bottom: 1px solid #e5e7eb; }
th { background: #f9fafb; color: #374151; }
</style>
</head>
<body>
<div class="container">
  <div class="header" id="dashboard-header">
    <h1>{{.Title}}</h1>
    <p>{{.Analysis.Summary}}</p>
  </div>
  <div class="kpi-grid">
    <div class="kpi-card" id="kpi-records"><div class="kpi-value">{{.Analysis.RowCountEstimate}}</div><div class="kpi-label">Total Records</div></div>
    <div class="kpi-card" id="kpi-columns"><div class="kpi-value">{{len .Analysis.Columns}}</div><div class="kpi-label">Data Columns</div></div>
    <div class="kpi-card" id="kpi-insights"><div class="kpi-value">{{len .Analysis.KeyInsights}}</div><div class="kpi-label">Key Insights</div></div>
  </div>
  <div class="columns">
    <div class="panel" id="insights">
      <h2>Key Insights</h2>
      <ul>{{range .Analysis.KeyInsights}}<li>{{.}}</li>{{end}}</ul>
    </div>
    <div class="panel" id="suggestions">
      <h2>Suggested Views</h2>
      <ul>{{range .Analysis.Suggestions}}<li>{{.}}</li>{{end}}</ul>
    </div>
  </div>
  <div class="panel" id="schema">
    <h2>Columns</h2>
    <table>
      <thead><tr><th>#</th><th>Column</th></tr></thead>
      <tbody>{{range $i, $c := .Analysis.Columns}}<tr><td>{{inc $i}}</td><td>{{$c}}</td></tr>{{end}}</tbody>
    </table>
  </div>
</div>
{{.Script}}
</body>
</html>
`))

// FallbackDocument renders a deterministic dashboard from the analysis
// fields only.
func FallbackDocument(analysis domain.DataAnalysis) domain.GeneratedDocument {
	description := strings.TrimSpace(analysis.Summary)
	if description == "" {
		description = domain.FallbackDescription
	}

	var buf bytes.Buffer
	err := fallbackTmpl.Execute(&buf, struct {
		Meta     template.HTML
		Script   template.HTML
		Title    string
		Analysis domain.DataAnalysis
	}{
		Meta:     template.HTML(MetaTags(fallbackTitle, description)),
		Script:   template.HTML(targeting.Script),
		Title:    fallbackTitle,
		Analysis: analysis,
	})
	if err != nil {
		// The template is fixed; this only trips on a programming error.
		panic(fmt.Sprintf("render fallback dashboard: %v", err))
	}

	return domain.GeneratedDocument{
		Kind:        domain.DocumentFallback,
		Body:        buf.String(),
		Title:       fallbackTitle,
		Description: description,
	}
}
