package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/agent-dash/internal/app/targeting"
	"github.com/PabloGalante/agent-dash/internal/domain"
)

// Preview bounds for the analysis request.
const (
	PreviewLines = 10
	PreviewChars = 8000
)

const analystSystemPrompt = `
You are a data analyst expert. You inspect previews of uploaded data files and describe
what they contain. You answer with a single JSON object and nothing else.
`

const analysisInstructions = `
Based on the actual file content above, provide a detailed analysis in this exact JSON format:
{
  "summary": "Detailed summary describing what this specific data contains",
  "columns": ["actual", "column", "names", "from", "the", "data"],
  "rowCount": 123,
  "suggestions": ["specific visualization suggestions based on this data"],
  "keyInsights": ["specific insights from this actual data", "patterns found", "trends identified"]
}

IMPORTANT:
- Extract actual column names from the data preview
- Provide insights specific to this data, not generic ones
- Estimate row count based on file size and content
- Suggest visualizations that make sense for this specific dataset

Return only valid JSON without any markdown formatting.
`

const developerSystemPrompt = `
You are an expert web developer who builds complete, self-contained, interactive HTML dashboards.
You always return one complete HTML document starting with <!DOCTYPE html> and nothing else:
no markdown fences, no explanations.
`

const editorSystemPrompt = `
You are an expert web developer editing an existing HTML dashboard. You make the smallest change
that satisfies the request and return the complete updated HTML document and nothing else:
no markdown fences, no explanations.
`

func contractInstructions() string {
	return fmt.Sprintf(`
STRUCTURAL CONTRACT (mandatory):
1. Inside <head>, include exactly these two tags, filling in a short title and a one-sentence description:
   <meta name="%s" content="...">
   <meta name="%s" content="...">
2. As the last element inside <body>, include this script block verbatim, unchanged:
%s
`, TitleMarker, DescriptionMarker, targeting.Script)
}

func buildAnalysisPrompt(files []domain.UploadedFile) domain.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %d data file(s) in detail:\n", len(files))
	for i, f := range files {
		fmt.Fprintf(&b, "\nFILE %d: %s (%s, %d bytes)\nContent Preview:\n%s\n",
			i+1, f.Name, f.MimeType, f.SizeBytes, filePreview(f))
	}
	b.WriteString(analysisInstructions)

	return domain.Prompt{
		System: analystSystemPrompt,
		User:   b.String(),
		JSON:   true,
	}
}

// filePreview returns the first PreviewLines lines of the first
// PreviewChars characters of a text file.
func filePreview(f domain.UploadedFile) string {
	if !utf8.Valid(f.RawContent) {
		return "Binary content"
	}
	content := string(f.RawContent)
	if utf8.RuneCountInString(content) > PreviewChars {
		content = string([]rune(content)[:PreviewChars])
	}
	lines := strings.Split(content, "\n")
	if len(lines) > PreviewLines {
		lines = lines[:PreviewLines]
	}
	return strings.Join(lines, "\n")
}

type datasetPayload struct {
	File    string             `json:"file"`
	Kind    domain.RecordsKind `json:"kind"`
	Columns []string           `json:"columns,omitempty"`
	Rows    []map[string]any   `json:"rows"`
}

// recordsJSON serializes every decoded record set, skipping files that
// could not be decoded.
func recordsJSON(files []domain.UploadedFile) (string, error) {
	sets := make([]datasetPayload, 0, len(files))
	for _, f := range files {
		if f.Records.Kind == domain.RecordsUnsupported || f.Records.Kind == "" {
			continue
		}
		rows := f.Records.Rows
		if rows == nil {
			rows = []map[string]any{}
		}
		sets = append(sets, datasetPayload{
			File:    f.Name,
			Kind:    f.Records.Kind,
			Columns: f.Records.Columns,
			Rows:    rows,
		})
	}
	data, err := json.Marshal(sets)
	if err != nil {
		return "", fmt.Errorf("encode records: %w", err)
	}
	return string(data), nil
}

func buildSynthesisPrompt(analysis domain.DataAnalysis, scope domain.Scope, brief, data string) domain.Prompt {
	var b strings.Builder

	b.WriteString("Create a complete, functional HTML dashboard for the following data.\n\n")
	b.WriteString("DATA ANALYSIS:\n")
	fmt.Fprintf(&b, "- Summary: %s\n", analysis.Summary)
	fmt.Fprintf(&b, "- Columns: %s\n", strings.Join(analysis.Columns, ", "))
	fmt.Fprintf(&b, "- Row Count: %d\n", analysis.RowCountEstimate)
	fmt.Fprintf(&b, "- Key Insights: %s\n", strings.Join(analysis.KeyInsights, " | "))
	fmt.Fprintf(&b, "- Suggestions: %s\n\n", strings.Join(analysis.Suggestions, " | "))

	if scope == domain.ScopeInsights {
		b.WriteString("DATA SCOPE: Focus ONLY on the key insights above. Build 3-4 KPI cards and 2-3 focused charts.\n\n")
	} else {
		b.WriteString("DATA SCOPE: Use ALL available data columns. Build 4-6 KPI cards, 3-4 different chart types and a data table.\n\n")
	}

	b.WriteString("USER DESIGN BRIEF (follow it faithfully):\n")
	b.WriteString(brief)
	b.WriteString("\n\n")

	b.WriteString("DATA: the dashboard must read every figure from this record set. Embed it verbatim as\n")
	b.WriteString("<script>const DASHBOARD_DATA = ...;</script> and compute charts, KPIs and tables from it:\n")
	b.WriteString(data)
	b.WriteString("\n")

	b.WriteString(`
REQUIREMENTS:
- Use ApexCharts from a CDN for all charts
- Responsive grid layout, professional typography
- Include search and filter controls where they make sense
- Give important containers a stable id attribute
`)
	b.WriteString(contractInstructions())

	return domain.Prompt{
		System: developerSystemPrompt,
		User:   b.String(),
	}
}

func buildEditPrompt(document string, ref domain.ElementRef, request string) domain.Prompt {
	var b strings.Builder

	b.WriteString("TARGET ELEMENT:\n")
	fmt.Fprintf(&b, "- Selector: %s\n", ref.Selector)
	fmt.Fprintf(&b, "- Tag: %s\n", ref.TagName)
	if ref.ID != "" {
		fmt.Fprintf(&b, "- Id: %s\n", ref.ID)
	}
	if ref.ClassNames != "" {
		fmt.Fprintf(&b, "- Classes: %s\n", ref.ClassNames)
	}
	if ref.InnerTextPreview != "" {
		fmt.Fprintf(&b, "- Text preview: %q\n", ref.InnerTextPreview)
	}

	b.WriteString("\nREQUESTED CHANGE:\n")
	b.WriteString(request)
	b.WriteString("\n\n")

	b.WriteString(`RULES:
- Change ONLY the target element's subtree and the styles or script that directly relate to it
- Everything else in the document must stay exactly as it is
- Keep the dashboard metadata meta tags and the element targeting script unchanged
- Return the complete updated document
`)

	b.WriteString("\nCURRENT DOCUMENT:\n")
	b.WriteString(document)

	return domain.Prompt{
		System: editorSystemPrompt,
		User:   b.String(),
	}
}

func buildRevisePrompt(document string, analysis *domain.DataAnalysis, request string) domain.Prompt {
	var b strings.Builder

	b.WriteString("The user wants to modify their existing dashboard.\n\n")
	b.WriteString("REQUESTED CHANGE:\n")
	b.WriteString(request)
	b.WriteString("\n\n")

	if analysis != nil {
		if data, err := json.MarshalIndent(analysis, "", "  "); err == nil {
			b.WriteString("DATA ANALYSIS:\n")
			b.Write(data)
			b.WriteString("\n\n")
		}
	}

	b.WriteString(`RULES:
- Maintain all existing functionality while adding the requested modifications
- Keep the dashboard metadata meta tags (update their content if the change warrants it)
- Keep the element targeting script unchanged at the end of <body>
- Return the complete updated document
`)

	b.WriteString("\nCURRENT DOCUMENT:\n")
	b.WriteString(document)

	return domain.Prompt{
		System: editorSystemPrompt,
		User:   b.String(),
	}
}
