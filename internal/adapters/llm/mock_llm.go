package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

// MockLLM is an offline GenerationBackend for local runs. Its answers are
// deterministic and follow the same response contracts as the real models.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

var (
	briefRe   = regexp.MustCompile(`(?s)USER DESIGN BRIEF \(follow it faithfully\):\n(.*?)\n\n`)
	previewRe = regexp.MustCompile(`(?s)Content Preview:\n([^\n]*)`)
)

func (m *MockLLM) Generate(_ context.Context, model domain.ModelKind, prompt domain.Prompt) (string, error) {
	if model == domain.ModelReasoning {
		return m.analysis(prompt.User), nil
	}
	if i := strings.Index(prompt.User, "CURRENT DOCUMENT:\n"); i >= 0 {
		doc := prompt.User[i+len("CURRENT DOCUMENT:\n"):]
		return strings.Replace(doc, "</body>", "<!-- revised by mock -->\n</body>", 1), nil
	}
	return m.dashboard(prompt.User), nil
}

func (m *MockLLM) analysis(user string) string {
	columns := []string{"value"}
	if match := previewRe.FindStringSubmatch(user); match != nil && strings.Contains(match[1], ",") {
		columns = strings.Split(match[1], ",")
		for i := range columns {
			columns[i] = strings.Trim(strings.TrimSpace(columns[i]), `"`)
		}
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf(`Here is the analysis you asked for:
{"summary":"Mock analysis of the uploaded data","columns":[%s],"rowCount":10,"suggestions":["Bar chart of %s"],"keyInsights":["%d columns detected"]}`,
		strings.Join(quoted, ","), columns[0], len(columns))
}

func (m *MockLLM) dashboard(user string) string {
	brief := "Mock dashboard"
	if match := briefRe.FindStringSubmatch(user); match != nil {
		brief = strings.TrimSpace(match[1])
	}
	b := html.EscapeString(brief)
	return `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="dashboard-title" content="Mock Dashboard">
<meta name="dashboard-description" content="` + b + `">
<title>Mock Dashboard</title>
</head>
<body>
<h1 id="title">Mock Dashboard</h1>
<p class="brief">` + b + `</p>
</body>
</html>`
}
