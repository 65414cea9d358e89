package generation

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/PabloGalante/agent-dash/internal/app/targeting"
	"github.com/PabloGalante/agent-dash/internal/domain"
)

// Metadata markers the generated document must carry in its head.
const (
	TitleMarker       = "dashboard-title"
	DescriptionMarker = "dashboard-description"
)

// fenceRe matches a markdown code fence around the document.
var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n(.*?)```")

// MetaTags renders the two metadata markers for a document head.
func MetaTags(title, description string) string {
	return `<meta name="` + TitleMarker + `" content="` + html.EscapeString(title) + `">` + "\n" +
		`<meta name="` + DescriptionMarker + `" content="` + html.EscapeString(description) + `">`
}

// ExtractMetadata reads the title and description markers, substituting
// the fixed fallback strings when a marker is missing or empty.
func ExtractMetadata(document string) (title, description string) {
	z := html.NewTokenizer(strings.NewReader(document))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tag, hasAttr := z.TagName()
		if !hasAttr || atom.Lookup(tag) != atom.Meta {
			continue
		}

		var name, content string
		for more := true; more; {
			var key, val []byte
			key, val, more = z.TagAttr()
			switch string(key) {
			case "name":
				name = strings.ToLower(strings.TrimSpace(string(val)))
			case "content":
				content = strings.TrimSpace(string(val))
			}
		}
		switch name {
		case TitleMarker:
			if title == "" {
				title = content
			}
		case DescriptionMarker:
			if description == "" {
				description = content
			}
		}
	}
	if title == "" {
		title = domain.FallbackTitle
	}
	if description == "" {
		description = domain.FallbackDescription
	}
	return title, description
}

// CleanDocument isolates the HTML document in a raw backend response:
// markdown fences and surrounding prose are dropped and the targeting
// script is injected when the backend left it out.
func CleanDocument(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil && targeting.Scan(m[1]).Root >= 0 {
		text = strings.TrimSpace(m[1])
	}

	lm := targeting.Scan(text)
	if lm.Root < 0 || lm.HTMLEnd < lm.Root {
		return "", domain.ErrMalformedDocument
	}
	text = text[lm.Root : lm.HTMLEnd+lm.HTMLEndLen]

	return targeting.EnsureScript(text), nil
}
