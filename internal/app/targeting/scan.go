package targeting

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Landmarks are byte offsets into a document, -1 when absent. Offsets come
// from the tokenizer's raw token lengths, so slicing the original string at
// them never splits a rune.
type Landmarks struct {
	// Root is where the html doctype or the opening html tag starts.
	Root int
	// BodyEnd and HTMLEnd are where the last closing body and html tags start.
	BodyEnd int
	HTMLEnd int
	// HTMLEndLen is the byte length of the last closing html tag.
	HTMLEndLen int
}

// Scan tokenizes document and records its structural landmarks. Tags inside
// scripts, styles and comments are not landmarks.
func Scan(document string) Landmarks {
	lm := Landmarks{Root: -1, BodyEnd: -1, HTMLEnd: -1}

	z := html.NewTokenizer(strings.NewReader(document))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return lm
		}
		size := len(z.Raw())

		switch tt {
		case html.DoctypeToken:
			fields := strings.Fields(string(z.Text()))
			if lm.Root < 0 && len(fields) > 0 && strings.EqualFold(fields[0], "html") {
				lm.Root = offset
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if lm.Root < 0 && atom.Lookup(name) == atom.Html {
				lm.Root = offset
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Body:
				lm.BodyEnd = offset
			case atom.Html:
				lm.HTMLEnd = offset
				lm.HTMLEndLen = size
			}
		}
		offset += size
	}
}
