package targeting

import (
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

// MaxPreviewRunes bounds ElementRef.InnerTextPreview.
const MaxPreviewRunes = 200

// IsPseudoStateClass reports utility classes that only apply in a state
// (hover:, focus:, md: ...) and therefore do not address an element.
func IsPseudoStateClass(class string) bool {
	return strings.Contains(class, ":") || strings.Contains(class, "hover")
}

// DeriveSelector builds the selector the targeting script would produce:
// "#id" when the element has an id, otherwise the lowercase tag name
// followed by its stable class names.
func DeriveSelector(tagName, id string, classes []string) string {
	if id != "" {
		return "#" + id
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(tagName))
	for _, c := range classes {
		if c == "" || c == SelectedClass || IsPseudoStateClass(c) {
			continue
		}
		b.WriteByte('.')
		b.WriteString(c)
	}
	return b.String()
}

// Normalize fills a missing selector and bounds the text preview.
func Normalize(ref domain.ElementRef) domain.ElementRef {
	ref.ID = strings.TrimSpace(ref.ID)
	ref.ClassNames = strings.TrimSpace(ref.ClassNames)
	if strings.TrimSpace(ref.Selector) == "" {
		ref.Selector = DeriveSelector(ref.TagName, ref.ID, strings.Fields(ref.ClassNames))
	}
	ref.InnerTextPreview = truncateRunes(ref.InnerTextPreview, MaxPreviewRunes)
	return ref
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
