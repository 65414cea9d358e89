package generation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/agent-dash/internal/app/targeting"
	"github.com/PabloGalante/agent-dash/internal/domain"
)

func TestExtractMetadata(t *testing.T) {
	doc := `<html><head>
<meta charset="utf-8">
<meta content="Quarterly &amp; yearly revenue" name="dashboard-description">
<meta name="dashboard-title" content='Revenue "Pulse"'>
</head><body></body></html>`

	title, description := ExtractMetadata(doc)
	assert.Equal(t, `Revenue "Pulse"`, title)
	assert.Equal(t, "Quarterly & yearly revenue", description)
}

func TestExtractMetadataFallbacks(t *testing.T) {
	title, description := ExtractMetadata("<html><head><title>x</title></head></html>")
	assert.Equal(t, domain.FallbackTitle, title)
	assert.Equal(t, domain.FallbackDescription, description)

	title, _ = ExtractMetadata(`<meta name="dashboard-title" content="  ">`)
	assert.Equal(t, "Untitled Dashboard", title)
}

func TestMetaTagsRoundTrip(t *testing.T) {
	title, description := ExtractMetadata(MetaTags(`A <b> & "c"`, "d'e"))
	assert.Equal(t, `A <b> & "c"`, title)
	assert.Equal(t, "d'e", description)
}

func TestCleanDocumentStripsNoise(t *testing.T) {
	raw := "Sure! Here is your dashboard:\n```html\n<!DOCTYPE html>\n<html><head></head><body><p>x</p></body></html>\n```\nLet me know if you need changes."

	doc, err := CleanDocument(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.True(t, strings.HasSuffix(doc, "</html>"))
	assert.True(t, targeting.HasScript(doc))
}

func TestCleanDocumentKeepsExistingScript(t *testing.T) {
	in := "<html><body><p>x</p>" + targeting.Script + "</body></html>"

	doc, err := CleanDocument(in)
	require.NoError(t, err)
	assert.Equal(t, in, doc)
}

func TestCleanDocumentRejectsNonDocuments(t *testing.T) {
	for _, raw := range []string{
		"",
		"I cannot help with that.",
		`{"html": "<div>"}`,
		"<html><body>truncated",
	} {
		_, err := CleanDocument(raw)
		assert.ErrorIs(t, err, domain.ErrMalformedDocument, "raw %q", raw)
	}
}

func TestCleanDocumentWithCaseChangingRunes(t *testing.T) {
	for _, body := range []string{
		"<p>Ⱥ</p>",
		"<h1>Ⱥrea</h1>",
		"<p>KK</p>",
		"<p>İstanbul straße ǅ</p>",
	} {
		raw := "<!DOCTYPE html><html><body>" + body + "</body></html>"

		doc, err := CleanDocument(raw)
		require.NoError(t, err, "body %q", body)
		assert.True(t, utf8.ValidString(doc))
		assert.Equal(t, "<!DOCTYPE html><html><body>"+body+targeting.Script+"\n</body></html>", doc)
	}
}

func TestCleanDocumentIgnoresTagsInScripts(t *testing.T) {
	raw := `Here you go: <!DOCTYPE html><html><body><p>Ⱥ</p><script>document.write("</body></html>")</script></body></HTML> trailing note`

	doc, err := CleanDocument(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.True(t, strings.HasSuffix(doc, targeting.Script+"\n</body></HTML>"))
}

func TestExtractMetadataWithNonASCII(t *testing.T) {
	doc := `<html><head><META NAME="Dashboard-Title" CONTENT="Ⱥrea Kelvin"><meta name="dashboard-description" content="Ventas por región"/></head><body></body></html>`

	title, description := ExtractMetadata(doc)
	assert.Equal(t, "Ⱥrea Kelvin", title)
	assert.Equal(t, "Ventas por región", description)
}
