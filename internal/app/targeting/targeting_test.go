package targeting

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSelector(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		id      string
		classes []string
		want    string
	}{
		{"id wins over classes", "div", "x", []string{"card", "big"}, "#x"},
		{"pseudo state classes dropped", "div", "", []string{"card", "hover:shadow"}, "div.card"},
		{"hover substring dropped", "SPAN", "", []string{"hovered", "label"}, "span.label"},
		{"responsive prefix dropped", "section", "", []string{"md:grid", "panel", "p-4"}, "section.panel.p-4"},
		{"bare tag", "TD", "", nil, "td"},
		{"selection mark ignored", "h1", "", []string{SelectedClass, "title"}, "h1.title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveSelector(tt.tag, tt.id, tt.classes))
		})
	}
}

func TestDecodeElementSelected(t *testing.T) {
	long := strings.Repeat("é", 250)
	raw := []byte(`{"type":"element-selected","payload":{"selector":"","tagName":"DIV","id":"","className":"card hover:bg-gray","innerText":"` + long + `"}}`)

	ref, ok, err := Decode(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "div.card", ref.Selector)
	assert.Equal(t, "DIV", ref.TagName)
	assert.Equal(t, MaxPreviewRunes, len([]rune(ref.InnerTextPreview)))
}

func TestDecodeKeepsScriptSelector(t *testing.T) {
	raw := []byte(`{"type":"element-selected","payload":{"selector":"#revenue","tagName":"CANVAS","id":"revenue","className":"","innerText":""}}`)

	ref, ok, err := Decode(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "#revenue", ref.Selector)
}

func TestDecodeIgnoresUnknownTypes(t *testing.T) {
	ref, ok, err := Decode([]byte(`{"type":"resize","payload":{"height":300}}`))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, ref.Selector)
}

func TestDecodeRejectsBrokenMessages(t *testing.T) {
	_, _, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, ok, err := Decode([]byte(`{"type":"element-selected"}`))
	assert.ErrorIs(t, err, ErrInvalidSelection)
	assert.False(t, ok)

	_, _, err = Decode([]byte(`{"type":"element-selected","payload":{"tagName":""}}`))
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestEnsureScript(t *testing.T) {
	doc := "<html><body><h1>Hi</h1></BODY></html>"

	got := EnsureScript(doc)
	assert.True(t, HasScript(got))
	assert.True(t, strings.HasSuffix(got, "</BODY></html>"))
	assert.Less(t, strings.Index(got, "<h1>"), strings.Index(got, ScriptAttribute))

	assert.Equal(t, got, EnsureScript(got), "script must not be injected twice")

	assert.True(t, HasScript(EnsureScript("<div>fragment</div>")))
}

func TestScriptPostsElementSelected(t *testing.T) {
	assert.Contains(t, Script, "type: 'element-selected'")
	assert.Contains(t, Script, "substring(0, 200)")
	assert.Contains(t, Script, "window.parent.postMessage")
}

func TestEnsureScriptWithCaseChangingRunes(t *testing.T) {
	for _, body := range []string{
		strings.Repeat("Ⱥ", 8),
		"<p>KK</p>",
		"<p>İstanbul ǅ ẞ</p>",
	} {
		doc := "<html><body>" + body + "</body></html>"

		got := EnsureScript(doc)
		require.True(t, utf8.ValidString(got), "body %q", body)
		assert.Equal(t, "<html><body>"+body+Script+"\n</body></html>", got)
	}
}

func TestScanLandmarks(t *testing.T) {
	doc := "Intro Ⱥ\n<!doctype HTML><html><body><script>var s = '</body></html>';</script><!-- </body> --></body ></html>\ntrailing"

	lm := Scan(doc)
	assert.Equal(t, strings.Index(doc, "<!doctype"), lm.Root)
	assert.Equal(t, strings.LastIndex(doc, "</body >"), lm.BodyEnd)
	assert.Equal(t, strings.LastIndex(doc, "</html>"), lm.HTMLEnd)
	assert.Equal(t, len("</html>"), lm.HTMLEndLen)

	empty := Scan("<div>fragment</div>")
	assert.Equal(t, Landmarks{Root: -1, BodyEnd: -1, HTMLEnd: -1}, empty)
}
