package crawler

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/Docs/", "https://example.com/Docs"},
		{"https://example.com/page#section", "https://example.com/page"},
		{"http://example.com:80/", "http://example.com/"},
		{"https://example.com:443/a", "https://example.com/a"},
		{"https://example.com", "https://example.com/"},
	}

	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeURLSameCanonicalForm(t *testing.T) {
	a, err := NormalizeURL("https://example.com/docs/")
	require.NoError(t, err)
	b, err := NormalizeURL("https://EXAMPLE.com/docs#intro")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExtractMainContentPrefersMain(t *testing.T) {
	html := `<html><head><title>t</title></head><body>
		<nav>Home About Contact navigation links everywhere</nav>
		<main>` + strings.Repeat("Real article content about the product. ", 10) + `</main>
		<footer>Copyright notice and footer links</footer>
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	content := ExtractMainContent(doc.Selection)
	assert.Contains(t, content, "Real article content")
	assert.NotContains(t, content, "Copyright notice")
	assert.NotContains(t, content, "navigation links")
}

func TestExtractMainContentFallsBackToBody(t *testing.T) {
	html := `<html><body><p>Short page with a little text only.</p></body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	content := ExtractMainContent(doc.Selection)
	assert.Contains(t, content, "Short page")
}

func TestExtractMainContentStripsScripts(t *testing.T) {
	html := `<html><body><main>` +
		strings.Repeat("Visible text about configuration options. ", 5) +
		`<script>var secret = "hidden";</script></main></body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	content := ExtractMainContent(doc.Selection)
	assert.Contains(t, content, "Visible text")
	assert.NotContains(t, content, "secret")
}

func TestIsURLAllowed(t *testing.T) {
	domains := []string{"example.com"}

	assert.True(t, isURLAllowed("https://example.com/docs", domains, nil))
	assert.True(t, isURLAllowed("https://www.example.com/docs", domains, nil))
	assert.True(t, isURLAllowed("https://blog.example.com/post", domains, nil))

	assert.False(t, isURLAllowed("https://other.com/docs", domains, nil))
	assert.False(t, isURLAllowed("ftp://example.com/file", domains, nil))
	assert.False(t, isURLAllowed("https://example.com/image.png", domains, nil))
	assert.False(t, isURLAllowed("https://example.com/wp-admin/login", domains, nil))
}

func TestIsURLAllowedPathPrefixes(t *testing.T) {
	domains := []string{"example.com"}
	paths := []string{"/docs"}

	assert.True(t, isURLAllowed("https://example.com/docs/setup", domains, paths))
	assert.False(t, isURLAllowed("https://example.com/blog/post", domains, paths))
}

func TestCollapseWhitespace(t *testing.T) {
	got := collapseWhitespace("  a  \n\n\n   b \n  \n c  ")
	assert.Equal(t, "a\nb\nc", got)
}
