package conv

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/inbucket/html2text"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags  = html.CommonFlags
	termPolicy = bluemonday.NewPolicy()
)

func init() {
	termPolicy.AllowElements(
		"p", "br", "b", "strong", "i", "em", "u", "s", "del",
		"code", "pre", "blockquote", "ul", "ol", "li",
		"h1", "h2", "h3", "h4", "table", "thead", "tbody", "tr", "th", "td",
	)
	termPolicy.AllowAttrs("href").OnElements("a")
}

// MarkdownToText renders model markdown into plain terminal text:
// markdown -> HTML -> sanitize -> text.
func MarkdownToText(md string) string {
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	unsafeHTML := markdown.Render(p.Parse([]byte(md)), renderer)

	sanitized := termPolicy.SanitizeBytes(unsafeHTML)

	text, err := html2text.FromString(string(sanitized), html2text.Options{
		OmitLinks:    false,
		PrettyTables: true,
	})
	if err != nil {
		// Fall back to the raw markdown rather than losing the reply.
		return strings.TrimSpace(md)
	}
	return strings.TrimSpace(text)
}
