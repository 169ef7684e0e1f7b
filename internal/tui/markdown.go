package tui

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdCodeBlock  = regexp.MustCompile(`(?s)<pre><code(?: class="language-([a-zA-Z0-9]+)")?>(.*?)</code></pre>`)
	mdInlineCode = regexp.MustCompile(`<code>([^<]+)</code>`)
	mdHeading    = regexp.MustCompile(`<h([1-6]) id="[^"]*">(.*?)</h[1-6]>`)
	mdStrong     = regexp.MustCompile(`<strong>(.*?)</strong>`)
	mdEm         = regexp.MustCompile(`<em>(.*?)</em>`)
	mdLink       = regexp.MustCompile(`<a href="([^"]*)">(.*?)</a>`)
	mdBlockquote = regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`)
	mdList       = regexp.MustCompile(`(?s)<(ul|ol)>(.*?)</(?:ul|ol)>`)
	mdListItem   = regexp.MustCompile(`<li>(.*?)</li>`)
	mdAnyTag     = regexp.MustCompile(`<[^>]+>`)
	mdBlankRuns  = regexp.MustCompile(`\n{3,}`)
)

// ReportRenderer turns a markdown research report into styled terminal text.
// Markdown goes through goldmark to HTML, then the HTML is rewritten tag by
// tag into lipgloss output, with chroma highlighting fenced code.
type ReportRenderer struct {
	md        goldmark.Markdown
	theme     Theme
	formatter chroma.Formatter
	cstyle    *chroma.Style
}

func NewReportRenderer(theme Theme) *ReportRenderer {
	return &ReportRenderer{
		md: goldmark.New(
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithXHTML()),
			goldmark.WithExtensions(extension.GFM),
		),
		theme:     theme,
		formatter: formatters.Get("terminal256"),
		cstyle:    styles.Get("friendly"),
	}
}

// Render produces terminal output wrapped to width. On any conversion error
// the raw markdown comes back unstyled; a report is never lost to rendering.
func (r *ReportRenderer) Render(content string, width int) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return content
	}
	return r.rewrite(buf.String(), width)
}

func (r *ReportRenderer) rewrite(doc string, width int) string {
	if width < 24 {
		width = 24
	}

	// Code blocks are lifted out first so later passes cannot mangle them.
	var code []string
	doc = mdCodeBlock.ReplaceAllStringFunc(doc, func(m string) string {
		sub := mdCodeBlock.FindStringSubmatch(m)
		block := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(r.theme.Border).
			Padding(0, 1).
			Width(width - 4).
			Render(r.highlight(decodeEntities(sub[2]), sub[1]))
		code = append(code, block)
		return fmt.Sprintf("\n\x00code:%d\x00\n", len(code)-1)
	})

	doc = mdInlineCode.ReplaceAllStringFunc(doc, func(m string) string {
		sub := mdInlineCode.FindStringSubmatch(m)
		return lipgloss.NewStyle().Foreground(r.theme.Accent).Render(decodeEntities(sub[1]))
	})

	doc = mdHeading.ReplaceAllStringFunc(doc, func(m string) string {
		sub := mdHeading.FindStringSubmatch(m)
		style := lipgloss.NewStyle().Bold(true).Foreground(r.theme.Accent)
		if sub[1] == "1" {
			style = style.BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(r.theme.Border).
				Width(width - 4)
		}
		return style.Render(mdAnyTag.ReplaceAllString(sub[2], "")) + "\n"
	})

	doc = mdStrong.ReplaceAllString(doc, "\x1b[1m$1\x1b[0m")
	doc = mdEm.ReplaceAllStringFunc(doc, func(m string) string {
		sub := mdEm.FindStringSubmatch(m)
		return lipgloss.NewStyle().Italic(true).Render(sub[1])
	})

	doc = mdLink.ReplaceAllStringFunc(doc, func(m string) string {
		sub := mdLink.FindStringSubmatch(m)
		if sub[1] == sub[2] {
			return lipgloss.NewStyle().Foreground(r.theme.Accent).Underline(true).Render(sub[1])
		}
		return lipgloss.NewStyle().Foreground(r.theme.Accent).Underline(true).
			Render(fmt.Sprintf("%s (%s)", sub[2], sub[1]))
	})

	doc = mdBlockquote.ReplaceAllStringFunc(doc, func(m string) string {
		sub := mdBlockquote.FindStringSubmatch(m)
		quoted := strings.TrimSpace(mdAnyTag.ReplaceAllString(sub[1], ""))
		return lipgloss.NewStyle().
			Foreground(r.theme.TextMuted).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(r.theme.Accent).
			PaddingLeft(1).
			Width(width - 4).
			Render(quoted) + "\n"
	})

	doc = mdList.ReplaceAllStringFunc(doc, func(m string) string {
		sub := mdList.FindStringSubmatch(m)
		ordered := sub[1] == "ol"
		var b strings.Builder
		for i, item := range mdListItem.FindAllStringSubmatch(sub[2], -1) {
			marker := "  • "
			if ordered {
				marker = fmt.Sprintf("  %d. ", i+1)
			}
			b.WriteString(lipgloss.NewStyle().Foreground(r.theme.Accent).Render(marker))
			b.WriteString(mdAnyTag.ReplaceAllString(item[1], ""))
			b.WriteString("\n")
		}
		return b.String()
	})

	doc = strings.NewReplacer("<p>", "", "</p>", "\n", "<br>", "\n", "<br/>", "\n", "<br />", "\n").Replace(doc)
	doc = mdAnyTag.ReplaceAllString(doc, "")
	doc = decodeEntities(doc)

	for i, block := range code {
		doc = strings.ReplaceAll(doc, fmt.Sprintf("\x00code:%d\x00", i), block)
	}

	return strings.TrimSpace(mdBlankRuns.ReplaceAllString(doc, "\n\n"))
}

func (r *ReportRenderer) highlight(code, lang string) string {
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.cstyle, it); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&#x27;", "'",
	"&#x60;", "`",
	"&nbsp;", " ",
)

func decodeEntities(s string) string { return entityReplacer.Replace(s) }
