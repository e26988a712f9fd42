package render

import (
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DateLayout is how post timestamps are shown to readers.
const DateLayout = "January 2, 2006 at 03:04 PM"

// FormatDate formats t in loc using DateLayout. A nil loc means local time.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// PlainText extracts the visible text of markup. Block boundaries and line
// breaks become single spaces; runs of whitespace collapse.
func PlainText(markup string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(markup))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				// The tokenizer only fails on reader errors, which a
				// strings.Reader never produces.
				return ""
			}
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
				continue
			}
			if breaksText(a) {
				sb.WriteByte(' ')
			}
		}
	}
}

// Excerpt returns at most max runes of markup's plain text, cut at a word
// boundary where possible and marked with an ellipsis when shortened.
func Excerpt(markup string, max int) string {
	text := PlainText(markup)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}

	r := []rune(text)
	cut := string(r[:max])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

func breaksText(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Tr, atom.Td, atom.Th:
		return true
	}
	return false
}
