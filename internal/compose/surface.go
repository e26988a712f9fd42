package compose

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"golang.org/x/net/html"

	"github.com/roach88/quill/internal/editor"
	"github.com/roach88/quill/internal/render"
)

var orderedPrefix = regexp.MustCompile(`^(\d+)\. `)

// TextareaSurface presents a plain-text textarea as an editor.Surface.
//
// Each line is a paragraph; lines starting with "- " or "N. " are list
// items. Inline formatting has no plain-text form, so the bold, italic and
// underline commands are not supported.
//
// Markup set from outside is kept verbatim until the text changes, so a
// round trip through the textarea does not degrade it.
type TextareaSurface struct {
	ta       *textarea.Model
	renderer *render.Renderer
	writes   int

	cached      string
	cachedValue string
	hasCached   bool
}

// NewTextareaSurface adapts ta. The renderer converts incoming markup to
// Markdown-style lines.
func NewTextareaSurface(ta *textarea.Model, renderer *render.Renderer) *TextareaSurface {
	if renderer == nil {
		renderer = render.New()
	}
	return &TextareaSurface{ta: ta, renderer: renderer}
}

// Markup implements editor.Surface.
func (s *TextareaSurface) Markup() string {
	value := s.ta.Value()
	if s.hasCached && value == s.cachedValue {
		return s.cached
	}
	return linesToMarkup(value)
}

// SetMarkup implements editor.Surface. The cursor moves to the end.
func (s *TextareaSurface) SetMarkup(markup string) {
	text := ""
	if markup != "" {
		var err error
		text, err = s.renderer.Markdown(markup)
		if err != nil {
			text = render.PlainText(markup)
		}
	}
	s.ta.SetValue(text)
	s.cached = markup
	s.cachedValue = s.ta.Value()
	s.hasCached = true
	s.writes++
}

// Writes counts SetMarkup calls.
func (s *TextareaSurface) Writes() int {
	return s.writes
}

// Focus gives the textarea input focus.
func (s *TextareaSurface) Focus() {
	s.ta.Focus()
}

// Exec implements editor.Surface. List commands toggle a prefix on the
// cursor's line.
func (s *TextareaSurface) Exec(cmd editor.Command) bool {
	switch cmd {
	case editor.InsertUnorderedList, editor.InsertOrderedList:
	default:
		return false
	}

	lines := strings.Split(s.ta.Value(), "\n")
	row := s.ta.Line()
	if row < 0 || row >= len(lines) {
		return false
	}

	info := s.ta.LineInfo()
	col := info.StartColumn + info.ColumnOffset

	body, kind := splitListPrefix(lines[row])
	oldLen := len([]rune(lines[row]))
	switch {
	case kind == cmd:
		lines[row] = body
	case cmd == editor.InsertUnorderedList:
		lines[row] = "- " + body
	default:
		lines[row] = strconv.Itoa(orderedNumber(lines, row)) + ". " + body
	}
	col += len([]rune(lines[row])) - oldLen

	s.ta.SetValue(strings.Join(lines, "\n"))
	for i := len(lines) - 1; i > row; i-- {
		s.ta.CursorUp()
	}
	s.ta.SetCursor(max(col, 0))
	return true
}

// splitListPrefix returns the line without its list marker and which list
// command the marker belongs to.
func splitListPrefix(line string) (string, editor.Command) {
	if rest, ok := strings.CutPrefix(line, "- "); ok {
		return rest, editor.InsertUnorderedList
	}
	if rest, ok := strings.CutPrefix(line, "* "); ok {
		return rest, editor.InsertUnorderedList
	}
	if m := orderedPrefix.FindString(line); m != "" {
		return line[len(m):], editor.InsertOrderedList
	}
	return line, ""
}

// orderedNumber continues the numbering of an ordered list directly above
// row.
func orderedNumber(lines []string, row int) int {
	if row == 0 {
		return 1
	}
	m := orderedPrefix.FindStringSubmatch(lines[row-1])
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1
	}
	return n + 1
}

func linesToMarkup(text string) string {
	var sb strings.Builder
	open := ""
	closeList := func() {
		if open != "" {
			sb.WriteString("</" + open + ">")
			open = ""
		}
	}

	for _, line := range strings.Split(text, "\n") {
		body, kind := splitListPrefix(line)
		tag := ""
		switch kind {
		case editor.InsertUnorderedList:
			tag = "ul"
		case editor.InsertOrderedList:
			tag = "ol"
		}

		if tag != "" {
			if open != tag {
				closeList()
				sb.WriteString("<" + tag + ">")
				open = tag
			}
			sb.WriteString("<li>" + html.EscapeString(strings.TrimSpace(body)) + "</li>")
			continue
		}

		closeList()
		if strings.TrimSpace(line) == "" {
			continue
		}
		sb.WriteString("<p>" + html.EscapeString(strings.TrimSpace(line)) + "</p>")
	}
	closeList()
	return sb.String()
}
