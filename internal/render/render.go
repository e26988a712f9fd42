// Package render turns stored post markup into the forms quill displays
// and exports: sanitized HTML, Markdown, terminal output and plain-text
// excerpts.
package render

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultWidth is the terminal word-wrap width.
const DefaultWidth = 80

// Renderer converts post markup. It is safe for concurrent use once built.
type Renderer struct {
	policy    *bluemonday.Policy
	converter *md.Converter
	width     int
	style     string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithWidth sets the terminal word-wrap width.
func WithWidth(width int) Option {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
	}
}

// WithStyle selects a glamour style by name ("dark", "light", "notty").
// The default detects the terminal background.
func WithStyle(style string) Option {
	return func(r *Renderer) { r.style = style }
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	r := &Renderer{
		policy:    bluemonday.UGCPolicy(),
		converter: converter,
		width:     DefaultWidth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sanitize strips anything from markup that is unsafe to display, such as
// scripts, event handlers and javascript: links.
func (r *Renderer) Sanitize(markup string) string {
	return r.policy.Sanitize(markup)
}

// Markdown converts sanitized markup to GitHub-flavored Markdown.
func (r *Renderer) Markdown(markup string) (string, error) {
	out, err := r.converter.ConvertString(r.Sanitize(markup))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Terminal renders markup for display in a terminal.
func (r *Renderer) Terminal(markup string) (string, error) {
	text, err := r.Markdown(markup)
	if err != nil {
		return "", err
	}

	style := glamour.WithAutoStyle()
	if r.style != "" {
		style = glamour.WithStylePath(r.style)
	}
	tr, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(r.width))
	if err != nil {
		return "", fmt.Errorf("terminal renderer: %w", err)
	}
	out, err := tr.Render(text)
	if err != nil {
		return "", fmt.Errorf("render for terminal: %w", err)
	}
	return out, nil
}
