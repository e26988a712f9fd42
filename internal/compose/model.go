// Package compose is the terminal post composer: a title field and a body
// editor kept in sync with the draft through editor.Bridge, published with
// posts.Store.Create.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/roach88/quill/internal/editor"
	"github.com/roach88/quill/internal/posts"
	"github.com/roach88/quill/internal/render"
)

// ErrPublishFailed wraps store errors shown to the author.
var ErrPublishFailed = errors.New("failed to create post")

type field int

const (
	titleField field = iota
	bodyField
)

// keyCommands maps key bindings to formatting commands.
var keyCommands = map[string]editor.Command{
	"ctrl+l": editor.InsertUnorderedList,
	"ctrl+o": editor.InsertOrderedList,
	"alt+b":  editor.Bold,
	"alt+i":  editor.Italic,
	"alt+u":  editor.Underline,
}

type publishedMsg struct{ post posts.Post }

type publishErrMsg struct{ err error }

// Model is the composer's bubbletea model.
type Model struct {
	ctx    context.Context
	store  *posts.Store
	author posts.User
	logger *zap.Logger

	title   textinput.Model
	body    textarea.Model
	surface *TextareaSurface
	bridge  *editor.Bridge

	// content is the draft's markup, owned by the model and fed by the
	// bridge.
	content string

	focus      field
	err        error
	publishing bool
	published  *posts.Post
	aborted    bool

	styles styles
}

type styles struct {
	header lipgloss.Style
	label  lipgloss.Style
	err    lipgloss.Style
	help   lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).MarginBottom(1),
		label:  lipgloss.NewStyle().Bold(true),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		help:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// WithSize sets the body editor size.
func WithSize(width, height int) Option {
	return func(m *Model) {
		m.title.Width = width
		m.body.SetWidth(width)
		m.body.SetHeight(height)
	}
}

// New creates a composer that publishes to store as author.
func New(ctx context.Context, store *posts.Store, author posts.User, renderer *render.Renderer, opts ...Option) *Model {
	ti := textinput.New()
	ti.Placeholder = "Enter post title"
	ti.CharLimit = 200
	ti.Width = 72
	ti.Focus()

	ta := textarea.New()
	ta.Placeholder = "Write your post..."
	ta.CharLimit = 0
	ta.MaxHeight = 0
	ta.ShowLineNumbers = false
	ta.SetWidth(72)
	ta.SetHeight(12)

	m := &Model{
		ctx:    ctx,
		store:  store,
		author: author,
		logger: zap.NewNop(),
		title:  ti,
		body:   ta,
		styles: defaultStyles(),
	}
	m.surface = NewTextareaSurface(&m.body, renderer)
	m.bridge = editor.NewBridge(m.surface, func(v string) { m.content = v })

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case publishedMsg:
		m.publishing = false
		m.published = &msg.post
		m.logger.Info("post published", zap.String("id", msg.post.ID))
		return m, tea.Quit

	case publishErrMsg:
		m.publishing = false
		m.err = msg.err
		m.logger.Warn("publish failed", zap.Error(msg.err))
		return m, nil

	case tea.WindowSizeMsg:
		w := max(msg.Width-4, 20)
		m.title.Width = w
		m.body.SetWidth(w)
		m.body.SetHeight(max(msg.Height-10, 3))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateFocused(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "esc", "ctrl+c":
		m.aborted = true
		return m, tea.Quit

	case "tab", "shift+tab":
		return m, m.toggleFocus()

	case "ctrl+s":
		return m, m.publish()
	}

	if cmd, ok := keyCommands[key]; ok {
		if m.focus != bodyField {
			return m, nil
		}
		m.bridge.ExecCommand(cmd)
		m.sync()
		return m, nil
	}

	return m.updateFocused(msg)
}

// updateFocused passes msg to the focused input. Body edits are forwarded
// through the bridge like any live edit.
func (m *Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.focus == titleField {
		m.title, cmd = m.title.Update(msg)
		return m, cmd
	}

	before := m.body.Value()
	m.body, cmd = m.body.Update(msg)
	if m.body.Value() != before {
		m.err = nil
		m.bridge.OnLiveEdit()
		m.sync()
	}
	return m, cmd
}

// sync pushes the draft back into the editor, which is a no-op unless the
// draft changed from outside.
func (m *Model) sync() {
	m.bridge.PushValue(m.content)
}

func (m *Model) toggleFocus() tea.Cmd {
	if m.focus == titleField {
		m.focus = bodyField
		m.title.Blur()
		return m.body.Focus()
	}
	m.focus = titleField
	m.body.Blur()
	return m.title.Focus()
}

func (m *Model) publish() tea.Cmd {
	if m.publishing {
		return nil
	}
	title := m.title.Value()
	if err := posts.ValidateDraft(title, m.content); err != nil {
		m.err = err
		return nil
	}

	m.err = nil
	m.publishing = true
	ctx, store, author, content := m.ctx, m.store, m.author, m.content
	return func() tea.Msg {
		p, err := store.Create(ctx, strings.TrimSpace(title), content, author.ID)
		if err != nil {
			return publishErrMsg{err: fmt.Errorf("%w: %w", ErrPublishFailed, err)}
		}
		return publishedMsg{post: p}
	}
}

// SetDraft replaces the draft from outside the editor, for example to load
// an existing post's markup.
func (m *Model) SetDraft(title, content string) {
	m.title.SetValue(title)
	m.content = content
	m.sync()
}

// Content returns the draft's current markup.
func (m *Model) Content() string {
	return m.content
}

// Err returns the error shown to the author, if any.
func (m *Model) Err() error {
	return m.err
}

// Published returns the created post once publishing succeeded.
func (m *Model) Published() (posts.Post, bool) {
	if m.published == nil {
		return posts.Post{}, false
	}
	return *m.published, true
}

// Aborted reports whether the author quit without publishing.
func (m *Model) Aborted() bool {
	return m.aborted
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.header.Render("New post by " + m.author.Username))
	b.WriteString("\n")
	b.WriteString(m.styles.label.Render("Title"))
	b.WriteString("\n")
	b.WriteString(m.title.View())
	b.WriteString("\n\n")
	b.WriteString(m.styles.label.Render("Content"))
	b.WriteString("\n")
	b.WriteString(m.body.View())
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(m.styles.err.Render(m.err.Error()))
		b.WriteString("\n")
	case m.publishing:
		b.WriteString("Publishing...\n")
	}

	b.WriteString(m.styles.help.Render("tab switch field • ctrl+l bullets • ctrl+o numbers • ctrl+s publish • esc cancel"))
	return b.String()
}
