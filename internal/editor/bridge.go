// Package editor keeps an editable rich-text surface and an externally owned
// markup value in sync without disturbing the user's caret.
//
// The external state is the source of truth. Pushing a value into the
// surface happens only when the surface's serialized markup differs from it,
// so a value that came from the surface in the first place never flows back
// and resets the selection.
package editor

// Surface is an editable document.
type Surface interface {
	// Markup returns the current serialized content.
	Markup() string

	// SetMarkup replaces the content wholesale. Implementations may move
	// the caret.
	SetMarkup(markup string)

	// Exec applies a formatting command to the current selection and
	// reports whether the content changed. Unsupported commands return
	// false.
	Exec(cmd Command) bool
}

// focuser is implemented by surfaces that can take input focus.
type focuser interface {
	Focus()
}

// Bridge binds a Surface to external state.
type Bridge struct {
	surface  Surface
	onChange func(string)
}

// NewBridge creates a Bridge. onChange receives every value read from the
// surface; a nil onChange discards them.
func NewBridge(surface Surface, onChange func(string)) *Bridge {
	if onChange == nil {
		onChange = func(string) {}
	}
	return &Bridge{surface: surface, onChange: onChange}
}

// Surface returns the bound surface.
func (b *Bridge) Surface() Surface {
	return b.surface
}

// PushValue writes v into the surface unless the surface already holds
// exactly v. It reports whether a write happened.
func (b *Bridge) PushValue(v string) bool {
	if b.surface.Markup() == v {
		return false
	}
	b.surface.SetMarkup(v)
	return true
}

// OnLiveEdit forwards the surface's markup, unmodified, to the external
// state. Call it after every user edit.
func (b *Bridge) OnLiveEdit() {
	b.onChange(b.surface.Markup())
}

// ExecCommand runs cmd on the surface, returns focus to it, and forwards
// the resulting markup. The forward happens even when the surface does not
// support cmd. It reports whether the surface changed.
func (b *Bridge) ExecCommand(cmd Command) bool {
	changed := b.surface.Exec(cmd)
	if f, ok := b.surface.(focuser); ok {
		f.Focus()
	}
	b.OnLiveEdit()
	return changed
}
