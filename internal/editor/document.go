package editor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DocumentSurface is an in-memory editable HTML fragment with a selection.
//
// Selection offsets count runes of text content, ignoring markup. The
// serialized markup of the last SetMarkup is returned verbatim until the
// document is edited; after that Markup re-renders the tree.
type DocumentSurface struct {
	root *html.Node

	start, end int

	markup string
	cached bool
	writes int
}

// NewDocumentSurface creates a surface holding markup. Construction does
// not count as a write.
func NewDocumentSurface(markup string) *DocumentSurface {
	d := &DocumentSurface{}
	d.load(markup)
	return d
}

// Markup implements Surface.
func (d *DocumentSurface) Markup() string {
	if d.cached {
		return d.markup
	}
	var sb strings.Builder
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		// Rendering into a strings.Builder cannot fail.
		_ = html.Render(&sb, c)
	}
	d.markup, d.cached = sb.String(), true
	return d.markup
}

// SetMarkup implements Surface. The caret moves to the end of the document.
func (d *DocumentSurface) SetMarkup(markup string) {
	d.load(markup)
	d.writes++
}

// Writes counts SetMarkup calls.
func (d *DocumentSurface) Writes() int {
	return d.writes
}

// Text returns the document's text content.
func (d *DocumentSurface) Text() string {
	var sb strings.Builder
	for _, s := range d.spans() {
		sb.WriteString(s.node.Data)
	}
	return sb.String()
}

// Selection returns the selected rune range. start == end is a caret.
func (d *DocumentSurface) Selection() (start, end int) {
	return d.start, d.end
}

// Select sets the selection, clamped to the document.
func (d *DocumentSurface) Select(start, end int) {
	n := d.textLen()
	start, end = clamp(start, 0, n), clamp(end, 0, n)
	if start > end {
		start, end = end, start
	}
	d.start, d.end = start, end
}

// Type replaces the selection with text, as a user typing would, and leaves
// a caret after the inserted text.
func (d *DocumentSurface) Type(text string) {
	if d.start != d.end {
		d.deleteSelection()
	}
	if text != "" {
		d.insertAt(d.start, text)
	}
	d.start += utf8.RuneCountInString(text)
	d.end = d.start
	d.touch()
}

// Exec implements Surface.
func (d *DocumentSurface) Exec(cmd Command) bool {
	var changed bool
	switch cmd {
	case Bold:
		changed = d.toggleInline(atom.B, atom.Strong)
	case Italic:
		changed = d.toggleInline(atom.I, atom.Em)
	case Underline:
		changed = d.toggleInline(atom.U)
	case InsertUnorderedList:
		changed = d.toggleList(atom.Ul)
	case InsertOrderedList:
		changed = d.toggleList(atom.Ol)
	}
	if changed {
		d.touch()
	}
	return changed
}

func (d *DocumentSurface) load(markup string) {
	d.root = newElement(atom.Div)
	nodes, err := html.ParseFragment(strings.NewReader(markup), d.root)
	if err != nil {
		nodes = []*html.Node{{Type: html.TextNode, Data: markup}}
	}
	for _, n := range nodes {
		d.root.AppendChild(n)
	}
	d.markup, d.cached = markup, true
	d.start = d.textLen()
	d.end = d.start
}

func (d *DocumentSurface) touch() {
	d.cached = false
}

// span is a text node and the rune range it covers.
type span struct {
	node       *html.Node
	start, end int
}

func (d *DocumentSurface) spans() []span {
	var out []span
	offset := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				l := utf8.RuneCountInString(c.Data)
				out = append(out, span{node: c, start: offset, end: offset + l})
				offset += l
				continue
			}
			walk(c)
		}
	}
	walk(d.root)
	return out
}

func (d *DocumentSurface) textLen() int {
	return textLen(d.root)
}

// splitAt makes offset fall on a text node boundary.
func (d *DocumentSurface) splitAt(offset int) {
	for _, s := range d.spans() {
		if s.start < offset && offset < s.end {
			splitText(s.node, offset-s.start)
			return
		}
	}
}

// selectedText returns the non-empty text nodes inside the selection,
// splitting nodes at its edges first.
func (d *DocumentSurface) selectedText() []*html.Node {
	d.splitAt(d.start)
	d.splitAt(d.end)
	var out []*html.Node
	for _, s := range d.spans() {
		if s.start >= d.start && s.end <= d.end && s.end > s.start {
			out = append(out, s.node)
		}
	}
	return out
}

func (d *DocumentSurface) deleteSelection() {
	for _, n := range d.selectedText() {
		n.Parent.RemoveChild(n)
	}
	d.end = d.start
}

func (d *DocumentSurface) insertAt(offset int, text string) {
	for _, s := range d.spans() {
		if s.start <= offset && offset <= s.end {
			r := []rune(s.node.Data)
			at := offset - s.start
			s.node.Data = string(r[:at]) + text + string(r[at:])
			return
		}
	}

	// No text yet. Type into the innermost trailing element, replacing a
	// placeholder <br> such as the one in an emptied paragraph.
	container := d.root
	for c := container.LastChild; c != nil && c.Type == html.ElementNode && !isVoid(c); c = container.LastChild {
		container = c
	}
	for c := container.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && c.DataAtom == atom.Br {
			container.RemoveChild(c)
		}
		c = next
	}
	container.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// toggleInline wraps the selected text in the first of tags, or unwraps it
// when every selected character is already inside one of tags. Unwrapping
// removes the whole enclosing element. A caret selection is left alone.
func (d *DocumentSurface) toggleInline(tags ...atom.Atom) bool {
	if d.start == d.end {
		return false
	}
	selected := d.selectedText()
	if len(selected) == 0 {
		return false
	}

	all := true
	for _, n := range selected {
		if d.enclosing(n, tags) == nil {
			all = false
			break
		}
	}

	if all {
		for _, n := range selected {
			if e := d.enclosing(n, tags); e != nil {
				unwrap(e)
			}
		}
		return true
	}

	for _, n := range selected {
		if d.enclosing(n, tags) != nil {
			continue
		}
		w := newElement(tags[0])
		n.Parent.InsertBefore(w, n)
		n.Parent.RemoveChild(n)
		w.AppendChild(n)
		mergeWithPrevious(w)
	}
	return true
}

// enclosing returns the nearest ancestor of n below the root whose tag is
// one of tags.
func (d *DocumentSurface) enclosing(n *html.Node, tags []atom.Atom) *html.Node {
	for p := n.Parent; p != nil && p != d.root; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		for _, t := range tags {
			if p.DataAtom == t {
				return p
			}
		}
	}
	return nil
}

// unit is a top-level line of the document: one block element, or a run
// of inline nodes ended by a <br> or a block.
type unit struct {
	nodes      []*html.Node
	start, end int
	block      bool
}

func (u unit) isList() bool {
	return u.block && isList(u.nodes[0])
}

func (d *DocumentSurface) units() []unit {
	var out []unit
	var run []*html.Node
	runStart, offset := 0, 0

	flush := func() {
		if len(run) == 0 {
			return
		}
		blank := true
		for _, n := range run {
			if n.Type != html.TextNode || strings.TrimFunc(n.Data, unicode.IsSpace) != "" {
				blank = false
				break
			}
		}
		if !blank {
			out = append(out, unit{nodes: run, start: runStart, end: offset})
		}
		run = nil
	}

	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		l := textLen(c)
		switch {
		case c.Type == html.ElementNode && c.DataAtom == atom.Br:
			flush()
		case isBlock(c):
			flush()
			out = append(out, unit{nodes: []*html.Node{c}, start: offset, end: offset + l, block: true})
		default:
			if len(run) == 0 {
				runStart = offset
			}
			run = append(run, c)
		}
		offset += l
	}
	flush()
	return out
}

// pickUnits returns the contiguous units the selection touches. A caret
// picks the first unit containing it.
func (d *DocumentSurface) pickUnits(units []unit) []unit {
	if d.start == d.end {
		for _, u := range units {
			if u.start <= d.start && d.start <= u.end {
				return []unit{u}
			}
		}
		return nil
	}
	var out []unit
	for _, u := range units {
		overlaps := u.start < d.end && u.end > d.start
		emptyInside := u.start == u.end && d.start <= u.start && u.start <= d.end
		if overlaps || emptyInside {
			out = append(out, u)
		}
	}
	return out
}

// toggleList turns the touched lines into a list of kind tag. Lines that
// are all already lists of that kind turn back into paragraphs; lists of
// the other kind are converted. Only the touched items of a list take
// part; the items around them stay in lists of their own.
func (d *DocumentSurface) toggleList(tag atom.Atom) bool {
	units := d.units()
	if len(units) == 0 {
		if d.root.FirstChild != nil {
			return false
		}
		li := newElement(atom.Li)
		li.AppendChild(newElement(atom.Br))
		list := newElement(tag)
		list.AppendChild(li)
		d.root.AppendChild(list)
		return true
	}

	picked := d.pickUnits(units)
	if len(picked) == 0 {
		return false
	}
	if d.splitLists(picked) {
		picked = d.pickUnits(d.units())
	}

	same := true
	for _, u := range picked {
		if !u.isList() || u.nodes[0].DataAtom != tag {
			same = false
			break
		}
	}
	if same {
		for _, u := range picked {
			unlist(u.nodes[0])
		}
		return true
	}

	first := picked[0].nodes[0]
	lastUnit := picked[len(picked)-1]
	last := lastUnit.nodes[len(lastUnit.nodes)-1]

	var between []*html.Node
	for n := first; n != nil; n = n.NextSibling {
		between = append(between, n)
		if n == last {
			break
		}
	}
	starts := make(map[*html.Node]unit, len(picked))
	for _, u := range picked {
		starts[u.nodes[0]] = u
	}

	list := newElement(tag)
	d.root.InsertBefore(list, first)
	for i := 0; i < len(between); i++ {
		n := between[i]
		u, ok := starts[n]
		switch {
		case ok:
			listItems(list, u)
			i += len(u.nodes) - 1
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			d.root.RemoveChild(n)
		default:
			d.root.RemoveChild(n)
			list.AppendChild(n)
		}
	}
	return true
}

// splitLists narrows each picked list to the items the selection touches.
// Text offsets are unchanged, so the units can be picked again afterwards.
func (d *DocumentSurface) splitLists(picked []unit) bool {
	split := false
	for _, u := range picked {
		if u.isList() && d.splitList(u) {
			split = true
		}
	}
	return split
}

func (d *DocumentSurface) splitList(u unit) bool {
	list := u.nodes[0]
	var first, last *html.Node
	offset := u.start
	for c := list.FirstChild; c != nil; c = c.NextSibling {
		start := offset
		offset += textLen(c)
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}

		var touched bool
		if d.start == d.end {
			touched = first == nil && start <= d.start && d.start <= offset
		} else {
			touched = (start < d.end && offset > d.start) ||
				(start == offset && d.start <= start && start <= d.end)
		}
		if touched {
			if first == nil {
				first = c
			}
			last = c
		}
	}
	if first == nil {
		return false
	}

	split := false
	if hasItem(list.FirstChild, first) {
		before := cloneList(list)
		list.Parent.InsertBefore(before, list)
		for c := list.FirstChild; c != first; {
			next := c.NextSibling
			list.RemoveChild(c)
			before.AppendChild(c)
			c = next
		}
		split = true
	}
	if hasItem(last.NextSibling, nil) {
		after := cloneList(list)
		list.Parent.InsertBefore(after, list.NextSibling)
		for c := last.NextSibling; c != nil; {
			next := c.NextSibling
			list.RemoveChild(c)
			after.AppendChild(c)
			c = next
		}
		split = true
	}
	return split
}

// hasItem reports whether an <li> sits among the siblings from n up to,
// but not including, stop.
func hasItem(n, stop *html.Node) bool {
	for ; n != nil && n != stop; n = n.NextSibling {
		if n.Type == html.ElementNode && n.DataAtom == atom.Li {
			return true
		}
	}
	return false
}

// cloneList returns an empty list element like list.
func cloneList(list *html.Node) *html.Node {
	c := newElement(list.DataAtom)
	c.Attr = append([]html.Attribute(nil), list.Attr...)
	return c
}

// listItems moves u into list as one or more <li>.
func listItems(list *html.Node, u unit) {
	if u.isList() {
		moveChildren(u.nodes[0], list)
		u.nodes[0].Parent.RemoveChild(u.nodes[0])
		return
	}

	li := newElement(atom.Li)
	if u.block {
		n := u.nodes[0]
		n.Parent.RemoveChild(n)
		if n.DataAtom == atom.P || n.DataAtom == atom.Div {
			moveChildren(n, li)
		} else {
			li.AppendChild(n)
		}
	} else {
		for _, n := range u.nodes {
			n.Parent.RemoveChild(n)
			li.AppendChild(n)
		}
	}
	if li.FirstChild == nil {
		li.AppendChild(newElement(atom.Br))
	}
	list.AppendChild(li)
}

// unlist replaces a list with one paragraph per item.
func unlist(list *html.Node) {
	parent := list.Parent
	for c := list.FirstChild; c != nil; {
		next := c.NextSibling
		list.RemoveChild(c)
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			p := newElement(atom.P)
			moveChildren(c, p)
			if p.FirstChild == nil {
				p.AppendChild(newElement(atom.Br))
			}
			parent.InsertBefore(p, list)
		} else {
			parent.InsertBefore(c, list)
		}
		c = next
	}
	parent.RemoveChild(list)
}

func newElement(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func splitText(n *html.Node, at int) {
	r := []rune(n.Data)
	tail := &html.Node{Type: html.TextNode, Data: string(r[at:])}
	n.Data = string(r[:at])
	n.Parent.InsertBefore(tail, n.NextSibling)
}

func moveChildren(from, to *html.Node) {
	for c := from.FirstChild; c != nil; {
		next := c.NextSibling
		from.RemoveChild(c)
		to.AppendChild(c)
		c = next
	}
}

// unwrap replaces e with its children.
func unwrap(e *html.Node) {
	parent := e.Parent
	for c := e.FirstChild; c != nil; {
		next := c.NextSibling
		e.RemoveChild(c)
		parent.InsertBefore(c, e)
		c = next
	}
	parent.RemoveChild(e)
}

// mergeWithPrevious folds w into an identical preceding sibling so that
// adjacent wraps render as one element.
func mergeWithPrevious(w *html.Node) {
	prev := w.PrevSibling
	if prev == nil || prev.Type != html.ElementNode || prev.DataAtom != w.DataAtom || len(prev.Attr) != 0 {
		return
	}
	moveChildren(w, prev)
	w.Parent.RemoveChild(w)
}

func textLen(n *html.Node) int {
	if n.Type == html.TextNode {
		return utf8.RuneCountInString(n.Data)
	}
	total := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		total += textLen(c)
	}
	return total
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Pre: true, atom.Hr: true, atom.Table: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true, atom.Figure: true,
}

func isBlock(n *html.Node) bool {
	return n.Type == html.ElementNode && blockElements[n.DataAtom]
}

func isList(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.DataAtom == atom.Ul || n.DataAtom == atom.Ol)
}

func isVoid(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Br, atom.Hr, atom.Img, atom.Input, atom.Wbr:
		return true
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
