package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/quill/internal/editor"
	"github.com/roach88/quill/internal/posts"
	"github.com/roach88/quill/internal/session"
	"github.com/roach88/quill/internal/store"
	"github.com/roach88/quill/internal/testutil"
)

// ClockStep is how far the scenario clock advances per created post.
const ClockStep = time.Minute

// Harness holds the state of one scenario run.
type Harness struct {
	backend  *store.Memory
	posts    *posts.Store
	sessions *session.Manager
	doc      *editor.DocumentSurface
	bridge   *editor.Bridge

	// external is the draft markup the editor is bound to.
	external string

	logger *zap.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the logger for the run. Runs are silent by default.
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory backend with sequential post
// ids and a clock starting at testutil.Epoch, so traces are identical across
// runs.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		backend: store.NewMemory(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	defer h.backend.Close()

	h.posts = posts.New(h.backend,
		posts.WithIDGenerator(testutil.NewSequentialIDGenerator(posts.IDPrefix)),
		posts.WithClock(testutil.NewStepClock(testutil.Epoch, ClockStep)),
		posts.WithLogger(h.logger),
	)
	h.sessions = session.New(h.backend, h.logger)
	h.doc = editor.NewDocumentSurface("")
	h.bridge = editor.NewBridge(h.doc, func(v string) { h.external = v })

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		args, out, err := h.execute(ctx, step)
		if err != nil && isInfrastructure(err) {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}

		ev := TraceEvent{Op: step.Op, Args: args, Outcome: OutcomeOK, Result: out}
		if err != nil {
			ev.Outcome = OutcomeError
			ev.Error = err.Error()
			ev.Result = nil
		}
		ev = result.addEvent(ev)

		for _, msg := range checkExpect(step, ev, err) {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Op, msg))
		}

		h.logger.Debug("scenario step",
			zap.String("scenario", scenario.Name),
			zap.Int("seq", ev.Seq),
			zap.String("op", step.Op),
			zap.String("outcome", ev.Outcome))
	}

	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}

	result.Final = FinalState{
		External:      h.external,
		SurfaceMarkup: h.doc.Markup(),
		SurfaceWrites: h.doc.Writes(),
	}
	return result, nil
}

// isInfrastructure reports errors that mean the run itself broke rather
// than the step failing in a way a scenario can expect.
func isInfrastructure(err error) bool {
	return errors.Is(err, store.ErrClosed)
}

// execute runs one step, returning the traced arguments and result.
func (h *Harness) execute(ctx context.Context, step Step) (args, out map[string]any, err error) {
	switch step.Op {
	case OpLogin:
		args = map[string]any{"username": step.Username}
		u, err := h.sessions.Login(ctx, step.Username, step.Password)
		if err != nil {
			return args, nil, err
		}
		return args, map[string]any{"user_id": u.ID, "username": u.Username}, nil

	case OpLogout:
		return nil, nil, h.sessions.Logout(ctx)

	case OpCreate:
		content := h.external
		if step.Content != nil {
			content = *step.Content
		}
		args = map[string]any{"title": step.Title, "content": content}

		u, err := h.sessions.Current(ctx)
		if err != nil {
			return args, nil, err
		}
		if err := posts.ValidateDraft(step.Title, content); err != nil {
			return args, nil, err
		}
		p, err := h.posts.Create(ctx, strings.TrimSpace(step.Title), content, u.ID)
		if err != nil {
			return args, nil, err
		}
		return args, map[string]any{"id": p.ID, "created_at": p.CreatedAt.Format(posts.TimeLayout)}, nil

	case OpList:
		if step.Author != "" {
			args = map[string]any{"author": step.Author}
		}
		authorID, err := h.authorID(ctx, step.Author)
		if err != nil {
			return args, nil, err
		}
		list, err := h.posts.ListByAuthor(ctx, authorID)
		if err != nil {
			return args, nil, err
		}
		ids := make([]string, 0, len(list))
		for _, p := range list {
			ids = append(ids, p.ID)
		}
		return args, map[string]any{"ids": ids}, nil

	case OpGet:
		args = map[string]any{"id": step.ID}
		u, err := h.sessions.Current(ctx)
		if err != nil {
			return args, nil, err
		}
		p, found, err := h.posts.GetByID(ctx, step.ID)
		if err != nil {
			return args, nil, err
		}
		if !found {
			return args, map[string]any{"found": false}, nil
		}
		if !posts.CanView(p, u) {
			return args, nil, posts.ErrForbidden
		}
		return args, map[string]any{"found": true, "title": p.Title}, nil

	case OpPush:
		v := h.external
		if step.Value != nil {
			v = *step.Value
			args = map[string]any{"value": v}
		}
		h.external = v
		written := h.bridge.PushValue(v)
		return args, map[string]any{"written": written, "markup": h.doc.Markup()}, nil

	case OpSelect:
		h.doc.Select(*step.Start, *step.End)
		start, end := h.doc.Selection()
		args = map[string]any{"start": *step.Start, "end": *step.End}
		return args, map[string]any{"start": start, "end": end}, nil

	case OpType:
		args = map[string]any{"text": step.Text}
		h.doc.Type(step.Text)
		h.bridge.OnLiveEdit()
		h.rerender()
		return args, map[string]any{"markup": h.external}, nil

	case OpFormat:
		args = map[string]any{"command": step.Command}
		cmd, err := editor.ParseCommand(step.Command)
		if err != nil {
			return args, nil, err
		}
		changed := h.bridge.ExecCommand(cmd)
		h.rerender()
		return args, map[string]any{"changed": changed, "markup": h.external}, nil
	}

	return nil, nil, fmt.Errorf("unknown op %q", step.Op)
}

// rerender pushes the external value back into the editor, as a UI would
// after the draft changes. The guard makes this a no-op for values that
// came from the editor.
func (h *Harness) rerender() {
	h.bridge.PushValue(h.external)
}

// authorID resolves a username to a user id; empty means the logged-in
// user.
func (h *Harness) authorID(ctx context.Context, username string) (string, error) {
	if username != "" {
		return session.UserID(username), nil
	}
	u, err := h.sessions.Current(ctx)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(step Step, ev TraceEvent, err error) []string {
	want := step.Expect
	if want == nil || want.Error == "" {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
	}
	if want == nil {
		return nil
	}

	var msgs []string
	if want.Error != "" {
		switch {
		case err == nil:
			msgs = append(msgs, fmt.Sprintf("expected error containing %q, got success", want.Error))
		case !strings.Contains(err.Error(), want.Error):
			msgs = append(msgs, fmt.Sprintf("expected error containing %q, got %q", want.Error, err.Error()))
		}
		return msgs
	}

	if want.Found != nil {
		if got, _ := ev.Result["found"].(bool); got != *want.Found {
			msgs = append(msgs, fmt.Sprintf("found: expected %v, got %v", *want.Found, got))
		}
	}
	if want.IDs != nil {
		got, _ := ev.Result["ids"].([]string)
		if !slices.Equal(got, want.IDs) {
			msgs = append(msgs, fmt.Sprintf("ids: expected %v, got %v", want.IDs, got))
		}
	}
	if want.Written != nil {
		if got, _ := ev.Result["written"].(bool); got != *want.Written {
			msgs = append(msgs, fmt.Sprintf("written: expected %v, got %v", *want.Written, got))
		}
	}
	if want.Markup != nil {
		if got, _ := ev.Result["markup"].(string); got != *want.Markup {
			msgs = append(msgs, fmt.Sprintf("markup: expected %q, got %q", *want.Markup, got))
		}
	}
	return msgs
}
