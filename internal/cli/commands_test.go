package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/quill/internal/config"
	"github.com/roach88/quill/internal/posts"
	"github.com/roach88/quill/internal/session"
	"github.com/roach88/quill/internal/store"
)

// quill runs the CLI against a file store in dir.
type quill struct {
	t   *testing.T
	dir string
}

type runResult struct {
	code   int
	stdout string
	stderr string
}

func newQuill(t *testing.T) *quill {
	t.Helper()
	return &quill{t: t, dir: t.TempDir()}
}

func (q *quill) run(stdin string, args ...string) runResult {
	q.t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	full := append([]string{"--backend", config.BackendFile, "--store-path", q.dir}, args...)
	code := Execute(context.Background(), full, strings.NewReader(stdin), stdout, stderr)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// create publishes a post as the logged-in user and returns it.
func (q *quill) create(title, content string) posts.Post {
	q.t.Helper()
	res := q.run("", "--format", "json", "posts", "new", "--title", title, "--content", content)
	require.Equal(q.t, ExitSuccess, res.code, res.stderr)

	var resp struct {
		Status string     `json:"status"`
		Data   posts.Post `json:"data"`
	}
	require.NoError(q.t, json.Unmarshal([]byte(res.stdout), &resp))
	require.Equal(q.t, "ok", resp.Status)
	return resp.Data
}

func TestLoginWhoamiLogout(t *testing.T) {
	q := newQuill(t)

	res := q.run("", "whoami")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "run 'quill login' first")

	res = q.run("", "login", "alice", "--password", "secret")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "Logged in as alice ("+session.UserID("alice")+")\n", res.stdout)

	res = q.run("", "whoami")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "alice")

	res = q.run("", "logout")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "Logged out\n", res.stdout)

	res = q.run("", "whoami")
	assert.Equal(t, ExitFailure, res.code)
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	q := newQuill(t)

	res := q.run("secret\n", "login", "bob")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Logged in as bob")
}

func TestLoginRequiresPassword(t *testing.T) {
	q := newQuill(t)

	res := q.run("", "login", "bob")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, session.ErrMissingCredentials.Error())
}

func TestPostsRequireLogin(t *testing.T) {
	q := newQuill(t)

	res := q.run("", "--format", "json", "posts", "list")
	assert.Equal(t, ExitFailure, res.code)
	assert.NotContains(t, res.stderr, "Error:")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeNotLoggedIn, resp.Error.Code)
}

func TestPostsNewListShow(t *testing.T) {
	q := newQuill(t)
	require.Equal(t, ExitSuccess, q.run("", "login", "alice", "-p", "secret").code)

	first := q.create("First", "<p>Hello <b>world</b></p>")
	second := q.create("  Second  ", "<ul><li>one</li><li>two</li></ul>")

	assert.True(t, strings.HasPrefix(first.ID, posts.IDPrefix))
	assert.Equal(t, session.UserID("alice"), first.AuthorID)
	assert.Equal(t, "Second", second.Title)

	res := q.run("", "posts", "list")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], second.ID)
	assert.Contains(t, lines[1], "one two")
	assert.Contains(t, lines[2], first.ID)
	assert.Contains(t, lines[3], "Hello world")

	res = q.run("", "posts", "show", first.ID, "--raw")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "First\nBy alice on ")
	assert.Contains(t, res.stdout, "<p>Hello <b>world</b></p>")

	res = q.run("", "posts", "show", first.ID)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "world")
}

func TestPostsShowSanitizesMarkup(t *testing.T) {
	q := newQuill(t)
	require.Equal(t, ExitSuccess, q.run("", "login", "alice", "-p", "secret").code)
	p := q.create("Sneaky", `<p onclick="x()">Hi<script>alert(1)</script></p>`)

	res := q.run("", "posts", "show", p.ID, "--raw")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "<p>Hi</p>")
	assert.NotContains(t, res.stdout, "script")
	assert.NotContains(t, res.stdout, "onclick")
}

func TestPostsShowPermissions(t *testing.T) {
	q := newQuill(t)
	require.Equal(t, ExitSuccess, q.run("", "login", "alice", "-p", "secret").code)
	p := q.create("Private", "<p>mine</p>")

	require.Equal(t, ExitSuccess, q.run("", "login", "bob", "-p", "secret").code)

	res := q.run("", "posts", "show", p.ID)
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, posts.ErrForbidden.Error())

	res = q.run("", "posts", "show", "post_missing")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, `no post with id "post_missing"`)

	res = q.run("", "posts", "list")
	require.Equal(t, ExitSuccess, res.code)
	assert.Equal(t, "You haven't created any posts yet.\n", res.stdout)

	res = q.run("", "posts", "list", "--author", "bob")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "You haven't created any posts yet.\n", res.stdout)
}

func TestPostsListOtherAuthorForbidden(t *testing.T) {
	q := newQuill(t)
	require.Equal(t, ExitSuccess, q.run("", "login", "bob", "-p", "secret").code)
	secret := q.create("Secret", "<p>bob private diary</p>")

	require.Equal(t, ExitSuccess, q.run("", "login", "alice", "-p", "secret").code)

	res := q.run("", "posts", "list", "--author", "bob")
	assert.Equal(t, ExitFailure, res.code)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, posts.ErrForbidden.Error())

	res = q.run("", "--format", "json", "posts", "list", "--author", "bob")
	assert.Equal(t, ExitFailure, res.code)
	assert.NotContains(t, res.stdout, secret.ID)
	assert.NotContains(t, res.stdout, "private diary")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeForbidden, resp.Error.Code)
}

func TestPostsNewValidation(t *testing.T) {
	q := newQuill(t)
	require.Equal(t, ExitSuccess, q.run("", "login", "alice", "-p", "secret").code)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"blank title", []string{"--title", "  ", "--content", "<p>x</p>"}, posts.ErrTitleRequired},
		{"empty content", []string{"--title", "T", "--content", "   "}, posts.ErrContentEmpty},
		{"cleared editor", []string{"--title", "T", "--content", "<p><br></p>"}, posts.ErrContentEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := q.run("", append([]string{"posts", "new"}, tt.args...)...)
			assert.Equal(t, ExitFailure, res.code)
			assert.Contains(t, res.stderr, tt.want.Error())
		})
	}

	res := q.run("", "posts", "list")
	assert.Equal(t, "You haven't created any posts yet.\n", res.stdout)
}

func TestPostsNewFromStdin(t *testing.T) {
	q := newQuill(t)
	require.Equal(t, ExitSuccess, q.run("", "login", "alice", "-p", "secret").code)

	res := q.run("<p>piped</p>", "posts", "new", "--title", "Piped", "--file", "-")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Created post_")
	assert.Contains(t, res.stdout, ": Piped")
}

func TestExport(t *testing.T) {
	q := newQuill(t)
	require.Equal(t, ExitSuccess, q.run("", "login", "alice", "-p", "secret").code)
	first := q.create("First", "<p>Hello <b>world</b></p>")
	second := q.create("Second", "<p>Again</p>")

	out := filepath.Join(t.TempDir(), "export")
	res := q.run("", "export", out)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "Exported 2 posts to "+out+"\n", res.stdout)

	data, err := os.ReadFile(filepath.Join(out, first.ID+".md"))
	require.NoError(t, err)
	doc := string(data)
	assert.True(t, strings.HasPrefix(doc, "---\nid: "+first.ID+"\ntitle: First\nauthor: alice\n"))
	assert.Contains(t, doc, "---\n\n# First\n\nHello **world**\n")

	_, err = os.Stat(filepath.Join(out, second.ID+".md"))
	assert.NoError(t, err)
}

func TestWatchRequiresFileBackend(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := Execute(context.Background(), []string{"--backend", "memory", "watch"}, &bytes.Buffer{}, stdout, stderr)

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr.String(), "watch requires the file backend")
}

func TestFollowChanges(t *testing.T) {
	dir := t.TempDir()
	opts := &RootOptions{Backend: config.BackendFile, StorePath: dir}
	require.NoError(t, opts.setup(&bytes.Buffer{}))
	opts.Logger = zap.NewNop()

	ctx := context.Background()
	a, err := openApp(ctx, opts)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.sessions.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = a.posts.Create(ctx, "Hello", "<p>hi</p>", session.UserID("alice"))
	require.NoError(t, err)

	events := make(chan store.Event, 4)
	events <- store.Event{Key: session.Key, Op: store.EventSet}
	events <- store.Event{Key: config.DefaultPostsKey, Op: store.EventSet}
	events <- store.Event{Key: "unrelated", Op: store.EventSet}
	events <- store.Event{Key: session.Key, Op: store.EventDelete}
	close(events)

	var out bytes.Buffer
	require.ErrorIs(t, a.followChanges(ctx, events, &out), errEventsClosed)
	assert.Equal(t,
		"session: logged in as alice\n"+
			"posts: alice has 1 posts, newest \"Hello\"\n"+
			"session: logged out\n",
		out.String())
}

func TestServeWatchStopsWhenEventsClose(t *testing.T) {
	opts := &RootOptions{Backend: config.BackendFile, StorePath: t.TempDir()}
	require.NoError(t, opts.setup(&bytes.Buffer{}))
	opts.Logger = zap.NewNop()

	ctx := context.Background()
	a, err := openApp(ctx, opts)
	require.NoError(t, err)
	defer a.Close()

	tests := []struct {
		name        string
		metricsAddr string
	}{
		{"without metrics", ""},
		{"with metrics server", "127.0.0.1:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := make(chan store.Event)
			close(events)

			done := make(chan error, 1)
			go func() {
				done <- a.serveWatch(ctx, events, io.Discard, tt.metricsAddr)
			}()

			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(10 * time.Second):
				t.Fatal("watch did not stop after the event stream closed")
			}
		})
	}
}
