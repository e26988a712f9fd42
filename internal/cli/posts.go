package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/quill/internal/posts"
	"github.com/roach88/quill/internal/render"
	"github.com/roach88/quill/internal/session"
)

// excerptLength is the number of characters of content shown per post in
// listings.
const excerptLength = 150

// PostsOptions holds flags for the posts subcommands.
type PostsOptions struct {
	*RootOptions
	Author  string // list: must name the logged-in user
	Raw     bool   // show: print sanitized markup instead of rendering
	Title   string // new
	Content string // new
	File    string // new: read content from a file, "-" for stdin
}

// NewPostsCommand creates the posts command and its subcommands.
func NewPostsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List, show and create posts",
	}

	cmd.AddCommand(newPostsListCommand(opts))
	cmd.AddCommand(newPostsShowCommand(opts))
	cmd.AddCommand(newPostsNewCommand(opts))

	return cmd
}

func newPostsListCommand(opts *PostsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		Long: `List posts by the logged-in user, newest first.

Posts are private to their author, so --author only accepts the logged-in
user's own username.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPostsList(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Author, "author", "", "username whose posts to list; must be the logged-in user")
	return cmd
}

func runPostsList(cmd *cobra.Command, opts *PostsOptions) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.currentUser(ctx, f)
	if err != nil {
		return err
	}
	if opts.Author != "" && session.UserID(opts.Author) != u.ID {
		return f.Fail(ExitFailure, "access denied", posts.ErrForbidden)
	}

	list, err := a.posts.ListByAuthor(ctx, u.ID)
	if err != nil {
		return f.Fail(ExitCommandError, "list posts", err)
	}

	return f.Result(map[string]any{"posts": list}, func(w io.Writer) error {
		if len(list) == 0 {
			_, err := fmt.Fprintln(w, "You haven't created any posts yet.")
			return err
		}
		for _, p := range list {
			fmt.Fprintf(w, "%s  %s  %s\n", p.ID, render.FormatDate(p.CreatedAt, time.Local), p.Title)
			if excerpt := render.Excerpt(p.Content, excerptLength); excerpt != "" {
				fmt.Fprintf(w, "    %s\n", excerpt)
			}
		}
		return nil
	})
}

func newPostsShowCommand(opts *PostsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPostsShow(cmd, opts, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print sanitized markup instead of rendering it")
	return cmd
}

func runPostsShow(cmd *cobra.Command, opts *PostsOptions, id string) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.currentUser(ctx, f)
	if err != nil {
		return err
	}

	p, found, err := a.posts.GetByID(ctx, id)
	if err != nil {
		return f.Fail(ExitCommandError, "get post", err)
	}
	if !found {
		return f.Fail(ExitFailure, fmt.Sprintf("no post with id %q", id), ErrPostNotFound)
	}
	if !posts.CanView(p, u) {
		return f.Fail(ExitFailure, "access denied", posts.ErrForbidden)
	}

	body := a.renderer.Sanitize(p.Content)
	if !opts.Raw {
		body, err = a.renderer.Terminal(p.Content)
		if err != nil {
			return f.Fail(ExitCommandError, "render post", err)
		}
	}

	return f.Result(p, func(w io.Writer) error {
		fmt.Fprintln(w, p.Title)
		fmt.Fprintf(w, "By %s on %s\n\n", u.Username, render.FormatDate(p.CreatedAt, time.Local))
		_, err := fmt.Fprintln(w, body)
		return err
	})
}

func newPostsNewCommand(opts *PostsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a post from flags or a file",
		Long: `Create a post as the logged-in user.

Content is HTML markup, given with --content or read from --file
("-" reads stdin). Use 'quill compose' for the interactive editor.

Examples:
  quill posts new --title "Hello" --content "<p>Hello world</p>"
  quill posts new --title "Notes" --file notes.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPostsNew(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Title, "title", "t", "", "post title")
	cmd.Flags().StringVar(&opts.Content, "content", "", "post content markup")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read content markup from a file (\"-\" for stdin)")
	cmd.MarkFlagsMutuallyExclusive("content", "file")
	return cmd
}

func runPostsNew(cmd *cobra.Command, opts *PostsOptions) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	content := opts.Content
	if opts.File != "" {
		data, err := readContent(cmd.InOrStdin(), opts.File)
		if err != nil {
			return f.Fail(ExitCommandError, "read content", err)
		}
		content = data
	}

	if err := posts.ValidateDraft(opts.Title, content); err != nil {
		return f.Fail(ExitFailure, "invalid post", err)
	}

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.currentUser(ctx, f)
	if err != nil {
		return err
	}

	p, err := a.posts.Create(ctx, strings.TrimSpace(opts.Title), content, u.ID)
	if err != nil {
		if errors.Is(err, posts.ErrCorrupt) {
			return f.Fail(ExitFailure, "create post", err)
		}
		return f.Fail(ExitCommandError, "create post", err)
	}

	return f.Result(p, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Created %s: %s\n", p.ID, p.Title)
		return err
	})
}

func readContent(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
