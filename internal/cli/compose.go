package cli

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/roach88/quill/internal/compose"
)

// NewComposeCommand creates the compose command.
func NewComposeCommand(opts *RootOptions) *cobra.Command {
	var title, content string

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Write a post in the interactive editor",
		Long: `Open the interactive editor and publish a post as the logged-in user.

Keys:
  tab / shift+tab  switch between title and content
  ctrl+l           toggle bulleted list
  ctrl+o           toggle numbered list
  alt+b/i/u        bold, italic, underline
  ctrl+s           publish
  esc / ctrl+c     discard the draft`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := opts.formatter(cmd)

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.currentUser(ctx, f)
			if err != nil {
				return err
			}

			m := compose.New(ctx, a.posts, u, a.renderer, compose.WithLogger(a.logger.Named("compose")))
			if title != "" || content != "" {
				m.SetDraft(title, content)
			}

			p := tea.NewProgram(m,
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.ErrOrStderr()),
				tea.WithAltScreen(),
			)
			if _, err := p.Run(); err != nil {
				return f.Fail(ExitCommandError, "editor", err)
			}

			post, ok := m.Published()
			if !ok {
				if err := m.Err(); err != nil {
					return f.Fail(ExitFailure, "post not published", err)
				}
				return f.Result(map[string]bool{"published": false}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Draft discarded")
					return err
				})
			}
			return f.Result(post, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Published %s: %s\n", post.ID, post.Title)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "initial title")
	cmd.Flags().StringVar(&content, "content", "", "initial content markup")

	return cmd
}
