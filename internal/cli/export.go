package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/roach88/quill/internal/posts"
	"github.com/roach88/quill/internal/render"
)

// exportWorkers bounds how many posts are converted concurrently.
const exportWorkers = 4

// frontMatter is the YAML header of an exported post.
type frontMatter struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Author    string `yaml:"author"`
	CreatedAt string `yaml:"created_at"`
}

// ExportResult reports what export wrote.
type ExportResult struct {
	Dir   string   `json:"dir"`
	Files []string `json:"files"`
}

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Export your posts as Markdown files",
		Long: `Write every post of the logged-in user to <dir>/<id>.md as Markdown
with a YAML front matter header.

Examples:
  quill export ./backup`,
		Args: cobra.ExactArgs(1),
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
			list, err := a.posts.ListByAuthor(ctx, u.ID)
			if err != nil {
				return f.Fail(ExitCommandError, "list posts", err)
			}

			files, err := exportPosts(ctx, a.renderer, a.logger, args[0], u.Username, list)
			if err != nil {
				return f.Fail(ExitCommandError, "export", err)
			}

			result := ExportResult{Dir: args[0], Files: files}
			return f.Result(result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Exported %d posts to %s\n", len(files), args[0])
				return err
			})
		},
	}
}

// exportPosts writes one Markdown file per post into dir and returns the
// file names in list order.
func exportPosts(ctx context.Context, r *render.Renderer, logger *zap.Logger, dir, author string, list []posts.Post) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	files := make([]string, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportWorkers)

	for i, p := range list {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := markdownDocument(r, author, p)
			if err != nil {
				return fmt.Errorf("post %s: %w", p.ID, err)
			}
			name := p.ID + ".md"
			if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
				return fmt.Errorf("post %s: %w", p.ID, err)
			}
			files[i] = name
			logger.Debug("exported post", zap.String("id", p.ID), zap.String("file", name))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// markdownDocument renders a post as front matter followed by a Markdown
// body headed by the title.
func markdownDocument(r *render.Renderer, author string, p posts.Post) ([]byte, error) {
	body, err := r.Markdown(p.Content)
	if err != nil {
		return nil, err
	}
	header, err := yaml.Marshal(frontMatter{
		ID:        p.ID,
		Title:     p.Title,
		Author:    author,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s\n\n", p.Title)
	buf.WriteString(body)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}
