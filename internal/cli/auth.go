package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quill/internal/posts"
	"github.com/roach88/quill/internal/session"
)

// userView is the JSON form of a user.
type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func newUserView(u posts.User) userView {
	return userView{ID: u.ID, Username: u.Username}
}

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in as a user",
		Long: `Log in as a user. Any non-empty username and password are accepted.

The password is read from the first line of stdin when --password is not
given.

Examples:
  quill login alice --password secret
  echo secret | quill login alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			if password == "" {
				p, err := readLine(cmd.InOrStdin())
				if err != nil {
					return f.Fail(ExitCommandError, "read password", err)
				}
				password = p
			}

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.sessions.Login(cmd.Context(), args[0], password)
			if errors.Is(err, session.ErrMissingCredentials) {
				return f.Fail(ExitFailure, "login failed", err)
			}
			if err != nil {
				return f.Fail(ExitCommandError, "login failed", err)
			}

			return f.Result(newUserView(u), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Logged in as %s (%s)\n", u.Username, u.ID)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when omitted)")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sessions.Logout(cmd.Context()); err != nil {
				return f.Fail(ExitCommandError, "logout failed", err)
			}
			return f.Result(map[string]bool{"logged_out": true}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, "Logged out")
				return err
			})
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.currentUser(cmd.Context(), f)
			if err != nil {
				return err
			}
			return f.Result(newUserView(u), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s (%s)\n", u.Username, u.ID)
				return err
			})
		},
	}
}

// readLine returns the first line of r without its line ending.
func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if sc.Scan() {
		return strings.TrimRight(sc.Text(), "\r"), nil
	}
	return "", sc.Err()
}
