package posts

import (
	"errors"
	"strings"
	"time"
)

// TimeLayout is the createdAt wire format: ISO-8601 UTC with milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// emptyEditorMarkup is what a cleared rich-text editor serializes to.
const emptyEditorMarkup = "<p><br></p>"

var (
	// ErrCorrupt is returned in strict mode when the stored collection
	// cannot be decoded.
	ErrCorrupt = errors.New("posts: stored collection is corrupt")

	// ErrTitleRequired rejects a draft with a blank title.
	ErrTitleRequired = errors.New("title is required")

	// ErrContentEmpty rejects a draft with no content.
	ErrContentEmpty = errors.New("content cannot be empty")

	// ErrForbidden is returned when a user asks for another author's post.
	ErrForbidden = errors.New("you don't have permission to view this post")
)

// Post is a single authored article. Posts are immutable once created.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is the identity supplied by the session layer. Only ID is used as
// the author key.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ValidateDraft checks a draft before it is handed to Create.
func ValidateDraft(title, content string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(content) == "" || content == emptyEditorMarkup {
		return ErrContentEmpty
	}
	return nil
}

// CanView reports whether u may view p. Only the author may.
func CanView(p Post, u User) bool {
	return p.AuthorID != "" && p.AuthorID == u.ID
}
