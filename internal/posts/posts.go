// Package posts is the content store the authorization rules are exercised
// against. Visibility and ownership rules live here so HTTP handlers only
// translate between the wire and these calls.
package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatekeeper.dev/internal/rbac"
	"gatekeeper.dev/internal/token"
)

var (
	ErrNotFound     = errors.New("posts: not found")
	ErrInvalidInput = errors.New("posts: invalid input")
)

// Status is a post's publication state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// ParseStatus validates a publication state string.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.TrimSpace(strings.ToLower(s))) {
	case StatusDraft:
		return StatusDraft, true
	case StatusPublished:
		return StatusPublished, true
	default:
		return "", false
	}
}

// Post is one content record.
type Post struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store describes persistence for posts.
type Store interface {
	Create(ctx context.Context, p Post) (Post, error)
	Find(ctx context.Context, id string) (Post, error)
	List(ctx context.Context) ([]Post, error)
	Update(ctx context.Context, id string, title, content string, status Status) (Post, error)
	Delete(ctx context.Context, id string) error
}

// VisibleTo reports whether ident may see p: viewers get published posts
// only, editors additionally their own drafts, admins everything.
func VisibleTo(ident token.Identity, p Post) bool {
	switch ident.Role {
	case rbac.RoleAdmin:
		return true
	case rbac.RoleEditor:
		return p.Status == StatusPublished || p.AuthorID == ident.SubjectID
	default:
		return p.Status == StatusPublished
	}
}

// CanModify reports whether ident may update or delete p. Editors are
// limited to their own posts; this is the resource-specific rule layered on
// top of the gate, not a replacement for it.
func CanModify(ident token.Identity, p Post) bool {
	switch ident.Role {
	case rbac.RoleAdmin:
		return true
	case rbac.RoleEditor:
		return p.AuthorID == ident.SubjectID
	default:
		return false
	}
}

func validate(title, content string, status Status) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if status != StatusDraft && status != StatusPublished {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return nil
}
