package model

import (
	"strings"
	"time"

	"github.com/forumly/forumcore/internal/domain/enums"
)

// CommentRef addresses a comment; the backend lists comments per post.
type CommentRef struct {
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id"`
}

type Comment struct {
	ID          string     `json:"id"`
	PostID      string     `json:"post_id"`
	AuthorID    string     `json:"author_id"`
	AuthorName  string     `json:"author_name,omitempty"`
	AuthorImage string     `json:"author_image,omitempty"`
	Text        string     `json:"text"`
	CreatedAt   time.Time  `json:"created_at"`
	Feedback    *string    `json:"feedback,omitempty"`
	Reported    bool       `json:"reported"`
	ReportedBy  string     `json:"reported_by,omitempty"`
	ReportedAt  *time.Time `json:"reported_at,omitempty"`
}

func (c Comment) Ref() CommentRef {
	return CommentRef{PostID: c.PostID, CommentID: c.ID}
}

func (c Comment) HasFeedback() bool {
	return c.Feedback != nil && *c.Feedback != ""
}

// ReportedCommentView is the admin projection of a reported comment.
type ReportedCommentView struct {
	CommentID       string    `json:"comment_id"`
	PostID          string    `json:"post_id"`
	Text            string    `json:"text"`
	Feedback        string    `json:"feedback"`
	AuthorEmail     string    `json:"author_email"`
	AuthorName      string    `json:"author_name,omitempty"`
	ReportedByEmail string    `json:"reported_by_email"`
	ReportedAt      time.Time `json:"reported_at"`
}

func (v ReportedCommentView) Ref() CommentRef {
	return CommentRef{PostID: v.PostID, CommentID: v.CommentID}
}

type Post struct {
	ID          string
	AuthorEmail string
	AuthorName  string
	Title       string
	CreatedAt   time.Time
}

// Actor is the identity performing an operation.
type Actor struct {
	ID          string
	DisplayName string
	Role        string
}

func (a Actor) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(a.Role), enums.RoleAdmin)
}
