package dto

import (
	"time"

	"github.com/forumly/forumcore/internal/domain/model"
)

type ClassifyRequest struct {
	Feedback string `json:"feedback" validate:"required,max=64"`
}

type ResolveRequest struct {
	Action string `json:"action" validate:"required,max=16"`
}

type CommentResponse struct {
	ID          string     `json:"id"`
	PostID      string     `json:"post_id"`
	AuthorID    string     `json:"author_id"`
	AuthorName  string     `json:"author_name,omitempty"`
	AuthorImage string     `json:"author_image,omitempty"`
	Text        string     `json:"text"`
	CreatedAt   time.Time  `json:"created_at"`
	Feedback    *string    `json:"feedback"`
	Reported    bool       `json:"reported"`
	ReportedBy  string     `json:"reported_by,omitempty"`
	ReportedAt  *time.Time `json:"reported_at,omitempty"`
}

type CommentListResponse struct {
	Items []CommentResponse `json:"items"`
}

type ReportedListResponse struct {
	Items []model.ReportedCommentView `json:"items"`
}

type ResolveResponse struct {
	Action  string           `json:"action"`
	Comment *CommentResponse `json:"comment,omitempty"`
}

type FeedbackTagsResponse struct {
	Items []string `json:"items"`
}

func CommentFromModel(comment model.Comment) CommentResponse {
	return CommentResponse{
		ID:          comment.ID,
		PostID:      comment.PostID,
		AuthorID:    comment.AuthorID,
		AuthorName:  comment.AuthorName,
		AuthorImage: comment.AuthorImage,
		Text:        comment.Text,
		CreatedAt:   comment.CreatedAt,
		Feedback:    comment.Feedback,
		Reported:    comment.Reported,
		ReportedBy:  comment.ReportedBy,
		ReportedAt:  comment.ReportedAt,
	}
}
