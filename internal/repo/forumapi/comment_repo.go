package forumapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
)

// CommentRepo is the comment store.
type CommentRepo struct {
	client *Client
}

func NewCommentRepo(client *Client) *CommentRepo {
	return &CommentRepo{client: client}
}

type commentDTO struct {
	ID              string     `json:"_id"`
	PostID          string     `json:"postId"`
	AuthorEmail     string     `json:"authorEmail"`
	AuthorName      string     `json:"authorName"`
	AuthorImage     string     `json:"authorImage"`
	Text            string     `json:"text"`
	CreatedAt       *time.Time `json:"createdAt"`
	Feedback        *string    `json:"feedback"`
	Reported        bool       `json:"reported"`
	ReportedByEmail string     `json:"reportedByEmail"`
	ReportedAt      *time.Time `json:"reportedAt"`
}

type reportPatchDTO struct {
	Reported        bool      `json:"reported"`
	ReportedByEmail string    `json:"reportedByEmail"`
	ReportedAt      time.Time `json:"reportedAt"`
	Feedback        string    `json:"feedback"`
}

type deleteResponseDTO struct {
	DeletedCount int64 `json:"deletedCount"`
}

func (r *CommentRepo) ListByPost(ctx context.Context, postID string) ([]model.Comment, error) {
	var response []commentDTO
	if err := r.client.DoJSON(ctx, http.MethodGet, "/comments/"+pathEscape(postID), nil, &response); err != nil {
		return nil, mapStatus(err, faults.ErrPostNotFound)
	}

	comments := make([]model.Comment, 0, len(response))
	for _, item := range response {
		comment := item.toModel()
		if comment.PostID == "" {
			comment.PostID = postID
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// Get fetches a single comment through its post's comment list.
func (r *CommentRepo) Get(ctx context.Context, ref model.CommentRef) (model.Comment, error) {
	comments, err := r.ListByPost(ctx, ref.PostID)
	if err != nil {
		if errors.Is(err, faults.ErrPostNotFound) {
			return model.Comment{}, faults.ErrCommentNotFound
		}
		return model.Comment{}, err
	}
	for _, comment := range comments {
		if comment.ID == ref.CommentID {
			return comment, nil
		}
	}
	return model.Comment{}, faults.ErrCommentNotFound
}

func (r *CommentRepo) SetFeedback(ctx context.Context, ref model.CommentRef, feedback string) error {
	request := map[string]string{"feedback": feedback}
	err := r.client.DoJSON(ctx, http.MethodPatch, "/comments/"+pathEscape(ref.CommentID)+"/feedback", request, nil)
	return mapStatus(err, faults.ErrCommentNotFound)
}

func (r *CommentRepo) MarkReported(ctx context.Context, ref model.CommentRef, reportedBy string, reportedAt time.Time, feedback string) error {
	request := reportPatchDTO{
		Reported:        true,
		ReportedByEmail: reportedBy,
		ReportedAt:      reportedAt.UTC(),
		Feedback:        feedback,
	}
	err := r.client.DoJSON(ctx, http.MethodPatch, "/comments/"+pathEscape(ref.CommentID)+"/report", request, nil)
	return mapStatus(err, faults.ErrCommentNotFound)
}

func (r *CommentRepo) ClearReport(ctx context.Context, ref model.CommentRef) error {
	err := r.client.DoJSON(ctx, http.MethodPatch, "/comments/"+pathEscape(ref.CommentID)+"/unreport", nil, nil)
	return mapStatus(err, faults.ErrCommentNotFound)
}

func (r *CommentRepo) Delete(ctx context.Context, ref model.CommentRef) error {
	var response deleteResponseDTO
	err := r.client.DoJSON(ctx, http.MethodDelete, "/admin/comments/"+pathEscape(ref.CommentID), nil, &response)
	if err != nil {
		return mapStatus(err, faults.ErrCommentNotFound)
	}
	if response.DeletedCount == 0 {
		return faults.ErrCommentNotFound
	}
	return nil
}

// ListReported returns the backend's reported projection, unordered.
func (r *CommentRepo) ListReported(ctx context.Context) ([]model.ReportedCommentView, error) {
	var response []commentDTO
	if err := r.client.DoJSON(ctx, http.MethodGet, "/admin/reported-comments", nil, &response); err != nil {
		return nil, mapStatus(err, nil)
	}

	views := make([]model.ReportedCommentView, 0, len(response))
	for _, item := range response {
		views = append(views, item.toReportedView())
	}
	return views, nil
}

func (d commentDTO) toModel() model.Comment {
	comment := model.Comment{
		ID:          strings.TrimSpace(d.ID),
		PostID:      strings.TrimSpace(d.PostID),
		AuthorID:    strings.TrimSpace(d.AuthorEmail),
		AuthorName:  d.AuthorName,
		AuthorImage: d.AuthorImage,
		Text:        d.Text,
		Reported:    d.Reported,
		ReportedBy:  d.ReportedByEmail,
		ReportedAt:  d.ReportedAt,
	}
	if d.CreatedAt != nil {
		comment.CreatedAt = d.CreatedAt.UTC()
	}
	if d.Feedback != nil && strings.TrimSpace(*d.Feedback) != "" {
		feedback := strings.TrimSpace(*d.Feedback)
		comment.Feedback = &feedback
	}
	return comment
}

// toReportedView falls back to createdAt for legacy rows without reportedAt.
func (d commentDTO) toReportedView() model.ReportedCommentView {
	view := model.ReportedCommentView{
		CommentID:       strings.TrimSpace(d.ID),
		PostID:          strings.TrimSpace(d.PostID),
		Text:            d.Text,
		AuthorEmail:     d.AuthorEmail,
		AuthorName:      d.AuthorName,
		ReportedByEmail: d.ReportedByEmail,
	}
	if d.Feedback != nil {
		view.Feedback = strings.TrimSpace(*d.Feedback)
	}
	switch {
	case d.ReportedAt != nil:
		view.ReportedAt = d.ReportedAt.UTC()
	case d.CreatedAt != nil:
		view.ReportedAt = d.CreatedAt.UTC()
	}
	return view
}
