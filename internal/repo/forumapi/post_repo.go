package forumapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
)

type PostRepo struct {
	client *Client
}

func NewPostRepo(client *Client) *PostRepo {
	return &PostRepo{client: client}
}

type postDTO struct {
	ID          string     `json:"_id"`
	AuthorEmail string     `json:"authorEmail"`
	AuthorName  string     `json:"authorName"`
	Title       string     `json:"title"`
	CreatedAt   *time.Time `json:"createdAt"`
}

func (r *PostRepo) Get(ctx context.Context, postID string) (model.Post, error) {
	var response postDTO
	if err := r.client.DoJSON(ctx, http.MethodGet, "/posts/"+pathEscape(postID), nil, &response); err != nil {
		return model.Post{}, mapStatus(err, faults.ErrPostNotFound)
	}
	if strings.TrimSpace(response.ID) == "" && strings.TrimSpace(response.AuthorEmail) == "" {
		return model.Post{}, faults.ErrPostNotFound
	}

	post := response.toModel()
	if post.ID == "" {
		post.ID = postID
	}
	return post, nil
}

// CountByAuthor counts the posts authored by email.
func (r *PostRepo) CountByAuthor(ctx context.Context, email string) (int, error) {
	query := url.Values{}
	query.Set("email", strings.TrimSpace(email))

	var response []postDTO
	if err := r.client.DoJSON(ctx, http.MethodGet, "/posts?"+query.Encode(), nil, &response); err != nil {
		return 0, mapStatus(err, nil)
	}
	return len(response), nil
}

func (d postDTO) toModel() model.Post {
	post := model.Post{
		ID:          strings.TrimSpace(d.ID),
		AuthorEmail: strings.TrimSpace(d.AuthorEmail),
		AuthorName:  d.AuthorName,
		Title:       d.Title,
	}
	if d.CreatedAt != nil {
		post.CreatedAt = d.CreatedAt.UTC()
	}
	return post
}
