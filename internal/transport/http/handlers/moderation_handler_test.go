package handlers

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forumly/forumcore/internal/domain/enums"
	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
	"github.com/forumly/forumcore/internal/transport/http/dto"
	httperrors "github.com/forumly/forumcore/internal/transport/http/errors"
)

func TestReportMissingFeedbackIsBadRequest(t *testing.T) {
	handler := NewModerationHandler(&stubModeration{reportErr: faults.ErrMissingFeedback})

	req := httptest.NewRequest(http.MethodPost, "/posts/p1/comments/c1/report", nil)
	req = withIdentity(req, "owner@x.io")
	req = req.WithContext(withURLParams(req.Context(), "post_id", "p1", "comment_id", "c1"))
	rr := httptest.NewRecorder()
	handler.Report(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	var payload httperrors.APIError
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected code: %q", payload.Code)
	}
}

func TestReportTwiceConflicts(t *testing.T) {
	handler := NewModerationHandler(&stubModeration{reportErr: faults.ErrAlreadyReported})

	req := httptest.NewRequest(http.MethodPost, "/posts/p1/comments/c1/report", nil)
	req = withIdentity(req, "owner@x.io")
	req = req.WithContext(withURLParams(req.Context(), "post_id", "p1", "comment_id", "c1"))
	rr := httptest.NewRecorder()
	handler.Report(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusConflict)
	}
}

func TestClassifyValidatesBody(t *testing.T) {
	svc := &stubModeration{}
	handler := NewModerationHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/posts/p1/comments/c1/classify", strings.NewReader(`{"feedback":""}`))
	req = withIdentity(req, "owner@x.io")
	req = req.WithContext(withURLParams(req.Context(), "post_id", "p1", "comment_id", "c1"))
	rr := httptest.NewRecorder()
	handler.Classify(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	if svc.classified != "" {
		t.Fatalf("expected service not to be called")
	}
}

func TestClassifyForwardsFeedback(t *testing.T) {
	svc := &stubModeration{}
	handler := NewModerationHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/posts/p1/comments/c1/classify", strings.NewReader(`{"feedback":"Spam"}`))
	req = withIdentity(req, "owner@x.io")
	req = req.WithContext(withURLParams(req.Context(), "post_id", "p1", "comment_id", "c1"))
	rr := httptest.NewRecorder()
	handler.Classify(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	var payload dto.CommentResponse
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Feedback == nil || *payload.Feedback != "Spam" {
		t.Fatalf("unexpected feedback: %v", payload.Feedback)
	}
}

func TestListReportedKeepsServiceOrder(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubModeration{reported: []model.ReportedCommentView{
		{CommentID: "c2", PostID: "p1", ReportedAt: at.Add(time.Hour)},
		{CommentID: "c1", PostID: "p1", ReportedAt: at},
	}}
	handler := NewModerationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/admin/reported-comments", nil)
	req = withIdentity(req, "admin@x.io")
	rr := httptest.NewRecorder()
	handler.ListReported(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	var payload dto.ReportedListResponse
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 2 || payload.Items[0].CommentID != "c2" {
		t.Fatalf("unexpected items: %+v", payload.Items)
	}
}

func TestResolveRejectsUnknownAction(t *testing.T) {
	svc := &stubModeration{}
	handler := NewModerationHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/posts/p1/comments/c1/resolve", strings.NewReader(`{"action":"ban"}`))
	req = withIdentity(req, "admin@x.io")
	req = req.WithContext(withURLParams(req.Context(), "post_id", "p1", "comment_id", "c1"))
	rr := httptest.NewRecorder()
	handler.Resolve(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	if svc.resolved != "" {
		t.Fatalf("expected service not to be called")
	}
}

func TestResolveDelete(t *testing.T) {
	svc := &stubModeration{}
	handler := NewModerationHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/posts/p1/comments/c1/resolve", strings.NewReader(`{"action":"delete"}`))
	req = withIdentity(req, "admin@x.io")
	req = req.WithContext(withURLParams(req.Context(), "post_id", "p1", "comment_id", "c1"))
	rr := httptest.NewRecorder()
	handler.Resolve(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if svc.resolved != enums.ResolveActionDelete {
		t.Fatalf("unexpected action: %q", svc.resolved)
	}
}

func withURLParam(ctx context.Context, key, value string) context.Context {
	return withURLParams(ctx, key, value)
}

func withURLParams(ctx context.Context, pairs ...string) context.Context {
	routeCtx := chi.NewRouteContext()
	for i := 0; i+1 < len(pairs); i += 2 {
		routeCtx.URLParams.Add(pairs[i], pairs[i+1])
	}
	return context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
}

type stubModeration struct {
	reportErr  error
	classified string
	resolved   enums.ResolveAction
	reported   []model.ReportedCommentView
}

func (s *stubModeration) ListComments(_ context.Context, _ string) ([]model.Comment, error) {
	return nil, nil
}

func (s *stubModeration) Classify(_ context.Context, ref model.CommentRef, feedback string, _ string) (model.Comment, error) {
	s.classified = feedback
	return model.Comment{ID: ref.CommentID, PostID: ref.PostID, Feedback: &feedback}, nil
}

func (s *stubModeration) Report(_ context.Context, ref model.CommentRef, actorID string) (model.Comment, error) {
	if s.reportErr != nil {
		return model.Comment{}, s.reportErr
	}
	return model.Comment{ID: ref.CommentID, PostID: ref.PostID, Reported: true, ReportedBy: actorID}, nil
}

func (s *stubModeration) ListReported(_ context.Context, _ string) (iter.Seq2[model.ReportedCommentView, error], error) {
	return func(yield func(model.ReportedCommentView, error) bool) {
		for _, view := range s.reported {
			if !yield(view, nil) {
				return
			}
		}
	}, nil
}

func (s *stubModeration) Resolve(_ context.Context, ref model.CommentRef, action enums.ResolveAction, _ string) (model.Comment, error) {
	s.resolved = action
	return model.Comment{ID: ref.CommentID, PostID: ref.PostID}, nil
}
