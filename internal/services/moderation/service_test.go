package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forumly/forumcore/internal/domain/enums"
	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
)

const (
	owner  = "owner@x.io"
	viewer = "viewer@x.io"
	admin  = "admin@x.io"
)

var c1 = model.CommentRef{PostID: "p1", CommentID: "c1"}

func TestReportRequiresClassification(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	if _, err := svc.Report(ctx, c1, owner); !errors.Is(err, faults.ErrMissingFeedback) {
		t.Fatalf("expected ErrMissingFeedback, got %v", err)
	}

	classified, err := svc.Classify(ctx, c1, "Spam", owner)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if classified.Feedback == nil || *classified.Feedback != "Spam" {
		t.Fatalf("expected feedback Spam, got %v", classified.Feedback)
	}

	reported, err := svc.Report(ctx, c1, owner)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !reported.Reported || reported.ReportedBy != owner || reported.ReportedAt == nil {
		t.Fatalf("unexpected reported comment: %+v", reported)
	}
	if !store.comments["c1"].Reported {
		t.Fatalf("expected store to hold reported flag")
	}

	if _, err := svc.Report(ctx, c1, owner); !errors.Is(err, faults.ErrAlreadyReported) {
		t.Fatalf("expected ErrAlreadyReported, got %v", err)
	}
}

func TestClassifyOnlyOnce(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Classify(ctx, c1, enums.FeedbackHelpful, owner); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if _, err := svc.Classify(ctx, c1, enums.FeedbackNeutral, owner); !errors.Is(err, faults.ErrAlreadyClassified) {
		t.Fatalf("expected ErrAlreadyClassified, got %v", err)
	}
}

func TestClassifyRejectsNonOwnerWithoutMutation(t *testing.T) {
	svc, store := newTestService()

	for _, actorID := range []string{viewer, admin, ""} {
		if _, err := svc.Classify(context.Background(), c1, "Spam", actorID); !errors.Is(err, faults.ErrForbidden) {
			t.Fatalf("actor %q: expected ErrForbidden, got %v", actorID, err)
		}
	}
	if store.comments["c1"].Feedback != nil {
		t.Fatalf("expected feedback untouched")
	}
	if store.writes != 0 {
		t.Fatalf("expected no writes, got %d", store.writes)
	}
}

func TestClassifyRejectsEmptyFeedback(t *testing.T) {
	svc, store := newTestService()

	if _, err := svc.Classify(context.Background(), c1, "   ", owner); !errors.Is(err, faults.ErrInvalidFeedback) {
		t.Fatalf("expected ErrInvalidFeedback, got %v", err)
	}
	if store.writes != 0 {
		t.Fatalf("expected no writes, got %d", store.writes)
	}
}

func TestReportForbiddenForStranger(t *testing.T) {
	svc, store := newTestService()
	store.setFeedback("c1", "Spam")

	if _, err := svc.Report(context.Background(), c1, viewer); !errors.Is(err, faults.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if store.comments["c1"].Reported {
		t.Fatalf("expected comment to stay unreported")
	}
}

func TestResolveDeleteRemovesComment(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	store.setFeedback("c1", "Spam")
	if _, err := svc.Report(ctx, c1, owner); err != nil {
		t.Fatalf("report: %v", err)
	}

	if _, err := svc.Resolve(ctx, c1, enums.ResolveActionDelete, admin); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if ids := reportedIDs(t, svc); len(ids) != 0 {
		t.Fatalf("expected empty queue, got %v", ids)
	}
	comments, err := svc.ListComments(ctx, "p1")
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	for _, comment := range comments {
		if comment.ID == "c1" {
			t.Fatalf("expected c1 to be gone from the post")
		}
	}
	if _, err := store.Get(ctx, c1); !errors.Is(err, faults.ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}
}

func TestResolveClearKeepsFeedback(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	store.setFeedback("c1", "Spam")
	if _, err := svc.Report(ctx, c1, owner); err != nil {
		t.Fatalf("report: %v", err)
	}

	cleared, err := svc.Resolve(ctx, c1, enums.ResolveActionClear, admin)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cleared.Reported || cleared.Feedback == nil || *cleared.Feedback != "Spam" {
		t.Fatalf("unexpected cleared comment: %+v", cleared)
	}
	if ids := reportedIDs(t, svc); len(ids) != 0 {
		t.Fatalf("expected empty queue, got %v", ids)
	}

	stored, err := store.Get(ctx, c1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Reported || *stored.Feedback != "Spam" {
		t.Fatalf("unexpected stored comment: %+v", stored)
	}

	if _, err := svc.Resolve(ctx, c1, enums.ResolveActionClear, admin); !errors.Is(err, faults.ErrNotReported) {
		t.Fatalf("expected ErrNotReported, got %v", err)
	}
}

func TestResolveRequiresAdmin(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	store.setFeedback("c1", "Spam")
	if _, err := svc.Report(ctx, c1, owner); err != nil {
		t.Fatalf("report: %v", err)
	}

	if _, err := svc.Resolve(ctx, c1, enums.ResolveActionDelete, owner); !errors.Is(err, faults.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, ok := store.comments["c1"]; !ok {
		t.Fatalf("expected comment to survive")
	}
	if _, err := svc.Resolve(ctx, c1, enums.ResolveAction("ban"), admin); !errors.Is(err, faults.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestListReportedOrderAndRestart(t *testing.T) {
	svc, store := newTestService()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.addReported("c2", base.Add(time.Minute))
	store.addReported("c3", base.Add(time.Hour))
	store.addReported("c4", base)

	first := reportedIDs(t, svc)
	want := []string{"c3", "c2", "c4"}
	if len(first) != len(want) {
		t.Fatalf("expected %v, got %v", want, first)
	}
	for i := range want {
		if first[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, first)
		}
	}

	store.addReported("c5", base.Add(2*time.Hour))
	second := reportedIDs(t, svc)
	if len(second) != 4 || second[0] != "c5" {
		t.Fatalf("expected restart to refetch, got %v", second)
	}
}

func TestListReportedRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.ListReported(context.Background(), owner); !errors.Is(err, faults.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSortReportedTieBreak(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	views := []model.ReportedCommentView{
		{CommentID: "b", ReportedAt: at},
		{CommentID: "a", ReportedAt: at},
	}
	SortReported(views)
	if views[0].CommentID != "a" {
		t.Fatalf("expected tie broken by id, got %s", views[0].CommentID)
	}
}

func reportedIDs(t *testing.T, svc *Service) []string {
	t.Helper()
	seq, err := svc.ListReported(context.Background(), admin)
	if err != nil {
		t.Fatalf("list reported: %v", err)
	}
	ids := make([]string, 0)
	for view, err := range seq {
		if err != nil {
			t.Fatalf("iterate reported: %v", err)
		}
		ids = append(ids, view.CommentID)
	}
	return ids
}

func newTestService() (*Service, *memCommentStore) {
	store := &memCommentStore{comments: map[string]model.Comment{
		"c1": {ID: "c1", PostID: "p1", AuthorID: viewer, Text: "buy now", CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
	}}
	posts := stubPosts{"p1": {ID: "p1", AuthorEmail: owner, Title: "hello"}}
	users := stubUsers{
		owner:  {Email: owner, Role: enums.RoleUser},
		viewer: {Email: viewer, Role: enums.RoleUser},
		admin:  {Email: admin, Role: enums.RoleAdmin},
	}

	svc := NewService(Dependencies{Comments: store, Posts: posts, Users: users})
	svc.now = func() time.Time { return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) }
	return svc, store
}

type memCommentStore struct {
	comments map[string]model.Comment
	writes   int
}

func (s *memCommentStore) setFeedback(id, feedback string) {
	comment := s.comments[id]
	comment.Feedback = &feedback
	s.comments[id] = comment
}

func (s *memCommentStore) addReported(id string, at time.Time) {
	feedback := "Spam"
	s.comments[id] = model.Comment{ID: id, PostID: "p1", AuthorID: viewer, Feedback: &feedback, Reported: true, ReportedBy: owner, ReportedAt: &at}
}

func (s *memCommentStore) ListByPost(_ context.Context, postID string) ([]model.Comment, error) {
	out := make([]model.Comment, 0)
	for _, comment := range s.comments {
		if comment.PostID == postID {
			out = append(out, comment)
		}
	}
	return out, nil
}

func (s *memCommentStore) Get(_ context.Context, ref model.CommentRef) (model.Comment, error) {
	comment, ok := s.comments[ref.CommentID]
	if !ok || comment.PostID != ref.PostID {
		return model.Comment{}, faults.ErrCommentNotFound
	}
	return comment, nil
}

func (s *memCommentStore) SetFeedback(_ context.Context, ref model.CommentRef, feedback string) error {
	s.writes++
	s.setFeedback(ref.CommentID, feedback)
	return nil
}

func (s *memCommentStore) MarkReported(_ context.Context, ref model.CommentRef, reportedBy string, reportedAt time.Time, _ string) error {
	s.writes++
	comment := s.comments[ref.CommentID]
	comment.Reported = true
	comment.ReportedBy = reportedBy
	comment.ReportedAt = &reportedAt
	s.comments[ref.CommentID] = comment
	return nil
}

func (s *memCommentStore) ClearReport(_ context.Context, ref model.CommentRef) error {
	s.writes++
	comment := s.comments[ref.CommentID]
	comment.Reported = false
	comment.ReportedBy = ""
	comment.ReportedAt = nil
	s.comments[ref.CommentID] = comment
	return nil
}

func (s *memCommentStore) Delete(_ context.Context, ref model.CommentRef) error {
	s.writes++
	if _, ok := s.comments[ref.CommentID]; !ok {
		return faults.ErrCommentNotFound
	}
	delete(s.comments, ref.CommentID)
	return nil
}

func (s *memCommentStore) ListReported(_ context.Context) ([]model.ReportedCommentView, error) {
	out := make([]model.ReportedCommentView, 0)
	for _, comment := range s.comments {
		if !comment.Reported {
			continue
		}
		view := model.ReportedCommentView{
			CommentID:       comment.ID,
			PostID:          comment.PostID,
			Text:            comment.Text,
			AuthorEmail:     comment.AuthorID,
			ReportedByEmail: comment.ReportedBy,
			ReportedAt:      comment.CreatedAt,
		}
		if comment.Feedback != nil {
			view.Feedback = *comment.Feedback
		}
		if comment.ReportedAt != nil {
			view.ReportedAt = *comment.ReportedAt
		}
		out = append(out, view)
	}
	return out, nil
}

type stubPosts map[string]model.Post

func (s stubPosts) Get(_ context.Context, postID string) (model.Post, error) {
	post, ok := s[postID]
	if !ok {
		return model.Post{}, faults.ErrPostNotFound
	}
	return post, nil
}

type stubUsers map[string]model.User

func (s stubUsers) Get(_ context.Context, email string) (model.User, error) {
	user, ok := s[email]
	if !ok {
		return model.User{}, faults.ErrUserNotFound
	}
	return user, nil
}
