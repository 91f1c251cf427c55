package moderation

import (
	"cmp"
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forumly/forumcore/internal/domain/enums"
	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
	"github.com/forumly/forumcore/internal/domain/rules"
	"github.com/forumly/forumcore/internal/infra/metrics"
	"github.com/forumly/forumcore/internal/services/rate"
)

var ErrNotConfigured = errors.New("moderation service dependencies are not configured")

type CommentStore interface {
	ListByPost(ctx context.Context, postID string) ([]model.Comment, error)
	Get(ctx context.Context, ref model.CommentRef) (model.Comment, error)
	SetFeedback(ctx context.Context, ref model.CommentRef, feedback string) error
	MarkReported(ctx context.Context, ref model.CommentRef, reportedBy string, reportedAt time.Time, feedback string) error
	ClearReport(ctx context.Context, ref model.CommentRef) error
	Delete(ctx context.Context, ref model.CommentRef) error
	ListReported(ctx context.Context) ([]model.ReportedCommentView, error)
}

type PostStore interface {
	Get(ctx context.Context, postID string) (model.Post, error)
}

type UserStore interface {
	Get(ctx context.Context, email string) (model.User, error)
}

type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type RateLimiter interface {
	Allow(ctx context.Context, action rate.Action, userID string) (int64, bool, error)
}

type Service struct {
	comments CommentStore
	posts    PostStore
	users    UserStore
	locker   Locker
	limiter  RateLimiter
	logger   *zap.Logger
	now      func() time.Time
}

type Dependencies struct {
	Comments CommentStore
	Posts    PostStore
	Users    UserStore
	Locker   Locker
	Limiter  RateLimiter
	Logger   *zap.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		comments: deps.Comments,
		posts:    deps.Posts,
		users:    deps.Users,
		locker:   deps.Locker,
		limiter:  deps.Limiter,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) ListComments(ctx context.Context, postID string) ([]model.Comment, error) {
	if s.comments == nil {
		return nil, ErrNotConfigured
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, faults.ErrInvalidInput
	}
	return s.comments.ListByPost(ctx, postID)
}

// Classify sets the feedback tag on a comment. Only the author of the
// comment's post may classify, and only once.
func (s *Service) Classify(ctx context.Context, ref model.CommentRef, feedback string, actorID string) (model.Comment, error) {
	feedback, err := rules.NormalizeFeedback(feedback)
	if err != nil {
		return model.Comment{}, err
	}
	if err := validRef(ref); err != nil {
		return model.Comment{}, err
	}
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return model.Comment{}, err
	}
	if err := s.allow(ctx, rate.ActionClassify, actor.ID); err != nil {
		return model.Comment{}, err
	}

	var out model.Comment
	err = s.withCommentLock(ctx, ref, func(ctx context.Context) error {
		comment, post, err := s.load(ctx, ref)
		if err != nil {
			return err
		}
		if err := rules.CanClassify(comment, post, actor); err != nil {
			return err
		}
		if err := s.comments.SetFeedback(ctx, ref, feedback); err != nil {
			return err
		}
		comment.Feedback = &feedback
		out = comment
		return nil
	})
	s.record("classify", err)
	return out, err
}

// Report flags a classified comment for admin review.
func (s *Service) Report(ctx context.Context, ref model.CommentRef, actorID string) (model.Comment, error) {
	if err := validRef(ref); err != nil {
		return model.Comment{}, err
	}
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return model.Comment{}, err
	}
	if err := s.allow(ctx, rate.ActionReport, actor.ID); err != nil {
		return model.Comment{}, err
	}

	var out model.Comment
	err = s.withCommentLock(ctx, ref, func(ctx context.Context) error {
		comment, post, err := s.load(ctx, ref)
		if err != nil {
			return err
		}
		if err := rules.CanReport(comment, post, actor); err != nil {
			return err
		}

		reportedAt := s.now().UTC()
		if err := s.comments.MarkReported(ctx, ref, actor.ID, reportedAt, *comment.Feedback); err != nil {
			return err
		}
		comment.Reported = true
		comment.ReportedBy = actor.ID
		comment.ReportedAt = &reportedAt
		out = comment
		return nil
	})
	s.record("report", err)
	return out, err
}

// ListReported returns the admin queue, most recent report first. Each range
// over the sequence fetches the queue again.
func (s *Service) ListReported(ctx context.Context, actorID string) (iter.Seq2[model.ReportedCommentView, error], error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, faults.ErrForbidden
	}

	return func(yield func(model.ReportedCommentView, error) bool) {
		views, err := s.comments.ListReported(ctx)
		if err != nil {
			yield(model.ReportedCommentView{}, err)
			return
		}
		SortReported(views)
		for _, view := range views {
			if !yield(view, nil) {
				return
			}
		}
	}, nil
}

// Resolve closes a report. Delete removes the comment; Clear keeps it with
// its feedback and drops the reported flag.
func (s *Service) Resolve(ctx context.Context, ref model.CommentRef, action enums.ResolveAction, actorID string) (model.Comment, error) {
	if err := validRef(ref); err != nil {
		return model.Comment{}, err
	}
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return model.Comment{}, err
	}
	if !actor.IsAdmin() {
		return model.Comment{}, faults.ErrForbidden
	}

	var out model.Comment
	err = s.withCommentLock(ctx, ref, func(ctx context.Context) error {
		comment, err := s.comments.Get(ctx, ref)
		if err != nil {
			return err
		}
		if err := rules.CanResolve(comment, action, actor); err != nil {
			return err
		}

		switch action {
		case enums.ResolveActionDelete:
			if err := s.comments.Delete(ctx, ref); err != nil {
				return err
			}
		case enums.ResolveActionClear:
			if err := s.comments.ClearReport(ctx, ref); err != nil {
				return err
			}
			comment.Reported = false
			comment.ReportedBy = ""
			comment.ReportedAt = nil
		}
		out = comment
		return nil
	})
	s.record("resolve_"+string(action), err)
	if err == nil {
		s.logger.Info("reported comment resolved",
			zap.String("post_id", ref.PostID),
			zap.String("comment_id", ref.CommentID),
			zap.String("action", string(action)),
			zap.String("admin", actor.ID),
		)
	}
	return out, err
}

// SortReported orders views by report time, newest first, with comment id as
// tie breaker.
func SortReported(views []model.ReportedCommentView) {
	slices.SortStableFunc(views, func(a, b model.ReportedCommentView) int {
		if c := b.ReportedAt.Compare(a.ReportedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.CommentID, b.CommentID)
	})
}

func (s *Service) load(ctx context.Context, ref model.CommentRef) (model.Comment, model.Post, error) {
	comment, err := s.comments.Get(ctx, ref)
	if err != nil {
		return model.Comment{}, model.Post{}, err
	}
	post, err := s.posts.Get(ctx, ref.PostID)
	if err != nil {
		return model.Comment{}, model.Post{}, err
	}
	return comment, post, nil
}

func (s *Service) actor(ctx context.Context, actorID string) (model.Actor, error) {
	if s.comments == nil || s.posts == nil || s.users == nil {
		return model.Actor{}, ErrNotConfigured
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return model.Actor{}, faults.ErrForbidden
	}
	user, err := s.users.Get(ctx, actorID)
	if err != nil {
		if errors.Is(err, faults.ErrUserNotFound) {
			return model.Actor{}, faults.ErrForbidden
		}
		return model.Actor{}, err
	}
	return model.Actor{ID: actorID, DisplayName: user.DisplayName, Role: user.Role}, nil
}

func (s *Service) withCommentLock(ctx context.Context, ref model.CommentRef, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, "comment:"+ref.PostID+":"+ref.CommentID, fn)
}

func (s *Service) allow(ctx context.Context, action rate.Action, userID string) error {
	if s.limiter == nil {
		return nil
	}
	retryAfter, allowed, err := s.limiter.Allow(ctx, action, userID)
	if err != nil {
		s.logger.Warn("rate limiter unavailable", zap.String("action", string(action)), zap.Error(err))
		return nil
	}
	if !allowed {
		return &faults.RateLimitError{RetryAfterSec: retryAfter}
	}
	return nil
}

func (s *Service) record(action string, err error) {
	metrics.ModerationActions.WithLabelValues(action, metrics.Outcome(err)).Inc()
}

func validRef(ref model.CommentRef) error {
	if strings.TrimSpace(ref.PostID) == "" || strings.TrimSpace(ref.CommentID) == "" {
		return faults.ErrInvalidInput
	}
	return nil
}
