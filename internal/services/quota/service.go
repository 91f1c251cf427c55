package quota

import (
	"context"
	"strings"

	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
	"github.com/forumly/forumcore/internal/domain/rules"
)

type UserStore interface {
	Get(ctx context.Context, email string) (model.User, error)
}

type PostCounter interface {
	CountByAuthor(ctx context.Context, email string) (int, error)
}

type Service struct {
	users     UserStore
	posts     PostCounter
	freeLimit int
}

// PostQuota is the posting allowance of one user. Remaining is -1 for members.
type PostQuota struct {
	IsMember  bool `json:"is_member"`
	PostCount int  `json:"post_count"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	CanPost   bool `json:"can_post"`
}

func NewService(users UserStore, posts PostCounter, freeLimit int) *Service {
	if freeLimit <= 0 {
		freeLimit = rules.FreePostLimit
	}
	return &Service{users: users, posts: posts, freeLimit: freeLimit}
}

func (s *Service) PostQuota(ctx context.Context, userID string) (PostQuota, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return PostQuota{}, faults.ErrInvalidInput
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return PostQuota{}, err
	}
	count, err := s.posts.CountByAuthor(ctx, userID)
	if err != nil {
		return PostQuota{}, err
	}

	remaining, allowed := rules.PostQuota(user.Entitlement.IsMember, count, s.freeLimit)
	return PostQuota{
		IsMember:  user.Entitlement.IsMember,
		PostCount: count,
		Limit:     s.freeLimit,
		Remaining: remaining,
		CanPost:   allowed,
	}, nil
}
