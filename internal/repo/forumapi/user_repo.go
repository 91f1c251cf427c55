package forumapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
)

// UserRepo is the entitlement store. Reads go through a short-lived snapshot
// cache; Refresh bypasses it and membership writes invalidate it.
type UserRepo struct {
	client *Client
	cache  *expirable.LRU[string, model.User]
}

func NewUserRepo(client *Client, cacheSize int, cacheTTL time.Duration) *UserRepo {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &UserRepo{
		client: client,
		cache:  expirable.NewLRU[string, model.User](cacheSize, nil, cacheTTL),
	}
}

type userDTO struct {
	Email            string          `json:"email"`
	Name             string          `json:"name"`
	Image            string          `json:"image"`
	Role             string          `json:"role"`
	IsMember         bool            `json:"isMember"`
	Badge            string          `json:"badge"`
	MembershipPaidAt *time.Time      `json:"membershipPaidAt"`
	MembershipAmount decimal.Decimal `json:"membershipAmount"`
}

type membershipPatchDTO struct {
	IsMember         bool        `json:"isMember"`
	Badge            string      `json:"badge"`
	MembershipPaidAt *time.Time  `json:"membershipPaidAt"`
	MembershipAmount json.Number `json:"membershipAmount"`
}

// Get returns the cached snapshot when fresh.
func (r *UserRepo) Get(ctx context.Context, email string) (model.User, error) {
	key := cacheKey(email)
	if user, ok := r.cache.Get(key); ok {
		return user, nil
	}
	return r.Refresh(ctx, email)
}

// Refresh always reads the backend and replaces the cached snapshot.
func (r *UserRepo) Refresh(ctx context.Context, email string) (model.User, error) {
	var response userDTO
	if err := r.client.DoJSON(ctx, http.MethodGet, "/users/"+pathEscape(email), nil, &response); err != nil {
		return model.User{}, mapStatus(err, faults.ErrUserNotFound)
	}

	user := response.toModel(email)
	r.cache.Add(cacheKey(email), user)
	return user, nil
}

func (r *UserRepo) Invalidate(email string) {
	r.cache.Remove(cacheKey(email))
}

// WriteMembership upserts the membership fields of the user record. The
// backend keys the write by email, so repeating it yields the same record.
func (r *UserRepo) WriteMembership(ctx context.Context, record model.EntitlementRecord) error {
	defer r.Invalidate(record.UserID)

	request := membershipPatchDTO{
		IsMember:         record.IsMember,
		Badge:            record.Badge,
		MembershipPaidAt: record.PaidAt,
		MembershipAmount: json.Number(record.PaidAmount.String()),
	}
	err := r.client.DoJSON(ctx, http.MethodPatch, "/users/"+pathEscape(record.UserID)+"/membership", request, nil)
	return mapStatus(err, faults.ErrUserNotFound)
}

func (d userDTO) toModel(requestedEmail string) model.User {
	email := strings.TrimSpace(d.Email)
	if email == "" {
		email = strings.TrimSpace(requestedEmail)
	}
	return model.User{
		Email:       email,
		DisplayName: d.Name,
		PhotoURL:    d.Image,
		Role:        d.Role,
		Entitlement: model.EntitlementRecord{
			UserID:     email,
			IsMember:   d.IsMember,
			Badge:      d.Badge,
			PaidAt:     d.MembershipPaidAt,
			PaidAmount: d.MembershipAmount,
		},
	}
}

func cacheKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
