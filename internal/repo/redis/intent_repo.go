package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
)

const (
	intentKeyPrefix     = "membership:intent:"
	activeSlotKeyPrefix = "membership:active:"
)

// releaseSlotScript deletes the slot only while it still points at the given intent.
var releaseSlotScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IntentRepo stores membership intents and the per-user active intent slot.
type IntentRepo struct {
	client    *goredis.Client
	activeTTL time.Duration
	retention time.Duration
}

func NewIntentRepo(client *goredis.Client, activeTTL, retention time.Duration) *IntentRepo {
	if activeTTL <= 0 {
		activeTTL = 30 * time.Minute
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &IntentRepo{
		client:    client,
		activeTTL: activeTTL,
		retention: retention,
	}
}

// Create claims the user's active slot and stores intent. A slot left behind
// by an expired or terminal intent is taken over.
func (r *IntentRepo) Create(ctx context.Context, intent model.MembershipIntent) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(intent.ID) == "" || strings.TrimSpace(intent.UserID) == "" {
		return fmt.Errorf("intent id and user id are required")
	}

	slotKey := activeSlotKey(intent.UserID)
	for attempt := 0; attempt < 2; attempt++ {
		claimed, err := r.client.SetNX(ctx, slotKey, intent.ID, r.activeTTL).Result()
		if err != nil {
			return fmt.Errorf("claim active intent slot: %w", err)
		}
		if claimed {
			if err := r.Save(ctx, intent); err != nil {
				_ = r.ReleaseSlot(ctx, intent.UserID, intent.ID)
				return err
			}
			return nil
		}

		holderID, err := r.client.Get(ctx, slotKey).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read active intent slot: %w", err)
		}

		holder, err := r.Get(ctx, holderID)
		switch {
		case errors.Is(err, faults.ErrIntentNotFound):
		case err != nil:
			return err
		case holder.State.Active():
			return faults.ErrIntentInProgress
		}
		if err := r.ReleaseSlot(ctx, intent.UserID, holderID); err != nil {
			return err
		}
	}
	return faults.ErrIntentInProgress
}

func (r *IntentRepo) Get(ctx context.Context, intentID string) (model.MembershipIntent, error) {
	if r.client == nil {
		return model.MembershipIntent{}, fmt.Errorf("redis client is nil")
	}

	raw, err := r.client.Get(ctx, intentKey(intentID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.MembershipIntent{}, faults.ErrIntentNotFound
	}
	if err != nil {
		return model.MembershipIntent{}, fmt.Errorf("get intent: %w", err)
	}

	var intent model.MembershipIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return model.MembershipIntent{}, fmt.Errorf("decode intent: %w", err)
	}
	return intent, nil
}

// Save overwrites the stored intent. A settling intent (payment possibly
// captured) and its slot never expire, so no second charge can start until
// reconciliation releases them. Terminal intents are kept for the retention
// window, in-flight ones for the active TTL.
func (r *IntentRepo) Save(ctx context.Context, intent model.MembershipIntent) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	raw, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}

	pipe := r.client.TxPipeline()
	switch {
	case intent.State.Settling():
		pipe.Set(ctx, intentKey(intent.ID), raw, 0)
		pipe.Set(ctx, activeSlotKey(intent.UserID), intent.ID, 0)
	case intent.State.Terminal():
		pipe.Set(ctx, intentKey(intent.ID), raw, r.retention)
	default:
		pipe.Set(ctx, intentKey(intent.ID), raw, r.activeTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save intent: %w", err)
	}
	return nil
}

func (r *IntentRepo) ReleaseSlot(ctx context.Context, userID, intentID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := releaseSlotScript.Run(ctx, r.client, []string{activeSlotKey(userID)}, intentID).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("release active intent slot: %w", err)
	}
	return nil
}

// ActiveIntentID returns the id holding the user's slot, or "" when free.
func (r *IntentRepo) ActiveIntentID(ctx context.Context, userID string) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	id, err := r.client.Get(ctx, activeSlotKey(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read active intent slot: %w", err)
	}
	return id, nil
}

func intentKey(intentID string) string {
	return intentKeyPrefix + strings.TrimSpace(intentID)
}

func activeSlotKey(userID string) string {
	return activeSlotKeyPrefix + strings.ToLower(strings.TrimSpace(userID))
}
