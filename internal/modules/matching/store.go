// README: Presence store backed by Redis sets, one set per capability.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"tripengine/internal/types"
)

const (
	onlineSetKey = "matching:online:%s"
	workerKey    = "matching:worker:%s"
	// A worker that never toggles off drops out after a shift's worth of time.
	presenceTTL = 12 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

var _ PresenceStore = (*Store)(nil)

func (s *Store) SetOnline(ctx context.Context, workerID types.ID, c Capability) error {
	prev, err := s.capabilityOf(ctx, workerID)
	if err != nil {
		return err
	}
	pipe := s.redis.TxPipeline()
	if prev != "" && prev != c {
		pipe.SRem(ctx, onlineKey(prev), string(workerID))
	}
	pipe.SAdd(ctx, onlineKey(c), string(workerID))
	pipe.Expire(ctx, onlineKey(c), presenceTTL)
	pipe.Set(ctx, workerPresenceKey(workerID), string(c), presenceTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) SetOffline(ctx context.Context, workerID types.ID) error {
	prev, err := s.capabilityOf(ctx, workerID)
	if err != nil {
		return err
	}
	pipe := s.redis.TxPipeline()
	if prev != "" {
		pipe.SRem(ctx, onlineKey(prev), string(workerID))
	}
	pipe.Del(ctx, workerPresenceKey(workerID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) IsOnline(ctx context.Context, workerID types.ID) (bool, error) {
	c, err := s.capabilityOf(ctx, workerID)
	return c != "", err
}

// OnlineWorkers lists members of the capability set whose presence key is
// still alive.
func (s *Store) OnlineWorkers(ctx context.Context, c Capability) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, onlineKey(c)).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	pipe := s.redis.Pipeline()
	checks := make([]*redis.StringCmd, len(members))
	for i, m := range members {
		checks[i] = pipe.Get(ctx, workerPresenceKey(types.ID(m)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	var out []types.ID
	for i, m := range members {
		if v, err := checks[i].Result(); err == nil && Capability(v) == c {
			out = append(out, types.ID(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) capabilityOf(ctx context.Context, workerID types.ID) (Capability, error) {
	v, err := s.redis.Get(ctx, workerPresenceKey(workerID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return Capability(v), nil
}

func onlineKey(c Capability) string {
	return fmt.Sprintf(onlineSetKey, string(c))
}

func workerPresenceKey(workerID types.ID) string {
	return fmt.Sprintf(workerKey, string(workerID))
}
