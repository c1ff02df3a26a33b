package polling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Presence tracks which participants are connected to a conference, plus a
// reverse index so a transport disconnect can clean up every conference the
// connection was joined to.
type Presence interface {
	// Add registers a participant; returns true when not already present, so
	// rejoining never double-counts.
	Add(ctx context.Context, conferenceID, userID uuid.UUID) (bool, error)
	// Remove deregisters; returns true when the participant was present.
	Remove(ctx context.Context, conferenceID, userID uuid.UUID) (bool, error)
	Count(ctx context.Context, conferenceID uuid.UUID) (int, error)
	Conferences(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

const presenceTTL = 12 * time.Hour

func presenceKey(conferenceID uuid.UUID) string {
	return "presence:" + conferenceID.String()
}

func userPresenceKey(userID uuid.UUID) string {
	return "presence:user:" + userID.String()
}

// RedisPresence implements Presence on Redis sets.
type RedisPresence struct {
	client *redis.Client
}

// NewRedisPresence creates a Redis-backed presence tracker.
func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func (p *RedisPresence) Add(ctx context.Context, conferenceID, userID uuid.UUID) (bool, error) {
	n, err := p.client.SAdd(ctx, presenceKey(conferenceID), userID.String()).Result()
	if err != nil {
		return false, err
	}
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, userPresenceKey(userID), conferenceID.String())
	pipe.Expire(ctx, presenceKey(conferenceID), presenceTTL)
	pipe.Expire(ctx, userPresenceKey(userID), presenceTTL)
	_, _ = pipe.Exec(ctx)
	return n == 1, nil
}

func (p *RedisPresence) Remove(ctx context.Context, conferenceID, userID uuid.UUID) (bool, error) {
	n, err := p.client.SRem(ctx, presenceKey(conferenceID), userID.String()).Result()
	if err != nil {
		return false, err
	}
	_ = p.client.SRem(ctx, userPresenceKey(userID), conferenceID.String()).Err()
	return n == 1, nil
}

func (p *RedisPresence) Count(ctx context.Context, conferenceID uuid.UUID) (int, error) {
	n, err := p.client.SCard(ctx, presenceKey(conferenceID)).Result()
	return int(n), err
}

func (p *RedisPresence) Conferences(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	members, err := p.client.SMembers(ctx, userPresenceKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// MemoryPresence is the single-process fallback.
type MemoryPresence struct {
	mu      sync.Mutex
	byConf  map[uuid.UUID]map[uuid.UUID]struct{}
	byUser  map[uuid.UUID]map[uuid.UUID]struct{}
}

// NewMemoryPresence creates an in-process presence tracker.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		byConf: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		byUser: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func (p *MemoryPresence) Add(_ context.Context, conferenceID, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	conf := p.byConf[conferenceID]
	if conf == nil {
		conf = make(map[uuid.UUID]struct{})
		p.byConf[conferenceID] = conf
	}
	if _, ok := conf[userID]; ok {
		return false, nil
	}
	conf[userID] = struct{}{}
	user := p.byUser[userID]
	if user == nil {
		user = make(map[uuid.UUID]struct{})
		p.byUser[userID] = user
	}
	user[conferenceID] = struct{}{}
	return true, nil
}

func (p *MemoryPresence) Remove(_ context.Context, conferenceID, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	conf := p.byConf[conferenceID]
	if conf == nil {
		return false, nil
	}
	if _, ok := conf[userID]; !ok {
		return false, nil
	}
	delete(conf, userID)
	if user := p.byUser[userID]; user != nil {
		delete(user, conferenceID)
	}
	return true, nil
}

func (p *MemoryPresence) Count(_ context.Context, conferenceID uuid.UUID) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byConf[conferenceID]), nil
}

func (p *MemoryPresence) Conferences(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	user := p.byUser[userID]
	out := make([]uuid.UUID, 0, len(user))
	for id := range user {
		out = append(out, id)
	}
	return out, nil
}
