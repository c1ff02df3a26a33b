package polling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/confera/backend/internal/models"
)

// Registry tracks conference lifecycle status and the designated host,
// backed by the fast-state store with durable-store fallback. SetHost has
// set-once-if-absent semantics so the first join cannot overwrite a host
// resolved by a concurrent join.
type Registry interface {
	GetStatus(ctx context.Context, conferenceID uuid.UUID) (models.ConferenceStatus, error)
	GetHost(ctx context.Context, conferenceID uuid.UUID) (uuid.UUID, error)
	SetHost(ctx context.Context, conferenceID, hostID uuid.UUID) error
	SetStatus(ctx context.Context, conferenceID uuid.UUID, status models.ConferenceStatus) error
}

const registryTTL = 6 * time.Hour

func registryKey(conferenceID uuid.UUID) string {
	return "conf:" + conferenceID.String() + ":state"
}

// RedisRegistry caches conference state in a Redis hash, loading from the
// durable store on a miss.
type RedisRegistry struct {
	client *redis.Client
	confs  ConferenceStore
}

// NewRedisRegistry creates a Redis-backed conference registry.
func NewRedisRegistry(client *redis.Client, confs ConferenceStore) *RedisRegistry {
	return &RedisRegistry{client: client, confs: confs}
}

func (r *RedisRegistry) GetStatus(ctx context.Context, conferenceID uuid.UUID) (models.ConferenceStatus, error) {
	key := registryKey(conferenceID)
	status, err := r.client.HGet(ctx, key, "status").Result()
	if err == nil && status != "" {
		return models.ConferenceStatus(status), nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	conf, err := r.load(ctx, conferenceID)
	if err != nil {
		return "", err
	}
	return conf.Status, nil
}

func (r *RedisRegistry) GetHost(ctx context.Context, conferenceID uuid.UUID) (uuid.UUID, error) {
	key := registryKey(conferenceID)
	host, err := r.client.HGet(ctx, key, "host").Result()
	if err == nil && host != "" {
		return uuid.Parse(host)
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return uuid.Nil, err
	}
	conf, err := r.load(ctx, conferenceID)
	if err != nil {
		return uuid.Nil, err
	}
	return conf.HostID, nil
}

func (r *RedisRegistry) SetHost(ctx context.Context, conferenceID, hostID uuid.UUID) error {
	key := registryKey(conferenceID)
	if err := r.client.HSetNX(ctx, key, "host", hostID.String()).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, registryTTL).Err()
}

func (r *RedisRegistry) SetStatus(ctx context.Context, conferenceID uuid.UUID, status models.ConferenceStatus) error {
	key := registryKey(conferenceID)
	if err := r.client.HSet(ctx, key, "status", string(status)).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, registryTTL).Err()
}

// load fetches the conference from durable storage and primes the cache.
func (r *RedisRegistry) load(ctx context.Context, conferenceID uuid.UUID) (*models.Conference, error) {
	conf, err := r.confs.GetByID(ctx, conferenceID)
	if err != nil {
		return nil, err
	}
	key := registryKey(conferenceID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "status", string(conf.Status))
	pipe.HSetNX(ctx, key, "host", conf.HostID.String())
	pipe.Expire(ctx, key, registryTTL)
	_, _ = pipe.Exec(ctx)
	return conf, nil
}

// MemoryRegistry is the single-process fallback with the same durable-store
// fallback behavior.
type MemoryRegistry struct {
	mu    sync.RWMutex
	state map[uuid.UUID]*registryEntry
	confs ConferenceStore
}

type registryEntry struct {
	status models.ConferenceStatus
	host   uuid.UUID
}

// NewMemoryRegistry creates an in-process conference registry.
func NewMemoryRegistry(confs ConferenceStore) *MemoryRegistry {
	return &MemoryRegistry{state: make(map[uuid.UUID]*registryEntry), confs: confs}
}

func (r *MemoryRegistry) GetStatus(ctx context.Context, conferenceID uuid.UUID) (models.ConferenceStatus, error) {
	r.mu.RLock()
	e, ok := r.state[conferenceID]
	r.mu.RUnlock()
	if ok && e.status != "" {
		return e.status, nil
	}
	conf, err := r.load(ctx, conferenceID)
	if err != nil {
		return "", err
	}
	return conf.Status, nil
}

func (r *MemoryRegistry) GetHost(ctx context.Context, conferenceID uuid.UUID) (uuid.UUID, error) {
	r.mu.RLock()
	e, ok := r.state[conferenceID]
	r.mu.RUnlock()
	if ok && e.host != uuid.Nil {
		return e.host, nil
	}
	conf, err := r.load(ctx, conferenceID)
	if err != nil {
		return uuid.Nil, err
	}
	return conf.HostID, nil
}

func (r *MemoryRegistry) SetHost(_ context.Context, conferenceID, hostID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.state[conferenceID]
	if e == nil {
		e = &registryEntry{}
		r.state[conferenceID] = e
	}
	if e.host == uuid.Nil {
		e.host = hostID
	}
	return nil
}

func (r *MemoryRegistry) SetStatus(_ context.Context, conferenceID uuid.UUID, status models.ConferenceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.state[conferenceID]
	if e == nil {
		e = &registryEntry{}
		r.state[conferenceID] = e
	}
	e.status = status
	return nil
}

func (r *MemoryRegistry) load(ctx context.Context, conferenceID uuid.UUID) (*models.Conference, error) {
	conf, err := r.confs.GetByID(ctx, conferenceID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	e := r.state[conferenceID]
	if e == nil {
		e = &registryEntry{}
		r.state[conferenceID] = e
	}
	if e.status == "" {
		e.status = conf.Status
	}
	if e.host == uuid.Nil {
		e.host = conf.HostID
	}
	status, host := e.status, e.host
	r.mu.Unlock()
	out := *conf
	out.Status = status
	out.HostID = host
	return &out, nil
}
