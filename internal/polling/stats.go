package polling

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Stats is the fast, approximate live-tally aggregator feeding the host
// dashboard. Separate from the authoritative ledger for speed: counters are
// cheap atomic increments, duplicate checks a single set-add.
type Stats interface {
	// AddParticipant records a poll join; returns true when newly added.
	AddParticipant(ctx context.Context, conferenceID, questionID, userID uuid.UUID) (bool, error)
	// TrackUserVote atomically records that the user voted; returns true only
	// for the first vote. This is the duplicate gate for both vote paths.
	TrackUserVote(ctx context.Context, conferenceID, questionID, userID uuid.UUID, optionKey string) (bool, error)
	IncrementVote(ctx context.Context, conferenceID, questionID uuid.UUID, optionKey string) error
	// InitVotes zero-fills counters for every option so the dashboard renders
	// all options before any vote arrives.
	InitVotes(ctx context.Context, conferenceID, questionID uuid.UUID, optionKeys []string) error
	GetVotes(ctx context.Context, conferenceID, questionID uuid.UUID) (map[string]int, error)
	GetParticipantCount(ctx context.Context, conferenceID, questionID uuid.UUID) (int, error)
	// Cleanup drops poll counters and participant sets; the voted set is
	// retained for votedRetention to keep duplicate rejection effective for
	// recovery/audit before full cleanup.
	Cleanup(ctx context.Context, conferenceID, questionID uuid.UUID, votedRetention time.Duration) error
}

func pollKey(conferenceID, questionID uuid.UUID, suffix string) string {
	return "poll:" + conferenceID.String() + ":" + questionID.String() + ":" + suffix
}

// RedisStats implements Stats on Redis sets and hash counters.
type RedisStats struct {
	client *redis.Client
}

// NewRedisStats creates a Redis-backed stats aggregator.
func NewRedisStats(client *redis.Client) *RedisStats {
	return &RedisStats{client: client}
}

func (s *RedisStats) AddParticipant(ctx context.Context, conferenceID, questionID, userID uuid.UUID) (bool, error) {
	n, err := s.client.SAdd(ctx, pollKey(conferenceID, questionID, "participants"), userID.String()).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStats) TrackUserVote(ctx context.Context, conferenceID, questionID, userID uuid.UUID, optionKey string) (bool, error) {
	n, err := s.client.SAdd(ctx, pollKey(conferenceID, questionID, "voted"), userID.String()).Result()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	// record which option for audit; not used for tallies
	_ = s.client.HSet(ctx, pollKey(conferenceID, questionID, "choices"), userID.String(), optionKey).Err()
	return true, nil
}

func (s *RedisStats) IncrementVote(ctx context.Context, conferenceID, questionID uuid.UUID, optionKey string) error {
	return s.client.HIncrBy(ctx, pollKey(conferenceID, questionID, "votes"), optionKey, 1).Err()
}

func (s *RedisStats) InitVotes(ctx context.Context, conferenceID, questionID uuid.UUID, optionKeys []string) error {
	key := pollKey(conferenceID, questionID, "votes")
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, k := range optionKeys {
		pipe.HSet(ctx, key, k, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStats) GetVotes(ctx context.Context, conferenceID, questionID uuid.UUID) (map[string]int, error) {
	data, err := s.client.HGetAll(ctx, pollKey(conferenceID, questionID, "votes")).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(data))
	for k, v := range data {
		n, _ := strconv.Atoi(v)
		out[k] = n
	}
	return out, nil
}

func (s *RedisStats) GetParticipantCount(ctx context.Context, conferenceID, questionID uuid.UUID) (int, error) {
	n, err := s.client.SCard(ctx, pollKey(conferenceID, questionID, "participants")).Result()
	return int(n), err
}

func (s *RedisStats) Cleanup(ctx context.Context, conferenceID, questionID uuid.UUID, votedRetention time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, pollKey(conferenceID, questionID, "participants"))
	pipe.Del(ctx, pollKey(conferenceID, questionID, "votes"))
	pipe.Expire(ctx, pollKey(conferenceID, questionID, "voted"), votedRetention)
	pipe.Expire(ctx, pollKey(conferenceID, questionID, "choices"), votedRetention)
	_, err := pipe.Exec(ctx)
	return err
}

// MemoryStats is the single-process fallback.
type MemoryStats struct {
	mu           sync.Mutex
	participants map[string]map[uuid.UUID]struct{}
	voted        map[string]map[uuid.UUID]string
	votes        map[string]map[string]int
}

// NewMemoryStats creates an in-process stats aggregator.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{
		participants: make(map[string]map[uuid.UUID]struct{}),
		voted:        make(map[string]map[uuid.UUID]string),
		votes:        make(map[string]map[string]int),
	}
}

func memPollKey(conferenceID, questionID uuid.UUID) string {
	return conferenceID.String() + ":" + questionID.String()
}

func (s *MemoryStats) AddParticipant(_ context.Context, conferenceID, questionID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memPollKey(conferenceID, questionID)
	set := s.participants[key]
	if set == nil {
		set = make(map[uuid.UUID]struct{})
		s.participants[key] = set
	}
	if _, ok := set[userID]; ok {
		return false, nil
	}
	set[userID] = struct{}{}
	return true, nil
}

func (s *MemoryStats) TrackUserVote(_ context.Context, conferenceID, questionID, userID uuid.UUID, optionKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memPollKey(conferenceID, questionID)
	set := s.voted[key]
	if set == nil {
		set = make(map[uuid.UUID]string)
		s.voted[key] = set
	}
	if _, ok := set[userID]; ok {
		return false, nil
	}
	set[userID] = optionKey
	return true, nil
}

func (s *MemoryStats) IncrementVote(_ context.Context, conferenceID, questionID uuid.UUID, optionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memPollKey(conferenceID, questionID)
	counts := s.votes[key]
	if counts == nil {
		counts = make(map[string]int)
		s.votes[key] = counts
	}
	counts[optionKey]++
	return nil
}

func (s *MemoryStats) InitVotes(_ context.Context, conferenceID, questionID uuid.UUID, optionKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(optionKeys))
	for _, k := range optionKeys {
		counts[k] = 0
	}
	s.votes[memPollKey(conferenceID, questionID)] = counts
	return nil
}

func (s *MemoryStats) GetVotes(_ context.Context, conferenceID, questionID uuid.UUID) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := s.votes[memPollKey(conferenceID, questionID)]
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStats) GetParticipantCount(_ context.Context, conferenceID, questionID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants[memPollKey(conferenceID, questionID)]), nil
}

func (s *MemoryStats) Cleanup(_ context.Context, conferenceID, questionID uuid.UUID, votedRetention time.Duration) error {
	s.mu.Lock()
	key := memPollKey(conferenceID, questionID)
	delete(s.participants, key)
	delete(s.votes, key)
	s.mu.Unlock()
	time.AfterFunc(votedRetention, func() {
		s.mu.Lock()
		delete(s.voted, key)
		s.mu.Unlock()
	})
	return nil
}
