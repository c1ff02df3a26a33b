package polling

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/confera/backend/internal/models"
)

// LiveQuestion is the ephemeral record of the question currently accepting
// votes in a conference.
type LiveQuestion struct {
	QuestionID uuid.UUID `json:"question_id"`
	Duration   int       `json:"duration"`
	StartedAt  time.Time `json:"started_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	SlideIndex *int      `json:"slide_index,omitempty"`
}

// QuestionMeta is cached question metadata so vote validation does not
// round-trip to durable storage. Includes the correct option; it is only
// revealed to clients at close.
type QuestionMeta struct {
	QuestionID    uuid.UUID               `json:"question_id"`
	ConferenceID  uuid.UUID               `json:"conference_id"`
	Text          string                  `json:"text"`
	Options       []models.QuestionOption `json:"options"`
	CorrectOption string                  `json:"correct_option"`
}

// HasOption reports whether key is a valid option of the question.
func (m *QuestionMeta) HasOption(key string) bool {
	for _, o := range m.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

// Lifecycle manages which question is live per conference, plus the cached
// metadata and the current slide index.
type Lifecycle interface {
	GetLive(ctx context.Context, conferenceID uuid.UUID) (*LiveQuestion, error) // nil when none
	SetLive(ctx context.Context, conferenceID uuid.UUID, lq *LiveQuestion) error
	// CloseLive clears the live record only if questionID is still the live
	// question. Returns false when it was already gone or superseded; this is
	// what makes the closure routine idempotent.
	CloseLive(ctx context.Context, conferenceID, questionID uuid.UUID) (bool, error)
	CacheQuestionMeta(ctx context.Context, meta *QuestionMeta) error
	GetQuestionMeta(ctx context.Context, questionID uuid.UUID) (*QuestionMeta, error)
	SetSlideIndex(ctx context.Context, conferenceID uuid.UUID, slideIndex int) error
	GetSlideIndex(ctx context.Context, conferenceID uuid.UUID) (int, error)
}

const (
	liveTTL  = 2 * time.Hour
	metaTTL  = 6 * time.Hour
	slideTTL = 6 * time.Hour
)

func liveKey(conferenceID uuid.UUID) string {
	return "conf:" + conferenceID.String() + ":live"
}

func metaKey(questionID uuid.UUID) string {
	return "question:" + questionID.String() + ":meta"
}

func slideKey(conferenceID uuid.UUID) string {
	return "conf:" + conferenceID.String() + ":slide"
}

// closeLiveScript deletes the live record only when it still belongs to the
// given question, so a timer racing a manual close cannot double-close.
var closeLiveScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return 0 end
local rec = cjson.decode(raw)
if rec['question_id'] ~= ARGV[1] then return 0 end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisLifecycle stores live/meta/slide state in Redis.
type RedisLifecycle struct {
	client *redis.Client
}

// NewRedisLifecycle creates a Redis-backed lifecycle service.
func NewRedisLifecycle(client *redis.Client) *RedisLifecycle {
	return &RedisLifecycle{client: client}
}

func (l *RedisLifecycle) GetLive(ctx context.Context, conferenceID uuid.UUID) (*LiveQuestion, error) {
	raw, err := l.client.Get(ctx, liveKey(conferenceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lq LiveQuestion
	if err := json.Unmarshal([]byte(raw), &lq); err != nil {
		return nil, err
	}
	return &lq, nil
}

func (l *RedisLifecycle) SetLive(ctx context.Context, conferenceID uuid.UUID, lq *LiveQuestion) error {
	raw, err := json.Marshal(lq)
	if err != nil {
		return err
	}
	return l.client.Set(ctx, liveKey(conferenceID), raw, liveTTL).Err()
}

func (l *RedisLifecycle) CloseLive(ctx context.Context, conferenceID, questionID uuid.UUID) (bool, error) {
	n, err := closeLiveScript.Run(ctx, l.client, []string{liveKey(conferenceID)}, questionID.String()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *RedisLifecycle) CacheQuestionMeta(ctx context.Context, meta *QuestionMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return l.client.Set(ctx, metaKey(meta.QuestionID), raw, metaTTL).Err()
}

func (l *RedisLifecycle) GetQuestionMeta(ctx context.Context, questionID uuid.UUID) (*QuestionMeta, error) {
	raw, err := l.client.Get(ctx, metaKey(questionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta QuestionMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (l *RedisLifecycle) SetSlideIndex(ctx context.Context, conferenceID uuid.UUID, slideIndex int) error {
	return l.client.Set(ctx, slideKey(conferenceID), slideIndex, slideTTL).Err()
}

func (l *RedisLifecycle) GetSlideIndex(ctx context.Context, conferenceID uuid.UUID) (int, error) {
	raw, err := l.client.Get(ctx, slideKey(conferenceID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

// MemoryLifecycle is the single-process fallback.
type MemoryLifecycle struct {
	mu     sync.RWMutex
	live   map[uuid.UUID]*LiveQuestion
	meta   map[uuid.UUID]*QuestionMeta
	slides map[uuid.UUID]int
}

// NewMemoryLifecycle creates an in-process lifecycle service.
func NewMemoryLifecycle() *MemoryLifecycle {
	return &MemoryLifecycle{
		live:   make(map[uuid.UUID]*LiveQuestion),
		meta:   make(map[uuid.UUID]*QuestionMeta),
		slides: make(map[uuid.UUID]int),
	}
}

func (l *MemoryLifecycle) GetLive(_ context.Context, conferenceID uuid.UUID) (*LiveQuestion, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lq, ok := l.live[conferenceID]
	if !ok {
		return nil, nil
	}
	out := *lq
	return &out, nil
}

func (l *MemoryLifecycle) SetLive(_ context.Context, conferenceID uuid.UUID, lq *LiveQuestion) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *lq
	l.live[conferenceID] = &cp
	return nil
}

func (l *MemoryLifecycle) CloseLive(_ context.Context, conferenceID, questionID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lq, ok := l.live[conferenceID]
	if !ok || lq.QuestionID != questionID {
		return false, nil
	}
	delete(l.live, conferenceID)
	return true, nil
}

func (l *MemoryLifecycle) CacheQuestionMeta(_ context.Context, meta *QuestionMeta) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *meta
	l.meta[meta.QuestionID] = &cp
	return nil
}

func (l *MemoryLifecycle) GetQuestionMeta(_ context.Context, questionID uuid.UUID) (*QuestionMeta, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	meta, ok := l.meta[questionID]
	if !ok {
		return nil, nil
	}
	out := *meta
	return &out, nil
}

func (l *MemoryLifecycle) SetSlideIndex(_ context.Context, conferenceID uuid.UUID, slideIndex int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slides[conferenceID] = slideIndex
	return nil
}

func (l *MemoryLifecycle) GetSlideIndex(_ context.Context, conferenceID uuid.UUID) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.slides[conferenceID], nil
}
