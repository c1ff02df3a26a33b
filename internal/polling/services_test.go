package polling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confera/backend/internal/models"
)

func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "k", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "k", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	ok, err = l.Acquire(ctx, "k", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock should be reacquirable")

	require.NoError(t, l.Release(ctx, "k"))
	ok, _ = l.Acquire(ctx, "k", 50*time.Millisecond)
	assert.True(t, ok)

	// Releasing a never-acquired key is a no-op.
	assert.NoError(t, l.Release(ctx, "missing"))
}

func TestMemoryStatsVoteGate(t *testing.T) {
	s := NewMemoryStats()
	ctx := context.Background()
	conf, q, user := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, s.InitVotes(ctx, conf, q, []string{"a", "b"}))
	counts, err := s.GetVotes(ctx, conf, q)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 0, "b": 0}, counts)

	wasNew, err := s.TrackUserVote(ctx, conf, q, user, "a")
	require.NoError(t, err)
	assert.True(t, wasNew)

	wasNew, err = s.TrackUserVote(ctx, conf, q, user, "b")
	require.NoError(t, err)
	assert.False(t, wasNew, "second track for the same user must not be new")

	require.NoError(t, s.IncrementVote(ctx, conf, q, "a"))
	counts, err = s.GetVotes(ctx, conf, q)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["a"])

	wasNew, err = s.AddParticipant(ctx, conf, q, user)
	require.NoError(t, err)
	assert.True(t, wasNew)
	wasNew, err = s.AddParticipant(ctx, conf, q, user)
	require.NoError(t, err)
	assert.False(t, wasNew)
	n, err := s.GetParticipantCount(ctx, conf, q)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStatsCleanupKeepsVotedSet(t *testing.T) {
	s := NewMemoryStats()
	ctx := context.Background()
	conf, q, user := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, s.InitVotes(ctx, conf, q, []string{"a"}))
	_, err := s.TrackUserVote(ctx, conf, q, user, "a")
	require.NoError(t, err)
	require.NoError(t, s.IncrementVote(ctx, conf, q, "a"))

	require.NoError(t, s.Cleanup(ctx, conf, q, 100*time.Millisecond))

	counts, err := s.GetVotes(ctx, conf, q)
	require.NoError(t, err)
	assert.Empty(t, counts, "counters are dropped at cleanup")

	// The voted set outlives the counters so late duplicates stay rejected.
	wasNew, err := s.TrackUserVote(ctx, conf, q, user, "a")
	require.NoError(t, err)
	assert.False(t, wasNew)

	time.Sleep(150 * time.Millisecond)
	wasNew, err = s.TrackUserVote(ctx, conf, q, user, "a")
	require.NoError(t, err)
	assert.True(t, wasNew, "voted set expires after the retention window")
}

func TestMemoryPresenceReverseIndex(t *testing.T) {
	p := NewMemoryPresence()
	ctx := context.Background()
	c1, c2, user := uuid.New(), uuid.New(), uuid.New()

	wasNew, err := p.Add(ctx, c1, user)
	require.NoError(t, err)
	assert.True(t, wasNew)
	wasNew, _ = p.Add(ctx, c1, user)
	assert.False(t, wasNew)
	_, err = p.Add(ctx, c2, user)
	require.NoError(t, err)

	confs, err := p.Conferences(ctx, user)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{c1, c2}, confs)

	removed, err := p.Remove(ctx, c1, user)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, _ = p.Remove(ctx, c1, user)
	assert.False(t, removed)

	n, err := p.Count(ctx, c2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	confs, _ = p.Conferences(ctx, user)
	assert.Equal(t, []uuid.UUID{c2}, confs)
}

func TestMemoryRegistryHostSetOnce(t *testing.T) {
	conf := &models.Conference{ID: uuid.New(), Status: models.ConferenceActive, HostID: uuid.New()}
	store := &stubConferences{byID: map[uuid.UUID]*models.Conference{conf.ID: conf}}
	r := NewMemoryRegistry(store)
	ctx := context.Background()

	host, err := r.GetHost(ctx, conf.ID)
	require.NoError(t, err)
	assert.Equal(t, conf.HostID, host)

	// SetHost must not overwrite an already-pinned host.
	require.NoError(t, r.SetHost(ctx, conf.ID, uuid.New()))
	host, err = r.GetHost(ctx, conf.ID)
	require.NoError(t, err)
	assert.Equal(t, conf.HostID, host)

	require.NoError(t, r.SetStatus(ctx, conf.ID, models.ConferenceEnded))
	status, err := r.GetStatus(ctx, conf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConferenceEnded, status)

	_, err = r.GetStatus(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryLifecycleCompareAndDelete(t *testing.T) {
	l := NewMemoryLifecycle()
	ctx := context.Background()
	conf, q1, q2 := uuid.New(), uuid.New(), uuid.New()

	lq, err := l.GetLive(ctx, conf)
	require.NoError(t, err)
	assert.Nil(t, lq)

	now := time.Now()
	require.NoError(t, l.SetLive(ctx, conf, &LiveQuestion{QuestionID: q1, Duration: 30, StartedAt: now, ExpiresAt: now.Add(30 * time.Second)}))

	// Closing the wrong question must not clear the live record.
	closed, err := l.CloseLive(ctx, conf, q2)
	require.NoError(t, err)
	assert.False(t, closed)
	lq, _ = l.GetLive(ctx, conf)
	require.NotNil(t, lq)

	closed, err = l.CloseLive(ctx, conf, q1)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = l.CloseLive(ctx, conf, q1)
	require.NoError(t, err)
	assert.False(t, closed, "second close loses the race")
	lq, _ = l.GetLive(ctx, conf)
	assert.Nil(t, lq)
}

func TestMemoryLifecycleMetaAndSlide(t *testing.T) {
	l := NewMemoryLifecycle()
	ctx := context.Background()
	conf, q := uuid.New(), uuid.New()

	meta, err := l.GetQuestionMeta(ctx, q)
	require.NoError(t, err)
	assert.Nil(t, meta)

	require.NoError(t, l.CacheQuestionMeta(ctx, &QuestionMeta{
		QuestionID:    q,
		ConferenceID:  conf,
		Text:          "pick one",
		Options:       []models.QuestionOption{{Key: "a"}, {Key: "b"}},
		CorrectOption: "a",
	}))
	meta, err = l.GetQuestionMeta(ctx, q)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.True(t, meta.HasOption("a"))
	assert.False(t, meta.HasOption("z"))

	require.NoError(t, l.SetSlideIndex(ctx, conf, 7))
	idx, err := l.GetSlideIndex(ctx, conf)
	require.NoError(t, err)
	assert.Equal(t, 7, idx)
}

func TestMemoryLedgerOneVotePerUser(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	q, user := uuid.New(), uuid.New()

	voted, err := l.HasVoted(ctx, q, user)
	require.NoError(t, err)
	assert.False(t, voted)

	res, err := l.SubmitVote(ctx, q, user, "a", true)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 1, res.TotalVotes)

	res, err = l.SubmitVote(ctx, q, user, "b", false)
	require.NoError(t, err)
	assert.False(t, res.Accepted, "second vote for the same user is rejected")

	res, err = l.SubmitVote(ctx, q, uuid.New(), "a", true)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 2, res.TotalVotes)
	assert.Equal(t, 2, res.OptionCounts["a"])

	correct, err := l.GetCorrectCount(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, correct)

	counts, err := l.GetVoteCounts(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2}, counts)
}
