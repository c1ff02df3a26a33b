package polling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confera/backend/internal/models"
)

type broadcastEvent struct {
	Room    string
	Event   string
	Payload interface{}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (f *fakeBroadcaster) Broadcast(room string, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastEvent{Room: room, Event: event, Payload: payload})
}

func (f *fakeBroadcaster) count(room, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Room == room && e.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeBroadcaster) last(room, event string) (interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Room == room && f.events[i].Event == event {
			return f.events[i].Payload, true
		}
	}
	return nil, false
}

func (f *fakeBroadcaster) closedCount(room string, questionID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Room != room || e.Event != EventQuestionClosed {
			continue
		}
		if p, ok := e.Payload.(QuestionClosedPayload); ok && p.QuestionID == questionID {
			n++
		}
	}
	return n
}

func (f *fakeBroadcaster) closeReason(room string, questionID uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.Room != room || e.Event != EventQuestionClosed {
			continue
		}
		if p, ok := e.Payload.(QuestionClosedPayload); ok && p.QuestionID == questionID {
			return p.Reason
		}
	}
	return ""
}

type fakeSink struct {
	mu     sync.Mutex
	finals []Finalization
}

func (f *fakeSink) FinalizeQuestion(_ context.Context, fin Finalization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finals = append(f.finals, fin)
	return nil
}

func (f *fakeSink) all() []Finalization {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Finalization, len(f.finals))
	copy(out, f.finals)
	return out
}

type stubConferences struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*models.Conference
}

func (s *stubConferences) GetByID(_ context.Context, id uuid.UUID) (*models.Conference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type stubQuestions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Question
}

func (s *stubQuestions) GetByID(_ context.Context, id uuid.UUID) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *stubQuestions) GetBySlide(_ context.Context, conferenceID uuid.UUID, slideIndex int) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.byID {
		if q.ConferenceID == conferenceID && q.SlideIndex != nil && *q.SlideIndex == slideIndex {
			cp := *q
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *stubQuestions) SetLiveStatus(_ context.Context, id uuid.UUID, live bool, status models.QuestionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.byID[id]; ok {
		q.IsLive = live
		q.Status = status
	}
	return nil
}

type testEnv struct {
	co           *Coordinator
	bc           *fakeBroadcaster
	sink         *fakeSink
	confs        *stubConferences
	questions    *stubQuestions
	locker       Locker
	stats        Stats
	conferenceID uuid.UUID
	hostID       uuid.UUID
}

func testOptions() Options {
	return Options{
		DefaultDuration: time.Second,
		PushLockTTL:     200 * time.Millisecond,
		VoteLockTTL:     100 * time.Millisecond,
		SlideLockTTL:    150 * time.Millisecond,
		CleanupDelay:    30 * time.Second,
		VotedRetention:  time.Minute,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		bc:           &fakeBroadcaster{},
		sink:         &fakeSink{},
		confs:        &stubConferences{byID: make(map[uuid.UUID]*models.Conference)},
		questions:    &stubQuestions{byID: make(map[uuid.UUID]*models.Question)},
		locker:       NewMemoryLocker(),
		stats:        NewMemoryStats(),
		conferenceID: uuid.New(),
		hostID:       uuid.New(),
	}
	env.confs.byID[env.conferenceID] = &models.Conference{
		ID:     env.conferenceID,
		Title:  "Go at scale",
		Status: models.ConferenceActive,
		HostID: env.hostID,
	}
	env.co = NewCoordinator(Deps{
		Locker:      env.locker,
		Registry:    NewMemoryRegistry(env.confs),
		Lifecycle:   NewMemoryLifecycle(),
		Stats:       env.stats,
		Presence:    NewMemoryPresence(),
		Ledger:      NewMemoryLedger(),
		Questions:   env.questions,
		Broadcaster: env.bc,
		Sink:        env.sink,
	}, testOptions())
	t.Cleanup(env.co.Shutdown)
	return env
}

func (env *testEnv) addConference(status models.ConferenceStatus) (uuid.UUID, uuid.UUID) {
	id, host := uuid.New(), uuid.New()
	env.confs.mu.Lock()
	env.confs.byID[id] = &models.Conference{ID: id, Status: status, HostID: host}
	env.confs.mu.Unlock()
	return id, host
}

func (env *testEnv) addQuestion(slideIndex *int) *models.Question {
	q := &models.Question{
		ID:           uuid.New(),
		ConferenceID: env.conferenceID,
		Text:         "Which keyword starts a goroutine?",
		Options: []models.QuestionOption{
			{Key: "a", Label: "spawn"},
			{Key: "b", Label: "go"},
			{Key: "c", Label: "async"},
		},
		CorrectOption: "b",
		SlideIndex:    slideIndex,
	}
	env.questions.mu.Lock()
	env.questions.byID[q.ID] = q
	env.questions.mu.Unlock()
	return q
}

func TestJoinRolesAndPresence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.co.Join(ctx, env.conferenceID, env.hostID)
	require.NoError(t, err)
	assert.Equal(t, RoleHost, res.Role)
	assert.Equal(t, 0, res.AudienceCount)
	assert.Equal(t, 0, env.bc.count(HostRoom(env.conferenceID), EventAudienceJoined))

	audience := uuid.New()
	res, err = env.co.Join(ctx, env.conferenceID, audience)
	require.NoError(t, err)
	assert.Equal(t, RoleAudience, res.Role)
	assert.Equal(t, 1, res.AudienceCount)
	assert.Equal(t, 1, env.bc.count(HostRoom(env.conferenceID), EventAudienceJoined))
	assert.Equal(t, 1, env.bc.count(Room(env.conferenceID), EventAudienceCount))

	// Rejoin is idempotent: no double count, no re-broadcast.
	res, err = env.co.Join(ctx, env.conferenceID, audience)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AudienceCount)
	assert.Equal(t, 1, env.bc.count(HostRoom(env.conferenceID), EventAudienceJoined))
}

func TestJoinRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.co.Join(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrConferenceNotFound)

	endedID, _ := env.addConference(models.ConferenceEnded)
	_, err = env.co.Join(ctx, endedID, uuid.New())
	assert.ErrorIs(t, err, ErrConferenceEnded)
}

func TestPushLiveSupersedesCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q1 := env.addQuestion(nil)
	q2 := env.addQuestion(nil)
	room := Room(env.conferenceID)

	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q1.ID, 30))
	assert.Equal(t, 1, env.bc.count(room, EventQuestionLive))

	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q2.ID, 30))
	assert.Equal(t, 1, env.bc.closedCount(room, q1.ID))
	assert.Equal(t, ReasonManual, env.bc.closeReason(room, q1.ID))
	assert.Equal(t, 2, env.bc.count(room, EventQuestionLive))

	// q1's original countdown must never fire after supersession.
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 1, env.bc.closedCount(room, q1.ID))
	assert.Equal(t, 0, env.bc.closedCount(room, q2.ID))
}

func TestPushLiveAuthority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.addQuestion(nil)

	err := env.co.PushLive(ctx, env.conferenceID, uuid.New(), q.ID, 30)
	assert.ErrorIs(t, err, ErrNotHost)

	draftID, draftHost := env.addConference(models.ConferenceDraft)
	err = env.co.PushLive(ctx, draftID, draftHost, q.ID, 30)
	assert.ErrorIs(t, err, ErrConferenceNotActive)

	err = env.co.PushLive(ctx, env.conferenceID, env.hostID, uuid.New(), 30)
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestPushLiveLeaseContention(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.addQuestion(nil)

	ok, err := env.locker.Acquire(ctx, "push:"+env.conferenceID.String(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	err = env.co.PushLive(ctx, env.conferenceID, env.hostID, q.ID, 30)
	assert.ErrorIs(t, err, ErrOperationInProgress)
}

func TestVoteFastPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.addQuestion(nil)
	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q.ID, 30))

	voter := uuid.New()
	require.NoError(t, env.co.JoinPoll(ctx, env.conferenceID, voter, q.ID))

	ack, err := env.co.Vote(ctx, env.conferenceID, voter, q.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", ack.OptionKey)

	// Live stats go to the host room only.
	payload, ok := env.bc.last(HostRoom(env.conferenceID), EventLiveStats)
	require.True(t, ok)
	stats := payload.(LiveStatsPayload)
	assert.Equal(t, 1, stats.TotalVotes)
	assert.Equal(t, 1, stats.Participants)
	assert.Equal(t, 1, stats.Results["b"].Count)
	assert.Equal(t, 100, stats.Results["b"].Percentage)
	assert.Equal(t, 0, env.bc.count(Room(env.conferenceID), EventLiveStats))

	_, err = env.co.Vote(ctx, env.conferenceID, voter, q.ID, "a")
	assert.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestVoteValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.addQuestion(nil)
	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q.ID, 30))

	_, err := env.co.Vote(ctx, env.conferenceID, uuid.New(), q.ID, "z")
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = env.co.Vote(ctx, env.conferenceID, uuid.New(), uuid.New(), "a")
	assert.ErrorIs(t, err, ErrQuestionNotLive)

	_, err = env.co.Vote(ctx, env.conferenceID, env.hostID, q.ID, "a")
	assert.ErrorIs(t, err, ErrNotAudience)
}

func TestSubmitVoteLedgerPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.addQuestion(nil)
	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q.ID, 30))

	voter := uuid.New()
	ack, err := env.co.SubmitVote(ctx, env.conferenceID, voter, q.ID, "b")
	require.NoError(t, err)
	assert.True(t, ack.IsCorrect)
	assert.Equal(t, "b", ack.SelectedOption)

	// Running tally goes to the whole room.
	payload, ok := env.bc.last(Room(env.conferenceID), EventVoteResult)
	require.True(t, ok)
	result := payload.(VoteResultPayload)
	assert.Equal(t, 1, result.TotalVotes)
	assert.Equal(t, 1, result.OptionCounts["b"])

	_, err = env.co.SubmitVote(ctx, env.conferenceID, voter, q.ID, "a")
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	wrong, err := env.co.SubmitVote(ctx, env.conferenceID, uuid.New(), q.ID, "a")
	require.NoError(t, err)
	assert.False(t, wrong.IsCorrect)
}

func TestDuplicateGateSpansBothPaths(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.addQuestion(nil)
	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q.ID, 30))

	voter := uuid.New()
	_, err := env.co.Vote(ctx, env.conferenceID, voter, q.ID, "a")
	require.NoError(t, err)

	_, err = env.co.SubmitVote(ctx, env.conferenceID, voter, q.ID, "b")
	assert.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestCloseIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.addQuestion(nil)
	room := Room(env.conferenceID)
	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q.ID, 30))

	require.NoError(t, env.co.CloseQuestion(ctx, env.conferenceID, env.hostID, q.ID))
	assert.Equal(t, 1, env.bc.closedCount(room, q.ID))
	assert.Equal(t, 1, env.bc.count(room, EventFinalResult))

	err := env.co.CloseQuestion(ctx, env.conferenceID, env.hostID, q.ID)
	assert.ErrorIs(t, err, ErrQuestionNotLive)

	env.co.ForceCloseLive(ctx, env.conferenceID, ReasonManual)
	assert.Equal(t, 1, env.bc.closedCount(room, q.ID))
	assert.Equal(t, 1, env.bc.count(room, EventFinalResult))
}

func TestCloseBroadcastsFinalTallies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.addQuestion(nil)
	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q.ID, 30))

	for i := 0; i < 2; i++ {
		_, err := env.co.Vote(ctx, env.conferenceID, uuid.New(), q.ID, "b")
		require.NoError(t, err)
	}
	_, err := env.co.Vote(ctx, env.conferenceID, uuid.New(), q.ID, "a")
	require.NoError(t, err)

	require.NoError(t, env.co.CloseQuestion(ctx, env.conferenceID, env.hostID, q.ID))

	payload, ok := env.bc.last(Room(env.conferenceID), EventFinalResult)
	require.True(t, ok)
	final := asFinalResult(t, payload)
	assert.Equal(t, 3, final.TotalVotes)
	assert.Equal(t, 2, final.OptionCounts["b"])
	assert.Equal(t, "b", final.CorrectOption)
	assert.Equal(t, 2, final.CorrectCount)
	assert.Equal(t, 67, final.PercentageBreakdown["b"])
	assert.Equal(t, 33, final.PercentageBreakdown["a"])
	assert.Equal(t, 0, final.PercentageBreakdown["c"])

	// Durable persistence is fire-and-forget; wait for the sink.
	require.Eventually(t, func() bool { return len(env.sink.all()) == 1 }, time.Second, 10*time.Millisecond)
	fin := env.sink.all()[0]
	assert.Equal(t, q.ID, fin.QuestionID)
	assert.Equal(t, 3, fin.TotalVotes)
	assert.Equal(t, 2, fin.CorrectCount)
}

func asFinalResult(t *testing.T, payload interface{}) FinalResultPayload {
	t.Helper()
	final, ok := payload.(FinalResultPayload)
	require.True(t, ok)
	return final
}

func TestTimeoutClosesQuestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.addQuestion(nil)
	room := Room(env.conferenceID)

	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q.ID, 1))

	require.Eventually(t, func() bool {
		return env.bc.closedCount(room, q.ID) == 1
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, ReasonTimeout, env.bc.closeReason(room, q.ID))

	// Exactly one closure even though the timer kept ticking up to it.
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, 1, env.bc.closedCount(room, q.ID))
}

func TestSlideChangeDebounce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := Room(env.conferenceID)

	require.NoError(t, env.co.SlideChange(ctx, env.conferenceID, env.hostID, 1))
	require.NoError(t, env.co.SlideChange(ctx, env.conferenceID, env.hostID, 2))
	assert.Equal(t, 1, env.bc.count(room, EventSlideUpdate))

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, env.co.SlideChange(ctx, env.conferenceID, env.hostID, 2))
	assert.Equal(t, 2, env.bc.count(room, EventSlideUpdate))
}

func TestSlideChangeAutoAdvance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := Room(env.conferenceID)
	slide := 3
	q1 := env.addQuestion(nil)
	q2 := env.addQuestion(&slide)

	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q1.ID, 30))
	require.NoError(t, env.co.SlideChange(ctx, env.conferenceID, env.hostID, slide))

	assert.Equal(t, 1, env.bc.closedCount(room, q1.ID))
	assert.Equal(t, ReasonSlideChange, env.bc.closeReason(room, q1.ID))
	payload, ok := env.bc.last(room, EventQuestionLive)
	require.True(t, ok)
	live := payload.(LiveSnapshot)
	assert.Equal(t, q2.ID, live.QuestionID)
	assert.Equal(t, 1, env.bc.count(room, EventSlideUpdate))
}

func TestDisconnectLeavesEveryConference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	otherID, _ := env.addConference(models.ConferenceActive)
	user := uuid.New()

	_, err := env.co.Join(ctx, env.conferenceID, user)
	require.NoError(t, err)
	_, err = env.co.Join(ctx, otherID, user)
	require.NoError(t, err)

	env.co.Disconnect(ctx, user)

	assert.Equal(t, 1, env.bc.count(HostRoom(env.conferenceID), EventAudienceLeft))
	assert.Equal(t, 1, env.bc.count(HostRoom(otherID), EventAudienceLeft))

	// A second disconnect is a no-op.
	env.co.Disconnect(ctx, user)
	assert.Equal(t, 1, env.bc.count(HostRoom(env.conferenceID), EventAudienceLeft))
}

func TestJoinSendsLiveSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.addQuestion(nil)
	require.NoError(t, env.co.PushLive(ctx, env.conferenceID, env.hostID, q.ID, 30))

	res, err := env.co.Join(ctx, env.conferenceID, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, res.LiveQuestion)
	assert.Equal(t, q.ID, res.LiveQuestion.QuestionID)
	assert.Len(t, res.LiveQuestion.Options, 3)
	assert.LessOrEqual(t, res.LiveQuestion.TimeRemaining, 30)
	assert.Greater(t, res.LiveQuestion.TimeRemaining, 25)
}

func TestPercentages(t *testing.T) {
	total, pcts := Percentages(map[string]int{"a": 0, "b": 0})
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, pcts["a"])
	assert.Equal(t, 0, pcts["b"])

	total, pcts = Percentages(map[string]int{"a": 1, "b": 2})
	assert.Equal(t, 3, total)
	assert.Equal(t, 33, pcts["a"])
	assert.Equal(t, 67, pcts["b"])

	total, pcts = Percentages(map[string]int{"a": 1, "b": 1})
	assert.Equal(t, 2, total)
	assert.Equal(t, 50, pcts["a"])
	assert.Equal(t, 50, pcts["b"])
}
