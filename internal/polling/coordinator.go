package polling

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/confera/backend/internal/models"
)

// Closure reasons carried in question:closed broadcasts.
const (
	ReasonTimeout     = "timeout"
	ReasonManual      = "manual"
	ReasonSlideChange = "slide_change"
)

// Broadcaster fans an event out to every connection in a room.
type Broadcaster interface {
	Broadcast(room string, event string, payload interface{})
}

// Options are the coordinator's timing tunables.
type Options struct {
	DefaultDuration time.Duration // countdown when push_live omits a duration
	PushLockTTL     time.Duration // lease around push/close transitions
	VoteLockTTL     time.Duration // per-(question,participant) ledger vote lock
	SlideLockTTL    time.Duration // debounce window for slide_change; never released early
	CleanupDelay    time.Duration // delay before poll counters are dropped after close
	VotedRetention  time.Duration // how long voted sets outlive a closed question
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		DefaultDuration: 45 * time.Second,
		PushLockTTL:     5 * time.Second,
		VoteLockTTL:     2 * time.Second,
		SlideLockTTL:    500 * time.Millisecond,
		CleanupDelay:    60 * time.Second,
		VotedRetention:  time.Hour,
	}
}

// Deps are the coordinator's collaborators.
type Deps struct {
	Logger      *zap.Logger
	Locker      Locker
	Registry    Registry
	Lifecycle   Lifecycle
	Stats       Stats
	Presence    Presence
	Ledger      Ledger
	Questions   QuestionStore
	Broadcaster Broadcaster
	Sink        FinalizeSink
}

// Coordinator is the protocol state machine for live conference polling:
// join/leave, push-question-live, vote submission, timer-driven and manual
// closure, and slide-driven auto-advance. It enforces the at-most-one-live-
// question invariant and one-vote-per-participant under concurrent events.
type Coordinator struct {
	logger    *zap.Logger
	opts      Options
	locker    Locker
	registry  Registry
	lifecycle Lifecycle
	stats     Stats
	presence  Presence
	ledger    Ledger
	questions QuestionStore
	bc        Broadcaster
	sink      FinalizeSink
	timers    *timerArena
}

// NewCoordinator creates the conference event coordinator.
func NewCoordinator(deps Deps, opts Options) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		logger:    logger,
		opts:      opts,
		locker:    deps.Locker,
		registry:  deps.Registry,
		lifecycle: deps.Lifecycle,
		stats:     deps.Stats,
		presence:  deps.Presence,
		ledger:    deps.Ledger,
		questions: deps.Questions,
		bc:        deps.Broadcaster,
		sink:      deps.Sink,
		timers:    newTimerArena(),
	}
}

// Shutdown cancels all running question timers.
func (co *Coordinator) Shutdown() {
	co.timers.CancelAll()
}

// Join admits a participant to a conference room. Presence registration is
// idempotent: rejoining does not double-count and does not re-broadcast.
func (co *Coordinator) Join(ctx context.Context, conferenceID, userID uuid.UUID) (*JoinedPayload, error) {
	status, err := co.registry.GetStatus(ctx, conferenceID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrConferenceNotFound
	}
	if err != nil {
		return nil, err
	}
	if status == models.ConferenceEnded {
		return nil, ErrConferenceEnded
	}

	host, err := co.registry.GetHost(ctx, conferenceID)
	if err != nil {
		return nil, err
	}
	role := RoleAudience
	if userID == host {
		role = RoleHost
	}

	wasNew := false
	if role == RoleAudience {
		wasNew, err = co.presence.Add(ctx, conferenceID, userID)
		if err != nil {
			return nil, err
		}
	}

	snapshot, err := co.liveSnapshot(ctx, conferenceID)
	if err != nil {
		co.logger.Warn("live snapshot failed", zap.String("conference_id", conferenceID.String()), zap.Error(err))
	}
	count, err := co.presence.Count(ctx, conferenceID)
	if err != nil {
		return nil, err
	}

	if role == RoleAudience && wasNew {
		co.bc.Broadcast(HostRoom(conferenceID), EventAudienceJoined, AudiencePayload{ConferenceID: conferenceID, UserID: userID, Count: count})
		co.bc.Broadcast(Room(conferenceID), EventAudienceCount, AudiencePayload{ConferenceID: conferenceID, Count: count})
	}

	return &JoinedPayload{
		ConferenceID:  conferenceID,
		Status:        string(status),
		Role:          role,
		AudienceCount: count,
		LiveQuestion:  snapshot,
	}, nil
}

// Leave mirrors Join: deregister presence if audience and broadcast updated
// counts. A no-op for hosts and for participants never registered.
func (co *Coordinator) Leave(ctx context.Context, conferenceID, userID uuid.UUID) error {
	host, err := co.registry.GetHost(ctx, conferenceID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if err == nil && userID == host {
		return nil
	}
	removed, err := co.presence.Remove(ctx, conferenceID, userID)
	if err != nil || !removed {
		return err
	}
	count, err := co.presence.Count(ctx, conferenceID)
	if err != nil {
		return err
	}
	co.bc.Broadcast(HostRoom(conferenceID), EventAudienceLeft, AudiencePayload{ConferenceID: conferenceID, UserID: userID, Count: count})
	co.bc.Broadcast(Room(conferenceID), EventAudienceCount, AudiencePayload{ConferenceID: conferenceID, Count: count})
	return nil
}

// Disconnect performs leave cleanup for every conference the participant was
// present in; a single transport connection may span multiple rooms.
func (co *Coordinator) Disconnect(ctx context.Context, userID uuid.UUID) {
	conferences, err := co.presence.Conferences(ctx, userID)
	if err != nil {
		co.logger.Warn("disconnect lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	for _, conferenceID := range conferences {
		if err := co.Leave(ctx, conferenceID, userID); err != nil {
			co.logger.Warn("disconnect leave failed",
				zap.String("conference_id", conferenceID.String()),
				zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
}

// PushLive makes a question the conference's live question (host only). Any
// currently-live question is closed first with reason "manual".
func (co *Coordinator) PushLive(ctx context.Context, conferenceID, userID, questionID uuid.UUID, durationSec int) error {
	if err := co.requireHost(ctx, conferenceID, userID); err != nil {
		return err
	}
	status, err := co.registry.GetStatus(ctx, conferenceID)
	if err != nil {
		return err
	}
	if status != models.ConferenceActive {
		return ErrConferenceNotActive
	}
	q, err := co.questions.GetByID(ctx, questionID)
	if errors.Is(err, models.ErrNotFound) {
		return ErrQuestionNotFound
	}
	if err != nil {
		return err
	}
	if q.ConferenceID != conferenceID {
		return ErrQuestionNotFound
	}
	if durationSec <= 0 {
		durationSec = int(co.opts.DefaultDuration.Seconds())
	}

	lockKey := "push:" + conferenceID.String()
	ok, err := co.locker.Acquire(ctx, lockKey, co.opts.PushLockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOperationInProgress
	}
	defer func() { _ = co.locker.Release(ctx, lockKey) }()

	return co.activate(ctx, conferenceID, q, durationSec)
}

// activate is the shared push routine used by PushLive and slide auto-advance.
// Caller holds the push lock (or the slide debounce lock).
func (co *Coordinator) activate(ctx context.Context, conferenceID uuid.UUID, q *models.Question, durationSec int) error {
	cur, err := co.lifecycle.GetLive(ctx, conferenceID)
	if err != nil {
		return err
	}
	if cur != nil {
		co.close(ctx, conferenceID, cur, ReasonManual)
	}

	meta := &QuestionMeta{
		QuestionID:    q.ID,
		ConferenceID:  q.ConferenceID,
		Text:          q.Text,
		Options:       q.Options,
		CorrectOption: q.CorrectOption,
	}
	if err := co.lifecycle.CacheQuestionMeta(ctx, meta); err != nil {
		return err
	}

	now := time.Now()
	lq := &LiveQuestion{
		QuestionID: q.ID,
		Duration:   durationSec,
		StartedAt:  now,
		ExpiresAt:  now.Add(time.Duration(durationSec) * time.Second),
		SlideIndex: q.SlideIndex,
	}
	if err := co.lifecycle.SetLive(ctx, conferenceID, lq); err != nil {
		return err
	}
	if err := co.stats.InitVotes(ctx, conferenceID, q.ID, q.OptionKeys()); err != nil {
		return err
	}

	// Durable live mark happens off the event path.
	go func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := co.questions.SetLiveStatus(dctx, q.ID, true, models.QuestionActive); err != nil {
			co.logger.Warn("durable live mark failed", zap.String("question_id", q.ID.String()), zap.Error(err))
		}
	}()

	co.startTimer(conferenceID, lq)

	options := make([]OptionView, 0, len(q.Options))
	for _, o := range q.Options {
		options = append(options, OptionView{Key: o.Key, Label: o.Label})
	}
	co.bc.Broadcast(Room(conferenceID), EventQuestionLive, LiveSnapshot{
		QuestionID:    q.ID,
		QuestionText:  q.Text,
		Options:       options,
		Duration:      durationSec,
		TimeRemaining: durationSec,
		StartedAt:     lq.StartedAt,
		ExpiresAt:     lq.ExpiresAt,
		SlideIndex:    q.SlideIndex,
	})
	co.broadcastLiveStats(ctx, conferenceID, q.ID)

	co.logger.Info("question live",
		zap.String("conference_id", conferenceID.String()),
		zap.String("question_id", q.ID.String()),
		zap.Int("duration_sec", durationSec))
	return nil
}

// CloseQuestion closes the live question on manual host action.
func (co *Coordinator) CloseQuestion(ctx context.Context, conferenceID, userID, questionID uuid.UUID) error {
	if err := co.requireHost(ctx, conferenceID, userID); err != nil {
		return err
	}
	cur, err := co.lifecycle.GetLive(ctx, conferenceID)
	if err != nil {
		return err
	}
	if cur == nil || cur.QuestionID != questionID {
		return ErrQuestionNotLive
	}
	co.close(ctx, conferenceID, cur, ReasonManual)
	return nil
}

// ForceCloseLive closes whatever question is live, if any. Used when a
// conference ends.
func (co *Coordinator) ForceCloseLive(ctx context.Context, conferenceID uuid.UUID, reason string) {
	cur, err := co.lifecycle.GetLive(ctx, conferenceID)
	if err != nil {
		co.logger.Warn("force close lookup failed", zap.String("conference_id", conferenceID.String()), zap.Error(err))
		return
	}
	if cur != nil {
		co.close(ctx, conferenceID, cur, reason)
	}
}

// JoinPoll records a participant in the live poll's audience for the host
// dashboard. Only the first join re-broadcasts live stats.
func (co *Coordinator) JoinPoll(ctx context.Context, conferenceID, userID, questionID uuid.UUID) error {
	lq, err := co.lifecycle.GetLive(ctx, conferenceID)
	if err != nil {
		return err
	}
	if lq == nil || lq.QuestionID != questionID {
		return ErrQuestionNotLive
	}
	wasNew, err := co.stats.AddParticipant(ctx, conferenceID, questionID, userID)
	if err != nil {
		return err
	}
	if wasNew {
		co.broadcastLiveStats(ctx, conferenceID, questionID)
	}
	return nil
}

// Vote is the fast vote path: duplicate rejection via the stats aggregator's
// atomic track operation, live counters for the host dashboard only.
func (co *Coordinator) Vote(ctx context.Context, conferenceID, userID, questionID uuid.UUID, optionKey string) (*PollVoteAcceptedPayload, error) {
	if optionKey == "" {
		return nil, ErrInvalidRequest
	}
	if _, _, err := co.prepareVote(ctx, conferenceID, userID, questionID, optionKey); err != nil {
		return nil, err
	}

	wasNew, err := co.stats.TrackUserVote(ctx, conferenceID, questionID, userID, optionKey)
	if err != nil {
		return nil, err
	}
	if !wasNew {
		return nil, ErrAlreadyVoted
	}
	if err := co.stats.IncrementVote(ctx, conferenceID, questionID, optionKey); err != nil {
		return nil, err
	}
	co.broadcastLiveStats(ctx, conferenceID, questionID)
	return &PollVoteAcceptedPayload{QuestionID: questionID, OptionKey: optionKey}, nil
}

// SubmitVote is the ledger vote path: a short per-(question,participant)
// lock closes the check-then-write race, and the running tally is broadcast
// to the whole room.
func (co *Coordinator) SubmitVote(ctx context.Context, conferenceID, userID, questionID uuid.UUID, optionKey string) (*VoteAcceptedPayload, error) {
	if optionKey == "" {
		return nil, ErrInvalidRequest
	}
	meta, _, err := co.prepareVote(ctx, conferenceID, userID, questionID, optionKey)
	if err != nil {
		return nil, err
	}

	lockKey := "vote:" + questionID.String() + ":" + userID.String()
	ok, err := co.locker.Acquire(ctx, lockKey, co.opts.VoteLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOperationInProgress
	}
	defer func() { _ = co.locker.Release(ctx, lockKey) }()

	voted, err := co.ledger.HasVoted(ctx, questionID, userID)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, ErrAlreadyVoted
	}
	wasNew, err := co.stats.TrackUserVote(ctx, conferenceID, questionID, userID, optionKey)
	if err != nil {
		return nil, err
	}
	if !wasNew {
		return nil, ErrAlreadyVoted
	}

	isCorrect := optionKey == meta.CorrectOption
	res, err := co.ledger.SubmitVote(ctx, questionID, userID, optionKey, isCorrect)
	if err != nil {
		return nil, err
	}
	if !res.Accepted {
		return nil, ErrAlreadyVoted
	}
	if err := co.stats.IncrementVote(ctx, conferenceID, questionID, optionKey); err != nil {
		co.logger.Warn("live counter increment failed", zap.String("question_id", questionID.String()), zap.Error(err))
	}

	co.bc.Broadcast(Room(conferenceID), EventVoteResult, VoteResultPayload{
		QuestionID:   questionID,
		TotalVotes:   res.TotalVotes,
		OptionCounts: res.OptionCounts,
	})
	co.broadcastLiveStats(ctx, conferenceID, questionID)

	return &VoteAcceptedPayload{QuestionID: questionID, SelectedOption: optionKey, IsCorrect: isCorrect}, nil
}

// prepareVote runs the shared vote preconditions: caller is audience, the
// question is the live one, and the option is valid per cached metadata.
func (co *Coordinator) prepareVote(ctx context.Context, conferenceID, userID, questionID uuid.UUID, optionKey string) (*QuestionMeta, *LiveQuestion, error) {
	host, err := co.registry.GetHost(ctx, conferenceID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, ErrConferenceNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if userID == host {
		return nil, nil, ErrNotAudience
	}
	lq, err := co.lifecycle.GetLive(ctx, conferenceID)
	if err != nil {
		return nil, nil, err
	}
	if lq == nil || lq.QuestionID != questionID {
		return nil, nil, ErrQuestionNotLive
	}
	meta, err := co.questionMeta(ctx, questionID)
	if err != nil {
		return nil, nil, err
	}
	if !meta.HasOption(optionKey) {
		return nil, nil, ErrInvalidOption
	}
	return meta, lq, nil
}

// SlideChange closes any live question and pushes the question mapped to the
// new slide, if one exists. Rapid repeats inside the debounce window are
// dropped silently; last writer wins.
func (co *Coordinator) SlideChange(ctx context.Context, conferenceID, userID uuid.UUID, slideIndex int) error {
	if err := co.requireHost(ctx, conferenceID, userID); err != nil {
		return err
	}
	ok, err := co.locker.Acquire(ctx, "slide:"+conferenceID.String(), co.opts.SlideLockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	// The slide lock is not released; its expiry ends the debounce window.

	cur, err := co.lifecycle.GetLive(ctx, conferenceID)
	if err != nil {
		return err
	}
	if cur != nil {
		co.close(ctx, conferenceID, cur, ReasonSlideChange)
	}

	status, err := co.registry.GetStatus(ctx, conferenceID)
	if err == nil && status == models.ConferenceActive {
		q, qerr := co.questions.GetBySlide(ctx, conferenceID, slideIndex)
		switch {
		case qerr == nil:
			if aerr := co.activate(ctx, conferenceID, q, int(co.opts.DefaultDuration.Seconds())); aerr != nil {
				co.logger.Warn("slide auto-advance push failed",
					zap.String("conference_id", conferenceID.String()), zap.Error(aerr))
			}
		case !errors.Is(qerr, models.ErrNotFound):
			co.logger.Warn("slide question lookup failed",
				zap.String("conference_id", conferenceID.String()), zap.Error(qerr))
		}
	}

	if err := co.lifecycle.SetSlideIndex(ctx, conferenceID, slideIndex); err != nil {
		co.logger.Warn("slide index persist failed", zap.String("conference_id", conferenceID.String()), zap.Error(err))
	}
	co.bc.Broadcast(Room(conferenceID), EventSlideUpdate, SlideUpdatePayload{ConferenceID: conferenceID, SlideIndex: slideIndex})
	return nil
}

// close is the shared closure routine for timeout, manual, supersession and
// slide-change paths. Idempotent: whichever caller clears the live record
// first does the work, the rest are no-ops.
func (co *Coordinator) close(ctx context.Context, conferenceID uuid.UUID, lq *LiveQuestion, reason string) {
	closed, err := co.lifecycle.CloseLive(ctx, conferenceID, lq.QuestionID)
	if err != nil {
		co.logger.Error("close live failed",
			zap.String("conference_id", conferenceID.String()),
			zap.String("question_id", lq.QuestionID.String()), zap.Error(err))
		return
	}
	if !closed {
		return
	}
	co.timers.Cancel(lq.QuestionID)

	counts, err := co.stats.GetVotes(ctx, conferenceID, lq.QuestionID)
	if err != nil {
		co.logger.Warn("final tally read failed", zap.String("question_id", lq.QuestionID.String()), zap.Error(err))
	}
	if len(counts) == 0 {
		if ledgerCounts, lerr := co.ledger.GetVoteCounts(ctx, lq.QuestionID); lerr == nil && len(ledgerCounts) > 0 {
			counts = ledgerCounts
		}
	}
	if counts == nil {
		counts = map[string]int{}
	}
	total, pcts := Percentages(counts)

	correctOption := ""
	if meta, merr := co.questionMeta(ctx, lq.QuestionID); merr == nil {
		correctOption = meta.CorrectOption
	}
	correctCount := counts[correctOption]
	closedAt := time.Now()

	co.bc.Broadcast(Room(conferenceID), EventQuestionClosed, QuestionClosedPayload{
		QuestionID: lq.QuestionID,
		Reason:     reason,
		ClosedAt:   closedAt,
	})
	co.bc.Broadcast(Room(conferenceID), EventFinalResult, FinalResultPayload{
		QuestionID:          lq.QuestionID,
		TotalVotes:          total,
		OptionCounts:        counts,
		CorrectOption:       correctOption,
		CorrectCount:        correctCount,
		PercentageBreakdown: pcts,
	})

	fin := Finalization{
		ConferenceID:  conferenceID,
		QuestionID:    lq.QuestionID,
		Reason:        reason,
		TotalVotes:    total,
		OptionCounts:  counts,
		Percentages:   pcts,
		CorrectOption: correctOption,
		CorrectCount:  correctCount,
		ClosedAt:      closedAt,
	}
	// Persistence must not delay the broadcast; failures are logged only.
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := co.sink.FinalizeQuestion(pctx, fin); err != nil {
			co.logger.Error("finalize persistence failed",
				zap.String("question_id", fin.QuestionID.String()), zap.Error(err))
		}
	}()

	questionID := lq.QuestionID
	time.AfterFunc(co.opts.CleanupDelay, func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := co.stats.Cleanup(cctx, conferenceID, questionID, co.opts.VotedRetention); err != nil {
			co.logger.Warn("poll cleanup failed", zap.String("question_id", questionID.String()), zap.Error(err))
		}
	})

	co.logger.Info("question closed",
		zap.String("conference_id", conferenceID.String()),
		zap.String("question_id", lq.QuestionID.String()),
		zap.String("reason", reason),
		zap.Int("total_votes", total))
}

// startTimer launches the 1 Hz countdown for a live question. Broadcasts are
// throttled away from expiry (multiples of 5) and full-resolution inside the
// last five seconds.
func (co *Coordinator) startTimer(conferenceID uuid.UUID, lq *LiveQuestion) {
	questionID := lq.QuestionID
	co.timers.Start(questionID, func(ctx context.Context) {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			cur, err := co.lifecycle.GetLive(tctx, conferenceID)
			if err != nil {
				cancel()
				continue
			}
			if cur == nil || cur.QuestionID != questionID {
				cancel()
				return
			}
			remaining := int(math.Ceil(time.Until(cur.ExpiresAt).Seconds()))
			if remaining <= 0 {
				co.close(tctx, conferenceID, cur, ReasonTimeout)
				cancel()
				return
			}
			if remaining <= 5 || remaining%5 == 0 {
				co.bc.Broadcast(Room(conferenceID), EventTimerUpdate, TimerUpdatePayload{
					QuestionID:    questionID,
					TimeRemaining: remaining,
					ExpiresAt:     cur.ExpiresAt,
				})
			}
			cancel()
		}
	})
}

func (co *Coordinator) broadcastLiveStats(ctx context.Context, conferenceID, questionID uuid.UUID) {
	counts, err := co.stats.GetVotes(ctx, conferenceID, questionID)
	if err != nil {
		co.logger.Warn("live stats read failed", zap.String("question_id", questionID.String()), zap.Error(err))
		return
	}
	participants, err := co.stats.GetParticipantCount(ctx, conferenceID, questionID)
	if err != nil {
		co.logger.Warn("participant count read failed", zap.String("question_id", questionID.String()), zap.Error(err))
	}
	total, pcts := Percentages(counts)
	results := make(map[string]OptionStat, len(counts))
	for k, n := range counts {
		results[k] = OptionStat{Count: n, Percentage: pcts[k]}
	}
	co.bc.Broadcast(HostRoom(conferenceID), EventLiveStats, LiveStatsPayload{
		QuestionID:   questionID,
		Participants: participants,
		TotalVotes:   total,
		Results:      results,
	})
}

// liveSnapshot builds the joining participant's view of the live question.
func (co *Coordinator) liveSnapshot(ctx context.Context, conferenceID uuid.UUID) (*LiveSnapshot, error) {
	lq, err := co.lifecycle.GetLive(ctx, conferenceID)
	if err != nil || lq == nil {
		return nil, err
	}
	meta, err := co.questionMeta(ctx, lq.QuestionID)
	if err != nil {
		return nil, err
	}
	remaining := int(math.Ceil(time.Until(lq.ExpiresAt).Seconds()))
	if remaining < 0 {
		remaining = 0
	}
	options := make([]OptionView, 0, len(meta.Options))
	for _, o := range meta.Options {
		options = append(options, OptionView{Key: o.Key, Label: o.Label})
	}
	return &LiveSnapshot{
		QuestionID:    lq.QuestionID,
		QuestionText:  meta.Text,
		Options:       options,
		Duration:      lq.Duration,
		TimeRemaining: remaining,
		StartedAt:     lq.StartedAt,
		ExpiresAt:     lq.ExpiresAt,
		SlideIndex:    lq.SlideIndex,
	}, nil
}

// questionMeta returns cached question metadata, loading from durable storage
// and re-caching on a miss.
func (co *Coordinator) questionMeta(ctx context.Context, questionID uuid.UUID) (*QuestionMeta, error) {
	meta, err := co.lifecycle.GetQuestionMeta(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		return meta, nil
	}
	q, err := co.questions.GetByID(ctx, questionID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	meta = &QuestionMeta{
		QuestionID:    q.ID,
		ConferenceID:  q.ConferenceID,
		Text:          q.Text,
		Options:       q.Options,
		CorrectOption: q.CorrectOption,
	}
	if err := co.lifecycle.CacheQuestionMeta(ctx, meta); err != nil {
		co.logger.Warn("meta cache failed", zap.String("question_id", questionID.String()), zap.Error(err))
	}
	return meta, nil
}

func (co *Coordinator) requireHost(ctx context.Context, conferenceID, userID uuid.UUID) error {
	host, err := co.registry.GetHost(ctx, conferenceID)
	if errors.Is(err, models.ErrNotFound) {
		return ErrConferenceNotFound
	}
	if err != nil {
		return err
	}
	if userID != host {
		return ErrNotHost
	}
	return nil
}

// Percentages computes per-option percentages: round(count/total*100), and 0
// for every option when the total is zero.
func Percentages(counts map[string]int) (int, map[string]int) {
	total := 0
	for _, n := range counts {
		total += n
	}
	pcts := make(map[string]int, len(counts))
	for k, n := range counts {
		if total == 0 {
			pcts[k] = 0
			continue
		}
		pcts[k] = int(math.Round(float64(n) / float64(total) * 100))
	}
	return total, pcts
}
