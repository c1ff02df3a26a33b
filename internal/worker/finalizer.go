package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/confera/backend/internal/analytics"
	"github.com/confera/backend/internal/models"
	"github.com/confera/backend/internal/polling"
	"github.com/confera/backend/internal/questions"
	"github.com/confera/backend/pkg/queue"
)

// Finalizer writes a closed question's results to durable storage: final
// tallies on the question row and the analytics upsert. It is the terminal
// persistence step whether reached through the job queue or inline.
type Finalizer struct {
	questions *questions.Repository
	analytics *analytics.Repository
	logger    *zap.Logger
}

// NewFinalizer creates the durable finalizer.
func NewFinalizer(questionsRepo *questions.Repository, analyticsRepo *analytics.Repository, logger *zap.Logger) *Finalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{questions: questionsRepo, analytics: analyticsRepo, logger: logger}
}

// FinalizeQuestion implements polling.FinalizeSink for single-process mode,
// where closure persistence runs inline instead of through the queue.
func (f *Finalizer) FinalizeQuestion(ctx context.Context, fin polling.Finalization) error {
	if err := f.questions.SaveFinalResults(ctx, fin.QuestionID, fin.OptionCounts, fin.Percentages); err != nil {
		return err
	}
	return f.analytics.Upsert(ctx, &models.QuestionAnalytics{
		QuestionID:     fin.QuestionID,
		ConferenceID:   fin.ConferenceID,
		TotalResponses: fin.TotalVotes,
		OptionCounts:   fin.OptionCounts,
		CorrectCount:   fin.CorrectCount,
	})
}

// QueueSink implements polling.FinalizeSink by enqueueing a finalize job for
// the worker binary. Keeps durable writes off the realtime path entirely.
type QueueSink struct {
	queue *queue.Queue
}

// NewQueueSink creates the queue-backed finalize sink.
func NewQueueSink(q *queue.Queue) *QueueSink {
	return &QueueSink{queue: q}
}

// FinalizeQuestion enqueues the finalize job.
func (s *QueueSink) FinalizeQuestion(ctx context.Context, fin polling.Finalization) error {
	return s.queue.EnqueuePollFinalize(ctx, queue.PollFinalizePayload{
		ConferenceID:  fin.ConferenceID,
		QuestionID:    fin.QuestionID,
		Reason:        fin.Reason,
		TotalVotes:    fin.TotalVotes,
		OptionCounts:  fin.OptionCounts,
		Percentages:   fin.Percentages,
		CorrectOption: fin.CorrectOption,
		CorrectCount:  fin.CorrectCount,
		ClosedAt:      fin.ClosedAt,
	})
}
