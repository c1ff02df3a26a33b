package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/confera/backend/internal/conferences"
	"github.com/confera/backend/internal/groups"
	"github.com/confera/backend/internal/polling"
	"github.com/confera/backend/pkg/queue"
)

// Processor consumes finalize and group-provision jobs from the Redis queue.
type Processor struct {
	finalizer *Finalizer
	confs     *conferences.Repository
	groups    *groups.Repository
	queue     *queue.Queue
	logger    *zap.Logger
}

// NewProcessor creates the background job processor.
func NewProcessor(finalizer *Finalizer, confsRepo *conferences.Repository, groupsRepo *groups.Repository, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{finalizer: finalizer, confs: confsRepo, groups: groupsRepo, queue: q, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypePollFinalize:
		return p.processFinalize(ctx, job)
	case queue.JobTypeGroupProvision:
		return p.processGroupProvision(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) processFinalize(ctx context.Context, job *queue.Job) error {
	var payload queue.PollFinalizePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	fin := polling.Finalization{
		ConferenceID:  payload.ConferenceID,
		QuestionID:    payload.QuestionID,
		Reason:        payload.Reason,
		TotalVotes:    payload.TotalVotes,
		OptionCounts:  payload.OptionCounts,
		Percentages:   payload.Percentages,
		CorrectOption: payload.CorrectOption,
		CorrectCount:  payload.CorrectCount,
		ClosedAt:      payload.ClosedAt,
	}
	if err := p.finalizer.FinalizeQuestion(ctx, fin); err != nil {
		return fmt.Errorf("finalize question: %w", err)
	}
	p.logger.Info("question finalized",
		zap.String("question_id", payload.QuestionID.String()),
		zap.String("reason", payload.Reason),
		zap.Int("total_votes", payload.TotalVotes))
	return nil
}

func (p *Processor) processGroupProvision(ctx context.Context, job *queue.Job) error {
	var payload queue.GroupProvisionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	g, err := p.groups.Provision(ctx, payload.ConferenceID, payload.Title+" discussion")
	if err != nil {
		return fmt.Errorf("provision group: %w", err)
	}
	if err := p.confs.SetGroupID(ctx, payload.ConferenceID, g.ID); err != nil {
		return fmt.Errorf("link group: %w", err)
	}
	p.logger.Info("group provisioned",
		zap.String("conference_id", payload.ConferenceID.String()),
		zap.String("group_id", g.ID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, key, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job, key); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
