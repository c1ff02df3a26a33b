package polling

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VoteResult is the outcome of a ledger submission. Duplicates are rejected
// internally (Accepted=false) rather than raised as errors, so the caller
// chooses the rejection reason.
type VoteResult struct {
	Accepted     bool
	TotalVotes   int
	OptionCounts map[string]int
}

// Ledger is the durable, authoritative record of individual votes.
type Ledger interface {
	HasVoted(ctx context.Context, questionID, userID uuid.UUID) (bool, error)
	SubmitVote(ctx context.Context, questionID, userID uuid.UUID, optionKey string, isCorrect bool) (*VoteResult, error)
	GetVoteCounts(ctx context.Context, questionID uuid.UUID) (map[string]int, error)
	GetCorrectCount(ctx context.Context, questionID uuid.UUID) (int, error)
	CleanupVotes(ctx context.Context, questionID uuid.UUID) error
}

// PostgresLedger stores votes in the votes table. The composite primary key
// makes duplicate rejection a conflict, not a read-then-write race.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates the durable voting ledger.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) HasVoted(ctx context.Context, questionID, userID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM votes WHERE question_id = $1 AND user_id = $2)`
	var exists bool
	err := l.pool.QueryRow(ctx, q, questionID, userID).Scan(&exists)
	return exists, err
}

func (l *PostgresLedger) SubmitVote(ctx context.Context, questionID, userID uuid.UUID, optionKey string, isCorrect bool) (*VoteResult, error) {
	const ins = `INSERT INTO votes (question_id, user_id, option_key, is_correct)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (question_id, user_id) DO NOTHING`
	tag, err := l.pool.Exec(ctx, ins, questionID, userID, optionKey, isCorrect)
	if err != nil {
		return nil, err
	}
	counts, err := l.GetVoteCounts(ctx, questionID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return &VoteResult{
		Accepted:     tag.RowsAffected() == 1,
		TotalVotes:   total,
		OptionCounts: counts,
	}, nil
}

func (l *PostgresLedger) GetVoteCounts(ctx context.Context, questionID uuid.UUID) (map[string]int, error) {
	const q = `SELECT option_key, COUNT(*) FROM votes WHERE question_id = $1 GROUP BY option_key`
	rows, err := l.pool.Query(ctx, q, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func (l *PostgresLedger) GetCorrectCount(ctx context.Context, questionID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM votes WHERE question_id = $1 AND is_correct`
	var n int
	err := l.pool.QueryRow(ctx, q, questionID).Scan(&n)
	return n, err
}

func (l *PostgresLedger) CleanupVotes(ctx context.Context, questionID uuid.UUID) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM votes WHERE question_id = $1`, questionID)
	return err
}

// MemoryLedger is the single-process fallback, also used in tests.
type MemoryLedger struct {
	mu    sync.Mutex
	votes map[uuid.UUID]map[uuid.UUID]memVote
}

type memVote struct {
	optionKey string
	isCorrect bool
}

// NewMemoryLedger creates an in-process voting ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{votes: make(map[uuid.UUID]map[uuid.UUID]memVote)}
}

func (l *MemoryLedger) HasVoted(_ context.Context, questionID, userID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.votes[questionID][userID]
	return ok, nil
}

func (l *MemoryLedger) SubmitVote(_ context.Context, questionID, userID uuid.UUID, optionKey string, isCorrect bool) (*VoteResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byUser := l.votes[questionID]
	if byUser == nil {
		byUser = make(map[uuid.UUID]memVote)
		l.votes[questionID] = byUser
	}
	accepted := false
	if _, ok := byUser[userID]; !ok {
		byUser[userID] = memVote{optionKey: optionKey, isCorrect: isCorrect}
		accepted = true
	}
	counts := make(map[string]int)
	for _, v := range byUser {
		counts[v.optionKey]++
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return &VoteResult{Accepted: accepted, TotalVotes: total, OptionCounts: counts}, nil
}

func (l *MemoryLedger) GetVoteCounts(_ context.Context, questionID uuid.UUID) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[string]int)
	for _, v := range l.votes[questionID] {
		counts[v.optionKey]++
	}
	return counts, nil
}

func (l *MemoryLedger) GetCorrectCount(_ context.Context, questionID uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, v := range l.votes[questionID] {
		if v.isCorrect {
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) CleanupVotes(_ context.Context, questionID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.votes, questionID)
	return nil
}
