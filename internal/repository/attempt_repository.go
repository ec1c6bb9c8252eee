package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aptiva/aptiva-backend/internal/model"
)

// AttemptRepository handles attempt data access. State transitions are
// guarded by conditional updates so COMPLETED stays terminal even under
// concurrent submissions.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new ASSIGNED attempt for an assignment. Returns
// pgx.ErrNoRows when an attempt already exists for (test, student).
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (assignment_id, test_id, student_id, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (test_id, student_id) DO NOTHING
		 RETURNING id`,
		a.AssignmentID, a.TestID, a.StudentID, model.AttemptStatusAssigned,
	).Scan(&a.ID)
}

const attemptColumns = `id, assignment_id, test_id, student_id, status, started_at,
	finished_at, answers, results, score, percentage, correct_count`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var answers, results []byte
	if err := row.Scan(&a.ID, &a.AssignmentID, &a.TestID, &a.StudentID, &a.Status,
		&a.StartedAt, &a.FinishedAt, &answers, &results, &a.Score, &a.Percentage,
		&a.CorrectCount); err != nil {
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, fmt.Errorf("decode attempt answers: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &a.Results); err != nil {
			return nil, fmt.Errorf("decode attempt results: %w", err)
		}
	}
	return a, nil
}

// GetByTestAndStudent retrieves an attempt for a (test, student) pair.
func (r *AttemptRepository) GetByTestAndStudent(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE test_id = $1 AND student_id = $2`,
		testID, studentID))
}

// MarkInProgress transitions ASSIGNED → IN_PROGRESS and stamps the start
// time. Returns pgx.ErrNoRows when the attempt is not in ASSIGNED — the
// caller refetches and decides whether that means resume or reject.
func (r *AttemptRepository) MarkInProgress(ctx context.Context, testID uuid.UUID, studentID int) (time.Time, error) {
	var startedAt time.Time
	err := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $1, started_at = NOW()
		 WHERE test_id = $2 AND student_id = $3 AND status = $4
		 RETURNING started_at`,
		model.AttemptStatusInProgress, testID, studentID, model.AttemptStatusAssigned,
	).Scan(&startedAt)
	return startedAt, err
}

// Complete transitions IN_PROGRESS → COMPLETED exactly once, persisting
// the raw answers, per-question results and aggregates. Returns false
// when the attempt was not IN_PROGRESS (already completed or never
// started) — nothing is overwritten in that case.
func (r *AttemptRepository) Complete(ctx context.Context, a *model.Attempt) (bool, error) {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return false, fmt.Errorf("encode attempt answers: %w", err)
	}
	results, err := json.Marshal(a.Results)
	if err != nil {
		return false, fmt.Errorf("encode attempt results: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finished_at = NOW(), answers = $2, results = $3,
		     score = $4, percentage = $5, correct_count = $6
		 WHERE test_id = $7 AND student_id = $8 AND status = $9`,
		model.AttemptStatusCompleted, answers, results,
		a.Score, a.Percentage, a.CorrectCount,
		a.TestID, a.StudentID, model.AttemptStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AttemptResult is the admin-facing result row for a test.
type AttemptResult struct {
	StudentID    int                 `json:"student_id"`
	Status       model.AttemptStatus `json:"status"`
	Score        *float64            `json:"score,omitempty"`
	Percentage   *float64            `json:"percentage,omitempty"`
	CorrectCount int                 `json:"correct_count"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// ListByTest retrieves paginated attempt results for a test.
func (r *AttemptRepository) ListByTest(ctx context.Context, testID uuid.UUID, limit, offset int) ([]AttemptResult, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE test_id = $1`, testID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT student_id, status, score, percentage, correct_count, started_at, finished_at
		 FROM attempts
		 WHERE test_id = $1
		 ORDER BY student_id ASC
		 LIMIT $2 OFFSET $3`,
		testID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(&res.StudentID, &res.Status, &res.Score, &res.Percentage,
			&res.CorrectCount, &res.StartedAt, &res.FinishedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
