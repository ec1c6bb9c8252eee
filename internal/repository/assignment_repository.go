package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aptiva/aptiva-backend/internal/model"
)

// AssignmentRepository handles student assignment data access.
// Assignments are insert-only; nothing updates them after creation.
type AssignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

// Create inserts one assignment. The questions slice (with its option
// remaps) is persisted as jsonb — it is the only record of how to grade
// the shuffled presentation.
func (r *AssignmentRepository) Create(ctx context.Context, a *model.StudentAssignment) error {
	questions, err := json.Marshal(a.Questions)
	if err != nil {
		return fmt.Errorf("encode assignment questions: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO student_assignments (test_id, student_id, questions)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		a.TestID, a.StudentID, questions,
	).Scan(&a.ID, &a.CreatedAt)
}

// CreateBatch inserts a whole allocation batch in one round trip.
func (r *AssignmentRepository) CreateBatch(ctx context.Context, assignments []*model.StudentAssignment) error {
	batch := &pgx.Batch{}
	for _, a := range assignments {
		questions, err := json.Marshal(a.Questions)
		if err != nil {
			return fmt.Errorf("encode assignment questions: %w", err)
		}
		batch.Queue(
			`INSERT INTO student_assignments (test_id, student_id, questions)
			 VALUES ($1, $2, $3)
			 RETURNING id, created_at`,
			a.TestID, a.StudentID, questions,
		)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, a := range assignments {
		if err := br.QueryRow().Scan(&a.ID, &a.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func scanAssignment(row pgx.Row) (*model.StudentAssignment, error) {
	a := &model.StudentAssignment{}
	var questions []byte
	if err := row.Scan(&a.ID, &a.TestID, &a.StudentID, &questions, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &a.Questions); err != nil {
		return nil, fmt.Errorf("decode assignment questions: %w", err)
	}
	return a, nil
}

// GetByTestAndStudent retrieves a student's assignment for a test.
func (r *AssignmentRepository) GetByTestAndStudent(ctx context.Context, testID uuid.UUID, studentID int) (*model.StudentAssignment, error) {
	return scanAssignment(r.pool.QueryRow(ctx,
		`SELECT id, test_id, student_id, questions, created_at
		 FROM student_assignments
		 WHERE test_id = $1 AND student_id = $2`,
		testID, studentID))
}

// GetByID retrieves an assignment by id.
func (r *AssignmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.StudentAssignment, error) {
	return scanAssignment(r.pool.QueryRow(ctx,
		`SELECT id, test_id, student_id, questions, created_at
		 FROM student_assignments
		 WHERE id = $1`, id))
}
