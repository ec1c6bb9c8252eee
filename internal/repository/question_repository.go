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

// QuestionRepository handles question bank data access. The usage counter
// columns (used_count, last_used) are only written through IncrementUsage.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// payload is the jsonb column shape: exactly one variant set, by kind.
type questionPayload struct {
	MCQ       *model.MCQPayload       `json:"mcq,omitempty"`
	Dictation *model.DictationPayload `json:"dictation,omitempty"`
	Code      *model.CodePayload      `json:"code,omitempty"`
}

func marshalPayload(q *model.Question) ([]byte, error) {
	return json.Marshal(questionPayload{MCQ: q.MCQ, Dictation: q.Dictation, Code: q.Code})
}

func unmarshalPayload(raw []byte, q *model.Question) error {
	var p questionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode question payload: %w", err)
	}
	q.MCQ = p.MCQ
	q.Dictation = p.Dictation
	q.Code = p.Code
	return nil
}

// Create inserts a new question with a zero usage counter.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	payload, err := marshalPayload(q)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (module_id, level, topic_id, kind, prompt, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		q.ModuleID, q.Level, q.TopicID, q.Kind, q.Prompt, payload,
	).Scan(&q.ID, &q.CreatedAt)
}

// CreateBatch bulk-inserts questions in one round trip.
func (r *QuestionRepository) CreateBatch(ctx context.Context, questions []model.Question) error {
	batch := &pgx.Batch{}
	for i := range questions {
		payload, err := marshalPayload(&questions[i])
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO questions (module_id, level, topic_id, kind, prompt, payload)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			questions[i].ModuleID, questions[i].Level, questions[i].TopicID,
			questions[i].Kind, questions[i].Prompt, payload,
		)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range questions {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

const questionColumns = `id, module_id, level, topic_id, kind, prompt, payload, used_count, last_used, created_at`

func scanQuestion(row pgx.Row) (*model.Question, error) {
	var q model.Question
	var payload []byte
	if err := row.Scan(&q.ID, &q.ModuleID, &q.Level, &q.TopicID, &q.Kind, &q.Prompt,
		&payload, &q.UsedCount, &q.LastUsed, &q.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalPayload(payload, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetByID retrieves a single question.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	return scanQuestion(r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
}

// ListCandidates retrieves the full candidate pool for an allocation
// filter, including current usage counters.
func (r *QuestionRepository) ListCandidates(ctx context.Context, filter model.QuestionFilter) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE module_id = $1 AND level = $2`
	args := []any{filter.ModuleID, filter.Level}

	if filter.TopicID != nil {
		args = append(args, *filter.TopicID)
		query += fmt.Sprintf(" AND topic_id = $%d", len(args))
	}
	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// IncrementUsage performs the optimistic conditional usage update: the
// counter advances only if used_count still matches what the caller
// observed during selection. Returns false when a concurrent allocation
// won the race; the caller reselects for the affected id.
func (r *QuestionRepository) IncrementUsage(ctx context.Context, id uuid.UUID, observedUsedCount int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE questions
		 SET used_count = used_count + 1, last_used = NOW()
		 WHERE id = $1 AND used_count = $2`,
		id, observedUsedCount,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListUsage returns paginated usage stats, most-used first.
func (r *QuestionRepository) ListUsage(ctx context.Context, moduleID string, limit, offset int) ([]model.QuestionUsage, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE module_id = $1`, moduleID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, module_id, level, kind, used_count, last_used
		 FROM questions
		 WHERE module_id = $1
		 ORDER BY used_count DESC, last_used DESC NULLS LAST
		 LIMIT $2 OFFSET $3`,
		moduleID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var usage []model.QuestionUsage
	for rows.Next() {
		var u model.QuestionUsage
		if err := rows.Scan(&u.ID, &u.ModuleID, &u.Level, &u.Kind, &u.UsedCount, &u.LastUsed); err != nil {
			return nil, 0, err
		}
		usage = append(usage, u)
	}
	return usage, total, rows.Err()
}
