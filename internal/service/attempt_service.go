package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aptiva/aptiva-backend/internal/config"
	"github.com/aptiva/aptiva-backend/internal/external"
	"github.com/aptiva/aptiva-backend/internal/model"
)

// Domain Errors
var (
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptAlreadyCompleted = errors.New("attempt already completed")
	ErrInvalidStateTransition  = errors.New("invalid attempt state transition")
	ErrTestNotAvailable        = errors.New("test is not available")
	ErrInvalidAccessCode       = errors.New("invalid access code")
)

// AttemptStore is the persistence the state machine needs. Missing rows
// are reported as pgx.ErrNoRows.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByTestAndStudent(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error)
	MarkInProgress(ctx context.Context, testID uuid.UUID, studentID int) (time.Time, error)
	Complete(ctx context.Context, a *model.Attempt) (bool, error)
}

// AttemptService owns the attempt state machine:
// ASSIGNED → IN_PROGRESS → COMPLETED (terminal). Starting is idempotent —
// resuming an IN_PROGRESS attempt returns the same attempt — and any
// transition attempted on a COMPLETED attempt is rejected.
type AttemptService struct {
	attempts    AttemptStore
	assignments AssignmentStore
	rdb         *redis.Client
	audio       external.AudioStore
	notifier    external.Notifier
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService. rdb may be nil in
// tests; caching then degrades to store reads.
func NewAttemptService(
	attempts AttemptStore,
	assignments AssignmentStore,
	rdb *redis.Client,
	audio external.AudioStore,
	notifier external.Notifier,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attempts:    attempts,
		assignments: assignments,
		rdb:         rdb,
		audio:       audio,
		notifier:    notifier,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// CreateForAssignments creates one ASSIGNED attempt per freshly built
// assignment. An existing attempt for the same (test, student) is left
// untouched.
func (s *AttemptService) CreateForAssignments(ctx context.Context, assignments []*model.StudentAssignment) error {
	for _, a := range assignments {
		attempt := &model.Attempt{
			AssignmentID: a.ID,
			TestID:       a.TestID,
			StudentID:    a.StudentID,
		}
		if err := s.attempts.Create(ctx, attempt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue // already assigned earlier
			}
			return fmt.Errorf("create attempt for student %d: %w", a.StudentID, err)
		}
		s.notifier.Notify(ctx, external.Event{
			StudentID: a.StudentID,
			TestID:    a.TestID,
			Type:      external.EventAttemptAssigned,
		})
	}
	return nil
}

// Get retrieves an attempt for a (test, student) pair.
func (s *AttemptService) Get(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	a, err := s.attempts.GetByTestAndStudent(ctx, testID, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Start transitions an attempt to IN_PROGRESS on first fetch and stamps
// the start time. Resuming (a dropped connection, a second device)
// returns the same attempt. A completed attempt is rejected.
func (s *AttemptService) Start(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.Get(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}

	switch attempt.Status {
	case model.AttemptStatusCompleted:
		return nil, ErrAttemptAlreadyCompleted

	case model.AttemptStatusInProgress:
		s.cacheStart(ctx, testID, studentID, attempt.StartedAt)
		return attempt, nil

	case model.AttemptStatusAssigned:
		startedAt, err := s.attempts.MarkInProgress(ctx, testID, studentID)
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a concurrent start; the other request won the stamp.
			refetched, ferr := s.Get(ctx, testID, studentID)
			if ferr != nil {
				return nil, ferr
			}
			if refetched.Status == model.AttemptStatusCompleted {
				return nil, ErrAttemptAlreadyCompleted
			}
			return refetched, nil
		}
		if err != nil {
			return nil, fmt.Errorf("mark in progress: %w", err)
		}

		attempt.Status = model.AttemptStatusInProgress
		attempt.StartedAt = &startedAt
		s.cacheStart(ctx, testID, studentID, &startedAt)
		s.notifier.Notify(ctx, external.Event{
			StudentID: studentID,
			TestID:    testID,
			Type:      external.EventAttemptStarted,
		})
		return attempt, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidStateTransition, attempt.Status)
	}
}

// Paper starts (or resumes) the attempt and assembles the student-facing
// payload: stripped questions, resolved audio URLs, buffered answers and
// the remaining time.
func (s *AttemptService) Paper(ctx context.Context, test *model.Test, studentID int) (*model.AssignmentPaper, error) {
	attempt, err := s.Start(ctx, test.ID, studentID)
	if err != nil {
		return nil, err
	}

	views, err := s.questionViews(ctx, test.ID, studentID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.remainingSeconds(ctx, test, studentID, attempt)
	if err != nil {
		return nil, err
	}

	return &model.AssignmentPaper{
		TestID:           test.ID,
		AttemptID:        attempt.ID,
		Title:            test.Title,
		DurationMinutes:  test.DurationMinutes,
		RemainingSeconds: remaining,
		Questions:        views,
		SavedAnswers:     s.savedAnswers(ctx, test.ID, studentID),
	}, nil
}

// questionViews returns the student-facing projection of the assignment,
// cached in Redis. Assignments are immutable after building, so the cache
// never needs invalidation; it simply expires.
func (s *AttemptService) questionViews(ctx context.Context, testID uuid.UUID, studentID int) ([]model.AssignedQuestionView, error) {
	var key string
	if s.rdb != nil {
		key = config.CacheKey.AssignmentPaperKey(testID.String(), studentID)
		if raw, err := s.rdb.Get(ctx, key).Result(); err == nil {
			var views []model.AssignedQuestionView
			if err := json.Unmarshal([]byte(raw), &views); err == nil {
				return views, nil
			}
			s.log.Warn().Msg("corrupt paper cache entry, rebuilding")
		}
	}

	assignment, err := s.assignments.GetByTestAndStudent(ctx, testID, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}

	views := make([]model.AssignedQuestionView, 0, len(assignment.Questions))
	resolve := func(ref string) string { return ref }
	if s.audio != nil {
		resolve = s.audio.ResolveURL
	}
	for _, q := range assignment.Questions {
		views = append(views, q.ForStudent(resolve))
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(views); err == nil {
			if err := s.rdb.Set(ctx, key, raw, 24*time.Hour).Err(); err != nil {
				s.log.Debug().Err(err).Msg("cache paper failed")
			}
		}
	}
	return views, nil
}

// Autosave buffers one in-progress answer in Redis and queues it for the
// persistence worker. Rejected once the attempt is completed.
func (s *AttemptService) Autosave(ctx context.Context, testID uuid.UUID, studentID, position int, answer model.SubmittedAnswer) error {
	attempt, err := s.Get(ctx, testID, studentID)
	if err != nil {
		return err
	}
	if attempt.Status == model.AttemptStatusCompleted {
		return ErrAttemptAlreadyCompleted
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return fmt.Errorf("%w: autosave on %s attempt", ErrInvalidStateTransition, attempt.Status)
	}

	raw, err := json.Marshal(answer)
	if err != nil {
		return err
	}

	if s.rdb != nil {
		key := config.CacheKey.AttemptAnswersKey(testID.String(), studentID)
		if err := s.rdb.HSet(ctx, key, strconv.Itoa(position), raw).Err(); err != nil {
			return fmt.Errorf("buffer answer: %w", err)
		}

		payload, _ := json.Marshal(map[string]any{
			"test_id":    testID.String(),
			"student_id": studentID,
			"position":   position,
			"answer":     json.RawMessage(raw),
		})
		if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
			s.log.Warn().Err(err).Msg("queue autosave failed")
		}
	}

	s.notifier.Notify(ctx, external.Event{
		StudentID: studentID,
		TestID:    testID,
		Type:      external.EventAttemptAutosaved,
	})
	return nil
}

// ClearBuffer drops the autosave buffer after a successful submission.
func (s *AttemptService) ClearBuffer(ctx context.Context, testID uuid.UUID, studentID int) {
	if s.rdb == nil {
		return
	}
	key := config.CacheKey.AttemptAnswersKey(testID.String(), studentID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.log.Debug().Err(err).Msg("clear answer buffer failed")
	}
}

// savedAnswers returns the autosave buffer (position → raw answer JSON).
func (s *AttemptService) savedAnswers(ctx context.Context, testID uuid.UUID, studentID int) map[string]string {
	if s.rdb == nil {
		return nil
	}
	key := config.CacheKey.AttemptAnswersKey(testID.String(), studentID)
	saved, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		s.log.Debug().Err(err).Msg("read answer buffer failed")
		return nil
	}
	if len(saved) == 0 {
		return nil
	}
	return saved
}

// remainingSeconds computes the wall clock left in the attempt from the
// cached start stamp, falling back to the store and self-healing the
// cache on a miss.
func (s *AttemptService) remainingSeconds(ctx context.Context, test *model.Test, studentID int, attempt *model.Attempt) (float64, error) {
	var startUnix int64

	if s.rdb != nil {
		key := config.CacheKey.AttemptStartKey(test.ID.String(), studentID)
		val, err := s.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			startUnix, err = strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid start stamp in cache: %w", err)
			}
		case errors.Is(err, redis.Nil):
			// fall through to the store below
		default:
			return 0, fmt.Errorf("read start stamp: %w", err)
		}
	}

	if startUnix == 0 {
		if attempt.StartedAt == nil {
			return 0, fmt.Errorf("%w: attempt has no start time", ErrInvalidStateTransition)
		}
		startUnix = attempt.StartedAt.Unix()
		s.cacheStart(ctx, test.ID, studentID, attempt.StartedAt)
	}

	endTime := time.Unix(startUnix, 0).Add(time.Duration(test.DurationMinutes) * time.Minute)
	remaining := time.Until(endTime)
	if remaining < 0 {
		remaining = 0
	}
	return remaining.Seconds(), nil
}

func (s *AttemptService) cacheStart(ctx context.Context, testID uuid.UUID, studentID int, startedAt *time.Time) {
	if s.rdb == nil || startedAt == nil {
		return
	}
	key := config.CacheKey.AttemptStartKey(testID.String(), studentID)
	if err := s.rdb.Set(ctx, key, startedAt.Unix(), 0).Err(); err != nil {
		s.log.Debug().Err(err).Msg("cache start stamp failed")
	}
}
