package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aptiva/aptiva-backend/internal/model"
)

// AllocationService draws question batches for whole student groups. One
// Reserve call covers the full demand so the selection policy sees the
// true total instead of double-favoring early students.
type AllocationService struct {
	tracker *UsageTracker
	log     zerolog.Logger
}

// NewAllocationService creates a new AllocationService.
func NewAllocationService(tracker *UsageTracker, log zerolog.Logger) *AllocationService {
	return &AllocationService{
		tracker: tracker,
		log:     log.With().Str("component", "allocation_service").Logger(),
	}
}

// Allocate reserves questionsPerStudent × len(studentIDs) questions and
// partitions them into one disjoint contiguous slice per student. The
// reserved list is already shuffled, so contiguous slicing yields random
// disjoint subsets. Propagates ErrInsufficientQuestions; no partial batch
// is ever returned.
func (s *AllocationService) Allocate(ctx context.Context, testID uuid.UUID, filter model.QuestionFilter, questionsPerStudent int, studentIDs []int) (*model.AllocationBatch, error) {
	if questionsPerStudent < 1 {
		return nil, fmt.Errorf("questions per student must be positive, got %d", questionsPerStudent)
	}
	if len(studentIDs) == 0 {
		return nil, fmt.Errorf("student list is empty")
	}

	total := questionsPerStudent * len(studentIDs)
	questions, err := s.tracker.Reserve(ctx, filter, total)
	if err != nil {
		return nil, err
	}

	batch := &model.AllocationBatch{
		TestID:     testID,
		Partitions: make(map[int][]uuid.UUID, len(studentIDs)),
		Questions:  make(map[uuid.UUID]model.Question, total),
	}
	for _, q := range questions {
		batch.Questions[q.ID] = q
	}
	for i, studentID := range studentIDs {
		slice := questions[i*questionsPerStudent : (i+1)*questionsPerStudent]
		ids := make([]uuid.UUID, len(slice))
		for j, q := range slice {
			ids[j] = q.ID
		}
		batch.Partitions[studentID] = ids
	}

	s.log.Info().
		Str("test_id", testID.String()).
		Int("students", len(studentIDs)).
		Int("total_questions", total).
		Msg("allocation committed")

	return batch, nil
}
