package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/aptiva/aptiva-backend/internal/config"
	"github.com/aptiva/aptiva-backend/internal/model"
	"github.com/aptiva/aptiva-backend/internal/repository"
	"github.com/aptiva/aptiva-backend/internal/response"
)

// Domain Errors
var (
	ErrTestNotFound = errors.New("test not found")
	ErrTestNotDraft = errors.New("test status is not DRAFT")
	ErrTestNotOpen  = errors.New("test is not published")
)

// TestStore is the persistence the lifecycle needs. Missing rows are
// reported as pgx.ErrNoRows.
type TestStore interface {
	Create(ctx context.Context, t *model.Test) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.TestStatus) error
	List(ctx context.Context, limit, offset int) ([]model.Test, int, error)
}

// TestResultStore lists graded outcomes for a test. Kept separate from
// TestStore so the lifecycle can be exercised without a result backend.
type TestResultStore interface {
	ListByTest(ctx context.Context, testID uuid.UUID, limit, offset int) ([]repository.AttemptResult, int, error)
}

// TestService handles the test lifecycle and orchestrates the engine
// pipeline: allocation → assignment building → attempt creation.
type TestService struct {
	tests       TestStore
	results     TestResultStore
	alloc       *AllocationService
	assignments *AssignmentService
	attempts    *AttemptService
	cfg         *config.Config
	log         zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(
	tests TestStore,
	results TestResultStore,
	alloc *AllocationService,
	assignments *AssignmentService,
	attempts *AttemptService,
	cfg *config.Config,
	log zerolog.Logger,
) *TestService {
	return &TestService{
		tests:       tests,
		results:     results,
		alloc:       alloc,
		assignments: assignments,
		attempts:    attempts,
		cfg:         cfg,
		log:         log.With().Str("component", "test_service").Logger(),
	}
}

// Create inserts a new test as DRAFT. A non-empty access code is stored
// bcrypt-hashed, never in the clear.
func (s *TestService) Create(ctx context.Context, req *model.CreateTestRequest) (*model.Test, error) {
	test := &model.Test{
		Title:               req.Title,
		ModuleID:            req.ModuleID,
		Level:               req.Level,
		TopicID:             req.TopicID,
		QuestionsPerStudent: req.QuestionsPerStudent,
		DurationMinutes:     req.DurationMinutes,
		StableOrder:         req.StableOrder,
		PassThreshold:       req.PassThreshold,
		Status:              model.TestStatusDraft,
	}
	if req.AccessCode != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.AccessCode), s.cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash access code: %w", err)
		}
		test.AccessCodeHash = string(hash)
	}
	if err := s.tests.Create(ctx, test); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}
	return test, nil
}

// GetByID retrieves a test.
func (s *TestService) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	test, err := s.tests.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTestNotFound
	}
	if err != nil {
		return nil, err
	}
	return test, nil
}

// List retrieves tests with pagination.
func (s *TestService) List(ctx context.Context, page, perPage int) ([]model.Test, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	tests, total, err := s.tests.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if tests == nil {
		tests = []model.Test{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return tests, pagination, nil
}

// Publish transitions DRAFT → PUBLISHED.
func (s *TestService) Publish(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	test, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusDraft {
		return nil, fmt.Errorf("%w: status is %s", ErrTestNotDraft, test.Status)
	}
	if err := s.tests.UpdateStatus(ctx, id, model.TestStatusPublished); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	test.Status = model.TestStatusPublished
	return test, nil
}

// AllocateToStudents runs the full assembly pipeline for a student batch:
// reserve questions for the whole batch, build each student's shuffled
// assignment, create the ASSIGNED attempts. Insufficient bank capacity
// fails the whole call with nothing assigned.
func (s *TestService) AllocateToStudents(ctx context.Context, testID uuid.UUID, studentIDs []int) ([]*model.StudentAssignment, error) {
	test, err := s.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusPublished {
		return nil, fmt.Errorf("%w: status is %s", ErrTestNotOpen, test.Status)
	}

	seen := make(map[int]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate student id %d in batch", id)
		}
		seen[id] = struct{}{}
	}

	filter := model.QuestionFilter{
		ModuleID: test.ModuleID,
		Level:    test.Level,
		TopicID:  test.TopicID,
	}
	batch, err := s.alloc.Allocate(ctx, testID, filter, test.QuestionsPerStudent, studentIDs)
	if err != nil {
		return nil, err
	}

	assignments, err := s.assignments.BuildBatch(ctx, test, batch)
	if err != nil {
		return nil, err
	}
	if err := s.attempts.CreateForAssignments(ctx, assignments); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("test_id", testID.String()).
		Int("students", len(assignments)).
		Msg("test allocated")
	return assignments, nil
}

// Results retrieves per-student outcomes for a test with pagination.
func (s *TestService) Results(ctx context.Context, testID uuid.UUID, page, perPage int) ([]repository.AttemptResult, *response.Pagination, error) {
	if _, err := s.GetByID(ctx, testID); err != nil {
		return nil, nil, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	results, total, err := s.results.ListByTest(ctx, testID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if results == nil {
		results = []repository.AttemptResult{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return results, pagination, nil
}

// VerifyAccess checks the access code against the stored hash. Tests
// without a code admit everyone.
func (s *TestService) VerifyAccess(test *model.Test, code string) error {
	if test.AccessCodeHash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(test.AccessCodeHash), []byte(code)); err != nil {
		return ErrInvalidAccessCode
	}
	return nil
}
