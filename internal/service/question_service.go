package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aptiva/aptiva-backend/internal/model"
	"github.com/aptiva/aptiva-backend/internal/repository"
	"github.com/aptiva/aptiva-backend/internal/response"
)

// Domain Errors
var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidPayload   = errors.New("question payload does not match kind")
)

// QuestionService manages the question bank.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository) *QuestionService {
	return &QuestionService{questionRepo: questionRepo}
}

// Add inserts one question with a fresh usage counter.
func (s *QuestionService) Add(ctx context.Context, req *model.AddQuestionRequest) (*model.Question, error) {
	q, err := questionFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// Import bulk-loads questions. The whole batch is validated up front so a
// malformed entry rejects the import before anything is written.
func (s *QuestionService) Import(ctx context.Context, req *model.ImportQuestionsRequest) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(req.Questions))
	for i := range req.Questions {
		q, err := questionFromRequest(&req.Questions[i])
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		questions = append(questions, *q)
	}
	if err := s.questionRepo.CreateBatch(ctx, questions); err != nil {
		return nil, fmt.Errorf("import questions: %w", err)
	}
	return questions, nil
}

// GetByID retrieves one bank question.
func (s *QuestionService) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q, err := s.questionRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// List retrieves the bank questions matching the filter.
func (s *QuestionService) List(ctx context.Context, filter model.QuestionFilter) ([]model.Question, error) {
	questions, err := s.questionRepo.ListCandidates(ctx, filter)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

// Usage retrieves per-question usage stats with pagination.
func (s *QuestionService) Usage(ctx context.Context, moduleID string, page, perPage int) ([]model.QuestionUsage, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	usage, total, err := s.questionRepo.ListUsage(ctx, moduleID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if usage == nil {
		usage = []model.QuestionUsage{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return usage, pagination, nil
}

// questionFromRequest validates the kind/payload pairing. binding tags
// cover shape, this covers the tagged-union rule: exactly the payload
// matching the kind must be present.
func questionFromRequest(req *model.AddQuestionRequest) (*model.Question, error) {
	q := &model.Question{
		ModuleID: req.ModuleID,
		Level:    req.Level,
		TopicID:  req.TopicID,
		Kind:     req.Kind,
		Prompt:   req.Prompt,
	}

	switch req.Kind {
	case model.QuestionKindMCQ:
		if req.MCQ == nil || req.Dictation != nil || req.Code != nil {
			return nil, fmt.Errorf("%w: kind %s", ErrInvalidPayload, req.Kind)
		}
		if len(req.MCQ.Options) < 2 {
			return nil, fmt.Errorf("%w: mcq needs at least 2 options", ErrInvalidPayload)
		}
		if _, ok := req.MCQ.Options[req.MCQ.CorrectOption]; !ok {
			return nil, fmt.Errorf("%w: correct option %q not among options", ErrInvalidPayload, req.MCQ.CorrectOption)
		}
		q.MCQ = req.MCQ

	case model.QuestionKindDictation:
		if req.Dictation == nil || req.MCQ != nil || req.Code != nil {
			return nil, fmt.Errorf("%w: kind %s", ErrInvalidPayload, req.Kind)
		}
		if req.Dictation.AudioRef == "" || req.Dictation.CanonicalText == "" {
			return nil, fmt.Errorf("%w: dictation needs audio_ref and canonical_text", ErrInvalidPayload)
		}
		if t := req.Dictation.SimilarityThreshold; t < 0 || t > 1 {
			return nil, fmt.Errorf("%w: similarity_threshold out of range", ErrInvalidPayload)
		}
		q.Dictation = req.Dictation

	case model.QuestionKindCode:
		if req.Code == nil || req.MCQ != nil || req.Dictation != nil {
			return nil, fmt.Errorf("%w: kind %s", ErrInvalidPayload, req.Kind)
		}
		if req.Code.Language == "" || len(req.Code.TestCases) == 0 {
			return nil, fmt.Errorf("%w: code needs language and test cases", ErrInvalidPayload)
		}
		q.Code = req.Code

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, req.Kind)
	}

	return q, nil
}
