package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/aptiva/aptiva-backend/internal/external"
	"github.com/aptiva/aptiva-backend/internal/grading"
	"github.com/aptiva/aptiva-backend/internal/model"
)

// GradingService evaluates a submitted attempt against its stored
// assignment. Grading is terminal and idempotent: the first submission
// completes the attempt, any later one is rejected without recomputing.
type GradingService struct {
	attempts    AttemptStore
	assignments AssignmentStore
	transcriber external.Transcriber
	runner      external.CodeRunner
	audio       external.AudioStore
	notifier    external.Notifier
	timeout     time.Duration
	log         zerolog.Logger
}

// NewGradingService creates a new GradingService. timeout bounds every
// call to an external collaborator.
func NewGradingService(
	attempts AttemptStore,
	assignments AssignmentStore,
	transcriber external.Transcriber,
	runner external.CodeRunner,
	audio external.AudioStore,
	notifier external.Notifier,
	timeout time.Duration,
	log zerolog.Logger,
) *GradingService {
	return &GradingService{
		attempts:    attempts,
		assignments: assignments,
		transcriber: transcriber,
		runner:      runner,
		audio:       audio,
		notifier:    notifier,
		timeout:     timeout,
		log:         log.With().Str("component", "grading_service").Logger(),
	}
}

// Grade grades the submitted answers and completes the attempt. A failed
// external call for one question degrades that question to sub-score 0
// with a grading_error flag — the remaining questions are still graded
// and the student still receives a result.
func (s *GradingService) Grade(ctx context.Context, test *model.Test, studentID int, answers map[int]model.SubmittedAnswer) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByTestAndStudent(ctx, test.ID, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}

	switch attempt.Status {
	case model.AttemptStatusCompleted:
		return nil, ErrAttemptAlreadyCompleted
	case model.AttemptStatusInProgress:
		// expected
	default:
		return nil, fmt.Errorf("%w: submit on %s attempt", ErrInvalidStateTransition, attempt.Status)
	}

	assignment, err := s.assignments.GetByTestAndStudent(ctx, test.ID, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}

	passThreshold := test.PassThreshold
	if passThreshold <= 0 {
		passThreshold = 1
	}

	results := make([]model.QuestionResult, 0, len(assignment.Questions))
	var sum float64
	correct := 0
	for _, q := range assignment.Questions {
		res := s.gradeQuestion(ctx, q, answers[q.Position], passThreshold)
		if res.GradingError != "" {
			s.log.Warn().
				Str("test_id", test.ID.String()).
				Int("student_id", studentID).
				Int("position", q.Position).
				Str("grading_error", res.GradingError).
				Msg("question degraded to zero")
		}
		sum += res.SubScore
		if res.Correct {
			correct++
		}
		results = append(results, res)
	}

	score := 0.0
	if len(results) > 0 {
		score = sum / float64(len(results))
	}
	percentage := math.Round(score*100*100) / 100

	now := time.Now()
	attempt.Answers = answers
	attempt.Results = results
	attempt.Score = &score
	attempt.Percentage = &percentage
	attempt.CorrectCount = correct

	ok, err := s.attempts.Complete(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("complete attempt: %w", err)
	}
	if !ok {
		// The conditional update lost: someone completed it first. The
		// stored result stays untouched.
		return nil, ErrAttemptAlreadyCompleted
	}

	attempt.Status = model.AttemptStatusCompleted
	attempt.FinishedAt = &now

	s.notifier.Notify(ctx, external.Event{
		StudentID: studentID,
		TestID:    test.ID,
		Type:      external.EventAttemptCompleted,
		Score:     &percentage,
	})
	return attempt, nil
}

// gradeQuestion dispatches on question kind. It never returns an error:
// collaborator failures are recorded in GradingError with sub-score 0.
func (s *GradingService) gradeQuestion(ctx context.Context, q model.AssignedQuestion, ans model.SubmittedAnswer, passThreshold float64) model.QuestionResult {
	res := model.QuestionResult{Position: q.Position, QuestionID: q.QuestionID}

	switch q.Kind {
	case model.QuestionKindMCQ:
		res.Resolved = q.CorrectOption
		presented := strings.ToUpper(strings.TrimSpace(ans.Option))
		res.Presented = presented
		if presented != "" && presented == q.CorrectOption {
			res.Correct = true
			res.SubScore = 1
		}

	case model.QuestionKindDictation:
		res.Resolved = q.CanonicalText
		if ans.AudioRef == "" {
			return res
		}
		audioURL := ans.AudioRef
		if s.audio != nil {
			audioURL = s.audio.ResolveURL(ans.AudioRef)
		}
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		transcript, err := s.transcriber.Transcribe(tctx, audioURL)
		cancel()
		if err != nil {
			res.GradingError = gradingErrorMessage(err)
			return res
		}
		sim := grading.Similarity(transcript, q.CanonicalText)
		res.Presented = transcript
		res.Similarity = &sim
		res.SubScore = sim
		res.Correct = sim >= q.SimilarityThreshold

	case model.QuestionKindCode:
		res.TotalCases = len(q.TestCases)
		if ans.Code == "" || res.TotalCases == 0 {
			return res
		}
		passed := 0
		for _, tc := range q.TestCases {
			rctx, cancel := context.WithTimeout(ctx, s.timeout)
			out, err := s.runner.Run(rctx, ans.Code, q.Language, tc.Stdin)
			cancel()
			if err != nil {
				res.GradingError = gradingErrorMessage(err)
				res.PassedCases = 0
				res.SubScore = 0
				res.Correct = false
				return res
			}
			if strings.TrimSpace(out.Stdout) == strings.TrimSpace(tc.ExpectedOutput) {
				passed++
			}
		}
		res.PassedCases = passed
		res.SubScore = float64(passed) / float64(res.TotalCases)
		res.Correct = res.SubScore >= passThreshold
	}

	return res
}

// gradingErrorMessage folds collaborator timeouts into a stable message;
// other failures keep their own text.
func gradingErrorMessage(err error) string {
	if errors.Is(err, external.ErrServiceTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return "external service timeout"
	}
	return err.Error()
}
