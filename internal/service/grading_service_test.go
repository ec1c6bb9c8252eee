package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aptiva/aptiva-backend/internal/external"
	"github.com/aptiva/aptiva-backend/internal/model"
)

type gradingFixture struct {
	test        *model.Test
	attempts    *fakeAttemptStore
	assignments *fakeAssignmentStore
	transcriber *fakeTranscriber
	runner      *fakeRunner
	notifier    *fakeNotifier
	svc         *GradingService
}

func newGradingFixture(t *testing.T, test *model.Test, questions []model.AssignedQuestion) *gradingFixture {
	t.Helper()

	f := &gradingFixture{
		test:        test,
		attempts:    newFakeAttemptStore(),
		assignments: newFakeAssignmentStore(),
		transcriber: &fakeTranscriber{},
		runner:      &fakeRunner{outputs: map[string]string{}},
		notifier:    &fakeNotifier{},
	}

	assignment := &model.StudentAssignment{TestID: test.ID, StudentID: 7, Questions: questions}
	if err := f.assignments.CreateBatch(context.Background(), []*model.StudentAssignment{assignment}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	now := time.Now()
	f.attempts.seed(model.Attempt{
		AssignmentID: assignment.ID,
		TestID:       test.ID,
		StudentID:    7,
		Status:       model.AttemptStatusInProgress,
		StartedAt:    &now,
	})

	f.svc = NewGradingService(
		f.attempts, f.assignments,
		f.transcriber, f.runner, fakeAudioStore{}, f.notifier,
		time.Second, testLogger(),
	)
	return f
}

func mcqAssigned(position int, correct string) model.AssignedQuestion {
	return model.AssignedQuestion{
		Position: position,
		Kind:     model.QuestionKindMCQ,
		Prompt:   "pick one",
		Options:  map[string]string{"A": "opt a", "B": "opt b", "C": "opt c", "D": "opt d"},
		OptionRemap: map[string]string{
			"A": "C", "B": "D", "C": "A", "D": "B",
		},
		CorrectOption: correct,
	}
}

func TestGradeMCQ(t *testing.T) {
	test := buildTest(false)
	f := newGradingFixture(t, test, []model.AssignedQuestion{
		mcqAssigned(1, "A"),
		mcqAssigned(2, "B"),
	})

	attempt, err := f.svc.Grade(context.Background(), test, 7, map[int]model.SubmittedAnswer{
		1: {Option: "a"}, // lowercase input still matches the presented letter
		2: {Option: "D"},
	})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}

	if attempt.Status != model.AttemptStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", attempt.Status)
	}
	if attempt.CorrectCount != 1 {
		t.Errorf("correct_count = %d, want 1", attempt.CorrectCount)
	}
	if *attempt.Percentage != 50 {
		t.Errorf("percentage = %v, want 50", *attempt.Percentage)
	}

	stored, err := f.attempts.GetByTestAndStudent(context.Background(), test.ID, 7)
	if err != nil {
		t.Fatalf("stored attempt: %v", err)
	}
	if stored.Status != model.AttemptStatusCompleted {
		t.Errorf("stored status = %s, want COMPLETED", stored.Status)
	}
	if got := len(f.notifier.byType(external.EventAttemptCompleted)); got != 1 {
		t.Errorf("got %d completed events, want 1", got)
	}
}

func TestGradeCodePartialCredit(t *testing.T) {
	test := buildTest(false)
	f := newGradingFixture(t, test, []model.AssignedQuestion{{
		Position: 1,
		Kind:     model.QuestionKindCode,
		Prompt:   "sum two ints",
		Language: "python",
		TestCases: []model.CodeTestCase{
			{Stdin: "1 2", ExpectedOutput: "3"},
			{Stdin: "4 5", ExpectedOutput: "9"},
			{Stdin: "7 8", ExpectedOutput: "15"},
		},
	}})
	f.runner.outputs = map[string]string{
		"1 2": "3\n", // trailing newline is trimmed before comparing
		"4 5": "9",
		"7 8": "wrong",
	}

	attempt, err := f.svc.Grade(context.Background(), test, 7, map[int]model.SubmittedAnswer{
		1: {Code: "print(sum(map(int, input().split())))"},
	})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}

	res := attempt.Results[0]
	if res.PassedCases != 2 || res.TotalCases != 3 {
		t.Errorf("passed/total = %d/%d, want 2/3", res.PassedCases, res.TotalCases)
	}
	if math.Abs(res.SubScore-2.0/3.0) > 1e-9 {
		t.Errorf("sub_score = %v, want 2/3", res.SubScore)
	}
	if res.Correct {
		t.Error("2/3 marked correct under all-pass policy")
	}
	if math.Abs(*attempt.Percentage-66.67) > 1e-9 {
		t.Errorf("percentage = %v, want 66.67", *attempt.Percentage)
	}
}

func TestGradeCodePassThreshold(t *testing.T) {
	test := buildTest(false)
	test.PassThreshold = 0.6
	f := newGradingFixture(t, test, []model.AssignedQuestion{{
		Position: 1,
		Kind:     model.QuestionKindCode,
		Prompt:   "sum two ints",
		Language: "python",
		TestCases: []model.CodeTestCase{
			{Stdin: "1 2", ExpectedOutput: "3"},
			{Stdin: "4 5", ExpectedOutput: "9"},
			{Stdin: "7 8", ExpectedOutput: "15"},
		},
	}})
	f.runner.outputs = map[string]string{"1 2": "3", "4 5": "9", "7 8": "wrong"}

	attempt, err := f.svc.Grade(context.Background(), test, 7, map[int]model.SubmittedAnswer{
		1: {Code: "x"},
	})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !attempt.Results[0].Correct {
		t.Error("2/3 not marked correct with pass_threshold 0.6")
	}
}

func TestGradeDictation(t *testing.T) {
	test := buildTest(false)
	f := newGradingFixture(t, test, []model.AssignedQuestion{{
		Position:            1,
		Kind:                model.QuestionKindDictation,
		Prompt:              "write what you hear",
		AudioRef:            "audio/dict-1.mp3",
		CanonicalText:       "The quick brown fox jumps over the lazy dog",
		SimilarityThreshold: 0.85,
	}})
	f.transcriber.transcript = "the quick brown fox jumps over the lazy dog"

	attempt, err := f.svc.Grade(context.Background(), test, 7, map[int]model.SubmittedAnswer{
		1: {AudioRef: "uploads/answer-1.webm"},
	})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}

	res := attempt.Results[0]
	if !res.Correct {
		t.Error("case-insensitive exact transcript not marked correct")
	}
	if res.Similarity == nil || *res.Similarity != 1 {
		t.Errorf("similarity = %v, want 1", res.Similarity)
	}
	if f.transcriber.calls != 1 {
		t.Errorf("transcriber called %d times, want 1", f.transcriber.calls)
	}
}

func TestGradeDegradesOnTranscriberFailure(t *testing.T) {
	test := buildTest(false)
	f := newGradingFixture(t, test, []model.AssignedQuestion{
		mcqAssigned(1, "A"),
		{
			Position:            2,
			Kind:                model.QuestionKindDictation,
			Prompt:              "write what you hear",
			AudioRef:            "audio/dict-1.mp3",
			CanonicalText:       "the quick brown fox",
			SimilarityThreshold: 0.85,
		},
	})
	f.transcriber.err = external.ErrServiceTimeout

	attempt, err := f.svc.Grade(context.Background(), test, 7, map[int]model.SubmittedAnswer{
		1: {Option: "A"},
		2: {AudioRef: "uploads/answer-2.webm"},
	})
	if err != nil {
		t.Fatalf("Grade must not abort on a collaborator failure: %v", err)
	}

	degraded := attempt.Results[1]
	if degraded.GradingError == "" {
		t.Error("grading_error not set on failed question")
	}
	if degraded.SubScore != 0 || degraded.Correct {
		t.Errorf("failed question scored %v correct=%v, want 0 and false", degraded.SubScore, degraded.Correct)
	}
	if *attempt.Percentage != 50 {
		t.Errorf("percentage = %v, want 50 from the surviving mcq", *attempt.Percentage)
	}
	if attempt.Status != model.AttemptStatusCompleted {
		t.Errorf("status = %s, want COMPLETED despite degradation", attempt.Status)
	}
}

func TestGradeDoubleSubmitRejected(t *testing.T) {
	test := buildTest(false)
	f := newGradingFixture(t, test, []model.AssignedQuestion{mcqAssigned(1, "A")})
	answers := map[int]model.SubmittedAnswer{1: {Option: "A"}}

	first, err := f.svc.Grade(context.Background(), test, 7, answers)
	if err != nil {
		t.Fatalf("first Grade: %v", err)
	}

	_, err = f.svc.Grade(context.Background(), test, 7, map[int]model.SubmittedAnswer{1: {Option: "B"}})
	if !errors.Is(err, ErrAttemptAlreadyCompleted) {
		t.Fatalf("err = %v, want ErrAttemptAlreadyCompleted", err)
	}

	stored, err := f.attempts.GetByTestAndStudent(context.Background(), test.ID, 7)
	if err != nil {
		t.Fatalf("stored attempt: %v", err)
	}
	if *stored.Percentage != *first.Percentage {
		t.Errorf("second submit changed stored percentage: %v -> %v", *first.Percentage, *stored.Percentage)
	}
}

func TestGradeRequiresInProgress(t *testing.T) {
	test := buildTest(false)
	f := newGradingFixture(t, test, []model.AssignedQuestion{mcqAssigned(1, "A")})

	f.attempts.seed(model.Attempt{TestID: test.ID, StudentID: 9, Status: model.AttemptStatusAssigned})
	assignment := &model.StudentAssignment{TestID: test.ID, StudentID: 9, Questions: []model.AssignedQuestion{mcqAssigned(1, "A")}}
	if err := f.assignments.CreateBatch(context.Background(), []*model.StudentAssignment{assignment}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	_, err := f.svc.Grade(context.Background(), test, 9, map[int]model.SubmittedAnswer{1: {Option: "A"}})
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestGradeUnansweredScoresZero(t *testing.T) {
	test := buildTest(false)
	f := newGradingFixture(t, test, []model.AssignedQuestion{
		mcqAssigned(1, "A"),
		mcqAssigned(2, "B"),
	})

	attempt, err := f.svc.Grade(context.Background(), test, 7, map[int]model.SubmittedAnswer{
		1: {Option: "A"},
		// position 2 left unanswered
	})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if len(attempt.Results) != 2 {
		t.Fatalf("got %d results, want one per assigned question", len(attempt.Results))
	}
	if attempt.Results[1].SubScore != 0 || attempt.Results[1].Correct {
		t.Error("unanswered question must score zero")
	}
	if *attempt.Percentage != 50 {
		t.Errorf("percentage = %v, want 50", *attempt.Percentage)
	}
}
