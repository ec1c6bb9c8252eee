package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aptiva/aptiva-backend/internal/external"
	"github.com/aptiva/aptiva-backend/internal/model"
)

func newAttemptService(attempts *fakeAttemptStore, assignments *fakeAssignmentStore, notifier *fakeNotifier) *AttemptService {
	return NewAttemptService(attempts, assignments, nil, fakeAudioStore{}, notifier, testLogger())
}

func TestStartMarksAssignedInProgress(t *testing.T) {
	attempts := newFakeAttemptStore()
	testID := uuid.New()
	attempts.seed(model.Attempt{TestID: testID, StudentID: 7, Status: model.AttemptStatusAssigned})

	notifier := &fakeNotifier{}
	svc := newAttemptService(attempts, newFakeAssignmentStore(), notifier)

	attempt, err := svc.Start(context.Background(), testID, 7)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if attempt.Status != model.AttemptStatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", attempt.Status)
	}
	if attempt.StartedAt == nil {
		t.Error("started_at not stamped")
	}
	if got := len(notifier.byType(external.EventAttemptStarted)); got != 1 {
		t.Errorf("got %d started events, want 1", got)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	attempts := newFakeAttemptStore()
	testID := uuid.New()
	attempts.seed(model.Attempt{TestID: testID, StudentID: 7, Status: model.AttemptStatusAssigned})

	svc := newAttemptService(attempts, newFakeAssignmentStore(), &fakeNotifier{})
	ctx := context.Background()

	first, err := svc.Start(ctx, testID, 7)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second, err := svc.Start(ctx, testID, 7)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if second.Status != model.AttemptStatusInProgress {
		t.Errorf("resume status = %s, want IN_PROGRESS", second.Status)
	}
	if !first.StartedAt.Equal(*second.StartedAt) {
		t.Errorf("resume moved started_at from %v to %v", first.StartedAt, second.StartedAt)
	}
}

func TestStartCompletedRejected(t *testing.T) {
	attempts := newFakeAttemptStore()
	testID := uuid.New()
	now := time.Now()
	attempts.seed(model.Attempt{
		TestID: testID, StudentID: 7,
		Status: model.AttemptStatusCompleted, StartedAt: &now, FinishedAt: &now,
	})

	svc := newAttemptService(attempts, newFakeAssignmentStore(), &fakeNotifier{})
	if _, err := svc.Start(context.Background(), testID, 7); !errors.Is(err, ErrAttemptAlreadyCompleted) {
		t.Fatalf("err = %v, want ErrAttemptAlreadyCompleted", err)
	}
}

func TestStartUnknownAttempt(t *testing.T) {
	svc := newAttemptService(newFakeAttemptStore(), newFakeAssignmentStore(), &fakeNotifier{})
	if _, err := svc.Start(context.Background(), uuid.New(), 7); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("err = %v, want ErrAttemptNotFound", err)
	}
}

func TestCreateForAssignmentsSkipsExisting(t *testing.T) {
	attempts := newFakeAttemptStore()
	testID := uuid.New()
	attempts.seed(model.Attempt{TestID: testID, StudentID: 1, Status: model.AttemptStatusInProgress})

	notifier := &fakeNotifier{}
	svc := newAttemptService(attempts, newFakeAssignmentStore(), notifier)

	assignments := []*model.StudentAssignment{
		{ID: uuid.New(), TestID: testID, StudentID: 1},
		{ID: uuid.New(), TestID: testID, StudentID: 2},
	}
	if err := svc.CreateForAssignments(context.Background(), assignments); err != nil {
		t.Fatalf("CreateForAssignments: %v", err)
	}

	existing, err := svc.Get(context.Background(), testID, 1)
	if err != nil {
		t.Fatalf("Get student 1: %v", err)
	}
	if existing.Status != model.AttemptStatusInProgress {
		t.Errorf("existing attempt overwritten, status = %s", existing.Status)
	}
	created, err := svc.Get(context.Background(), testID, 2)
	if err != nil {
		t.Fatalf("Get student 2: %v", err)
	}
	if created.Status != model.AttemptStatusAssigned {
		t.Errorf("new attempt status = %s, want ASSIGNED", created.Status)
	}
	if got := len(notifier.byType(external.EventAttemptAssigned)); got != 1 {
		t.Errorf("got %d assigned events, want 1", got)
	}
}

func TestAutosaveStateGuards(t *testing.T) {
	attempts := newFakeAttemptStore()
	testID := uuid.New()
	attempts.seed(model.Attempt{TestID: testID, StudentID: 7, Status: model.AttemptStatusAssigned})

	svc := newAttemptService(attempts, newFakeAssignmentStore(), &fakeNotifier{})
	ctx := context.Background()
	answer := model.SubmittedAnswer{Option: "B"}

	if err := svc.Autosave(ctx, testID, 7, 1, answer); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("autosave on ASSIGNED: err = %v, want ErrInvalidStateTransition", err)
	}

	if _, err := svc.Start(ctx, testID, 7); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Autosave(ctx, testID, 7, 1, answer); err != nil {
		t.Fatalf("autosave on IN_PROGRESS: %v", err)
	}

	now := time.Now()
	completed := model.Attempt{TestID: testID, StudentID: 8, Status: model.AttemptStatusCompleted, StartedAt: &now}
	attempts.seed(completed)
	if err := svc.Autosave(ctx, testID, 8, 1, answer); !errors.Is(err, ErrAttemptAlreadyCompleted) {
		t.Fatalf("autosave on COMPLETED: err = %v, want ErrAttemptAlreadyCompleted", err)
	}
}

func TestPaperAssemblesStudentView(t *testing.T) {
	attempts := newFakeAttemptStore()
	assignments := newFakeAssignmentStore()
	test := buildTest(false)
	test.DurationMinutes = 30

	attempts.seed(model.Attempt{TestID: test.ID, StudentID: 7, Status: model.AttemptStatusAssigned})

	q := mcqQuestion("grammar", "B1", 0)
	builder := NewAssignmentService(assignments, testConfig(), testLogger())
	built, err := builder.Build(test, 7, []model.Question{q})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := assignments.CreateBatch(context.Background(), []*model.StudentAssignment{built}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	svc := newAttemptService(attempts, assignments, &fakeNotifier{})
	paper, err := svc.Paper(context.Background(), test, 7)
	if err != nil {
		t.Fatalf("Paper: %v", err)
	}

	if len(paper.Questions) != 1 {
		t.Fatalf("got %d questions, want 1", len(paper.Questions))
	}
	if paper.RemainingSeconds <= 0 || paper.RemainingSeconds > 30*60 {
		t.Errorf("remaining = %v, want within (0, 1800]", paper.RemainingSeconds)
	}
	if paper.Questions[0].Options == nil {
		t.Error("mcq view lost its options")
	}
}

func TestPaperWithoutAssignment(t *testing.T) {
	attempts := newFakeAttemptStore()
	test := buildTest(false)
	attempts.seed(model.Attempt{TestID: test.ID, StudentID: 7, Status: model.AttemptStatusAssigned})

	svc := newAttemptService(attempts, newFakeAssignmentStore(), &fakeNotifier{})
	if _, err := svc.Paper(context.Background(), test, 7); !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("err = %v, want ErrAssignmentNotFound", err)
	}
}
