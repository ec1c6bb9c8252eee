package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/aptiva/aptiva-backend/internal/model"
)

type lifecycleFixture struct {
	tests       *fakeTestStore
	questions   *fakeQuestionStore
	assignments *fakeAssignmentStore
	attempts    *fakeAttemptStore
	notifier    *fakeNotifier
	svc         *TestService
}

func newLifecycleFixture(bankSize int) *lifecycleFixture {
	f := &lifecycleFixture{
		tests:       newFakeTestStore(),
		assignments: newFakeAssignmentStore(),
		attempts:    newFakeAttemptStore(),
		notifier:    &fakeNotifier{},
	}

	var bank []model.Question
	for i := 0; i < bankSize; i++ {
		bank = append(bank, mcqQuestion("grammar", "B1", 0))
	}
	f.questions = newFakeQuestionStore(bank...)

	cfg := testConfig()
	log := testLogger()
	alloc := NewAllocationService(NewUsageTracker(f.questions, log), log)
	builder := NewAssignmentService(f.assignments, cfg, log)
	attempts := NewAttemptService(f.attempts, f.assignments, nil, fakeAudioStore{}, f.notifier, log)
	f.svc = NewTestService(f.tests, nil, alloc, builder, attempts, cfg, log)
	return f
}

func (f *lifecycleFixture) published(t *testing.T, req *model.CreateTestRequest) *model.Test {
	t.Helper()
	created, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	published, err := f.svc.Publish(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return published
}

func grammarTestRequest() *model.CreateTestRequest {
	return &model.CreateTestRequest{
		Title:               "Grammar B1",
		ModuleID:            "grammar",
		Level:               "B1",
		QuestionsPerStudent: 2,
		DurationMinutes:     30,
	}
}

func TestCreateHashesAccessCode(t *testing.T) {
	f := newLifecycleFixture(0)
	req := grammarTestRequest()
	req.AccessCode = "open-sesame"

	created, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != model.TestStatusDraft {
		t.Errorf("status = %s, want DRAFT", created.Status)
	}
	if created.AccessCodeHash == "" || created.AccessCodeHash == req.AccessCode {
		t.Error("access code stored unhashed")
	}

	if err := f.svc.VerifyAccess(created, "open-sesame"); err != nil {
		t.Errorf("correct code rejected: %v", err)
	}
	if err := f.svc.VerifyAccess(created, "wrong"); !errors.Is(err, ErrInvalidAccessCode) {
		t.Errorf("wrong code: err = %v, want ErrInvalidAccessCode", err)
	}
}

func TestVerifyAccessOpenTest(t *testing.T) {
	f := newLifecycleFixture(0)
	created, err := f.svc.Create(context.Background(), grammarTestRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.svc.VerifyAccess(created, ""); err != nil {
		t.Errorf("test without access code rejected: %v", err)
	}
}

func TestPublishOnlyFromDraft(t *testing.T) {
	f := newLifecycleFixture(0)
	created, err := f.svc.Create(context.Background(), grammarTestRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	published, err := f.svc.Publish(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if published.Status != model.TestStatusPublished {
		t.Errorf("status = %s, want PUBLISHED", published.Status)
	}

	if _, err := f.svc.Publish(context.Background(), created.ID); !errors.Is(err, ErrTestNotDraft) {
		t.Fatalf("second publish: err = %v, want ErrTestNotDraft", err)
	}
}

func TestPublishUnknownTest(t *testing.T) {
	f := newLifecycleFixture(0)
	if _, err := f.svc.Publish(context.Background(), uuid.New()); !errors.Is(err, ErrTestNotFound) {
		t.Fatalf("err = %v, want ErrTestNotFound", err)
	}
}

func TestAllocateToStudentsPipeline(t *testing.T) {
	f := newLifecycleFixture(6)
	test := f.published(t, grammarTestRequest())
	ctx := context.Background()

	assignments, err := f.svc.AllocateToStudents(ctx, test.ID, []int{1, 2, 3})
	if err != nil {
		t.Fatalf("AllocateToStudents: %v", err)
	}
	if len(assignments) != 3 {
		t.Fatalf("got %d assignments, want 3", len(assignments))
	}

	for _, studentID := range []int{1, 2, 3} {
		a, err := f.assignments.GetByTestAndStudent(ctx, test.ID, studentID)
		if err != nil {
			t.Fatalf("assignment for student %d: %v", studentID, err)
		}
		if len(a.Questions) != 2 {
			t.Errorf("student %d got %d questions, want 2", studentID, len(a.Questions))
		}
		attempt, err := f.attempts.GetByTestAndStudent(ctx, test.ID, studentID)
		if err != nil {
			t.Fatalf("attempt for student %d: %v", studentID, err)
		}
		if attempt.Status != model.AttemptStatusAssigned {
			t.Errorf("student %d attempt status = %s, want ASSIGNED", studentID, attempt.Status)
		}
	}
}

func TestAllocateToStudentsRequiresPublished(t *testing.T) {
	f := newLifecycleFixture(6)
	created, err := f.svc.Create(context.Background(), grammarTestRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = f.svc.AllocateToStudents(context.Background(), created.ID, []int{1})
	if !errors.Is(err, ErrTestNotOpen) {
		t.Fatalf("err = %v, want ErrTestNotOpen", err)
	}
}

func TestAllocateToStudentsInsufficientBank(t *testing.T) {
	f := newLifecycleFixture(3)
	test := f.published(t, grammarTestRequest())
	ctx := context.Background()

	_, err := f.svc.AllocateToStudents(ctx, test.ID, []int{1, 2})
	if !errors.Is(err, ErrInsufficientQuestions) {
		t.Fatalf("err = %v, want ErrInsufficientQuestions", err)
	}
	if _, err := f.attempts.GetByTestAndStudent(ctx, test.ID, 1); err == nil {
		t.Error("attempt created despite failed allocation")
	}
}

func TestAllocateToStudentsRejectsDuplicateStudents(t *testing.T) {
	f := newLifecycleFixture(6)
	test := f.published(t, grammarTestRequest())

	if _, err := f.svc.AllocateToStudents(context.Background(), test.ID, []int{1, 1}); err == nil {
		t.Fatal("expected error for duplicate student ids")
	}
}
