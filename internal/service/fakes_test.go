package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/aptiva/aptiva-backend/internal/config"
	"github.com/aptiva/aptiva-backend/internal/external"
	"github.com/aptiva/aptiva-backend/internal/model"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testConfig() *config.Config {
	return &config.Config{
		BcryptCost:          4,
		DictationThreshold:  0.85,
		SpeechThreshold:     0.6,
		SimilarityThreshold: 0.75,
	}
}

// fakeQuestionStore is an in-memory QuestionStore. IncrementUsage applies
// the same compare-and-set rule as the SQL conditional update; conflicts
// can be injected to simulate a concurrent allocator winning the race.
type fakeQuestionStore struct {
	mu        sync.Mutex
	questions map[uuid.UUID]*model.Question

	// conflictOn forces the next N increments for an id to lose the race;
	// each forced loss also bumps the stored counter, as the winning
	// allocator would have.
	conflictOn map[uuid.UUID]int
}

func newFakeQuestionStore(questions ...model.Question) *fakeQuestionStore {
	s := &fakeQuestionStore{
		questions:  make(map[uuid.UUID]*model.Question, len(questions)),
		conflictOn: make(map[uuid.UUID]int),
	}
	for i := range questions {
		q := questions[i]
		s.questions[q.ID] = &q
	}
	return s
}

func (s *fakeQuestionStore) ListCandidates(_ context.Context, filter model.QuestionFilter) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Question
	for _, q := range s.questions {
		if q.ModuleID != filter.ModuleID || q.Level != filter.Level {
			continue
		}
		if filter.TopicID != nil && (q.TopicID == nil || *q.TopicID != *filter.TopicID) {
			continue
		}
		if filter.Kind != nil && q.Kind != *filter.Kind {
			continue
		}
		out = append(out, *q)
	}
	return out, nil
}

func (s *fakeQuestionStore) IncrementUsage(_ context.Context, id uuid.UUID, observedUsedCount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return false, fmt.Errorf("unknown question %s", id)
	}
	if s.conflictOn[id] > 0 {
		s.conflictOn[id]--
		now := time.Now()
		q.UsedCount++
		q.LastUsed = &now
		return false, nil
	}
	if q.UsedCount != observedUsedCount {
		return false, nil
	}
	now := time.Now()
	q.UsedCount++
	q.LastUsed = &now
	return true, nil
}

func (s *fakeQuestionStore) usedCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions[id].UsedCount
}

// fakeAssignmentStore is an in-memory AssignmentStore keyed by
// (test, student).
type fakeAssignmentStore struct {
	mu          sync.Mutex
	assignments map[string]*model.StudentAssignment
}

func newFakeAssignmentStore() *fakeAssignmentStore {
	return &fakeAssignmentStore{assignments: make(map[string]*model.StudentAssignment)}
}

func assignmentKey(testID uuid.UUID, studentID int) string {
	return fmt.Sprintf("%s:%d", testID, studentID)
}

func (s *fakeAssignmentStore) CreateBatch(_ context.Context, assignments []*model.StudentAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range assignments {
		a.ID = uuid.New()
		a.CreatedAt = time.Now()
		s.assignments[assignmentKey(a.TestID, a.StudentID)] = a
	}
	return nil
}

func (s *fakeAssignmentStore) GetByTestAndStudent(_ context.Context, testID uuid.UUID, studentID int) (*model.StudentAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentKey(testID, studentID)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

// fakeAttemptStore is an in-memory AttemptStore mirroring the repository's
// conditional-update semantics: Create reports an existing row as
// pgx.ErrNoRows, MarkInProgress and Complete only fire from the expected
// prior state.
type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]*model.Attempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[string]*model.Attempt)}
}

func (s *fakeAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey(a.TestID, a.StudentID)
	if _, exists := s.attempts[key]; exists {
		return pgx.ErrNoRows
	}
	a.ID = uuid.New()
	a.Status = model.AttemptStatusAssigned
	cp := *a
	s.attempts[key] = &cp
	return nil
}

func (s *fakeAttemptStore) GetByTestAndStudent(_ context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[assignmentKey(testID, studentID)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) MarkInProgress(_ context.Context, testID uuid.UUID, studentID int) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[assignmentKey(testID, studentID)]
	if !ok || a.Status != model.AttemptStatusAssigned {
		return time.Time{}, pgx.ErrNoRows
	}
	now := time.Now()
	a.Status = model.AttemptStatusInProgress
	a.StartedAt = &now
	return now, nil
}

func (s *fakeAttemptStore) Complete(_ context.Context, attempt *model.Attempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[assignmentKey(attempt.TestID, attempt.StudentID)]
	if !ok || a.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	now := time.Now()
	a.Status = model.AttemptStatusCompleted
	a.FinishedAt = &now
	a.Answers = attempt.Answers
	a.Results = attempt.Results
	a.Score = attempt.Score
	a.Percentage = attempt.Percentage
	a.CorrectCount = attempt.CorrectCount
	return true, nil
}

func (s *fakeAttemptStore) seed(a model.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.attempts[assignmentKey(a.TestID, a.StudentID)] = &a
}

// fakeTestStore is an in-memory TestStore.
type fakeTestStore struct {
	mu    sync.Mutex
	tests map[uuid.UUID]*model.Test
}

func newFakeTestStore() *fakeTestStore {
	return &fakeTestStore{tests: make(map[uuid.UUID]*model.Test)}
}

func (s *fakeTestStore) Create(_ context.Context, t *model.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	s.tests[t.ID] = &cp
	return nil
}

func (s *fakeTestStore) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (s *fakeTestStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.TestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tests[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

func (s *fakeTestStore) List(_ context.Context, limit, offset int) ([]model.Test, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]model.Test, 0, len(s.tests))
	for _, t := range s.tests {
		all = append(all, *t)
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// fakeNotifier records events instead of touching Redis.
type fakeNotifier struct {
	mu     sync.Mutex
	events []external.Event
}

func (n *fakeNotifier) Notify(_ context.Context, ev external.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *fakeNotifier) byType(t external.EventType) []external.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []external.Event
	for _, ev := range n.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// fakeTranscriber returns a fixed transcript or error.
type fakeTranscriber struct {
	transcript string
	err        error
	calls      int
}

func (t *fakeTranscriber) Transcribe(_ context.Context, _ string) (string, error) {
	t.calls++
	if t.err != nil {
		return "", t.err
	}
	return t.transcript, nil
}

// fakeRunner maps stdin to stdout; unknown stdin yields empty output.
type fakeRunner struct {
	outputs map[string]string
	err     error
}

func (r *fakeRunner) Run(_ context.Context, _, _, stdin string) (*external.RunResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &external.RunResult{Stdout: r.outputs[stdin]}, nil
}

// fakeAudioStore resolves references under a fixed test origin.
type fakeAudioStore struct{}

func (fakeAudioStore) ResolveURL(ref string) string {
	return "https://cdn.test/" + ref
}

func mcqQuestion(moduleID, level string, usedCount int) model.Question {
	return model.Question{
		ID:       uuid.New(),
		ModuleID: moduleID,
		Level:    level,
		Kind:     model.QuestionKindMCQ,
		Prompt:   "pick one",
		MCQ: &model.MCQPayload{
			Options:       map[string]string{"A": "opt a", "B": "opt b", "C": "opt c", "D": "opt d"},
			CorrectOption: "C",
		},
		UsedCount: usedCount,
	}
}
