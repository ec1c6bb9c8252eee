package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/aptiva/aptiva-backend/internal/model"
)

func trackerFilter() model.QuestionFilter {
	return model.QuestionFilter{ModuleID: "grammar", Level: "B1"}
}

func TestReservePrefersUnused(t *testing.T) {
	var bank []model.Question
	unusedIDs := make(map[uuid.UUID]bool)
	for i := 0; i < 6; i++ {
		q := mcqQuestion("grammar", "B1", 0)
		unusedIDs[q.ID] = true
		bank = append(bank, q)
	}
	for i := 0; i < 4; i++ {
		bank = append(bank, mcqQuestion("grammar", "B1", 2))
	}

	store := newFakeQuestionStore(bank...)
	tracker := NewUsageTracker(store, testLogger())

	selected, err := tracker.Reserve(context.Background(), trackerFilter(), 6)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(selected) != 6 {
		t.Fatalf("got %d questions, want 6", len(selected))
	}
	for _, q := range selected {
		if !unusedIDs[q.ID] {
			t.Errorf("question %s reused while unused questions remained", q.ID)
		}
		if got := store.usedCount(q.ID); got != 1 {
			t.Errorf("question %s used_count = %d, want 1", q.ID, got)
		}
	}
}

func TestReserveNoDuplicatesInBatch(t *testing.T) {
	var bank []model.Question
	for i := 0; i < 12; i++ {
		bank = append(bank, mcqQuestion("grammar", "B1", i%3))
	}
	tracker := NewUsageTracker(newFakeQuestionStore(bank...), testLogger())

	selected, err := tracker.Reserve(context.Background(), trackerFilter(), 10)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	seen := make(map[uuid.UUID]bool, len(selected))
	for _, q := range selected {
		if seen[q.ID] {
			t.Fatalf("question %s appears twice in one batch", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestReserveFillsFromLeastUsed(t *testing.T) {
	var bank []model.Question
	for i := 0; i < 2; i++ {
		bank = append(bank, mcqQuestion("grammar", "B1", 0))
	}
	// Nine lightly used questions cover the entire oversized reuse prefix
	// for need=3, so the heavily used ones must never be drawn.
	for i := 0; i < 9; i++ {
		bank = append(bank, mcqQuestion("grammar", "B1", 1))
	}
	for i := 0; i < 4; i++ {
		bank = append(bank, mcqQuestion("grammar", "B1", 50))
	}

	tracker := NewUsageTracker(newFakeQuestionStore(bank...), testLogger())

	selected, err := tracker.Reserve(context.Background(), trackerFilter(), 5)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	unused, light := 0, 0
	for _, q := range selected {
		switch q.UsedCount {
		case 0:
			unused++
		case 1:
			light++
		default:
			t.Errorf("heavily used question drawn (used_count=%d)", q.UsedCount)
		}
	}
	if unused != 2 || light != 3 {
		t.Errorf("got %d unused + %d lightly used, want 2 + 3", unused, light)
	}
}

func TestReserveInsufficientLeavesBankUntouched(t *testing.T) {
	var bank []model.Question
	for i := 0; i < 4; i++ {
		bank = append(bank, mcqQuestion("grammar", "B1", 0))
	}
	store := newFakeQuestionStore(bank...)
	tracker := NewUsageTracker(store, testLogger())

	_, err := tracker.Reserve(context.Background(), trackerFilter(), 5)
	if !errors.Is(err, ErrInsufficientQuestions) {
		t.Fatalf("err = %v, want ErrInsufficientQuestions", err)
	}
	for _, q := range bank {
		if got := store.usedCount(q.ID); got != 0 {
			t.Errorf("question %s used_count = %d after failed reserve, want 0", q.ID, got)
		}
	}
}

func TestReserveFilterScopesPool(t *testing.T) {
	bank := []model.Question{
		mcqQuestion("grammar", "B1", 0),
		mcqQuestion("grammar", "B2", 0),
		mcqQuestion("listening", "B1", 0),
	}
	tracker := NewUsageTracker(newFakeQuestionStore(bank...), testLogger())

	_, err := tracker.Reserve(context.Background(), trackerFilter(), 2)
	if !errors.Is(err, ErrInsufficientQuestions) {
		t.Fatalf("err = %v, want ErrInsufficientQuestions for cross-filter pool", err)
	}
}

func TestReserveRetriesOnConflict(t *testing.T) {
	var bank []model.Question
	for i := 0; i < 8; i++ {
		bank = append(bank, mcqQuestion("grammar", "B1", 0))
	}
	store := newFakeQuestionStore(bank...)
	// Every id loses its first increment, as if another allocator committed
	// first. Retries must still fill the batch from the fresh counters.
	for _, q := range bank {
		store.conflictOn[q.ID] = 1
	}
	tracker := NewUsageTracker(store, testLogger())

	selected, err := tracker.Reserve(context.Background(), trackerFilter(), 4)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(selected) != 4 {
		t.Fatalf("got %d questions, want 4", len(selected))
	}
	seen := make(map[uuid.UUID]bool)
	for _, q := range selected {
		if seen[q.ID] {
			t.Fatalf("question %s committed twice", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestReserveConflictExhaustion(t *testing.T) {
	q := mcqQuestion("grammar", "B1", 0)
	store := newFakeQuestionStore(q)
	store.conflictOn[q.ID] = conflictRetryRounds + 2
	tracker := NewUsageTracker(store, testLogger())

	_, err := tracker.Reserve(context.Background(), trackerFilter(), 1)
	if !errors.Is(err, ErrInsufficientQuestions) {
		t.Fatalf("err = %v, want ErrInsufficientQuestions after retry exhaustion", err)
	}
}

func TestSelectDoesNotCommit(t *testing.T) {
	var bank []model.Question
	for i := 0; i < 5; i++ {
		bank = append(bank, mcqQuestion("grammar", "B1", 0))
	}
	store := newFakeQuestionStore(bank...)
	tracker := NewUsageTracker(store, testLogger())

	if _, err := tracker.Select(context.Background(), trackerFilter(), 3); err != nil {
		t.Fatalf("Select: %v", err)
	}
	for _, q := range bank {
		if got := store.usedCount(q.ID); got != 0 {
			t.Errorf("Select bumped question %s to used_count=%d", q.ID, got)
		}
	}
}
