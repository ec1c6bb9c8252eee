package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aptiva/aptiva-backend/internal/model"
)

// Domain Errors
var (
	ErrInsufficientQuestions = errors.New("insufficient questions in bank for requested count")
	ErrAllocationConflict    = errors.New("allocation conflict")
)

const (
	// conflictRetryRounds bounds per-id reselection after a concurrent
	// allocation wins a counter race. Exhaustion surfaces as
	// ErrInsufficientQuestions per the error taxonomy.
	conflictRetryRounds = 3

	// reusePoolFactor oversizes the least-used prefix before shuffling it,
	// so filling from reused questions stays random instead of always
	// picking the exact same least-used rows.
	reusePoolFactor = 3
)

// QuestionStore is the data access the usage tracker needs.
type QuestionStore interface {
	ListCandidates(ctx context.Context, filter model.QuestionFilter) ([]model.Question, error)
	// IncrementUsage advances used_count/last_used only if used_count still
	// matches the observed value; returns false on a lost race.
	IncrementUsage(ctx context.Context, id uuid.UUID, observedUsedCount int) (bool, error)
}

// UsageTracker implements the allocation fairness policy: never reuse a
// question while an untouched one exists for the same filter, and among
// reused questions prefer the least-frequently/least-recently used.
type UsageTracker struct {
	store QuestionStore
	log   zerolog.Logger
}

// NewUsageTracker creates a new UsageTracker.
func NewUsageTracker(store QuestionStore, log zerolog.Logger) *UsageTracker {
	return &UsageTracker{
		store: store,
		log:   log.With().Str("component", "usage_tracker").Logger(),
	}
}

// Select picks count questions for the filter without committing any
// usage counters (preview). Fails with ErrInsufficientQuestions when the
// candidate pool is smaller than count — never a silently truncated list.
func (t *UsageTracker) Select(ctx context.Context, filter model.QuestionFilter, count int) ([]model.Question, error) {
	return t.selectExcluding(ctx, filter, count, nil)
}

func (t *UsageTracker) selectExcluding(ctx context.Context, filter model.QuestionFilter, count int, exclude map[uuid.UUID]struct{}) ([]model.Question, error) {
	pool, err := t.store.ListCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	candidates := pool[:0:0]
	for _, q := range pool {
		if _, taken := exclude[q.ID]; taken {
			continue
		}
		candidates = append(candidates, q)
	}

	if len(candidates) < count {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientQuestions, count, len(candidates))
	}

	var unused, used []model.Question
	for _, q := range candidates {
		if q.UsedCount == 0 {
			unused = append(unused, q)
		} else {
			used = append(used, q)
		}
	}

	// Least used first; among equals, least recently used (never-stamped
	// rows sort earliest).
	sort.Slice(used, func(i, j int) bool {
		if used[i].UsedCount != used[j].UsedCount {
			return used[i].UsedCount < used[j].UsedCount
		}
		switch {
		case used[i].LastUsed == nil:
			return true
		case used[j].LastUsed == nil:
			return false
		default:
			return used[i].LastUsed.Before(*used[j].LastUsed)
		}
	})

	rand.Shuffle(len(unused), func(i, j int) { unused[i], unused[j] = unused[j], unused[i] })

	selected := make([]model.Question, 0, count)
	if len(unused) >= count {
		selected = append(selected, unused[:count]...)
	} else {
		selected = append(selected, unused...)
		need := count - len(selected)
		prefix := used
		if len(prefix) > need*reusePoolFactor {
			prefix = prefix[:need*reusePoolFactor]
		}
		rand.Shuffle(len(prefix), func(i, j int) { prefix[i], prefix[j] = prefix[j], prefix[i] })
		selected = append(selected, prefix[:need]...)
	}

	rand.Shuffle(len(selected), func(i, j int) { selected[i], selected[j] = selected[j], selected[i] })
	return selected, nil
}

// Reserve selects count questions and commits their usage counters. Each
// increment is an atomic conditional update; on a lost race only the
// affected slots are reselected, up to conflictRetryRounds times. A pool
// smaller than count fails before any counter is touched.
func (t *UsageTracker) Reserve(ctx context.Context, filter model.QuestionFilter, count int) ([]model.Question, error) {
	selected, err := t.Select(ctx, filter, count)
	if err != nil {
		return nil, err
	}

	committed := make([]model.Question, 0, count)
	taken := make(map[uuid.UUID]struct{}, count)

	for round := 0; ; round++ {
		conflicts := 0
		for _, q := range selected {
			ok, err := t.store.IncrementUsage(ctx, q.ID, q.UsedCount)
			if err != nil {
				return nil, fmt.Errorf("commit usage: %w", err)
			}
			if !ok {
				conflicts++
				continue
			}
			committed = append(committed, q)
			taken[q.ID] = struct{}{}
		}

		if len(committed) == count {
			return committed, nil
		}
		if round >= conflictRetryRounds {
			t.log.Warn().Int("conflicts", conflicts).Int("committed", len(committed)).
				Msg("conflict retries exhausted")
			return nil, fmt.Errorf("%w: %s", ErrInsufficientQuestions, ErrAllocationConflict)
		}

		t.log.Debug().Int("round", round+1).Int("conflicts", conflicts).
			Msg("reselecting after usage conflict")

		// Conflicted questions stay eligible — the fresh listing carries
		// their advanced counters. Only already-committed ids are excluded
		// so no id repeats within the batch.
		selected, err = t.selectExcluding(ctx, filter, count-len(committed), taken)
		if err != nil {
			return nil, err
		}
	}
}
