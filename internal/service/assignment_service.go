package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/aptiva/aptiva-backend/internal/config"
	"github.com/aptiva/aptiva-backend/internal/model"
)

// ErrAssignmentNotFound is returned when no assignment exists for a
// (test, student) pair.
var ErrAssignmentNotFound = errors.New("assignment not found")

// presentedLetters are the presentation slots assigned in shuffled order.
const presentedLetters = "ABCD"

// AssignmentStore is the persistence the builder and grader need.
type AssignmentStore interface {
	CreateBatch(ctx context.Context, assignments []*model.StudentAssignment) error
	GetByTestAndStudent(ctx context.Context, testID uuid.UUID, studentID int) (*model.StudentAssignment, error)
}

// AssignmentService builds the concrete per-student question sets: it
// shuffles MCQ option order, records the presented→canonical remap that
// grading later depends on, and binds audio and code-judge payloads.
type AssignmentService struct {
	store AssignmentStore
	cfg   *config.Config
	log   zerolog.Logger
}

// NewAssignmentService creates a new AssignmentService.
func NewAssignmentService(store AssignmentStore, cfg *config.Config, log zerolog.Logger) *AssignmentService {
	return &AssignmentService{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "assignment_service").Logger(),
	}
}

// BuildBatch builds and persists one assignment per student in the
// allocation batch.
func (s *AssignmentService) BuildBatch(ctx context.Context, test *model.Test, batch *model.AllocationBatch) ([]*model.StudentAssignment, error) {
	assignments := make([]*model.StudentAssignment, 0, len(batch.Partitions))

	// Deterministic iteration keeps batch inserts reproducible in logs.
	studentIDs := make([]int, 0, len(batch.Partitions))
	for studentID := range batch.Partitions {
		studentIDs = append(studentIDs, studentID)
	}
	sort.Ints(studentIDs)

	for _, studentID := range studentIDs {
		questions := make([]model.Question, 0, len(batch.Partitions[studentID]))
		for _, id := range batch.Partitions[studentID] {
			q, ok := batch.Questions[id]
			if !ok {
				return nil, fmt.Errorf("allocation batch missing question %s", id)
			}
			questions = append(questions, q)
		}

		a, err := s.Build(test, studentID, questions)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	if err := s.store.CreateBatch(ctx, assignments); err != nil {
		return nil, fmt.Errorf("persist assignments: %w", err)
	}
	return assignments, nil
}

// Build assembles one student's assignment from their question subset.
// The result is immutable once persisted: the option remap it carries is
// the only record of how to grade the shuffled presentation.
func (s *AssignmentService) Build(test *model.Test, studentID int, questions []model.Question) (*model.StudentAssignment, error) {
	rng := s.rng(test, studentID)

	ordered := make([]model.Question, len(questions))
	copy(ordered, questions)
	rng.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })

	assigned := make([]model.AssignedQuestion, 0, len(ordered))
	for i, q := range ordered {
		aq := model.AssignedQuestion{
			QuestionID: q.ID,
			Position:   i + 1,
			Kind:       q.Kind,
			Prompt:     q.Prompt,
		}

		switch q.Kind {
		case model.QuestionKindMCQ:
			if q.MCQ == nil || len(q.MCQ.Options) == 0 {
				return nil, fmt.Errorf("question %s: missing mcq payload", q.ID)
			}
			if err := shuffleOptions(&aq, q.MCQ, rng); err != nil {
				return nil, fmt.Errorf("question %s: %w", q.ID, err)
			}

		case model.QuestionKindDictation:
			if q.Dictation == nil {
				return nil, fmt.Errorf("question %s: missing dictation payload", q.ID)
			}
			aq.AudioRef = q.Dictation.AudioRef
			aq.CanonicalText = q.Dictation.CanonicalText
			aq.SimilarityThreshold = s.thresholdFor(test.ModuleID, q.Dictation)

		case model.QuestionKindCode:
			if q.Code == nil || len(q.Code.TestCases) == 0 {
				return nil, fmt.Errorf("question %s: missing code payload", q.ID)
			}
			aq.Language = q.Code.Language
			aq.TestCases = append([]model.CodeTestCase(nil), q.Code.TestCases...)

		default:
			return nil, fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
		}

		assigned = append(assigned, aq)
	}

	return &model.StudentAssignment{
		TestID:    test.ID,
		StudentID: studentID,
		Questions: assigned,
	}, nil
}

// Get retrieves a student's assignment.
func (s *AssignmentService) Get(ctx context.Context, testID uuid.UUID, studentID int) (*model.StudentAssignment, error) {
	a, err := s.store.GetByTestAndStudent(ctx, testID, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// shuffleOptions shuffles the canonical option order, assigns presented
// letters A.. in shuffled order and records {presented → canonical}. The
// stored correct option is the presented letter that maps back to the
// bank's canonical correct letter.
func shuffleOptions(aq *model.AssignedQuestion, mcq *model.MCQPayload, rng *rand.Rand) error {
	canonical := make([]string, 0, len(mcq.Options))
	for letter := range mcq.Options {
		canonical = append(canonical, letter)
	}
	sort.Strings(canonical)

	if len(canonical) > len(presentedLetters) {
		return fmt.Errorf("too many option slots: %d", len(canonical))
	}

	rng.Shuffle(len(canonical), func(i, j int) { canonical[i], canonical[j] = canonical[j], canonical[i] })

	aq.Options = make(map[string]string, len(canonical))
	aq.OptionRemap = make(map[string]string, len(canonical))
	for i, orig := range canonical {
		presented := string(presentedLetters[i])
		aq.Options[presented] = mcq.Options[orig]
		aq.OptionRemap[presented] = orig
		if orig == mcq.CorrectOption {
			aq.CorrectOption = presented
		}
	}
	if aq.CorrectOption == "" {
		return fmt.Errorf("correct option %q not among option slots", mcq.CorrectOption)
	}
	return nil
}

// thresholdFor resolves the similarity tolerance: a per-question override
// wins, then the module default. Dictation modules are graded stricter
// than free speech.
func (s *AssignmentService) thresholdFor(moduleID string, d *model.DictationPayload) float64 {
	if d.SimilarityThreshold > 0 {
		return d.SimilarityThreshold
	}
	switch moduleID {
	case "dictation", "listening":
		return s.cfg.DictationThreshold
	case "speaking", "speech":
		return s.cfg.SpeechThreshold
	default:
		return s.cfg.SimilarityThreshold
	}
}

// rng returns the shuffle source. With StableOrder the seed derives from
// (test id, student id) so refetching the same assignment reproduces the
// same order; otherwise every build shuffles fresh.
func (s *AssignmentService) rng(test *model.Test, studentID int) *rand.Rand {
	if !test.StableOrder {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	h := fnv.New64a()
	h.Write(test.ID[:])
	var sid [8]byte
	binary.LittleEndian.PutUint64(sid[:], uint64(int64(studentID)))
	h.Write(sid[:])
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
