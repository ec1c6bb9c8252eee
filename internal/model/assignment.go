package model

import (
	"time"

	"github.com/google/uuid"
)

// StudentAssignment is the concrete, shuffled question set presented to one
// student for one test. It is created once by the assignment builder and is
// immutable afterwards; the option remap it carries is the only record of
// how to grade the shuffled presentation.
type StudentAssignment struct {
	ID        uuid.UUID          `json:"id"`
	TestID    uuid.UUID          `json:"test_id"`
	StudentID int                `json:"student_id"`
	Questions []AssignedQuestion `json:"questions"`
	CreatedAt time.Time          `json:"created_at"`
}

// AssignedQuestion is one position in a student's assignment, annotated
// with everything grading needs. Grading-only fields (remap, correct
// option, canonical text, expected outputs) are stripped by ForStudent.
type AssignedQuestion struct {
	QuestionID uuid.UUID    `json:"question_id"`
	Position   int          `json:"position"`
	Kind       QuestionKind `json:"kind"`
	Prompt     string       `json:"prompt"`

	// MCQ: presented options keyed by the presented letters, the
	// presented→canonical remap, and the presented letter that is correct.
	Options       map[string]string `json:"options,omitempty"`
	OptionRemap   map[string]string `json:"option_remap,omitempty"`
	CorrectOption string            `json:"correct_option,omitempty"`

	// Dictation.
	AudioRef            string  `json:"audio_ref,omitempty"`
	CanonicalText       string  `json:"canonical_text,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`

	// Code-judge.
	Language  string         `json:"language,omitempty"`
	TestCases []CodeTestCase `json:"test_cases,omitempty"`
}

// AssignedQuestionView is the student-facing projection of an assigned
// question: no remap, no correct option, no canonical text, no expected
// outputs. AudioURL is the resolved asset URL, not the raw reference.
type AssignedQuestionView struct {
	Position  int               `json:"position"`
	Kind      QuestionKind      `json:"kind"`
	Prompt    string            `json:"prompt"`
	Options   map[string]string `json:"options,omitempty"`
	AudioURL  string            `json:"audio_url,omitempty"`
	Language  string            `json:"language,omitempty"`
	CaseCount int               `json:"case_count,omitempty"`
}

// ForStudent strips all grading-only fields from an assigned question.
// resolveAudio maps a stored audio reference to a retrievable URL.
func (q AssignedQuestion) ForStudent(resolveAudio func(string) string) AssignedQuestionView {
	v := AssignedQuestionView{
		Position: q.Position,
		Kind:     q.Kind,
		Prompt:   q.Prompt,
		Options:  q.Options,
		Language: q.Language,
	}
	if q.AudioRef != "" && resolveAudio != nil {
		v.AudioURL = resolveAudio(q.AudioRef)
	}
	if q.Kind == QuestionKindCode {
		v.CaseCount = len(q.TestCases)
	}
	return v
}

// AssignmentPaper is the payload served to a student when an attempt
// starts or resumes.
type AssignmentPaper struct {
	TestID           uuid.UUID              `json:"test_id"`
	AttemptID        uuid.UUID              `json:"attempt_id"`
	Title            string                 `json:"title"`
	DurationMinutes  int                    `json:"duration_minutes"`
	RemainingSeconds float64                `json:"remaining_seconds"`
	Questions        []AssignedQuestionView `json:"questions"`
	SavedAnswers     map[string]string      `json:"saved_answers,omitempty"`
}
