package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionKind discriminates the question variants in the bank.
type QuestionKind string

const (
	QuestionKindMCQ       QuestionKind = "MCQ"
	QuestionKindDictation QuestionKind = "DICTATION"
	QuestionKindCode      QuestionKind = "CODE"
)

// Question is a bank record. Exactly one of MCQ, Dictation or Code is
// non-nil, selected by Kind. UsedCount and LastUsed drive the allocation
// fairness policy and are only ever mutated through the conditional
// usage-counter update in the question repository.
type Question struct {
	ID        uuid.UUID         `json:"id"`
	ModuleID  string            `json:"module_id"`
	Level     string            `json:"level"`
	TopicID   *string           `json:"topic_id,omitempty"`
	Kind      QuestionKind      `json:"kind"`
	Prompt    string            `json:"prompt"`
	MCQ       *MCQPayload       `json:"mcq,omitempty"`
	Dictation *DictationPayload `json:"dictation,omitempty"`
	Code      *CodePayload      `json:"code,omitempty"`
	UsedCount int               `json:"used_count"`
	LastUsed  *time.Time        `json:"last_used,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// MCQPayload holds the canonical option set. Options are keyed by the
// canonical letters A..D; empty slots are simply absent from the map.
type MCQPayload struct {
	Options       map[string]string `json:"options"`
	CorrectOption string            `json:"correct_option"`
}

// DictationPayload binds a pre-generated audio asset to the canonical
// sentence used for similarity grading. The canonical text must never
// reach a student-facing payload.
type DictationPayload struct {
	AudioRef            string  `json:"audio_ref"`
	CanonicalText       string  `json:"canonical_text"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

// CodeTestCase is one stdin/expected-output pair for code-judge grading.
type CodeTestCase struct {
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
}

// CodePayload holds the compiler-judge spec for technical questions.
type CodePayload struct {
	Language  string         `json:"language"`
	TestCases []CodeTestCase `json:"test_cases"`
}

// QuestionFilter narrows the candidate pool for allocation.
type QuestionFilter struct {
	ModuleID string
	Level    string
	TopicID  *string
	Kind     *QuestionKind
}

// AddQuestionRequest is the payload for adding a question to the bank.
type AddQuestionRequest struct {
	ModuleID  string            `json:"module_id" binding:"required,min=1,max=64"`
	Level     string            `json:"level" binding:"required,min=1,max=64"`
	TopicID   *string           `json:"topic_id" binding:"omitempty,max=64"`
	Kind      QuestionKind      `json:"kind" binding:"required,oneof=MCQ DICTATION CODE"`
	Prompt    string            `json:"prompt" binding:"required,min=1,max=4000"`
	MCQ       *MCQPayload       `json:"mcq" binding:"omitempty"`
	Dictation *DictationPayload `json:"dictation" binding:"omitempty"`
	Code      *CodePayload      `json:"code" binding:"omitempty"`
}

// ImportQuestionsRequest is the payload for bulk-loading bank questions.
type ImportQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// QuestionUsage is the admin-facing usage stats row.
type QuestionUsage struct {
	ID        uuid.UUID    `json:"id"`
	ModuleID  string       `json:"module_id"`
	Level     string       `json:"level"`
	Kind      QuestionKind `json:"kind"`
	UsedCount int          `json:"used_count"`
	LastUsed  *time.Time   `json:"last_used,omitempty"`
}
