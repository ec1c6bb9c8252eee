package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. COMPLETED is terminal: a
// completed attempt is never transitioned or overwritten again.
type AttemptStatus string

const (
	AttemptStatusAssigned   AttemptStatus = "ASSIGNED"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// Attempt is the record of a student's answering session for one
// assignment. One row per (test, student).
type Attempt struct {
	ID           uuid.UUID               `json:"id"`
	AssignmentID uuid.UUID               `json:"assignment_id"`
	TestID       uuid.UUID               `json:"test_id"`
	StudentID    int                     `json:"student_id"`
	Status       AttemptStatus           `json:"status"`
	StartedAt    *time.Time              `json:"started_at,omitempty"`
	FinishedAt   *time.Time              `json:"finished_at,omitempty"`
	Answers      map[int]SubmittedAnswer `json:"answers,omitempty"`
	Results      []QuestionResult        `json:"results,omitempty"`
	Score        *float64                `json:"score,omitempty"`
	Percentage   *float64                `json:"percentage,omitempty"`
	CorrectCount int                     `json:"correct_count"`
}

// SubmittedAnswer is one raw answer keyed by question position. The field
// used depends on the question kind at that position.
type SubmittedAnswer struct {
	Option   string `json:"option,omitempty"`
	AudioRef string `json:"audio_ref,omitempty"`
	Code     string `json:"code,omitempty"`
}

// QuestionResult is the per-question grading outcome embedded in a
// completed attempt. SubScore is 0 or 1 for MCQ, 0..1 for similarity and
// code-judge items. GradingError is set (and SubScore forced to 0) when an
// external collaborator failed for this question; it never aborts grading
// of the remaining questions.
type QuestionResult struct {
	Position     int       `json:"position"`
	QuestionID   uuid.UUID `json:"question_id"`
	Presented    string    `json:"presented,omitempty"`
	Resolved     string    `json:"resolved,omitempty"`
	Correct      bool      `json:"correct"`
	SubScore     float64   `json:"sub_score"`
	Similarity   *float64  `json:"similarity,omitempty"`
	PassedCases  int       `json:"passed_cases,omitempty"`
	TotalCases   int       `json:"total_cases,omitempty"`
	GradingError string    `json:"grading_error,omitempty"`
}

// SubmitAttemptRequest is the payload for submitting an attempt for
// grading. Answers are keyed by question position (as JSON object keys).
type SubmitAttemptRequest struct {
	Answers map[int]SubmittedAnswer `json:"answers" binding:"required"`
}

// StartAttemptRequest carries the test access code on first start.
type StartAttemptRequest struct {
	AccessCode string `json:"access_code" binding:"omitempty,max=20"`
}
