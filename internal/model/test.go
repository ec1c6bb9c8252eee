package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the possible states of a test.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusCompleted TestStatus = "COMPLETED"
	TestStatusArchived  TestStatus = "ARCHIVED"
)

// Test represents a scheduled test built from the question bank. The
// question mix is fixed at publish time by the allocation engine; per
// student question sets live in student_assignments.
type Test struct {
	ID                  uuid.UUID  `json:"id"`
	Title               string     `json:"title"`
	ModuleID            string     `json:"module_id"`
	Level               string     `json:"level"`
	TopicID             *string    `json:"topic_id,omitempty"`
	QuestionsPerStudent int        `json:"questions_per_student"`
	DurationMinutes     int        `json:"duration_minutes"`
	// StableOrder seeds per-student shuffles from (test, student) so a
	// refetch of the same assignment reproduces the same order. Used by
	// listening-style modules where the audio sequence must not change
	// between page loads.
	StableOrder bool `json:"stable_order"`
	// PassThreshold is the code-judge partial-credit policy: a code answer
	// counts as correct when passed/total >= PassThreshold. 1.0 means all
	// test cases must pass.
	PassThreshold  float64    `json:"pass_threshold"`
	AccessCodeHash string     `json:"-"`
	Status         TestStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CreateTestRequest is the payload for creating a new test as DRAFT.
type CreateTestRequest struct {
	Title               string  `json:"title" binding:"required,min=3,max=255"`
	ModuleID            string  `json:"module_id" binding:"required,min=1,max=64"`
	Level               string  `json:"level" binding:"required,min=1,max=64"`
	TopicID             *string `json:"topic_id" binding:"omitempty,max=64"`
	QuestionsPerStudent int     `json:"questions_per_student" binding:"required,min=1,max=200"`
	DurationMinutes     int     `json:"duration_minutes" binding:"required,min=1,max=480"`
	StableOrder         bool    `json:"stable_order"`
	PassThreshold       float64 `json:"pass_threshold" binding:"omitempty,gt=0,lte=1"`
	AccessCode          string  `json:"access_code" binding:"omitempty,min=4,max=20"`
}

// AllocateRequest is the payload for allocating a test to a student batch.
type AllocateRequest struct {
	StudentIDs []int `json:"student_ids" binding:"required,min=1,dive,min=1"`
}

// AllocationBatch is the transient result of an allocation: the selected
// question ids partitioned into one disjoint subset per student.
type AllocationBatch struct {
	TestID     uuid.UUID             `json:"test_id"`
	Partitions map[int][]uuid.UUID   `json:"partitions"`
	Questions  map[uuid.UUID]Question `json:"-"`
}
