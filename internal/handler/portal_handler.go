package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aptiva/aptiva-backend/internal/model"
	"github.com/aptiva/aptiva-backend/internal/response"
	"github.com/aptiva/aptiva-backend/internal/service"
	"github.com/aptiva/aptiva-backend/internal/validator"
)

// PortalHandler handles student-facing endpoints (taking a test, autosave,
// submission, results). Identity comes from the student_id path parameter;
// authentication is terminated upstream of this service.
type PortalHandler struct {
	testService    *service.TestService
	attemptService *service.AttemptService
	gradingService *service.GradingService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(
	testService *service.TestService,
	attemptService *service.AttemptService,
	gradingService *service.GradingService,
) *PortalHandler {
	return &PortalHandler{
		testService:    testService,
		attemptService: attemptService,
		gradingService: gradingService,
	}
}

func (h *PortalHandler) params(c *gin.Context) (uuid.UUID, int, bool) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, 0, false
	}
	studentID, err := strconv.Atoi(c.Param("student_id"))
	if err != nil || studentID < 1 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, 0, false
	}
	return testID, studentID, true
}

// availableTest loads the test and checks it is open for taking.
func (h *PortalHandler) availableTest(c *gin.Context, testID uuid.UUID) (*model.Test, bool) {
	test, err := h.testService.GetByID(c.Request.Context(), testID)
	if err != nil {
		if errors.Is(err, service.ErrTestNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return nil, false
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return nil, false
	}
	if test.Status != model.TestStatusPublished {
		response.Fail(c, http.StatusForbidden, response.ErrTestNotAvailable)
		return nil, false
	}
	return test, true
}

// StartAttempt godoc
// POST /api/v1/students/:student_id/tests/:test_id/start
// Starts (or resumes) the student's attempt and returns the paper:
// stripped questions, remaining time and any buffered answers. Starting is
// idempotent; a completed attempt is rejected.
func (h *PortalHandler) StartAttempt(c *gin.Context) {
	testID, studentID, ok := h.params(c)
	if !ok {
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, ok := h.availableTest(c, testID)
	if !ok {
		return
	}
	if err := h.testService.VerifyAccess(test, req.AccessCode); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrInvalidAccessCode)
		return
	}

	paper, err := h.attemptService.Paper(c.Request.Context(), test, studentID)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// AutosaveAnswer godoc
// PUT /api/v1/students/:student_id/tests/:test_id/answers/:position
// Buffers one in-progress answer. Fire-and-forget from the client's view;
// the persistence worker folds it into the attempt row.
func (h *PortalHandler) AutosaveAnswer(c *gin.Context) {
	testID, studentID, ok := h.params(c)
	if !ok {
		return
	}
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil || position < 1 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var answer model.SubmittedAnswer
	if fields := validator.Bind(c, &answer); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.Autosave(c.Request.Context(), testID, studentID, position, answer); err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// SubmitAttempt godoc
// POST /api/v1/students/:student_id/tests/:test_id/submit
// Grades the submitted answers and completes the attempt. Submission is
// terminal: a second submit gets ATTEMPT_ALREADY_COMPLETED and the stored
// result stays untouched.
func (h *PortalHandler) SubmitAttempt(c *gin.Context) {
	testID, studentID, ok := h.params(c)
	if !ok {
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, ok := h.availableTest(c, testID)
	if !ok {
		return
	}

	attempt, err := h.gradingService.Grade(c.Request.Context(), test, studentID, req.Answers)
	if err != nil {
		h.failAttempt(c, err)
		return
	}
	h.attemptService.ClearBuffer(c.Request.Context(), testID, studentID)

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// AttemptResult godoc
// GET /api/v1/students/:student_id/tests/:test_id/result
// Returns the student's attempt including per-question results once
// graded.
func (h *PortalHandler) AttemptResult(c *gin.Context) {
	testID, studentID, ok := h.params(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Get(c.Request.Context(), testID, studentID)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// failAttempt maps attempt domain errors onto the response taxonomy.
func (h *PortalHandler) failAttempt(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrAssignmentNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrAttemptAlreadyCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptAlreadyCompleted)
	case errors.Is(err, service.ErrInvalidStateTransition):
		response.Fail(c, http.StatusConflict, response.ErrInvalidStateTransition)
	case errors.Is(err, service.ErrTestNotAvailable):
		response.Fail(c, http.StatusForbidden, response.ErrTestNotAvailable)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
