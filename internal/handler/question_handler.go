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

// QuestionHandler handles question bank management endpoints.
type QuestionHandler struct {
	questionService *service.QuestionService
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

// AddQuestion godoc
// POST /api/v1/admin/questions
// Adds one question to the bank with a fresh usage counter.
func (h *QuestionHandler) AddQuestion(c *gin.Context) {
	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questionService.Add(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPayload) {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// ImportQuestions godoc
// POST /api/v1/admin/questions/import
// Bulk-loads questions; a malformed entry rejects the whole batch.
func (h *QuestionHandler) ImportQuestions(c *gin.Context) {
	var req model.ImportQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.questionService.Import(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPayload) {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"imported": len(questions)})
}

// ListQuestions godoc
// GET /api/v1/admin/questions?module_id=&level=&topic_id=&kind=
// Lists bank questions matching the filter.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	filter := model.QuestionFilter{
		ModuleID: c.Query("module_id"),
		Level:    c.Query("level"),
	}
	if filter.ModuleID == "" || filter.Level == "" {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"module_id": "required",
			"level":     "required",
		})
		return
	}
	if topicID := c.Query("topic_id"); topicID != "" {
		filter.TopicID = &topicID
	}
	if kind := c.Query("kind"); kind != "" {
		k := model.QuestionKind(kind)
		filter.Kind = &k
	}

	questions, err := h.questionService.List(c.Request.Context(), filter)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// GetQuestion godoc
// GET /api/v1/admin/questions/:question_id
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	question, err := h.questionService.GetByID(c.Request.Context(), questionID)
	if err != nil {
		if errors.Is(err, service.ErrQuestionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question": question})
}

// QuestionUsage godoc
// GET /api/v1/admin/questions/usage?module_id=&page=&per_page=
// Returns per-question usage counters for fairness auditing.
func (h *QuestionHandler) QuestionUsage(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	usage, pagination, err := h.questionService.Usage(c.Request.Context(), c.Query("module_id"), page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"usage": usage}, pagination)
}
