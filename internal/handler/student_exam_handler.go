package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-exam-client/internal/middleware"
	"github.com/stemsi/exstem-exam-client/internal/model"
	"github.com/stemsi/exstem-exam-client/internal/response"
	"github.com/stemsi/exstem-exam-client/internal/service"
	"github.com/stemsi/exstem-exam-client/internal/validator"
)

// StudentExamHandler handles the exam paper and submission endpoints.
type StudentExamHandler struct {
	catalog *service.ExamCatalogService
}

// NewStudentExamHandler creates a new StudentExamHandler.
func NewStudentExamHandler(catalog *service.ExamCatalogService) *StudentExamHandler {
	return &StudentExamHandler{catalog: catalog}
}

// GetExamPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Returns the exam paper without correct answers.
func (h *StudentExamHandler) GetExamPaper(c *gin.Context) {
	if middleware.GetClaims(c) == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	paper, err := h.catalog.GetExamPayload(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_id/submit
// Grades the full ordered answer slate and returns the score.
func (h *StudentExamHandler) SubmitExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.catalog.Grade(c.Param("exam_id"), claims.UserID, req.Answers)
	if err != nil {
		status, code := gradeErrorStatus(err)
		response.Fail(c, status, code)
		return
	}

	response.Success(c, http.StatusOK, result)
}

func gradeErrorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrAnswerCountInvalid):
		return http.StatusBadRequest, response.ErrAnswerCountInvalid
	case errors.Is(err, service.ErrInvalidAnswer):
		return http.StatusBadRequest, response.ErrInvalidPayload
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
