package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lingo-tutor-api/internal/dto"
	"github.com/noah-isme/lingo-tutor-api/internal/models"
	"github.com/noah-isme/lingo-tutor-api/pkg/clock"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
	"github.com/noah-isme/lingo-tutor-api/pkg/response"
)

type lessonService interface {
	BookLesson(ctx context.Context, req dto.BookLessonRequest, actor models.Actor) (*models.Lesson, error)
	Get(ctx context.Context, lessonID string, actor models.Actor) (*models.Lesson, error)
	CancelLesson(ctx context.Context, lessonID string, actor models.Actor, reason string, now time.Time) (*models.CancellationResult, error)
	TransitionLesson(ctx context.Context, lessonID string, to models.LessonStatus, actor models.Actor, reason string, now time.Time) (*models.Lesson, error)
	History(ctx context.Context, lessonID string, actor models.Actor) ([]models.LessonStatusHistory, error)
	SubmitFeedback(ctx context.Context, lessonID string, actor models.Actor, req dto.LessonFeedbackRequest) (*models.Lesson, error)
}

// LessonHandler exposes booking and lesson lifecycle endpoints.
type LessonHandler struct {
	service lessonService
	clock   clock.Clock
}

// NewLessonHandler builds a new handler. A nil clock reads the wall clock.
func NewLessonHandler(service lessonService, clk clock.Clock) *LessonHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &LessonHandler{service: service, clock: clk}
}

// Book godoc
// @Summary Book a lesson
// @Description Reserves every hour of the lesson and debits the package in one transaction.
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.BookLessonRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /lessons [post]
func (h *LessonHandler) Book(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BookLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}
	lesson, err := h.service.BookLesson(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// Get godoc
// @Summary Get a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lesson, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Cancel godoc
// @Summary Cancel a lesson
// @Description Releases the reserved hours. Hours are refunded only outside the free cancellation window.
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.CancelLessonRequest false "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/cancel [post]
func (h *LessonHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CancelLessonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancellation payload"))
			return
		}
	}
	result, err := h.service.CancelLesson(c.Request.Context(), c.Param("id"), actor, req.Reason, h.clock.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CancelLessonResponse{Lesson: result.Lesson, Refunded: result.Refunded}, nil)
}

// Transition godoc
// @Summary Move a lesson to another status
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.TransitionLessonRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/transitions [post]
func (h *LessonHandler) Transition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TransitionLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transition payload"))
		return
	}
	lesson, err := h.service.TransitionLesson(c.Request.Context(), c.Param("id"), req.Status, actor, req.Reason, h.clock.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// History godoc
// @Summary List the status history of a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/history [get]
func (h *LessonHandler) History(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	rows, err := h.service.History(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Feedback godoc
// @Summary Leave feedback on a lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.LessonFeedbackRequest true "Feedback payload"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/feedback [put]
func (h *LessonHandler) Feedback(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.LessonFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid feedback payload"))
		return
	}
	lesson, err := h.service.SubmitFeedback(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}
