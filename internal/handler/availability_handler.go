package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lingo-tutor-api/internal/dto"
	"github.com/noah-isme/lingo-tutor-api/internal/models"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
	"github.com/noah-isme/lingo-tutor-api/pkg/response"
)

type availabilityService interface {
	Publish(ctx context.Context, tutorID string, req dto.PublishAvailabilityRequest) ([]models.AvailabilityUnit, error)
	Withdraw(ctx context.Context, tutorID string, req dto.WithdrawAvailabilityRequest) error
	QueryAvailability(ctx context.Context, tutorID string, query dto.AvailabilityQuery) ([]models.AvailabilityUnit, error)
	Blocks(ctx context.Context, tutorID, rawDate string) ([]models.AvailabilityBlock, error)
}

type tutorStatsReader interface {
	Get(ctx context.Context, tutorID string) (*models.TutorStats, error)
}

// AvailabilityHandler exposes tutor availability endpoints.
type AvailabilityHandler struct {
	service availabilityService
	stats   tutorStatsReader
}

// NewAvailabilityHandler builds a new handler. stats may be nil.
func NewAvailabilityHandler(service availabilityService, stats tutorStatsReader) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, stats: stats}
}

// Publish godoc
// @Summary Publish tutor availability
// @Description Opens every hour of the range. With replace the day is narrowed to exactly this range.
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Tutor ID"
// @Param payload body dto.PublishAvailabilityRequest true "Availability payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tutors/{id}/availability [post]
func (h *AvailabilityHandler) Publish(c *gin.Context) {
	var req dto.PublishAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	units, err := h.service.Publish(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, units, nil)
}

// Withdraw godoc
// @Summary Withdraw tutor availability
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Tutor ID"
// @Param payload body dto.WithdrawAvailabilityRequest true "Range to close"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /tutors/{id}/availability/withdraw [post]
func (h *AvailabilityHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	if err := h.service.Withdraw(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Query godoc
// @Summary List bookable hours of a tutor
// @Tags Availability
// @Produce json
// @Param id path string true "Tutor ID"
// @Param from query string true "First date (YYYY-MM-DD)"
// @Param to query string true "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /tutors/{id}/availability [get]
func (h *AvailabilityHandler) Query(c *gin.Context) {
	var query dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability query"))
		return
	}
	units, err := h.service.QueryAvailability(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, units, nil, map[string]interface{}{"count": len(units)})
}

// Blocks godoc
// @Summary Coarse availability blocks of a tutor day
// @Tags Availability
// @Produce json
// @Param id path string true "Tutor ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /tutors/{id}/availability/blocks [get]
func (h *AvailabilityHandler) Blocks(c *gin.Context) {
	blocks, err := h.service.Blocks(c.Request.Context(), c.Param("id"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, nil)
}

// Stats godoc
// @Summary Completed lesson counters of a tutor
// @Tags Availability
// @Produce json
// @Param id path string true "Tutor ID"
// @Success 200 {object} response.Envelope
// @Router /tutors/{id}/stats [get]
func (h *AvailabilityHandler) Stats(c *gin.Context) {
	tutorID := c.Param("id")
	if h.stats == nil {
		response.JSON(c, http.StatusOK, models.TutorStats{TutorID: tutorID}, nil)
		return
	}
	stats, err := h.stats.Get(c.Request.Context(), tutorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			response.JSON(c, http.StatusOK, models.TutorStats{TutorID: tutorID}, nil)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
