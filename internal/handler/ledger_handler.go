package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lingo-tutor-api/internal/dto"
	"github.com/noah-isme/lingo-tutor-api/internal/models"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
	"github.com/noah-isme/lingo-tutor-api/pkg/response"
)

type ledgerService interface {
	AssignPackage(ctx context.Context, req dto.AssignPackageRequest) (*models.PackageAssignment, error)
	Grant(ctx context.Context, assignmentID string, req dto.GrantHoursRequest) (*models.LedgerSummary, error)
	Get(ctx context.Context, assignmentID string) (*models.PackageAssignment, error)
	QueryLedger(ctx context.Context, assignmentID string) (*models.LedgerSummary, error)
	Entries(ctx context.Context, assignmentID string) ([]models.LedgerEntry, error)
}

// LedgerHandler exposes package assignment endpoints.
type LedgerHandler struct {
	service ledgerService
}

// NewLedgerHandler builds a new handler.
func NewLedgerHandler(service ledgerService) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// Assign godoc
// @Summary Assign a purchased package to a student
// @Tags Packages
// @Accept json
// @Produce json
// @Param payload body dto.AssignPackageRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /package-assignments [post]
func (h *LedgerHandler) Assign(c *gin.Context) {
	var req dto.AssignPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid package assignment payload"))
		return
	}
	assignment, err := h.service.AssignPackage(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Get godoc
// @Summary Get the hour balance of a package assignment
// @Tags Packages
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /package-assignments/{id} [get]
func (h *LedgerHandler) Get(c *gin.Context) {
	if !h.authorizeOwner(c) {
		return
	}
	summary, err := h.service.QueryLedger(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Entries godoc
// @Summary List the hour journal of a package assignment
// @Tags Packages
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /package-assignments/{id}/entries [get]
func (h *LedgerHandler) Entries(c *gin.Context) {
	if !h.authorizeOwner(c) {
		return
	}
	entries, err := h.service.Entries(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Grant godoc
// @Summary Credit hours to a package assignment
// @Tags Packages
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.GrantHoursRequest true "Grant payload"
// @Success 200 {object} response.Envelope
// @Router /package-assignments/{id}/grants [post]
func (h *LedgerHandler) Grant(c *gin.Context) {
	var req dto.GrantHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grant payload"))
		return
	}
	summary, err := h.service.Grant(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// authorizeOwner lets admins through and students only to their own assignments.
func (h *LedgerHandler) authorizeOwner(c *gin.Context) bool {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return false
	}
	if actor.Role == models.RoleAdmin || actor.Role == models.RoleSystem {
		return true
	}
	assignment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return false
	}
	if actor.Role != models.RoleStudent || assignment.StudentID != actor.UserID {
		response.Error(c, appErrors.ErrForbidden)
		return false
	}
	return true
}
