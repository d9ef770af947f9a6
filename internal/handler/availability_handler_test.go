package handler

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lingo-tutor-api/internal/dto"
	"github.com/noah-isme/lingo-tutor-api/internal/models"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
)

type availabilityServiceMock struct {
	publishErr  error
	withdrawErr error
	lastTutor   string
	lastPublish dto.PublishAvailabilityRequest
	lastQuery   dto.AvailabilityQuery
	lastDate    string
	queryCalled bool
}

func (m *availabilityServiceMock) Publish(ctx context.Context, tutorID string, req dto.PublishAvailabilityRequest) ([]models.AvailabilityUnit, error) {
	m.lastTutor = tutorID
	m.lastPublish = req
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	return []models.AvailabilityUnit{{TutorID: tutorID, Hour: req.FromHour, IsOpen: true, Capacity: 1}}, nil
}

func (m *availabilityServiceMock) Withdraw(ctx context.Context, tutorID string, req dto.WithdrawAvailabilityRequest) error {
	m.lastTutor = tutorID
	return m.withdrawErr
}

func (m *availabilityServiceMock) QueryAvailability(ctx context.Context, tutorID string, query dto.AvailabilityQuery) ([]models.AvailabilityUnit, error) {
	m.queryCalled = true
	m.lastTutor = tutorID
	m.lastQuery = query
	return []models.AvailabilityUnit{{TutorID: tutorID, Hour: 9}, {TutorID: tutorID, Hour: 10}}, nil
}

func (m *availabilityServiceMock) Blocks(ctx context.Context, tutorID, rawDate string) ([]models.AvailabilityBlock, error) {
	m.lastDate = rawDate
	return []models.AvailabilityBlock{{TutorID: tutorID, StartHour: 6, EndHour: 14}}, nil
}

type tutorStatsMock struct {
	stats *models.TutorStats
	err   error
}

func (m tutorStatsMock) Get(ctx context.Context, tutorID string) (*models.TutorStats, error) {
	return m.stats, m.err
}

func tutorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "tutor-1", Role: models.RoleTutor}
}

func TestAvailabilityHandlerPublish(t *testing.T) {
	mockSvc := &availabilityServiceMock{}
	handler := NewAvailabilityHandler(mockSvc, nil)

	c, w := newTestContext(http.MethodPost, "/tutors/tutor-1/availability",
		`{"date":"2025-03-10","from_hour":8,"to_hour":16,"capacity":1}`, tutorClaims())
	c.Params = gin.Params{{Key: "id", Value: "tutor-1"}}

	handler.Publish(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tutor-1", mockSvc.lastTutor)
	assert.Equal(t, 8, mockSvc.lastPublish.FromHour)
	assert.Equal(t, 16, mockSvc.lastPublish.ToHour)
}

func TestAvailabilityHandlerPublishConflict(t *testing.T) {
	mockSvc := &availabilityServiceMock{publishErr: appErrors.Clone(appErrors.ErrConflict, "booked hours cannot be closed")}
	handler := NewAvailabilityHandler(mockSvc, nil)

	c, w := newTestContext(http.MethodPost, "/tutors/tutor-1/availability",
		`{"date":"2025-03-10","from_hour":8,"to_hour":10,"replace":true}`, tutorClaims())
	handler.Publish(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAvailabilityHandlerWithdraw(t *testing.T) {
	mockSvc := &availabilityServiceMock{}
	handler := NewAvailabilityHandler(mockSvc, nil)

	c, w := newTestContext(http.MethodPost, "/tutors/tutor-1/availability/withdraw",
		`{"date":"2025-03-10","from_hour":11,"to_hour":12}`, tutorClaims())
	c.Params = gin.Params{{Key: "id", Value: "tutor-1"}}
	handler.Withdraw(c)
	require.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "tutor-1", mockSvc.lastTutor)
	_ = w
}

func TestAvailabilityHandlerQuery(t *testing.T) {
	mockSvc := &availabilityServiceMock{}
	handler := NewAvailabilityHandler(mockSvc, nil)

	c, w := newTestContext(http.MethodGet, "/tutors/tutor-1/availability?from=2025-03-10&to=2025-03-12", "", studentClaims())
	c.Params = gin.Params{{Key: "id", Value: "tutor-1"}}
	handler.Query(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.AvailabilityQuery{From: "2025-03-10", To: "2025-03-12"}, mockSvc.lastQuery)
	assert.Contains(t, w.Body.String(), `"count":2`)
}

func TestAvailabilityHandlerBlocks(t *testing.T) {
	mockSvc := &availabilityServiceMock{}
	handler := NewAvailabilityHandler(mockSvc, nil)

	c, w := newTestContext(http.MethodGet, "/tutors/tutor-1/availability/blocks?date=2025-03-10", "", studentClaims())
	c.Params = gin.Params{{Key: "id", Value: "tutor-1"}}
	handler.Blocks(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-03-10", mockSvc.lastDate)
}

func TestAvailabilityHandlerStats(t *testing.T) {
	updated := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	handler := NewAvailabilityHandler(&availabilityServiceMock{}, tutorStatsMock{
		stats: &models.TutorStats{TutorID: "tutor-1", LessonsCompleted: 4, UpdatedAt: updated},
	})
	c, w := newTestContext(http.MethodGet, "/tutors/tutor-1/stats", "", studentClaims())
	c.Params = gin.Params{{Key: "id", Value: "tutor-1"}}
	handler.Stats(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lessons_completed":4`)

	handler = NewAvailabilityHandler(&availabilityServiceMock{}, tutorStatsMock{err: sql.ErrNoRows})
	c, w = newTestContext(http.MethodGet, "/tutors/tutor-2/stats", "", studentClaims())
	c.Params = gin.Params{{Key: "id", Value: "tutor-2"}}
	handler.Stats(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lessons_completed":0`)
}
