package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lingo-tutor-api/internal/models"
	"github.com/noah-isme/lingo-tutor-api/internal/service"
)

const routeSecret = "route-secret"

func buildRouter(lessons *lessonServiceMock, availability *availabilityServiceMock, ledger *ledgerServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	Routes{
		Lessons:      NewLessonHandler(lessons, nil),
		Availability: NewAvailabilityHandler(availability, nil),
		Ledger:       NewLedgerHandler(ledger),
	}.Register(router.Group("/api/v1"), service.NewTokenService(routeSecret, ""))
	return router
}

func bearer(t *testing.T, userID string, role models.UserRole) string {
	t.Helper()
	claims := models.JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(routeSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func performRequest(router *gin.Engine, method, path, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRoutesRequireToken(t *testing.T) {
	router := buildRouter(&lessonServiceMock{}, &availabilityServiceMock{}, &ledgerServiceMock{})

	resp := performRequest(router, http.MethodGet, "/api/v1/lessons/lesson-1", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(router, http.MethodGet, "/api/v1/lessons/lesson-1", "", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(router, http.MethodGet, "/api/v1/lessons/lesson-1", "", bearer(t, "student-1", models.RoleStudent))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRoutesTutorsPublishOnlyOwnAvailability(t *testing.T) {
	availability := &availabilityServiceMock{}
	router := buildRouter(&lessonServiceMock{}, availability, &ledgerServiceMock{})
	body := `{"date":"2025-03-10","from_hour":8,"to_hour":16}`

	resp := performRequest(router, http.MethodPost, "/api/v1/tutors/tutor-1/availability", body, bearer(t, "tutor-1", models.RoleTutor))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "tutor-1", availability.lastTutor)

	availability.lastTutor = ""
	resp = performRequest(router, http.MethodPost, "/api/v1/tutors/tutor-1/availability", body, bearer(t, "tutor-2", models.RoleTutor))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Empty(t, availability.lastTutor)

	resp = performRequest(router, http.MethodPost, "/api/v1/tutors/tutor-1/availability", body, bearer(t, "admin-1", models.RoleAdmin))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRoutesBookingRoles(t *testing.T) {
	lessons := &lessonServiceMock{bookResp: &models.Lesson{ID: "lesson-1"}}
	router := buildRouter(lessons, &availabilityServiceMock{}, &ledgerServiceMock{})
	body := `{"tutor_id":"tutor-1","student_id":"student-1","date":"2025-03-10","start_time":"10:00","duration_minutes":60}`

	resp := performRequest(router, http.MethodPost, "/api/v1/lessons", body, bearer(t, "tutor-1", models.RoleTutor))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.False(t, lessons.bookCalled)

	resp = performRequest(router, http.MethodPost, "/api/v1/lessons", body, bearer(t, "student-1", models.RoleStudent))
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.True(t, lessons.bookCalled)
}

func TestRoutesGrantsAdminOnly(t *testing.T) {
	ledger := &ledgerServiceMock{}
	router := buildRouter(&lessonServiceMock{}, &availabilityServiceMock{}, ledger)

	resp := performRequest(router, http.MethodPost, "/api/v1/package-assignments/pkg-1/grants", `{"hours":1}`, bearer(t, "student-1", models.RoleStudent))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = performRequest(router, http.MethodPost, "/api/v1/package-assignments/pkg-1/grants", `{"hours":1}`, bearer(t, "admin-1", models.RoleAdmin))
	assert.Equal(t, http.StatusOK, resp.Code)
}
