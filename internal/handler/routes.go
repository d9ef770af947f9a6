package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lingo-tutor-api/internal/middleware"
	"github.com/noah-isme/lingo-tutor-api/internal/models"
)

// Routes groups the handlers mounted under the API prefix.
type Routes struct {
	Lessons      *LessonHandler
	Availability *AvailabilityHandler
	Ledger       *LedgerHandler
}

// Register mounts every JWT protected route on the given group.
func (r Routes) Register(api *gin.RouterGroup, tokens middleware.TokenValidator) {
	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))

	admin := string(models.RoleAdmin)
	system := string(models.RoleSystem)

	if r.Lessons != nil {
		lessons := secured.Group("/lessons")
		lessons.POST("", middleware.RBAC(string(models.RoleStudent), admin, system), r.Lessons.Book)
		lessons.GET("/:id", r.Lessons.Get)
		lessons.POST("/:id/cancel", r.Lessons.Cancel)
		lessons.POST("/:id/transitions", r.Lessons.Transition)
		lessons.GET("/:id/history", r.Lessons.History)
		lessons.PUT("/:id/feedback", r.Lessons.Feedback)
	}

	if r.Availability != nil {
		tutors := secured.Group("/tutors/:id")
		tutors.POST("/availability", middleware.RBAC(middleware.SelfParam, admin), r.Availability.Publish)
		tutors.POST("/availability/withdraw", middleware.RBAC(middleware.SelfParam, admin), r.Availability.Withdraw)
		tutors.GET("/availability", r.Availability.Query)
		tutors.GET("/availability/blocks", r.Availability.Blocks)
		tutors.GET("/stats", r.Availability.Stats)
	}

	if r.Ledger != nil {
		packages := secured.Group("/package-assignments")
		packages.POST("", middleware.RBAC(admin, system), r.Ledger.Assign)
		packages.GET("/:id", r.Ledger.Get)
		packages.GET("/:id/entries", r.Ledger.Entries)
		packages.POST("/:id/grants", middleware.RBAC(admin), r.Ledger.Grant)
	}
}
