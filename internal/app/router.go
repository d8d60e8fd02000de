package app

import (
	"vigia_backend/internal/config"
	"vigia_backend/internal/middleware"
	"vigia_backend/internal/util"
	"vigia_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerTrackProgressRoutes(authGroup, c)
		a.registerQuizSubmissionRoutes(authGroup, c)
	}
}

func (a *App) registerTrackProgressRoutes(api *gin.RouterGroup, c *controllers) {
	learner := middleware.RoleMiddleware(util.RoleLearner)

	progress := api.Group("/track-progress", learner)
	{
		progress.POST("", c.trackProgress.Start)
		progress.GET("/:id", c.trackProgress.Get)
		progress.GET("/:id/locks", c.trackProgress.Locks)
		progress.POST("/:id/recalculate", c.trackProgress.Recalculate)
		progress.PATCH("/:id/sequences/:sequenceId", c.trackProgress.UpdateSequence)
		progress.POST("/:id/sequences/:sequenceId/complete", c.trackProgress.CompleteContent)
		progress.POST("/:id/sequences/:sequenceId/complete-quiz", c.trackProgress.CompleteQuiz)
	}

	participations := api.Group("/participations", learner)
	{
		participations.GET("/:id/compliance", c.trackProgress.Compliance)
		participations.GET("/:id/cycles/:cycleId/sequences/:sequenceId/access", c.trackProgress.CanAccess)
	}
}

func (a *App) registerQuizSubmissionRoutes(api *gin.RouterGroup, c *controllers) {
	submissions := api.Group("/quiz-submissions", middleware.RoleMiddleware(util.RoleLearner))
	{
		submissions.POST("", c.quizSubmission.Create)
		submissions.GET("", c.quizSubmission.List)
		submissions.GET("/:id", c.quizSubmission.Get)
		submissions.PATCH("/:id", c.quizSubmission.Update)
	}
}
