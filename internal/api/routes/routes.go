package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/talentis/proctor/internal/api/handlers"
	"github.com/talentis/proctor/internal/api/middleware"
)

type Deps struct {
	Interview  *handlers.InterviewHandler
	Simulation *handlers.SimulationHandler
	Live       *handlers.LiveHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	interviews := auth.Group("/api/video-interviews")
	interviews.POST("/start", middleware.RequireCandidate(), d.Interview.Start)
	interviews.POST("/upload-chunk/:attempt_id", middleware.RequireCandidate(), d.Interview.UploadChunk)
	interviews.POST("/finish/:attempt_id", middleware.RequireCandidate(), d.Interview.Finish)
	interviews.POST("/face-flag/:attempt_id", middleware.RequireCandidate(), d.Interview.FaceFlag)
	interviews.GET("/review/:attempt_id", middleware.RequireReviewer(), d.Interview.Review)

	auth.POST("/api/simulations", middleware.RequireReviewer(), d.Simulation.Create)
	auth.GET("/api/simulations", middleware.RequireReviewer(), d.Simulation.List)
	auth.GET("/api/simulations/:simulation_id", d.Simulation.Get)

	// WebSocket: live proctoring feed for reviewers
	auth.GET("/ws/attempts/:attempt_id/live", middleware.RequireReviewer(), d.Live.AttemptLive)
}
