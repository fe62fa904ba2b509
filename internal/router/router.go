package router

import (
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-exam-client/internal/auth"
	"github.com/stemsi/exstem-exam-client/internal/config"
	"github.com/stemsi/exstem-exam-client/internal/handler"
	"github.com/stemsi/exstem-exam-client/internal/middleware"
	"github.com/stemsi/exstem-exam-client/internal/response"
	"github.com/stemsi/exstem-exam-client/internal/validator"
)

// paperMaxAge lets a student's client reuse a fetched paper briefly.
const paperMaxAge = 60

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentExam *handler.StudentExamHandler
	WS          *handler.WSHandler
	// SubmitLimiter throttles submissions; nil disables it.
	SubmitLimiter *middleware.RateLimiter
}

// SetupRouter configures the portal stub routes.
func SetupRouter(tokens *auth.TokenService, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	validator.Setup()
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli(brotli.DefaultCompression))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── Student exam endpoints ────────────────────────────────────────
	student := router.Group("/api/v1/student")
	student.Use(middleware.RequireStudentJWT(tokens))
	{
		student.GET("/exams/:exam_id/paper", middleware.PrivateCache(paperMaxAge), handlers.StudentExam.GetExamPaper)
		submit := []gin.HandlerFunc{middleware.PrivateCache(0), handlers.StudentExam.SubmitExam}
		if handlers.SubmitLimiter != nil {
			submit = append([]gin.HandlerFunc{handlers.SubmitLimiter.Middleware()}, submit...)
		}
		student.POST("/exams/:exam_id/submit", submit...)
	}

	// ─── Exam stream ───────────────────────────────────────────────────
	wsGroup := router.Group("/ws/v1/student")
	wsGroup.Use(middleware.RequireStudentWSAuth(tokens))
	{
		wsGroup.GET("/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	return router
}
