package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aptiva/aptiva-backend/internal/config"
	"github.com/aptiva/aptiva-backend/internal/handler"
	"github.com/aptiva/aptiva-backend/internal/middleware"
	"github.com/aptiva/aptiva-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Question *handler.QuestionHandler
	Test     *handler.TestHandler
	Portal   *handler.PortalHandler
	Audio    *handler.AudioHandler
	WS       *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Serve pre-generated audio assets statically with aggressive caching
	// (1 year); the files are content-addressed and never change.
	audioGroup := router.Group("/audio")
	audioGroup.Use(middleware.CacheControl(31536000))
	{
		audioGroup.Static("/", cfg.AudioDir)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for submission endpoints (30 requests per minute per IP).
	submitLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Admin Group ────────────────────────────────────────────────
	// Authentication/RBAC is terminated by the platform gateway upstream.
	adminAPI := router.Group("/api/v1/admin")
	{
		// Question bank
		adminAPI.GET("/questions", handlers.Question.ListQuestions)
		adminAPI.GET("/questions/usage", handlers.Question.QuestionUsage)
		adminAPI.GET("/questions/:question_id", handlers.Question.GetQuestion)
		adminAPI.POST("/questions", handlers.Question.AddQuestion)
		adminAPI.POST("/questions/import", handlers.Question.ImportQuestions)

		// Dictation audio assets
		adminAPI.POST("/audio", handlers.Audio.UploadAudio)

		// Test lifecycle
		adminAPI.GET("/tests", handlers.Test.ListTests)
		adminAPI.POST("/tests", handlers.Test.CreateTest)
		adminAPI.GET("/tests/:test_id", handlers.Test.GetTest)
		adminAPI.POST("/tests/:test_id/publish", handlers.Test.PublishTest)
		adminAPI.POST("/tests/:test_id/allocate", handlers.Test.AllocateTest)
		adminAPI.GET("/tests/:test_id/results", handlers.Test.TestResults)
	}

	// ─── 2. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/students/:student_id")
	{
		studentAPI.POST("/tests/:test_id/start", handlers.Portal.StartAttempt)
		studentAPI.PUT("/tests/:test_id/answers/:position", handlers.Portal.AutosaveAnswer)
		studentAPI.POST("/tests/:test_id/submit", submitLimiter.Middleware(), handlers.Portal.SubmitAttempt)
		studentAPI.GET("/tests/:test_id/result", handlers.Portal.AttemptResult)
	}

	// ─── 3. WebSocket Group (Proctor Monitor) ──────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/admin/tests/:test_id/monitor", handlers.WS.MonitorStream)
	}

	return router
}
