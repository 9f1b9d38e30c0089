package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/config"
	"github.com/stemsi/testlink-backend/internal/handler"
	"github.com/stemsi/testlink-backend/internal/middleware"
	"github.com/stemsi/testlink-backend/internal/response"
)

// templateMaxAge is how long clients may cache the question template.
const templateMaxAge = 24 * 60 * 60

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Test     *handler.TestHandler
	Question *handler.QuestionHandler
	Attempt  *handler.AttemptHandler
	WS       *handler.WSHandler
	System   *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tokens middleware.TokenValidator,
	counter middleware.Counter,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition", "X-RateLimit-Remaining", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware(log))

	// Workbook downloads are zip containers already.
	skipExport := middleware.SkipPathSuffix("/results/export")
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skipper: func(c *gin.Context) bool {
			return c.Query("format") == "xlsx" || skipExport(c)
		},
	}))

	router.GET("/health", handlers.System.Health)

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	uploadLimiter := middleware.NewRateLimiter(counter, "upload", cfg.RateLimitPerMinute, time.Minute, log)
	startLimiter := middleware.NewRateLimiter(counter, "start", cfg.RateLimitPerMinute, time.Minute, log)

	// ─── 1. Author Group (no auth) ─────────────────────────────────────
	api := router.Group("/api/v1")
	{
		api.GET("/tests", handlers.Test.ListTests)
		api.POST("/tests", handlers.Test.CreateTest)
		api.GET("/tests/:id", handlers.Test.GetTest)
		api.PUT("/tests/:id", handlers.Test.UpdateTest)
		api.DELETE("/tests/:id", handlers.Test.DeleteTest)
		api.POST("/tests/:id/duplicate", handlers.Test.DuplicateTest)
		api.GET("/tests/:id/stats", handlers.Test.GetStats)
		api.GET("/tests/:id/with-questions", handlers.Test.GetWithQuestions)
		api.GET("/tests/:id/attempts", handlers.Test.ListAttempts)
		api.GET("/tests/:id/results/export", handlers.Test.ExportResults)

		api.GET("/tests/:id/questions", handlers.Question.ListQuestions)
		api.POST("/tests/:id/questions", handlers.Question.BulkCreate)
		api.POST("/tests/:id/questions/upload", uploadLimiter.Middleware(), handlers.Question.Upload)
		api.GET("/questions/template", middleware.CacheControl(templateMaxAge), handlers.Question.Template)

		api.GET("/attempts/:id", handlers.Attempt.GetAttempt)
	}

	// ─── 2. Share-link Group (public) ──────────────────────────────────
	publicAPI := router.Group("/api/v1/public")
	{
		publicAPI.GET("/tests/:id", handlers.Attempt.GetPaper)
		publicAPI.POST("/tests/:id/attempts", startLimiter.Middleware(), handlers.Attempt.StartAttempt)
	}

	// ─── 3. Attempt Group (attempt token) ──────────────────────────────
	attemptAPI := router.Group("/api/v1/attempts/:id")
	attemptAPI.Use(middleware.RequireAttemptToken(tokens), middleware.NoStore())
	{
		attemptAPI.GET("/state", handlers.Attempt.GetState)
		attemptAPI.PUT("/answers/:question_id", handlers.Attempt.Answer)
		attemptAPI.POST("/navigate", handlers.Attempt.Navigate)
		attemptAPI.POST("/flags/:question_id", handlers.Attempt.ToggleFlag)
		attemptAPI.POST("/submit", handlers.Attempt.Submit)
		attemptAPI.GET("/review", handlers.Attempt.Review)
	}

	// ─── 4. WebSocket Group (attempt token via ?token=) ────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAttemptToken(tokens))
	{
		ws.GET("/attempts/:id/stream", handlers.WS.AttemptStream)
	}

	return router
}
