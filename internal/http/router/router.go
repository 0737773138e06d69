// Package router assembles the HTTP surface: channel webhooks, the admin
// API and the health endpoints.
package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"atende_backend/internal/config"
	"atende_backend/internal/dashboard"
	"atende_backend/internal/http/middleware"
	"atende_backend/internal/webhook"
	"atende_backend/platform/logger"
)

// App holds the initialized handlers the router mounts. It is populated by
// the composition root in main.go.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	WhatsApp  *webhook.WhatsAppHandler
	Instagram *webhook.InstagramHandler
	Dashboard *dashboard.Handler
}

func New(app App) *gin.Engine {
	if app.Config.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(app.Log))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  app.Config.CORSOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-API-Key"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))

	engine.GET("/status", app.Dashboard.Status)
	engine.GET("/api/health", app.Dashboard.Health)

	hookLimiter := middleware.NewIPRateLimiter(rate.Limit(20), 60, app.Log)
	hooks := engine.Group("/webhook")
	hooks.Use(hookLimiter.RateLimit())
	{
		hooks.POST("/whatsapp", app.WhatsApp.Handle)
		hooks.GET("/instagram", app.Instagram.Verify)
		hooks.POST("/instagram", app.Instagram.Handle)
	}

	adminLimiter := middleware.NewIPRateLimiter(rate.Limit(5), 20, app.Log)
	admin := engine.Group("/api")
	admin.Use(adminLimiter.RateLimit())
	admin.Use(middleware.APIKeyAuth(app.Config.AdminAPIKey, app.Log))
	{
		admin.GET("/stats", app.Dashboard.Stats)
		admin.GET("/leads", app.Dashboard.ListLeads)
		admin.GET("/leads/export", app.Dashboard.ExportLeads)
		admin.GET("/conversations", app.Dashboard.ListConversations)
		admin.GET("/conversations/:id", app.Dashboard.GetConversation)
	}

	return engine
}
