package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/pathxpert/server/internal/app"
	iauth "github.com/pathxpert/server/internal/auth"
	"github.com/pathxpert/server/internal/handlers"
	"github.com/pathxpert/server/internal/middleware"
	"github.com/pathxpert/server/internal/models"
	"github.com/pathxpert/server/internal/otp"
	"github.com/pathxpert/server/internal/realtime"
	"github.com/pathxpert/server/internal/services"
)

// Services bundles the constructed service layer handed to the router.
type Services struct {
	Users   *services.UserService
	Reports *services.ReportService
	Traffic *services.TrafficService
	Reset   *services.PasswordResetService
	OTP     *otp.Service
	JWT     *iauth.JWTService
	Authn   *iauth.Authenticator
	Hub     *realtime.Hub
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, cfg *app.Config, svc Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if svc.Users == nil || svc.Reports == nil || svc.Traffic == nil || svc.Reset == nil ||
		svc.OTP == nil || svc.JWT == nil || svc.Authn == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	// Basic rate limiting: 100 requests/minute per IP+path
	r.Use(middleware.RateLimit(100, time.Minute))

	r.NoRoute(middleware.NotFoundHandler)

	authHandler := handlers.NewAuthHandler(svc.Users, svc.JWT, svc.OTP, svc.Reset)
	reportHandler := handlers.NewReportHandler(svc.Reports)
	userHandler := handlers.NewUserHandler(svc.Users, svc.Reports)
	trafficHandler := handlers.NewTrafficHandler(svc.Traffic)

	// Monitoring endpoints (public)
	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.NewHealthHandler(db).Check)
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Public auth routes; tighter limits on the credential endpoints.
	authLimit := middleware.RateLimit(10, time.Minute)
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authLimit, authHandler.Register)
		auth.POST("/login", authLimit, authHandler.Login)
		auth.POST("/send-otp", authLimit, authHandler.SendOTP)
		auth.POST("/verify-otp", authLimit, authHandler.VerifyOTP)
		auth.POST("/forgot-password", authLimit, authHandler.ForgotPassword)
		auth.POST("/reset-password", authLimit, authHandler.ResetPassword)
		auth.POST("/reset-password/:token", authLimit, authHandler.ResetPasswordWithToken)
	}

	// Public lookups
	r.GET("/api/reports/options", reportHandler.Options)
	r.POST("/api/traffic", trafficHandler.Nearby)
	r.GET("/api/traffic", trafficHandler.NearbyQuery)

	// Protected routes
	requireAuth := middleware.Auth(svc.Authn)
	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/logout", authHandler.Logout)

	reports := api.Group("/reports")
	{
		reports.POST("", reportHandler.Create)
		reports.GET("", reportHandler.List)
		reports.GET("/:id", reportHandler.Get)
		reports.PUT("/:id", reportHandler.Update)
		reports.DELETE("/:id", reportHandler.Delete)
		reports.PATCH("/:id/status", middleware.RequireRole(models.RoleAdmin), reportHandler.UpdateStatus)
	}

	users := api.Group("/users")
	{
		users.GET("/profile", userHandler.Profile)
		users.PUT("/profile", userHandler.UpdateProfile)
		users.GET("/settings", userHandler.Settings)
		users.PUT("/settings", userHandler.UpdateSettings)
		users.GET("/fav-routes", userHandler.FavRoutes)
		users.PUT("/fav-routes", userHandler.UpdateFavRoutes)
		users.GET("/history", userHandler.History)
		users.GET("/stats", userHandler.Stats)
		users.GET("", middleware.RequireRole(models.RoleAdmin), userHandler.List)
	}

	signals := api.Group("/traffic/signals", middleware.RequireRole(models.RoleAdmin))
	{
		signals.GET("", trafficHandler.ListSignals)
		signals.POST("", trafficHandler.CreateSignal)
		signals.PUT("/:id", trafficHandler.UpdateSignal)
		signals.DELETE("/:id", trafficHandler.DeleteSignal)
	}

	if svc.Hub != nil {
		realtimeHandler := handlers.NewRealtimeHandler(svc.Hub)
		api.GET("/realtime", realtimeHandler.Feed)
	}

	return r, nil
}
