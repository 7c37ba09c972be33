package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/plugtrack/backend/internal/api/controllers"
	"github.com/plugtrack/backend/internal/api/middleware"
	"github.com/plugtrack/backend/internal/config"
	"github.com/plugtrack/backend/internal/db"
	"github.com/plugtrack/backend/internal/services"
	"github.com/plugtrack/backend/internal/utils"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Router manages the API routes and controllers
type Router struct {
	engine            *gin.Engine
	logger            *utils.Logger
	config            *config.Config
	authMiddleware    *middleware.AuthMiddleware
	historyService    *services.HistoryService
	db                *db.Database
	apiV1             *gin.RouterGroup
	historyController *controllers.HistoryController
	cacheController   *controllers.CacheController
}

// NewRouter creates a new Router instance
func NewRouter(
	config *config.Config,
	logger *utils.Logger,
	db *db.Database,
	historyService *services.HistoryService,
) *Router {
	if config.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := utils.RegisterValidators(); err != nil {
		logger.Error("Failed to register custom validators", zap.Error(err))
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.LoggingMiddleware(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type", "Origin", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	engine.Use(cors.New(corsConfig))

	return &Router{
		engine:         engine,
		logger:         logger.Named("router"),
		config:         config,
		authMiddleware: middleware.NewAuthMiddleware(&config.JWT),
		historyService: historyService,
		db:             db,
	}
}

// SetupRoutes configures all API routes
func (r *Router) SetupRoutes() {
	r.engine.GET("/health", r.health)

	r.apiV1 = r.engine.Group("/api/v1")

	r.historyController = controllers.NewHistoryController(r.historyService, r.logger)
	r.cacheController = controllers.NewCacheController(r.historyService, r.logger)

	authorizedRoutes := r.apiV1.Group("")
	authorizedRoutes.Use(r.authMiddleware.RequireAuth())
	r.historyController.RegisterRoutes(authorizedRoutes)

	adminRoutes := authorizedRoutes.Group("/admin")
	adminRoutes.Use(r.authMiddleware.RequireAdmin())
	r.cacheController.RegisterRoutes(adminRoutes)

	if !r.config.Server.IsProduction() {
		r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.logger.Info("API routes setup completed")
}

// health reports whether the database is reachable
func (r *Router) health(c *gin.Context) {
	if r.db != nil {
		if err := r.db.VerifyConnection(); err != nil {
			r.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
