package handlers

import (
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/services"
	"github.com/SAP-F-2025/content-import-service/internal/utils"
	"github.com/SAP-F-2025/content-import-service/internal/validator"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	CORSOrigins []string
	MaxBytes    int64
	// ChunkSize is the processor default, used to size previews
	ChunkSize int
	// Auth is nil when callers are identified by the X-User-ID header
	Auth TokenParser
}

type HandlerManager struct {
	importHandler   *ImportHandler
	categoryHandler *CategoryHandler
	logger          utils.Logger
	config          RouterConfig
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	config RouterConfig,
) *HandlerManager {
	return &HandlerManager{
		importHandler:   NewImportHandler(serviceManager, validator, logger, config.MaxBytes, config.ChunkSize),
		categoryHandler: NewCategoryHandler(serviceManager, validator, logger, config.MaxBytes),
		logger:          logger,
		config:          config,
	}
}

// NewRouter builds a gin engine with the middleware stack and every route
func (hm *HandlerManager) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		utils.RequestID(),
		utils.ContextLogger(hm.logger),
		utils.LoggerMiddleware(hm.logger),
		cors.New(cors.Config{
			AllowOrigins:     hm.config.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", utils.RequestIDHeader, userIDHeader},
			ExposeHeaders:    []string{"Content-Disposition", utils.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)
	hm.SetupRoutes(router)
	return router
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(hm.config.Auth))
	{
		imports := v1.Group("/imports")
		{
			imports.POST("/validate", hm.importHandler.ValidateImport)
			imports.POST("", hm.importHandler.StartImport)
			imports.GET("", hm.importHandler.ListImports)
			imports.GET("/:id", hm.importHandler.GetImport)
			imports.POST("/:id/pause", hm.importHandler.PauseImport)
			imports.POST("/:id/resume", hm.importHandler.ResumeImport)
			imports.POST("/:id/cancel", hm.importHandler.CancelImport)
			imports.GET("/:id/report", hm.importHandler.GetReport)
			imports.GET("/:id/rollback", hm.importHandler.CheckRollback)
			imports.POST("/:id/rollback", hm.importHandler.RollbackImport)
		}

		categories := v1.Group("/categories")
		{
			categories.GET("", hm.categoryHandler.ListCategories)
			categories.POST("", hm.categoryHandler.CreateCategory)
			categories.POST("/analyze", hm.categoryHandler.AnalyzeCategories)
			categories.POST("/mappings", hm.categoryHandler.ApplyMapping)
			categories.GET("/mappings/stats", hm.categoryHandler.GetMappingStatistics)
		}
	}
}
