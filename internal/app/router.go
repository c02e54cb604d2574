package app

import (
	"academy_backend/docs"
	"academy_backend/internal/config"
	"academy_backend/internal/middleware"
	"academy_backend/internal/model"
	"academy_backend/pkg/monitoring"
	"academy_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// 每个用户每分钟的心跳上限，客户端正常节奏为一分钟一次
const pingsPerMinute = 6

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		a.registerLearnerRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.RoleMiddleware(model.RoleAdmin))
	{
		admin.POST("/weekly-tasks/assign", c.admin.AssignWeeklyTasks)
		admin.POST("/xp/adjust", c.admin.AdjustXP)
		admin.POST("/catalog/seed", c.admin.SeedCatalog)
	}
}

func (a *App) registerLearnerRoutes(rg *gin.RouterGroup, c *controllers) {
	// 活跃度
	rg.POST("/engagement/ping", security.KeyedRateLimiter(pingsPerMinute, time.Minute, middleware.UserKey), c.engagement.Ping)
	rg.GET("/engagement/weekly", c.engagement.Weekly)

	// 学习行为事件
	rg.POST("/activity/events", c.activity.Publish)

	// 徽章
	rg.GET("/badges", c.badge.List)
	rg.POST("/badges/evaluate", c.badge.Evaluate)

	// 每周任务
	rg.GET("/weekly-tasks", c.weeklyTask.List)
	rg.POST("/weekly-tasks/evaluate", c.weeklyTask.Evaluate)

	// 仪表盘与经验值
	rg.GET("/dashboard/overview", c.dashboard.Overview)
	rg.GET("/xp", c.xp.Summary)
	rg.GET("/xp/leaderboard", c.xp.Leaderboard)
}
