package app

import (
	"collabhub_backend/internal/config"
	"collabhub_backend/internal/middleware"
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/monitoring"
	"collabhub_backend/pkg/security"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// 每个用户每分钟最多提交次数，评测开销大
const submitsPerMinute = 10

func userKey(c *gin.Context) string {
	user := util.GetUserFromContext(c)
	if user == nil {
		return ""
	}
	return strconv.FormatUint(uint64(user.UserID), 10)
}

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerUserRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.RoleAdmin))
	{
		a.registerAdminRoutes(admin, c)
	}
}

func (a *App) registerUserRoutes(rg *gin.RouterGroup, c *controllers) {
	// 推荐
	rg.GET("/recommendations", c.recommendation.GetRecommendations)
	rg.POST("/recommendations/:id/feedback", c.recommendation.RecordFeedback)
	rg.POST("/discovery", c.recommendation.RecordDiscovery)

	// 技能画像
	rg.GET("/profile/skills", c.profile.GetSkills)
	rg.PUT("/profile/skills", c.profile.UpdateSkills)

	// 项目需求与挑战（owner）
	rg.PUT("/projects/:id/requirements", c.profile.UpdateProjectRequirements)
	rg.GET("/projects/:id/challenges", c.challenge.ListChallenges)
	rg.POST("/projects/:id/challenges", c.challenge.CreateChallenge)
	rg.PUT("/projects/:id/challenges/:challengeId", c.challenge.UpdateChallenge)

	// 挑战准入
	rg.GET("/projects/:id/eligibility", c.challenge.CanAttempt)
	rg.POST("/projects/:id/challenge", c.challenge.Issue)

	// 尝试
	attempts := rg.Group("/attempts")
	{
		attempts.GET("/:id", c.attempt.GetAttempt)
		attempts.POST("/:id/start", c.attempt.StartAttempt)
		attempts.PUT("/:id/draft", c.attempt.SaveDraft)
		attempts.POST("/:id/submit", security.KeyedRateLimiter(submitsPerMinute, time.Minute, userKey), c.attempt.SubmitAttempt)
		attempts.POST("/:id/abandon", c.attempt.AbandonAttempt)
	}
}

func (a *App) registerAdminRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/analytics/effectiveness", c.analytics.GetEffectiveness)
	rg.GET("/analytics/suggestions", c.analytics.GetWeightSuggestions)

	rg.GET("/algorithm-config", c.analytics.GetAlgorithmConfig)
	rg.GET("/algorithm-config/versions", c.analytics.ListAlgorithmConfigs)
	rg.POST("/algorithm-config", c.analytics.ApplyAlgorithmConfig)

	rg.POST("/attempts/:id/admission", c.analytics.RerunAdmission)
}
