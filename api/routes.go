package api

import (
	"net/http"

	"github.com/SlpAus/dream-rewards-backend/internal/bot"
	"github.com/SlpAus/dream-rewards-backend/internal/platform/config"
	"github.com/SlpAus/dream-rewards-backend/internal/platform/database"
	"github.com/SlpAus/dream-rewards-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, cfg *config.Config) {
	// 健康检查，同时报告Redis缓存的可用性
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"redis":  database.IsRedisHealthy(),
		})
	})

	// Telegram机器人webhook，密钥校验在处理器内部完成
	webhook := bot.NewHandler(cfg.Telegram)
	router.POST("/webhook", webhook.HandleUpdate)

	api := router.Group("/api")
	api.Use(RequestIDMiddleware())
	api.Use(user.IdentityMiddleware(cfg.Telegram.BotToken))
	{
		// 资格查询与注册
		api.GET("/check", user.CheckUser)
		api.POST("/register", user.Register)

		// 测验结果记录
		api.POST("/quiz", user.SaveQuizResult)

		// 解锁码消费
		api.POST("/unlock", user.UnlockReward)

		// 测验分数排行榜（Winners页面）
		api.GET("/winners", user.GetWinners)

		// 开发期辅助接口，生产部署时应当移除或加以保护
		api.GET("/dev/users", user.ListUsersHandler)
	}
}
