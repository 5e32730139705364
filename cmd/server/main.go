package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SlpAus/dream-rewards-backend/api"
	"github.com/SlpAus/dream-rewards-backend/internal/platform/config"
	"github.com/SlpAus/dream-rewards-backend/internal/platform/database"
	"github.com/SlpAus/dream-rewards-backend/internal/platform/health"
	"github.com/SlpAus/dream-rewards-backend/internal/platform/shutdown"
	"github.com/SlpAus/dream-rewards-backend/internal/platform/startup"
	"github.com/SlpAus/dream-rewards-backend/pkg/lifecycle"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("无法加载配置: %v", err))
	}
	gin.SetMode(cfg.Server.Mode)

	// 2. 初始化权威存储和缓存
	database.InitDB(cfg.Database.Sqlite)
	database.InitRedis(cfg.Database.Redis)

	// 3. 阻塞式获取初始Run ID
	health.InitializeRunID()

	// 4. 执行应用首次启动初始化流程
	if err := startup.InitializeApplication(); err != nil {
		panic(fmt.Sprintf("应用初始化失败，无法启动: %v", err))
	}

	// 5. 阻塞式执行一次启动后健康检查
	fmt.Println("正在执行启动后健康检查...")
	health.PerformCheck()

	// 6. 创建生命周期管理器，异步启动后台的持续健康检查器
	gracefulMgr := lifecycle.NewManager()
	forcefulMgr := lifecycle.NewManager()

	healthHandle, err := gracefulMgr.NewServiceHandle("redis-health-checker")
	if err != nil {
		panic(fmt.Sprintf("无法注册健康检查器: %v", err))
	}
	go health.StartRedisHealthCheck(healthHandle)

	// 7. 配置HTTP服务器
	r := gin.Default()

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Telegram-Init-Data"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.Server.Cors.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.Cors.AllowedOrigins
	} else {
		// 未配置来源时放开跨域，与客户端本地联调
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	r.Use(cors.New(corsConfig))

	api.SetupRoutes(r, cfg)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	go func() {
		fmt.Printf("服务器已准备就绪，开始监听 %s\n", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic("Failed to start server: " + err.Error())
		}
	}()

	// 8. 阻塞等待停机信号，执行两阶段优雅停机
	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr)
	coordinator.ListenForSignalsAndShutdown(server)
}
