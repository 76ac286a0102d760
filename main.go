package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nasa-go-affiliate/db"
	"nasa-go-affiliate/middleware"
	"nasa-go-affiliate/mongodb"
	"nasa-go-affiliate/pkg/config"
	"nasa-go-affiliate/pkg/goroutinepool"
	"nasa-go-affiliate/pkg/jwt"
	"nasa-go-affiliate/redis"
	"nasa-go-affiliate/router"
	"nasa-go-affiliate/services/affiliate_service"

	"github.com/gin-gonic/gin"
)

// 构建时注入的变量
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "-version", "--version", "-v":
			fmt.Printf("NASA Go Affiliate\n")
			fmt.Printf("Version: %s\n", Version)
			fmt.Printf("Build Time: %s\n", BuildTime)
			fmt.Printf("Git Commit: %s\n", GitCommit)
			return
		}
	}

	// 初始化配置
	if err := config.InitConfig(); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	cfg := config.GetConfig()

	// 设置时区
	time.Local = cfg.Affiliate.Location()

	// 初始化数据库
	db.Init()

	// Redis 不可用时退化为进程内锁和本地缓存
	if err := redis.InitRedis(cfg.Redis); err != nil {
		log.Printf("⚠️ Redis 连接失败: %v", err)
	}

	// MongoDB 只用于记录业务事件和请求耗时
	if err := mongodb.InitMongoDB(cfg.MongoDB); err != nil {
		log.Printf("⚠️ MongoDB 连接失败: %v", err)
	}

	pool := goroutinepool.GetPool()
	services := affiliate_service.Init(cfg, affiliate_service.Dependencies{
		DB:    db.Dao,
		Redis: redis.GetClient(),
		Pool:  pool,
	})
	jwtManager := jwt.NewJWTManager(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Expiry)

	gin.SetMode(cfg.Server.Mode)
	app := gin.New()

	// 全局中间件
	app.Use(middleware.RequestID())
	app.Use(middleware.Recovery())
	app.Use(middleware.SecureHeaders())
	app.Use(middleware.Cors())
	app.Use(middleware.Performance())
	app.Use(middleware.RateLimit(cfg.Server.RateLimit))

	router.Init(app, services, jwtManager)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("服务器启动在端口 :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("服务器强制关闭: %v", err)
	}

	// 先停协程池，排队中的事件投递完再关闭连接
	goroutinepool.Stop()
	services.Close()
	mongodb.Close()
	if err := redis.CloseRedis(); err != nil {
		log.Printf("关闭Redis失败: %v", err)
	}

	log.Printf("服务器已安全关闭")
}
