package health

import (
	"runtime"
	"time"

	"nasa-go-affiliate/db"
	"nasa-go-affiliate/mongodb"
	"nasa-go-affiliate/pkg/goroutinepool"
	"nasa-go-affiliate/pkg/response"
	"nasa-go-affiliate/redis"

	"github.com/gin-gonic/gin"
)

const serviceName = "nasa-go-affiliate"

// startTime 应用启动时间
var startTime = time.Now()

// HealthController 健康检查控制器
type HealthController struct{}

func NewHealthController() *HealthController {
	return &HealthController{}
}

// CheckHealth 存活检查 + 协程池状态
func (h *HealthController) CheckHealth(c *gin.Context) {
	response.Success(c, gin.H{
		"status":     "ok",
		"service":    serviceName,
		"timestamp":  time.Now().Unix(),
		"uptime":     time.Since(startTime).String(),
		"goroutines": goroutinepool.GetPool().GetStats(),
	})
}

// CheckReadiness 数据库必须可用，Redis 和 MongoDB 只报告状态
func (h *HealthController) CheckReadiness(c *gin.Context) {
	if db.Dao == nil {
		response.Error(c, response.ERROR, "database not initialized")
		return
	}
	sqlDB, err := db.Dao.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		response.Error(c, response.ERROR, "database: "+err.Error())
		return
	}

	response.Success(c, gin.H{
		"status":   "ready",
		"database": db.GetDBStats(),
		"redis":    redis.IsConnected(),
		"mongodb":  mongodb.GetCollection() != nil,
		"runtime": gin.H{
			"go_version":    runtime.Version(),
			"num_goroutine": runtime.NumGoroutine(),
		},
	})
}
