package db

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"time"

	"nasa-go-affiliate/model/affiliate_model"
	"nasa-go-affiliate/pkg/config"
	"nasa-go-affiliate/pkg/monitoring"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var Dao *gorm.DB

func Init() {
	cfg := config.GetConfig()

	dsn := cfg.Database.DSN
	if dsn == "" {
		log.Fatalf("数据库连接字符串未配置，请设置环境变量 Mysql 或配置文件中的 database.dsn")
	}

	// 创建日志文件夹
	logDir := "gormlog"
	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	// 日志文件名包含日期
	logFile := filepath.Join(logDir, time.Now().Format("2006-01-02")+".log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}

	dbLogger := logger.New(
		log.New(file, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			Colorful:                  false,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      false,
			LogLevel:                  parseLogLevel(cfg.Database.LogLevel),
		},
	)

	openDb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                                   dbLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		log.Fatalf("db connection error is %s", err.Error())
	}

	dbCon, err := openDb.DB()
	if err != nil {
		log.Fatalf("openDb.DB error is  %s", err.Error())
	}

	dbCon.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbCon.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbCon.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	dbCon.SetConnMaxIdleTime(30 * time.Minute)

	log.Printf("数据库连接池配置 - MaxOpen: %d, MaxIdle: %d, MaxLifetime: %v",
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)

	if cfg.Database.AutoMigrate {
		if err := Migrate(openDb); err != nil {
			log.Fatalf("数据表迁移失败: %v", err)
		}
	}

	Dao = openDb

	go startDBMonitoring(dbCon)
}

// Migrate 创建/更新推广业务相关的数据表
func Migrate(d *gorm.DB) error {
	return d.AutoMigrate(
		&affiliate_model.Affiliate{},
		&affiliate_model.CommissionEntry{},
		&affiliate_model.CommissionPayout{},
		&affiliate_model.Order{},
		&affiliate_model.OrderItem{},
		&affiliate_model.OrderStatusHistory{},
		&affiliate_model.AffiliateOrder{},
		&affiliate_model.Product{},
		&affiliate_model.SellerInventory{},
		&affiliate_model.ShareLog{},
	)
}

func parseLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	default:
		return logger.Info
	}
}

// 启动数据库连接池监控
func startDBMonitoring(dbCon *sql.DB) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := dbCon.Stats()

		// 只在连接使用异常时记录日志
		poolUsageRate := float64(stats.OpenConnections) / float64(stats.MaxOpenConnections)
		if poolUsageRate > 0.7 || stats.InUse > 10 || stats.WaitCount > 0 {
			log.Printf("数据库连接池监控 - 打开: %d/%d (%.1f%%), 使用中: %d, 空闲: %d, 等待: %d",
				stats.OpenConnections, stats.MaxOpenConnections, poolUsageRate*100,
				stats.InUse, stats.Idle, stats.WaitCount)
		}

		monitoring.UpdateDBConnections(stats.InUse)
	}
}

// GetDBStats 连接池统计，健康检查使用
func GetDBStats() map[string]interface{} {
	if Dao == nil {
		return map[string]interface{}{"status": "not_initialized"}
	}
	sqlDB, err := Dao.DB()
	if err != nil {
		return map[string]interface{}{"status": "error", "error": err.Error()}
	}
	stats := sqlDB.Stats()
	return map[string]interface{}{
		"status":           "connected",
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
	}
}
