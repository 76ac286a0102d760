package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// AppConfig 全局配置实例
var AppConfig *Config

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	MongoDB   MongoDBConfig   `yaml:"mongodb"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Affiliate AffiliateConfig `yaml:"affiliate"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port         string        `yaml:"port"`
	Mode         string        `yaml:"mode"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RateLimit    int           `yaml:"rate_limit"` // 每分钟请求数
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LogLevel        string        `yaml:"log_level"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	SigningKey string        `yaml:"signing_key"`
	Expiry     time.Duration `yaml:"expiry"`
	Issuer     string        `yaml:"issuer"`
}

// MongoDBConfig MongoDB配置，URI 为空时不记录业务事件
type MongoDBConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// AMQPConfig 消息队列配置，URL 为空时事件只写日志
type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// AffiliateConfig 推广业务配置
type AffiliateConfig struct {
	ShareDailyLimit int           `yaml:"share_daily_limit"`
	ShareMinGap     time.Duration `yaml:"share_min_gap"`
	TimeZone        string        `yaml:"time_zone"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
	MoneyScale      int32         `yaml:"money_scale"` // 金额保留的小数位
}

// InitConfig 初始化配置
func InitConfig() error {
	if err := loadEnv(); err != nil {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	config := &Config{}
	setDefaults(config)

	if err := loadFromFile(config); err != nil {
		log.Printf("Warning: failed to load config file: %v", err)
	}

	if err := loadFromEnv(config); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	AppConfig = config
	return nil
}

// loadEnv 加载环境变量文件
func loadEnv() error {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	envFiles := []string{
		".env",
		fmt.Sprintf(".env.%s", env),
		".env.local",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err != nil {
				return err
			}
		}
	}

	return nil
}

// Default 返回只包含默认值的配置，测试和工具脚本使用
func Default() *Config {
	config := &Config{}
	setDefaults(config)
	return config
}

// setDefaults 设置默认值
func setDefaults(config *Config) {
	config.Server.Port = "8801"
	config.Server.Mode = "debug"
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 30 * time.Second
	config.Server.RateLimit = 1000

	config.Database.MaxIdleConns = 10
	config.Database.MaxOpenConns = 100
	config.Database.ConnMaxLifetime = time.Hour
	config.Database.LogLevel = "info"
	config.Database.AutoMigrate = true

	config.Redis.Addr = "localhost:6379"
	config.Redis.DB = 0
	config.Redis.PoolSize = 10
	config.Redis.DialTimeout = 5 * time.Second
	config.Redis.ReadTimeout = 3 * time.Second
	config.Redis.WriteTimeout = 3 * time.Second

	config.JWT.Expiry = 24 * time.Hour
	config.JWT.Issuer = "nasa-go-affiliate"

	config.MongoDB.Database = "affiliate_log_db"
	config.MongoDB.Collection = "business_events"

	config.AMQP.Queue = "affiliate_events"

	config.Affiliate.ShareDailyLimit = 4
	config.Affiliate.ShareMinGap = 2 * time.Hour
	config.Affiliate.TimeZone = "Asia/Shanghai"
	config.Affiliate.LockTTL = 10 * time.Second
	config.Affiliate.MoneyScale = 2
}

// loadFromFile 从配置文件加载
func loadFromFile(config *Config) error {
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config/config.yaml"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// loadFromEnv 从环境变量加载
func loadFromEnv(config *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		config.Server.Mode = mode
	}

	// Database配置 - 兼容原有的环境变量名
	if dsn := os.Getenv("Mysql"); dsn != "" {
		config.Database.DSN = dsn
	} else if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if envMaxOpen := os.Getenv("DB_MAX_OPEN_CONNS"); envMaxOpen != "" {
		parsed, err := strconv.Atoi(envMaxOpen)
		if err != nil {
			return fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
		}
		config.Database.MaxOpenConns = parsed
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		config.Redis.DB = db
	}

	if signingKey := os.Getenv("JWT_SIGNING_KEY"); signingKey != "" {
		config.JWT.SigningKey = signingKey
	}

	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		config.MongoDB.URI = uri
	}
	if url := os.Getenv("AMQP_URL"); url != "" {
		config.AMQP.URL = url
	}

	if limit := os.Getenv("SHARE_DAILY_LIMIT"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil {
			return fmt.Errorf("invalid SHARE_DAILY_LIMIT: %w", err)
		}
		config.Affiliate.ShareDailyLimit = parsed
	}
	if gap := os.Getenv("SHARE_MIN_GAP"); gap != "" {
		parsed, err := time.ParseDuration(gap)
		if err != nil {
			return fmt.Errorf("invalid SHARE_MIN_GAP: %w", err)
		}
		config.Affiliate.ShareMinGap = parsed
	}
	if tz := os.Getenv("TZ_NAME"); tz != "" {
		config.Affiliate.TimeZone = tz
	}

	return nil
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	if config.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	if config.JWT.SigningKey == "" {
		return fmt.Errorf("JWT signing key is required")
	}

	if _, err := strconv.Atoi(strings.TrimPrefix(config.Server.Port, ":")); err != nil {
		return fmt.Errorf("invalid server port: %s", config.Server.Port)
	}

	validModes := []string{"debug", "release", "test"}
	modeValid := false
	for _, mode := range validModes {
		if config.Server.Mode == mode {
			modeValid = true
			break
		}
	}
	if !modeValid {
		return fmt.Errorf("invalid server mode: %s", config.Server.Mode)
	}

	if config.Affiliate.ShareDailyLimit <= 0 {
		return fmt.Errorf("share daily limit must be positive")
	}
	if config.Affiliate.ShareMinGap < 0 {
		return fmt.Errorf("share min gap must not be negative")
	}
	if _, err := time.LoadLocation(config.Affiliate.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone %q: %w", config.Affiliate.TimeZone, err)
	}

	return nil
}

// GetConfig 获取配置实例
func GetConfig() *Config {
	if AppConfig == nil {
		log.Fatal("config not initialized, call InitConfig() first")
	}
	return AppConfig
}

// Location 返回统计“自然日”使用的时区
func (c AffiliateConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// IsProduction 判断是否为生产环境
func IsProduction() bool {
	return AppConfig != nil && AppConfig.Server.Mode == "release"
}
