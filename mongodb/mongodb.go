package mongodb

import (
	"context"
	"log"
	"sync"
	"time"

	"nasa-go-affiliate/pkg/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	mu         sync.RWMutex
	client     *mongo.Client
	collection *mongo.Collection
)

// InitMongoDB 连接业务事件库，URI 为空时跳过，事件只写日志
func InitMongoDB(cfg config.MongoDBConfig) error {
	if cfg.URI == "" {
		log.Printf("未配置 MongoDB，业务事件不落库")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return err
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return err
	}

	coll := c.Database(cfg.Database).Collection(cfg.Collection)
	n := EnsureIndexes(ctx, coll, eventIndexes)

	mu.Lock()
	client = c
	collection = coll
	mu.Unlock()

	log.Printf("MongoDB连接已初始化: %s.%s，索引 %d/%d", cfg.Database, cfg.Collection, n, len(eventIndexes))
	return nil
}

// GetCollection 业务事件集合，未初始化时返回 nil
func GetCollection() *mongo.Collection {
	mu.RLock()
	defer mu.RUnlock()
	return collection
}

// Close 断开连接
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Printf("关闭MongoDB连接失败: %v", err)
	}
	client = nil
	collection = nil
}
