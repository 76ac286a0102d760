package mongodb

import (
	"context"
	"log"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IndexInfo 索引定义
type IndexInfo struct {
	Keys   bson.D
	Unique bool
	Name   string
}

// eventIndexes 业务事件集合的索引，GetRecentEvents 按推广员 + 时间倒序查询
var eventIndexes = []IndexInfo{
	{Keys: bson.D{{Key: "affiliate_id", Value: 1}, {Key: "timestamp", Value: -1}}, Name: "affiliate_timestamp_desc"},
	{Keys: bson.D{{Key: "order_id", Value: 1}}, Name: "order_id_idx"},
	{Keys: bson.D{{Key: "event_type", Value: 1}}, Name: "event_type_idx"},
	{Keys: bson.D{{Key: "timestamp", Value: -1}}, Name: "timestamp_desc"},
}

// EnsureIndexes 创建索引，已存在的跳过，返回成功处理的个数
func EnsureIndexes(ctx context.Context, coll *mongo.Collection, indexes []IndexInfo) int {
	created := 0
	for _, idx := range indexes {
		model := mongo.IndexModel{
			Keys:    idx.Keys,
			Options: options.Index().SetUnique(idx.Unique).SetName(idx.Name),
		}
		if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
			if mongo.IsDuplicateKeyError(err) ||
				strings.Contains(err.Error(), "already exists") ||
				strings.Contains(err.Error(), "IndexKeySpecsConflict") {
				log.Printf("⚠️ 索引 %s 已存在，跳过创建", idx.Name)
				created++
				continue
			}
			log.Printf("❌ 创建索引 %s 失败: %v", idx.Name, err)
			continue
		}
		created++
	}
	return created
}
