package monitoring

import (
	"context"
	"log"
	"time"

	"nasa-go-affiliate/mongodb"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// HTTPMetric HTTP请求指标（简化版）
type HTTPMetric struct {
	Timestamp  time.Time `bson:"timestamp"`
	Method     string    `bson:"method"`
	Endpoint   string    `bson:"endpoint"`
	StatusCode int       `bson:"status_code"`
	Duration   float64   `bson:"duration"`
	ClientIP   string    `bson:"client_ip,omitempty"`
	UserID     int       `bson:"user_id,omitempty"`
}

// BusinessEvent 业务事件（佣金入账、结算、库存迁移等）
type BusinessEvent struct {
	Timestamp   time.Time              `bson:"timestamp"`
	EventType   string                 `bson:"event_type"`
	AffiliateID int                    `bson:"affiliate_id,omitempty"`
	OrderID     int                    `bson:"order_id,omitempty"`
	Payload     map[string]interface{} `bson:"payload,omitempty"`
}

// SaveHTTPMetric 保存HTTP指标到MongoDB
func SaveHTTPMetric(c *gin.Context, duration float64) {
	collection := mongodb.GetCollection()
	if collection == nil {
		return
	}

	metric := HTTPMetric{
		Timestamp:  time.Now(),
		Method:     c.Request.Method,
		Endpoint:   c.FullPath(),
		StatusCode: c.Writer.Status(),
		Duration:   duration,
		ClientIP:   c.ClientIP(),
		UserID:     c.GetInt("uid"),
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("保存HTTP指标失败: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := collection.InsertOne(ctx, metric); err != nil {
			log.Printf("保存HTTP指标到MongoDB失败: %v", err)
		}
	}()
}

// SaveBusinessEvent 同步写入业务事件，调用方负责放到后台执行
func SaveBusinessEvent(ctx context.Context, event BusinessEvent) error {
	collection := mongodb.GetCollection()
	if collection == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_, err := collection.InsertOne(ctx, event)
	return err
}

// GetRecentEvents 查询推广员最近的业务事件
func GetRecentEvents(ctx context.Context, affiliateID int, limit int64) ([]BusinessEvent, error) {
	collection := mongodb.GetCollection()
	if collection == nil {
		return []BusinessEvent{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := collection.Find(ctx, bson.M{"affiliate_id": affiliateID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := make([]BusinessEvent, 0)
	if err = cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
