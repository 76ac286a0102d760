package affiliate_service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"nasa-go-affiliate/pkg/goroutinepool"
	"nasa-go-affiliate/pkg/monitoring"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// 事件类型
const (
	EventShareRecorded      = "affiliate.share.recorded"
	EventOrderCreated       = "affiliate.order.created"
	EventCommissionCredited = "affiliate.commission.credited"
	EventCommissionPaid     = "affiliate.commission.paid"
	EventInventoryChanged   = "inventory.status.changed"
	EventOrderStatusChanged = "order.status.changed"
	EventAffiliateStatus    = "affiliate.status.changed"
)

// 资金和库存事件优先投递，分享记录量大、最不紧急
var eventPriorities = map[string]goroutinepool.Priority{
	EventCommissionCredited: goroutinepool.PriorityHigh,
	EventCommissionPaid:     goroutinepool.PriorityHigh,
	EventInventoryChanged:   goroutinepool.PriorityHigh,
	EventOrderCreated:       goroutinepool.PriorityNormal,
	EventOrderStatusChanged: goroutinepool.PriorityNormal,
	EventAffiliateStatus:    goroutinepool.PriorityNormal,
	EventShareRecorded:      goroutinepool.PriorityLow,
}

func eventPriority(eventType string) goroutinepool.Priority {
	if p, ok := eventPriorities[eventType]; ok {
		return p
	}
	return goroutinepool.PriorityNormal
}

// Event 业务事件，投递失败不影响账本
type Event struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	AffiliateID int                    `json:"affiliate_id,omitempty"`
	OrderID     int                    `json:"order_id,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// EventPublisher 事件投递
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// AMQPPublisher 投递到 RabbitMQ 队列
type AMQPPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

// NewAMQPPublisher 连接并声明持久化队列
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &AMQPPublisher{conn: conn, channel: ch, queue: q}, nil
}

func (p *AMQPPublisher) Publish(_ context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// amqp.Channel 不支持并发发布
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.Publish(
		"",           // exchange
		p.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Type:         event.Type,
			Timestamp:    event.OccurredAt,
			Body:         body,
		})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		log.Printf("关闭AMQP通道失败: %v", err)
	}
	return p.conn.Close()
}

// LogPublisher 未配置消息队列时只写日志
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	log.Printf("📨 事件 %s affiliate=%d order=%d payload=%v", event.Type, event.AffiliateID, event.OrderID, event.Payload)
	return nil
}

// EventDispatcher 把事件放到 goroutine 池异步投递，同时写一份到 MongoDB
type EventDispatcher struct {
	publisher EventPublisher
	pool      *goroutinepool.Pool
	now       func() time.Time
}

func NewEventDispatcher(publisher EventPublisher, pool *goroutinepool.Pool) *EventDispatcher {
	if publisher == nil {
		publisher = LogPublisher{}
	}
	return &EventDispatcher{publisher: publisher, pool: pool, now: time.Now}
}

// Publish 提交后即返回，nil 接收者时什么都不做
func (d *EventDispatcher) Publish(event Event) {
	if d == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now()
	}

	deliver := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := monitoring.SaveBusinessEvent(ctx, monitoring.BusinessEvent{
			Timestamp:   event.OccurredAt,
			EventType:   event.Type,
			AffiliateID: event.AffiliateID,
			OrderID:     event.OrderID,
			Payload:     event.Payload,
		}); err != nil {
			log.Printf("保存业务事件到MongoDB失败: %v", err)
		}
		if err := d.publisher.Publish(ctx, event); err != nil {
			return fmt.Errorf("投递事件 %s 失败: %w", event.Type, err)
		}
		return nil
	}

	if d.pool == nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("事件投递发生panic: %v", r)
				}
			}()
			if err := deliver(); err != nil {
				log.Printf("%v", err)
			}
		}()
		return
	}

	err := d.pool.Submit(&goroutinepool.Task{
		ID:       event.ID,
		Function: deliver,
		Callback: func(err error) {
			if err != nil {
				log.Printf("%v", err)
			}
		},
		Priority: eventPriority(event.Type),
		Timeout:  10 * time.Second,
	})
	if err != nil {
		log.Printf("事件 %s 提交到协程池失败: %v", event.Type, err)
	}
}
