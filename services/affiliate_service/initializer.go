package affiliate_service

import (
	"log"
	"sync"

	"nasa-go-affiliate/pkg/cache"
	"nasa-go-affiliate/pkg/config"
	"nasa-go-affiliate/pkg/goroutinepool"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services 推广业务的全部服务
type Services struct {
	Shares      *ShareLimiter
	Inventory   *InventoryLedger
	Commissions *CommissionLedger
	Orders      *OrderWorkflow
	OrderStatus *OrderStatusManager
	Tiers       *TierService
	Admin       *AdminService
	Events      *EventDispatcher

	cache     *cache.CacheManager
	publisher *AMQPPublisher
}

// Dependencies 外部连接，Redis 和 Pool 可以为 nil
type Dependencies struct {
	DB    *gorm.DB
	Redis *redis.Client
	Pool  *goroutinepool.Pool
}

var (
	globalServices *Services
	servicesMu     sync.RWMutex
)

// NewServices 按配置组装服务
func NewServices(cfg *config.Config, deps Dependencies) *Services {
	ac := cfg.Affiliate

	var locker Locker
	if deps.Redis != nil {
		locker = NewRedisLocker(deps.Redis, ac.LockTTL)
		log.Printf("推广服务使用 Redis 分布式锁")
	} else {
		locker = NewLocalLocker()
		log.Printf("⚠️ Redis 未连接，推广服务使用进程内锁")
	}

	var publisher EventPublisher = LogPublisher{}
	var amqpPublisher *AMQPPublisher
	if cfg.AMQP.URL != "" {
		p, err := NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			log.Printf("⚠️ 连接消息队列失败，事件只写日志: %v", err)
		} else {
			publisher = p
			amqpPublisher = p
			log.Printf("✅ 事件投递到队列 %s", cfg.AMQP.Queue)
		}
	}
	events := NewEventDispatcher(publisher, deps.Pool)

	cm := cache.NewCacheManager(deps.Redis)
	tiers := NewTierService(deps.DB, cm)
	inventory := NewInventoryLedger(deps.DB, events)
	commissions := NewCommissionLedger(deps.DB, ac.MoneyScale, events)

	return &Services{
		Shares: NewShareLimiter(deps.DB, locker, ac.Location(),
			WithSharePolicy(ac.ShareDailyLimit, ac.ShareMinGap),
			WithShareLockTTL(ac.LockTTL),
			WithShareEvents(events)),
		Inventory:   inventory,
		Commissions: commissions,
		Orders:      NewOrderWorkflow(deps.DB, tiers, ac.MoneyScale, events),
		OrderStatus: NewOrderStatusManager(deps.DB, inventory, commissions, events),
		Tiers:       tiers,
		Admin:       NewAdminService(deps.DB, events),
		Events:      events,
		cache:       cm,
		publisher:   amqpPublisher,
	}
}

// Init 初始化全局服务
func Init(cfg *config.Config, deps Dependencies) *Services {
	s := NewServices(cfg, deps)
	servicesMu.Lock()
	globalServices = s
	servicesMu.Unlock()
	log.Printf("推广服务初始化完成")
	return s
}

// Get 全局服务，未初始化时返回 nil
func Get() *Services {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	return globalServices
}

// Close 停止缓存清理并关闭消息队列连接
func (s *Services) Close() {
	if s == nil {
		return
	}
	s.cache.Stop()
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Printf("关闭消息队列失败: %v", err)
		}
	}
}
