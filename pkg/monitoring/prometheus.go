package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus 指标定义
var (
	// HTTP 请求相关指标
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP请求总数",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP请求耗时分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "当前使用中的数据库连接数",
		},
	)

	// 推广业务指标
	shareDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_share_decisions_total",
			Help: "分享限流判定次数",
		},
		[]string{"result"},
	)

	affiliateOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_orders_total",
			Help: "推广员代下单次数",
		},
		[]string{"result"},
	)

	commissionResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_commission_results_total",
			Help: "佣金计算结果",
		},
		[]string{"kind"},
	)

	commissionAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affiliate_commission_amount_total",
			Help: "累计入账佣金金额",
		},
	)

	inventoryTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_transitions_total",
			Help: "订单库存状态迁移次数",
		},
		[]string{"action", "result"},
	)

	lockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "affiliate_lock_wait_seconds",
			Help:    "分布式锁等待耗时",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"scope"},
	)
)

// PrometheusMiddleware Gin中间件，用于收集HTTP指标
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusCode,
		).Inc()

		httpRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)

		// MongoDB 存储（异步）
		SaveHTTPMetric(c, duration)
	}
}

func UpdateDBConnections(inUse int) {
	dbConnectionsInUse.Set(float64(inUse))
}

// RecordShareDecision result: allowed / daily_limit / min_gap
func RecordShareDecision(result string) {
	shareDecisions.WithLabelValues(result).Inc()
}

func RecordAffiliateOrder(result string) {
	affiliateOrders.WithLabelValues(result).Inc()
}

// RecordCommission 记录佣金计算结果，只有成功入账时累加金额
func RecordCommission(kind string, amount float64) {
	commissionResults.WithLabelValues(kind).Inc()
	if amount > 0 {
		commissionAmount.Add(amount)
	}
}

func RecordInventoryTransition(action, result string) {
	inventoryTransitions.WithLabelValues(action, result).Inc()
}

func ObserveLockWait(scope string, d time.Duration) {
	lockWaitDuration.WithLabelValues(scope).Observe(d.Seconds())
}
