package router

import (
	"nasa-go-affiliate/controllers/admin"
	"nasa-go-affiliate/controllers/affiliate"
	"nasa-go-affiliate/controllers/health"
	"nasa-go-affiliate/inout"
	"nasa-go-affiliate/middleware"
	"nasa-go-affiliate/pkg/jwt"
	"nasa-go-affiliate/pkg/monitoring"
	"nasa-go-affiliate/services/affiliate_service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Init 注册全部路由
func Init(r *gin.Engine, svc *affiliate_service.Services, jwtManager *jwt.JWTManager) {
	r.Use(monitoring.PrometheusMiddleware())

	healthCtl := health.NewHealthController()
	r.GET("/health", healthCtl.CheckHealth)
	r.GET("/ready", healthCtl.CheckReadiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	InitAffiliate(r, svc, jwtManager)
	InitAdmin(r, svc, jwtManager)
}

// InitAffiliate 推广员端
func InitAffiliate(r *gin.Engine, svc *affiliate_service.Services, jwtManager *jwt.JWTManager) {
	ctl := affiliate.NewController(svc)

	g := r.Group("/api/affiliate")
	g.Use(middleware.Jwt(jwtManager, jwt.RoleAffiliate))
	{
		g.GET("/tier", ctl.Tier)
		g.GET("/share/check", ctl.CheckShare)
		g.POST("/share", middleware.ValidationMiddleware(&inout.ShareReq{}), ctl.Share)
		g.POST("/orders", middleware.ValidationMiddleware(&inout.CreateAffiliateOrderReq{}), ctl.CreateOrder)
		g.GET("/commissions", ctl.Commissions)
		g.GET("/events", ctl.Events)
	}
}

// InitAdmin 管理后台
func InitAdmin(r *gin.Engine, svc *affiliate_service.Services, jwtManager *jwt.JWTManager) {
	ctl := admin.NewController(svc)

	g := r.Group("/api/admin")
	g.Use(middleware.Jwt(jwtManager, jwt.RoleAdmin))
	{
		g.GET("/affiliates", ctl.ListAffiliates)
		g.POST("/affiliates", middleware.ValidationMiddleware(&inout.RegisterAffiliateReq{}), ctl.RegisterAffiliate)
		g.GET("/affiliates/:id", ctl.AffiliateDetail)
		g.PUT("/affiliates/:id/status", middleware.ValidationMiddleware(&inout.AffiliateStatusReq{}), ctl.UpdateAffiliateStatus)
		g.POST("/affiliates/:id/payout", middleware.ValidationMiddleware(&inout.PayoutReq{}), ctl.Payout)
		g.POST("/affiliates/:id/sync-tier", ctl.SyncTier)

		g.PUT("/orders/:id/status", middleware.ValidationMiddleware(&inout.OrderStatusReq{}), ctl.UpdateOrderStatus)
		g.GET("/orders/:id/history", ctl.OrderHistory)
		g.POST("/orders/:id/inventory/:action", ctl.InventoryAction)

		g.POST("/inventory/restock", middleware.ValidationMiddleware(&inout.RestockReq{}), ctl.Restock)
	}
}
