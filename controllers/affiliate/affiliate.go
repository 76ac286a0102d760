package affiliate

import (
	"time"

	"nasa-go-affiliate/controllers/common"
	"nasa-go-affiliate/inout"
	"nasa-go-affiliate/middleware"
	"nasa-go-affiliate/model/affiliate_model"
	"nasa-go-affiliate/pkg/monitoring"
	"nasa-go-affiliate/pkg/response"
	"nasa-go-affiliate/services/affiliate_service"

	"github.com/gin-gonic/gin"
)

// Controller 推广员端接口，推广员ID来自 token
type Controller struct {
	svc *affiliate_service.Services
}

func NewController(svc *affiliate_service.Services) *Controller {
	return &Controller{svc: svc}
}

// Tier 当前等级和距离下一等级的订单数
func (ctl *Controller) Tier(c *gin.Context) {
	tier, err := ctl.svc.Tiers.TierFor(c.Request.Context(), c.GetInt("aid"))
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, tier)
}

// CheckShare 只查询，不记录
func (ctl *Controller) CheckShare(c *gin.Context) {
	decision, err := ctl.svc.Shares.CheckRateLimit(c.Request.Context(), c.GetInt("aid"), time.Now())
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, decision)
}

// Share 记录分享，被限流时返回下次可分享时间
func (ctl *Controller) Share(c *gin.Context) {
	req := c.MustGet(middleware.RequestKey).(*inout.ShareReq)

	result, err := ctl.svc.Shares.RecordShare(c.Request.Context(), affiliate_service.ShareInput{
		AffiliateID:    c.GetInt("aid"),
		ProductID:      req.ProductId,
		Channel:        affiliate_model.ShareChannel(req.Channel),
		DestinationURL: req.DestinationUrl,
		DeviceInfo:     req.DeviceInfo,
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	if !result.Decision.Allowed {
		response.ErrorWithData(c, response.SHARE_RATE_LIMITED, result.Decision, result.Decision.Reason)
		return
	}
	response.Success(c, result)
}

// CreateOrder 代客户下单
func (ctl *Controller) CreateOrder(c *gin.Context) {
	req := c.MustGet(middleware.RequestKey).(*inout.CreateAffiliateOrderReq)

	result, err := ctl.svc.Orders.CreateAffiliateOrder(c.Request.Context(), affiliate_service.CreateOrderInput{
		AffiliateID:     c.GetInt("aid"),
		CustomerPhone:   req.CustomerPhone,
		ProductID:       req.ProductId,
		Quantity:        req.Quantity,
		ShippingAddress: req.ShippingAddress,
		CustomerName:    req.CustomerName,
		Note:            req.Note,
	})
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// Commissions 佣金流水
func (ctl *Controller) Commissions(c *gin.Context) {
	var params inout.PageReq
	if err := c.ShouldBindQuery(&params); err != nil {
		response.Error(c, response.INVALID_PARAMS, err.Error())
		return
	}

	entries, total, err := ctl.svc.Commissions.History(c.Request.Context(), c.GetInt("aid"), params.Page, params.PageSize)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, inout.PageResp{
		Items:    entries,
		Total:    total,
		Page:     max(params.Page, 1),
		PageSize: params.PageSize,
	})
}

// Events 最近的业务事件，未配置 MongoDB 时返回空列表
func (ctl *Controller) Events(c *gin.Context) {
	events, err := monitoring.GetRecentEvents(c.Request.Context(), c.GetInt("aid"), 50)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, events)
}
