package admin

import (
	"nasa-go-affiliate/controllers/common"
	"nasa-go-affiliate/inout"
	"nasa-go-affiliate/middleware"
	"nasa-go-affiliate/pkg/monitoring"
	"nasa-go-affiliate/pkg/response"
	"nasa-go-affiliate/services/affiliate_service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (ctl *Controller) ListAffiliates(c *gin.Context) {
	var params inout.PageReq
	if err := c.ShouldBindQuery(&params); err != nil {
		response.Error(c, response.INVALID_PARAMS, err.Error())
		return
	}
	list, total, err := ctl.svc.Admin.List(c.Request.Context(), params.Status, params.Page, params.PageSize)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, inout.PageResp{Items: list, Total: total, Page: max(params.Page, 1), PageSize: params.PageSize})
}

// AffiliateDetail 档案 + 等级 + 最近事件
func (ctl *Controller) AffiliateDetail(c *gin.Context) {
	id, ok := common.ParamID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	affiliate, err := ctl.svc.Admin.Get(ctx, id)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	tier, err := ctl.svc.Tiers.TierFor(ctx, id)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	events, err := monitoring.GetRecentEvents(ctx, id, 20)
	if err != nil {
		events = nil
	}
	response.Success(c, gin.H{
		"affiliate": affiliate,
		"tier":      tier,
		"events":    events,
	})
}

func (ctl *Controller) RegisterAffiliate(c *gin.Context) {
	req := c.MustGet(middleware.RequestKey).(*inout.RegisterAffiliateReq)
	affiliate, err := ctl.svc.Admin.Register(c.Request.Context(), affiliate_service.RegisterInput{
		CustomerID: req.CustomerId,
		Name:       req.Name,
		Phone:      req.Phone,
	})
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, affiliate)
}

// UpdateAffiliateStatus 审核 / 暂停 / 恢复 / 停用
func (ctl *Controller) UpdateAffiliateStatus(c *gin.Context) {
	id, ok := common.ParamID(c, "id")
	if !ok {
		return
	}
	req := c.MustGet(middleware.RequestKey).(*inout.AffiliateStatusReq)

	affiliate, err := ctl.svc.Admin.UpdateStatus(c.Request.Context(), id, affiliate_service.StatusAction(req.Action))
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, affiliate)
}

// Payout 佣金结算，相同 reference 重复提交只处理一次
func (ctl *Controller) Payout(c *gin.Context) {
	id, ok := common.ParamID(c, "id")
	if !ok {
		return
	}
	req := c.MustGet(middleware.RequestKey).(*inout.PayoutReq)
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, response.INVALID_PARAMS, "金额格式错误")
		return
	}

	result, err := ctl.svc.Commissions.MarkCommissionAsPaid(c.Request.Context(), id, amount, req.Reference)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// SyncTier 把存储费率同步为当前等级费率
func (ctl *Controller) SyncTier(c *gin.Context) {
	id, ok := common.ParamID(c, "id")
	if !ok {
		return
	}
	tier, err := ctl.svc.Admin.SyncTierRate(c.Request.Context(), id)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	ctl.svc.Tiers.Invalidate(c.Request.Context(), id)
	response.Success(c, tier)
}
