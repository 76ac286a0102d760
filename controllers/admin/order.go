package admin

import (
	"nasa-go-affiliate/controllers/common"
	"nasa-go-affiliate/inout"
	"nasa-go-affiliate/middleware"
	"nasa-go-affiliate/pkg/response"
	"nasa-go-affiliate/services/affiliate_service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// UpdateOrderStatus 订单状态变更，联动库存和佣金
func (ctl *Controller) UpdateOrderStatus(c *gin.Context) {
	id, ok := common.ParamID(c, "id")
	if !ok {
		return
	}
	req := c.MustGet(middleware.RequestKey).(*inout.OrderStatusReq)
	operator := req.Operator
	if operator == "" {
		operator = affiliate_service.OperatorAdmin
	}

	result, err := ctl.svc.OrderStatus.UpdateOrderStatus(c.Request.Context(), id,
		affiliate_service.OrderStatus(req.Status), operator, req.Reason)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, result)
}

func (ctl *Controller) OrderHistory(c *gin.Context) {
	id, ok := common.ParamID(c, "id")
	if !ok {
		return
	}
	history, err := ctl.svc.OrderStatus.History(c.Request.Context(), id)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, history)
}

// InventoryAction reserve / allocate / release / ship
func (ctl *Controller) InventoryAction(c *gin.Context) {
	id, ok := common.ParamID(c, "id")
	if !ok {
		return
	}
	action, ok := affiliate_service.ParseInventoryAction(c.Param("action"))
	if !ok {
		response.Error(c, response.INVALID_PARAMS, "未知的库存动作")
		return
	}

	var req inout.InventoryActionReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, response.INVALID_PARAMS, err.Error())
			return
		}
	}
	items := make([]affiliate_service.InventoryItem, 0, len(req.Items))
	for _, it := range req.Items {
		amount := decimal.Zero
		if it.LineAmount != "" {
			var err error
			if amount, err = decimal.NewFromString(it.LineAmount); err != nil {
				response.Error(c, response.INVALID_PARAMS, "金额格式错误")
				return
			}
		}
		items = append(items, affiliate_service.InventoryItem{
			ProductID:  it.ProductId,
			Quantity:   it.Quantity,
			LineAmount: amount,
		})
	}

	result, err := ctl.svc.Inventory.Apply(c.Request.Context(), action, id, items)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// Restock 卖家入库
func (ctl *Controller) Restock(c *gin.Context) {
	req := c.MustGet(middleware.RequestKey).(*inout.RestockReq)
	row, err := ctl.svc.Inventory.Restock(c.Request.Context(), req.SellerId, req.ProductId, req.Quantity)
	if err != nil {
		common.ServiceError(c, err)
		return
	}
	response.Success(c, row)
}
