package inout

// RegisterAffiliateReq 申请成为推广员
type RegisterAffiliateReq struct {
	CustomerId int    `json:"customer_id" binding:"required,gt=0"`
	Name       string `json:"name" binding:"required,max=100"`
	Phone      string `json:"phone" binding:"omitempty,max=32"`
}

// ShareReq 记录一次分享
type ShareReq struct {
	ProductId      *int   `json:"product_id"`
	Channel        string `json:"channel" binding:"required,oneof=facebook instagram twitter zalo other"`
	DestinationUrl string `json:"destination_url" binding:"omitempty,url,max=500"`
	DeviceInfo     string `json:"device_info" binding:"max=255"`
}

// CreateAffiliateOrderReq 推广员代客户下单
type CreateAffiliateOrderReq struct {
	ProductId       int    `json:"product_id" binding:"required,gt=0"`
	Quantity        int    `json:"quantity" binding:"required,gt=0"`
	CustomerName    string `json:"customer_name" binding:"required,max=100"`
	CustomerPhone   string `json:"customer_phone" binding:"required,min=6,max=32"`
	ShippingAddress string `json:"shipping_address" binding:"required,max=255"`
	Note            string `json:"note" binding:"max=500"`
}

// PageReq 分页参数
type PageReq struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
}

// PageResp 分页结果
type PageResp struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// AffiliateStatusReq 审核 / 暂停 / 恢复 / 停用
type AffiliateStatusReq struct {
	Action string `json:"action" binding:"required,oneof=approve reject suspend reactivate deactivate"`
}

// PayoutReq 佣金结算，reference 用于幂等
type PayoutReq struct {
	Amount    string `json:"amount" binding:"required"`
	Reference string `json:"reference" binding:"required,max=64"`
}

// OrderStatusReq 订单状态变更
type OrderStatusReq struct {
	Status   string `json:"status" binding:"required,oneof=pending paid shipped delivered completed cancelled refunded"`
	Operator string `json:"operator" binding:"omitempty,oneof=admin system seller"`
	Reason   string `json:"reason" binding:"max=200"`
}

// InventoryItemReq 库存动作的一行，为空时按订单明细处理，不为空时必须和明细一致
type InventoryItemReq struct {
	ProductId  int    `json:"product_id" binding:"required,gt=0"`
	Quantity   int    `json:"quantity" binding:"required,gt=0"`
	LineAmount string `json:"line_amount"`
}

// InventoryActionReq 库存动作
type InventoryActionReq struct {
	Items []InventoryItemReq `json:"items" binding:"dive"`
}

// RestockReq 卖家入库
type RestockReq struct {
	SellerId  int `json:"seller_id" binding:"required,gt=0"`
	ProductId int `json:"product_id" binding:"required,gt=0"`
	Quantity  int `json:"quantity" binding:"required,gt=0"`
}
