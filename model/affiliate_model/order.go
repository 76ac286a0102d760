package affiliate_model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryStatus 订单的库存状态，空字符串表示尚未占用库存
type InventoryStatus string

const (
	InventoryAvailable InventoryStatus = ""
	InventoryReserved  InventoryStatus = "reserved"
	InventoryAllocated InventoryStatus = "allocated"
	InventoryShipped   InventoryStatus = "shipped"
	InventoryReleased  InventoryStatus = "released"
)

// Order 订单（归订单子系统所有，这里只读写佣金和库存状态字段）
type Order struct {
	Id               int              `gorm:"primaryKey;autoIncrement" json:"id"`
	No               string           `gorm:"type:varchar(50);not null;uniqueIndex" json:"no"`
	CustomerName     string           `gorm:"type:varchar(100)" json:"customer_name"`
	CustomerPhone    string           `gorm:"type:varchar(32);index" json:"customer_phone"`
	ShippingAddress  string           `gorm:"type:varchar(255)" json:"shipping_address"`
	Note             string           `gorm:"type:varchar(500)" json:"note"`
	TotalAmount      decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"total_amount"`
	Status           string           `gorm:"type:varchar(20);not null;index" json:"status"`
	AffiliateCode    *string          `gorm:"type:varchar(32);index" json:"affiliate_code"`
	SellerId         *int             `gorm:"index" json:"seller_id"`
	CommissionAmount *decimal.Decimal `gorm:"type:decimal(20,2)" json:"commission_amount"`
	InventoryStatus  InventoryStatus  `gorm:"type:varchar(20);not null;default:''" json:"inventory_status"`
	CreateTime       time.Time        `gorm:"column:create_time" json:"create_time"`
	UpdateTime       time.Time        `gorm:"column:update_time" json:"update_time"`
}

func (Order) TableName() string {
	return "order"
}

// OrderItem 订单明细
type OrderItem struct {
	Id         int             `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderId    int             `gorm:"not null;index" json:"order_id"`
	ProductId  int             `gorm:"not null;index" json:"product_id"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	LineAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"line_amount"`
	CreateTime time.Time       `gorm:"column:create_time" json:"create_time"`
}

func (OrderItem) TableName() string {
	return "order_item"
}

// OrderStatusHistory 订单状态变更历史
type OrderStatusHistory struct {
	Id         int       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderId    int       `gorm:"not null;index" json:"order_id"`
	FromStatus string    `gorm:"type:varchar(20);not null" json:"from_status"`
	ToStatus   string    `gorm:"type:varchar(20);not null" json:"to_status"`
	Operator   string    `gorm:"type:varchar(50);not null" json:"operator"`
	Reason     string    `gorm:"type:varchar(200)" json:"reason"`
	CreateTime time.Time `gorm:"column:create_time" json:"create_time"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

// AffiliateOrderType 推广订单类型
type AffiliateOrderType string

const (
	AffiliateOrderCreated  AffiliateOrderType = "created"  // 推广员代客下单
	AffiliateOrderReferred AffiliateOrderType = "referred" // 客户通过推广码下单
)

// CommissionStatus 推广订单的佣金结算状态
type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionPaid    CommissionStatus = "paid"
)

// AffiliateOrder 订单与推广员的关联，每个 (order, affiliate) 一条
type AffiliateOrder struct {
	Id               int                `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderId          int                `gorm:"not null;uniqueIndex:idx_affiliate_order_pair" json:"order_id"`
	AffiliateId      int                `gorm:"not null;uniqueIndex:idx_affiliate_order_pair;index" json:"affiliate_id"`
	OrderType        AffiliateOrderType `gorm:"type:varchar(20);not null" json:"order_type"`
	CommissionAmount decimal.Decimal    `gorm:"type:decimal(20,2);not null" json:"commission_amount"`
	CommissionRate   decimal.Decimal    `gorm:"type:decimal(5,2);not null" json:"commission_rate"`
	CommissionStatus CommissionStatus   `gorm:"type:varchar(20);not null;index" json:"commission_status"`
	CreateTime       time.Time          `gorm:"column:create_time" json:"create_time"`
	UpdateTime       time.Time          `gorm:"column:update_time" json:"update_time"`
}

func (AffiliateOrder) TableName() string {
	return "affiliate_order"
}
