package affiliate_model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 商品（目录子系统所有，这里只读写库存字段）
type Product struct {
	Id            int             `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	Price         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	Stock         int             `gorm:"not null;default:0" json:"stock"`
	ReservedStock int             `gorm:"not null;default:0" json:"reserved_stock"`
	Status        string          `gorm:"type:varchar(10);not null;default:'1'" json:"status"`
	CreateTime    time.Time       `gorm:"column:create_time" json:"create_time"`
	UpdateTime    time.Time       `gorm:"column:update_time" json:"update_time"`
}

// Available 可售库存 = 库存 - 预留
func (p Product) Available() int {
	return p.Stock - p.ReservedStock
}

func (Product) TableName() string {
	return "product"
}

// SellerInventory 卖家库存，(seller_id, product_id) 唯一，只做软删除
type SellerInventory struct {
	Id            int             `gorm:"primaryKey;autoIncrement" json:"id"`
	SellerId      int             `gorm:"not null;uniqueIndex:idx_seller_product" json:"seller_id"`
	ProductId     int             `gorm:"not null;uniqueIndex:idx_seller_product" json:"product_id"`
	Stock         int             `gorm:"not null;default:0" json:"stock"`
	ReservedStock int             `gorm:"not null;default:0" json:"reserved_stock"`
	TotalSold     int             `gorm:"not null;default:0" json:"total_sold"`
	TotalRevenue  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_revenue"`
	LastSaleAt    *time.Time      `json:"last_sale_at"`
	IsActive      bool            `gorm:"not null;default:true" json:"is_active"`
	CreateTime    time.Time       `gorm:"column:create_time" json:"create_time"`
	UpdateTime    time.Time       `gorm:"column:update_time" json:"update_time"`
}

// Available 卖家可售库存
func (s SellerInventory) Available() int {
	return s.Stock - s.ReservedStock
}

func (SellerInventory) TableName() string {
	return "seller_inventory"
}
