package affiliate_model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AffiliateStatus 推广员状态
type AffiliateStatus string

const (
	AffiliatePending   AffiliateStatus = "pending"   // 待审核
	AffiliateActive    AffiliateStatus = "active"    // 正常
	AffiliateSuspended AffiliateStatus = "suspended" // 暂停
	AffiliateInactive  AffiliateStatus = "inactive"  // 已拒绝/已停用
)

// Affiliate 推广员档案，财务字段只允许佣金账本修改
type Affiliate struct {
	Id                     int             `gorm:"primaryKey;autoIncrement" json:"id"`
	CustomerId             int             `gorm:"not null;uniqueIndex" json:"customer_id"`
	Code                   string          `gorm:"type:varchar(32);not null;uniqueIndex" json:"code"`
	Name                   string          `gorm:"type:varchar(100)" json:"name"`
	Phone                  string          `gorm:"type:varchar(32)" json:"phone"`
	Status                 AffiliateStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	CommissionRate         decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"commission_rate"`
	TotalReferrals         int             `gorm:"not null;default:0" json:"total_referrals"`
	TotalReferralRevenue   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_referral_revenue"`
	TotalCommissionEarned  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_commission_earned"`
	TotalCommissionPending decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_commission_pending"`
	TotalCommissionPaid    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_commission_paid"`
	LastReferralAt         *time.Time      `json:"last_referral_at"`
	ApprovedAt             *time.Time      `json:"approved_at"`
	CreateTime             time.Time       `gorm:"column:create_time" json:"create_time"`
	UpdateTime             time.Time       `gorm:"column:update_time" json:"update_time"`
}

// IsActive 只有正常状态的推广员可以下单和获得佣金
func (a Affiliate) IsActive() bool {
	return a.Status == AffiliateActive
}

func (Affiliate) TableName() string {
	return "affiliate"
}

// CommissionEntry 佣金流水，(affiliate_id, order_id) 唯一，只追加不修改
type CommissionEntry struct {
	Id               int             `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateId      int             `gorm:"not null;uniqueIndex:idx_commission_affiliate_order" json:"affiliate_id"`
	OrderId          int             `gorm:"not null;uniqueIndex:idx_commission_affiliate_order" json:"order_id"`
	OrderTotal       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"order_total"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"commission_amount"`
	RateApplied      decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"rate_applied"`
	OrderStatus      string          `gorm:"type:varchar(20);not null" json:"order_status"`
	CreateTime       time.Time       `gorm:"column:create_time;index" json:"create_time"`
}

func (CommissionEntry) TableName() string {
	return "affiliate_commission_entry"
}

// CommissionPayout 佣金结算记录，reference 唯一保证同一笔结算只入账一次
type CommissionPayout struct {
	Id          int             `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateId int             `gorm:"not null;index" json:"affiliate_id"`
	Reference   string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"reference"`
	Requested   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"requested"`
	Moved       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"moved"`
	CreateTime  time.Time       `gorm:"column:create_time" json:"create_time"`
}

func (CommissionPayout) TableName() string {
	return "affiliate_commission_payout"
}
