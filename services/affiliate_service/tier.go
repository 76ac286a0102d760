package affiliate_service

import (
	"github.com/shopspring/decimal"
)

// Tier 等级区间，MaxOrders 为 -1 表示无上限
type Tier struct {
	Name      string
	MinOrders int
	MaxOrders int
	Rate      decimal.Decimal // 百分比，例如 7 表示 7%
}

// TierInfo 等级计算结果
type TierInfo struct {
	TierName              string          `json:"tier_name"`
	CommissionRatePercent decimal.Decimal `json:"commission_rate_percent"`
	NextTierName          *string         `json:"next_tier_name"`
	OrdersToNextTier      *int            `json:"orders_to_next_tier"`
}

var hundred = decimal.NewFromInt(100)

// DefaultTiers 按订单量升序排列，区间首尾相接
var DefaultTiers = []Tier{
	{Name: "Bronze", MinOrders: 0, MaxOrders: 49, Rate: decimal.NewFromInt(5)},
	{Name: "Silver", MinOrders: 50, MaxOrders: 199, Rate: decimal.NewFromInt(7)},
	{Name: "Gold", MinOrders: 200, MaxOrders: 499, Rate: decimal.NewFromInt(10)},
	{Name: "Platinum", MinOrders: 500, MaxOrders: -1, Rate: decimal.NewFromInt(12)},
}

func (t Tier) contains(totalOrders int) bool {
	if totalOrders < t.MinOrders {
		return false
	}
	return t.MaxOrders < 0 || totalOrders <= t.MaxOrders
}

// CalculateTier 根据累计订单数计算等级，不在任何区间时（负数）按最低等级处理
func CalculateTier(totalOrders int) TierInfo {
	idx := 0
	for i, t := range DefaultTiers {
		if t.contains(totalOrders) {
			idx = i
			break
		}
	}

	cur := DefaultTiers[idx]
	info := TierInfo{
		TierName:              cur.Name,
		CommissionRatePercent: cur.Rate,
	}
	if idx+1 < len(DefaultTiers) {
		next := DefaultTiers[idx+1]
		remaining := next.MinOrders - totalOrders
		info.NextTierName = &next.Name
		info.OrdersToNextTier = &remaining
	}
	return info
}

// CalculateCommission orderTotal × 等级费率 / 100，不做舍入，入库时统一舍入
func CalculateCommission(orderTotal decimal.Decimal, totalOrders int) decimal.Decimal {
	return commissionOf(orderTotal, CalculateTier(totalOrders).CommissionRatePercent)
}

func commissionOf(total, ratePercent decimal.Decimal) decimal.Decimal {
	return total.Mul(ratePercent).Div(hundred)
}
