package affiliate_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"nasa-go-affiliate/model/affiliate_model"
	"nasa-go-affiliate/pkg/monitoring"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommissionKind 佣金计算结果类型
type CommissionKind string

const (
	CommissionSuccess          CommissionKind = "success"
	CommissionNotApplicable    CommissionKind = "not_applicable"
	CommissionAlreadyProcessed CommissionKind = "already_processed"
)

// CommissionResult 不满足条件和重复触发都不是错误，调用方不需要重试
type CommissionResult struct {
	Kind        CommissionKind  `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	AffiliateID int             `json:"affiliate_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// PayoutResult 结算结果，Moved 可能小于请求金额（待结算不足时截断）
type PayoutResult struct {
	Reference        string          `json:"reference"`
	Requested        decimal.Decimal `json:"requested"`
	Moved            decimal.Decimal `json:"moved"`
	Pending          decimal.Decimal `json:"pending"`
	Paid             decimal.Decimal `json:"paid"`
	OrdersMarkedPaid int             `json:"orders_marked_paid"`
	AlreadyProcessed bool            `json:"already_processed"`
}

// 只有这两个订单状态产生佣金
var commissionStatuses = map[string]bool{
	"shipped":   true,
	"delivered": true,
}

var errDuplicateEntry = errors.New("commission entry exists")

// CommissionLedger 佣金账本，推广员的财务字段只允许这里修改
type CommissionLedger struct {
	db     *gorm.DB
	scale  int32
	now    func() time.Time
	events *EventDispatcher
}

func NewCommissionLedger(db *gorm.DB, moneyScale int32, events *EventDispatcher) *CommissionLedger {
	return &CommissionLedger{db: db, scale: moneyScale, now: time.Now, events: events}
}

func notApplicable(reason string) *CommissionResult {
	return &CommissionResult{Kind: CommissionNotApplicable, Amount: decimal.Zero, Reason: reason}
}

// CalculateCommissionForOrder 订单状态变化时调用，同一订单最多入账一次
func (l *CommissionLedger) CalculateCommissionForOrder(ctx context.Context, orderID int, newStatus string) (*CommissionResult, error) {
	result, err := l.calculate(ctx, orderID, newStatus)
	if err != nil {
		monitoring.RecordCommission("error", 0)
		return nil, err
	}

	amount, _ := result.Amount.Float64()
	monitoring.RecordCommission(string(result.Kind), amount)

	switch result.Kind {
	case CommissionSuccess:
		log.Printf("💰 订单 %d 佣金入账 %s，推广员 %d", orderID, result.Amount.String(), result.AffiliateID)
		l.events.Publish(Event{
			Type:        EventCommissionCredited,
			AffiliateID: result.AffiliateID,
			OrderID:     orderID,
			Payload: map[string]interface{}{
				"amount": result.Amount.String(),
				"status": newStatus,
			},
		})
	case CommissionAlreadyProcessed:
		log.Printf("订单 %d 佣金已处理，忽略重复触发", orderID)
	}
	return result, nil
}

func (l *CommissionLedger) calculate(ctx context.Context, orderID int, newStatus string) (*CommissionResult, error) {
	if !commissionStatuses[newStatus] {
		return notApplicable("status not eligible"), nil
	}

	d := l.db.WithContext(ctx)

	var order affiliate_model.Order
	if err := d.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if order.AffiliateCode == nil || strings.TrimSpace(*order.AffiliateCode) == "" {
		return notApplicable("order has no affiliate code"), nil
	}

	var result *CommissionResult
	err := d.Transaction(func(tx *gorm.DB) error {
		var affiliate affiliate_model.Affiliate
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", *order.AffiliateCode).First(&affiliate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result = notApplicable("affiliate not found")
			return nil
		}
		if err != nil {
			return fmt.Errorf("查询推广员失败: %w", err)
		}
		if !affiliate.IsActive() {
			result = notApplicable("affiliate not active")
			return nil
		}

		var existing int64
		if err := tx.Model(&affiliate_model.CommissionEntry{}).
			Where("affiliate_id = ? AND order_id = ?", affiliate.Id, order.Id).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("查询佣金记录失败: %w", err)
		}
		if existing > 0 {
			result = &CommissionResult{Kind: CommissionAlreadyProcessed, Amount: decimal.Zero, AffiliateID: affiliate.Id}
			return nil
		}

		now := l.now()
		amount := commissionOf(order.TotalAmount, affiliate.CommissionRate).Round(l.scale)

		entry := affiliate_model.CommissionEntry{
			AffiliateId:      affiliate.Id,
			OrderId:          order.Id,
			OrderTotal:       order.TotalAmount,
			CommissionAmount: amount,
			RateApplied:      affiliate.CommissionRate,
			OrderStatus:      newStatus,
			CreateTime:       now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			if isDuplicateKey(err) {
				return errDuplicateEntry
			}
			return fmt.Errorf("写入佣金记录失败: %w", err)
		}

		if err := tx.Model(&affiliate_model.Affiliate{}).Where("id = ?", affiliate.Id).
			Updates(map[string]interface{}{
				"total_commission_earned":  gorm.Expr("total_commission_earned + ?", amount),
				"total_commission_pending": gorm.Expr("total_commission_pending + ?", amount),
				"total_referrals":          gorm.Expr("total_referrals + ?", 1),
				"total_referral_revenue":   gorm.Expr("total_referral_revenue + ?", order.TotalAmount),
				"last_referral_at":         now,
				"update_time":              now,
			}).Error; err != nil {
			return fmt.Errorf("更新推广员统计失败: %w", err)
		}

		if err := tx.Model(&affiliate_model.Order{}).Where("id = ?", order.Id).
			Updates(map[string]interface{}{
				"commission_amount": amount,
				"update_time":       now,
			}).Error; err != nil {
			return fmt.Errorf("回写订单佣金失败: %w", err)
		}

		if err := l.syncAffiliateOrder(tx, affiliate, order.Id, amount, now); err != nil {
			return err
		}

		result = &CommissionResult{Kind: CommissionSuccess, Amount: amount, AffiliateID: affiliate.Id}
		return nil
	})
	if errors.Is(err, errDuplicateEntry) {
		// 并发触发时唯一索引兜底
		return &CommissionResult{Kind: CommissionAlreadyProcessed, Amount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// syncAffiliateOrder 把实际入账金额写到推广订单上，客户自己带推广码下单的补一条 referred 记录
func (l *CommissionLedger) syncAffiliateOrder(tx *gorm.DB, affiliate affiliate_model.Affiliate, orderID int, amount decimal.Decimal, now time.Time) error {
	res := tx.Model(&affiliate_model.AffiliateOrder{}).
		Where("order_id = ? AND affiliate_id = ?", orderID, affiliate.Id).
		Updates(map[string]interface{}{
			"commission_amount": amount,
			"commission_rate":   affiliate.CommissionRate,
			"update_time":       now,
		})
	if res.Error != nil {
		return fmt.Errorf("更新推广订单失败: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	record := affiliate_model.AffiliateOrder{
		OrderId:          orderID,
		AffiliateId:      affiliate.Id,
		OrderType:        affiliate_model.AffiliateOrderReferred,
		CommissionAmount: amount,
		CommissionRate:   affiliate.CommissionRate,
		CommissionStatus: affiliate_model.CommissionPending,
		CreateTime:       now,
		UpdateTime:       now,
	}
	if err := tx.Create(&record).Error; err != nil {
		return fmt.Errorf("创建推广订单失败: %w", err)
	}
	return nil
}

// MarkCommissionAsPaid 待结算转为已结算，转移金额不超过当前待结算余额；reference 相同的请求只处理一次
func (l *CommissionLedger) MarkCommissionAsPaid(ctx context.Context, affiliateID int, amount decimal.Decimal, reference string) (*PayoutResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, invalidInput("payout reference is required")
	}
	if !amount.IsPositive() {
		return nil, invalidInput("payout amount must be positive")
	}
	amount = amount.Round(l.scale)

	result := &PayoutResult{Reference: reference, Requested: amount}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affiliate affiliate_model.Affiliate
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&affiliate, affiliateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAffiliateNotFound
			}
			return fmt.Errorf("查询推广员失败: %w", err)
		}

		var previous affiliate_model.CommissionPayout
		err := tx.Where("reference = ?", reference).Limit(1).Find(&previous).Error
		if err != nil {
			return fmt.Errorf("查询结算记录失败: %w", err)
		}
		if previous.Id > 0 {
			if previous.AffiliateId != affiliateID {
				return invalidInput("reference %s belongs to another affiliate", reference)
			}
			result.AlreadyProcessed = true
			result.Moved = previous.Moved
			result.Pending = affiliate.TotalCommissionPending
			result.Paid = affiliate.TotalCommissionPaid
			return nil
		}

		moved := decimal.Min(amount, affiliate.TotalCommissionPending)
		if moved.IsNegative() {
			moved = decimal.Zero
		}
		now := l.now()

		if moved.IsPositive() {
			res := tx.Model(&affiliate_model.Affiliate{}).
				Where("id = ? AND total_commission_pending >= ?", affiliateID, moved).
				Updates(map[string]interface{}{
					"total_commission_pending": gorm.Expr("total_commission_pending - ?", moved),
					"total_commission_paid":    gorm.Expr("total_commission_paid + ?", moved),
					"update_time":              now,
				})
			if res.Error != nil {
				return fmt.Errorf("更新结算金额失败: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("推广员 %d 待结算余额已变化", affiliateID)
			}
		}

		payout := affiliate_model.CommissionPayout{
			AffiliateId: affiliateID,
			Reference:   reference,
			Requested:   amount,
			Moved:       moved,
			CreateTime:  now,
		}
		if err := tx.Create(&payout).Error; err != nil {
			if isDuplicateKey(err) {
				return errDuplicateEntry
			}
			return fmt.Errorf("写入结算记录失败: %w", err)
		}

		paidTotal := affiliate.TotalCommissionPaid.Add(moved)
		marked, err := markOrdersPaid(tx, affiliateID, paidTotal, now)
		if err != nil {
			return err
		}

		result.Moved = moved
		result.Pending = affiliate.TotalCommissionPending.Sub(moved)
		result.Paid = paidTotal
		result.OrdersMarkedPaid = marked
		return nil
	})
	if errors.Is(err, errDuplicateEntry) {
		result.AlreadyProcessed = true
		result.Moved = decimal.Zero
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if !result.AlreadyProcessed {
		log.Printf("推广员 %d 结算 %s（申请 %s），参考号 %s", affiliateID, result.Moved.String(), amount.String(), reference)
		l.events.Publish(Event{
			Type:        EventCommissionPaid,
			AffiliateID: affiliateID,
			Payload: map[string]interface{}{
				"reference": reference,
				"requested": amount.String(),
				"moved":     result.Moved.String(),
			},
		})
	}
	return result, nil
}

// markOrdersPaid 按入账先后把推广订单标记为已结算，直到累计已结算金额不够覆盖下一笔
func markOrdersPaid(tx *gorm.DB, affiliateID int, paidTotal decimal.Decimal, now time.Time) (int, error) {
	var alreadyPaid []affiliate_model.AffiliateOrder
	if err := tx.Select("commission_amount").
		Where("affiliate_id = ? AND commission_status = ?", affiliateID, affiliate_model.CommissionPaid).
		Find(&alreadyPaid).Error; err != nil {
		return 0, fmt.Errorf("查询已结算推广订单失败: %w", err)
	}
	budget := paidTotal
	for _, o := range alreadyPaid {
		budget = budget.Sub(o.CommissionAmount)
	}

	credited := tx.Model(&affiliate_model.CommissionEntry{}).Select("order_id").Where("affiliate_id = ?", affiliateID)
	var pending []affiliate_model.AffiliateOrder
	if err := tx.Where("affiliate_id = ? AND commission_status = ? AND order_id IN (?)",
		affiliateID, affiliate_model.CommissionPending, credited).
		Order("id").Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("查询待结算推广订单失败: %w", err)
	}

	marked := 0
	for _, o := range pending {
		if o.CommissionAmount.GreaterThan(budget) {
			break
		}
		if err := tx.Model(&affiliate_model.AffiliateOrder{}).Where("id = ?", o.Id).
			Updates(map[string]interface{}{
				"commission_status": affiliate_model.CommissionPaid,
				"update_time":       now,
			}).Error; err != nil {
			return marked, fmt.Errorf("标记推广订单已结算失败: %w", err)
		}
		budget = budget.Sub(o.CommissionAmount)
		marked++
	}
	return marked, nil
}

// History 推广员的佣金流水，按时间倒序
func (l *CommissionLedger) History(ctx context.Context, affiliateID, page, pageSize int) ([]affiliate_model.CommissionEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	q := l.db.WithContext(ctx).Model(&affiliate_model.CommissionEntry{}).Where("affiliate_id = ?", affiliateID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计佣金记录失败: %w", err)
	}

	entries := make([]affiliate_model.CommissionEntry, 0)
	if err := l.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID).
		Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("查询佣金记录失败: %w", err)
	}
	return entries, total, nil
}
