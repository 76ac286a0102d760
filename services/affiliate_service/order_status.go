package affiliate_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"nasa-go-affiliate/model/affiliate_model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"   // 待支付
	StatusPaid      OrderStatus = "paid"      // 已支付
	StatusShipped   OrderStatus = "shipped"   // 已发货
	StatusDelivered OrderStatus = "delivered" // 已送达
	StatusCompleted OrderStatus = "completed" // 已完成
	StatusCancelled OrderStatus = "cancelled" // 已取消
	StatusRefunded  OrderStatus = "refunded"  // 已退款
)

// 操作者
const (
	OperatorAdmin  = "admin"
	OperatorSystem = "system"
	OperatorSeller = "seller"
)

// OrderStatusTransition 订单状态转换规则
type OrderStatusTransition struct {
	From        OrderStatus `json:"from"`
	To          OrderStatus `json:"to"`
	AllowedBy   []string    `json:"allowed_by"`
	Description string      `json:"description"`
}

var orderStatusRules = []OrderStatusTransition{
	{StatusPending, StatusPaid, []string{OperatorSystem, OperatorAdmin}, "支付完成"},
	{StatusPending, StatusCancelled, []string{OperatorSystem, OperatorAdmin}, "超时或人工取消"},

	{StatusPaid, StatusShipped, []string{OperatorSeller, OperatorAdmin}, "卖家发货"},
	{StatusPaid, StatusRefunded, []string{OperatorSystem, OperatorAdmin}, "退款"},
	{StatusPaid, StatusCancelled, []string{OperatorAdmin}, "管理员强制取消"},

	{StatusShipped, StatusDelivered, []string{OperatorSystem, OperatorAdmin}, "确认送达"},
	{StatusShipped, StatusRefunded, []string{OperatorAdmin}, "退货退款"},

	{StatusDelivered, StatusCompleted, []string{OperatorSystem, OperatorAdmin}, "确认收货"},
	{StatusDelivered, StatusRefunded, []string{OperatorAdmin}, "收货后退款"},

	{StatusCompleted, StatusRefunded, []string{OperatorAdmin}, "特殊情况退款"},
}

// 订单状态变化时需要联动的库存动作：只有订单当前库存状态匹配时才执行
var inventoryHooks = map[OrderStatus]struct {
	when   affiliate_model.InventoryStatus
	action InventoryAction
}{
	StatusPaid:      {affiliate_model.InventoryReserved, ActionAllocate},
	StatusShipped:   {affiliate_model.InventoryAllocated, ActionShip},
	StatusCancelled: {affiliate_model.InventoryReserved, ActionRelease},
}

// StatusChangeResult 状态变更结果
type StatusChangeResult struct {
	OrderID    int               `json:"order_id"`
	From       OrderStatus       `json:"from"`
	To         OrderStatus       `json:"to"`
	Changed    bool              `json:"changed"`
	Inventory  *InventoryResult  `json:"inventory,omitempty"`
	Commission *CommissionResult `json:"commission,omitempty"`
}

// OrderStatusManager 订单状态管理，联动库存账本和佣金账本
type OrderStatusManager struct {
	db          *gorm.DB
	inventory   *InventoryLedger
	commissions *CommissionLedger
	events      *EventDispatcher
	now         func() time.Time
}

func NewOrderStatusManager(db *gorm.DB, inventory *InventoryLedger, commissions *CommissionLedger, events *EventDispatcher) *OrderStatusManager {
	return &OrderStatusManager{
		db:          db,
		inventory:   inventory,
		commissions: commissions,
		events:      events,
		now:         time.Now,
	}
}

// ValidateTransition 验证状态转换是否合法
func ValidateTransition(from, to OrderStatus, operator string) error {
	for _, rule := range orderStatusRules {
		if rule.From != from || rule.To != to {
			continue
		}
		for _, role := range rule.AllowedBy {
			if role == operator {
				return nil
			}
		}
		return fmt.Errorf("%w: 操作者 %s 无权限执行 %s -> %s", ErrInvalidStatusTransition, operator, from, to)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}

// AllowedTransitions 当前状态下操作者可以转到的状态
func AllowedTransitions(current OrderStatus, operator string) []OrderStatus {
	allowed := make([]OrderStatus, 0)
	for _, rule := range orderStatusRules {
		if rule.From != current {
			continue
		}
		for _, role := range rule.AllowedBy {
			if role == operator {
				allowed = append(allowed, rule.To)
				break
			}
		}
	}
	return allowed
}

// UpdateOrderStatus 更新订单状态，库存联动和状态变更在同一事务；佣金在提交后计算，失败时状态保留并返回 ErrCommissionFailed
func (m *OrderStatusManager) UpdateOrderStatus(ctx context.Context, orderID int, newStatus OrderStatus, operator, reason string) (*StatusChangeResult, error) {
	result := &StatusChangeResult{OrderID: orderID, To: newStatus}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order affiliate_model.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("查询订单失败: %w", err)
		}

		current := OrderStatus(order.Status)
		result.From = current
		if current == newStatus {
			return nil
		}
		if err := ValidateTransition(current, newStatus, operator); err != nil {
			return err
		}

		now := m.now()
		res := tx.Model(&affiliate_model.Order{}).
			Where("id = ? AND status = ?", order.Id, order.Status).
			Updates(map[string]interface{}{
				"status":      string(newStatus),
				"update_time": now,
			})
		if res.Error != nil {
			return fmt.Errorf("更新订单状态失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: 订单状态已被修改", ErrInvalidStatusTransition)
		}

		history := affiliate_model.OrderStatusHistory{
			OrderId:    order.Id,
			FromStatus: string(current),
			ToStatus:   string(newStatus),
			Operator:   operator,
			Reason:     reason,
			CreateTime: now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("记录状态变更历史失败: %w", err)
		}

		if hook, ok := inventoryHooks[newStatus]; ok && order.SellerId != nil && order.InventoryStatus == hook.when {
			inv, err := m.inventory.ApplyTx(tx, hook.action, order.Id, nil)
			if err != nil {
				return fmt.Errorf("库存联动失败: %w", err)
			}
			result.Inventory = inv
		}

		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		log.Printf("✅ 订单 %d 状态已更新: %s -> %s (操作者: %s)", orderID, result.From, newStatus, operator)
		m.events.Publish(Event{
			Type:    EventOrderStatusChanged,
			OrderID: orderID,
			Payload: map[string]interface{}{
				"from":     string(result.From),
				"to":       string(newStatus),
				"operator": operator,
			},
		})
	}

	// 每次写入 shipped/delivered 都触发佣金，重复提交同一状态即可重试，账本保证只入账一次
	if newStatus == StatusShipped || newStatus == StatusDelivered {
		commission, err := m.commissions.CalculateCommissionForOrder(ctx, orderID, string(newStatus))
		if err != nil {
			log.Printf("订单 %d 佣金计算失败，可重新提交状态 %s 重试: %v", orderID, newStatus, err)
			return nil, fmt.Errorf("%w: %w", ErrCommissionFailed, err)
		}
		result.Commission = commission
	}
	return result, nil
}

// History 订单状态变更历史
func (m *OrderStatusManager) History(ctx context.Context, orderID int) ([]affiliate_model.OrderStatusHistory, error) {
	var history []affiliate_model.OrderStatusHistory
	if err := m.db.WithContext(ctx).Where("order_id = ?", orderID).
		Order("id ASC").Find(&history).Error; err != nil {
		return nil, fmt.Errorf("查询订单状态历史失败: %w", err)
	}
	return history, nil
}
