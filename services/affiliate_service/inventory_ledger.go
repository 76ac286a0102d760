package affiliate_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"nasa-go-affiliate/model/affiliate_model"
	"nasa-go-affiliate/pkg/monitoring"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryAction 库存动作
type InventoryAction string

const (
	ActionReserve  InventoryAction = "reserve"
	ActionAllocate InventoryAction = "allocate"
	ActionRelease  InventoryAction = "release"
	ActionShip     InventoryAction = "ship"
)

type inventoryTransition struct {
	from affiliate_model.InventoryStatus
	to   affiliate_model.InventoryStatus
}

// 订单库存状态流转表：Available→Reserved→Allocated→Shipped，Reserved→Released
var inventoryTransitions = map[InventoryAction]inventoryTransition{
	ActionReserve:  {from: affiliate_model.InventoryAvailable, to: affiliate_model.InventoryReserved},
	ActionAllocate: {from: affiliate_model.InventoryReserved, to: affiliate_model.InventoryAllocated},
	ActionRelease:  {from: affiliate_model.InventoryReserved, to: affiliate_model.InventoryReleased},
	ActionShip:     {from: affiliate_model.InventoryAllocated, to: affiliate_model.InventoryShipped},
}

// ParseInventoryAction 解析路由里的动作名
func ParseInventoryAction(s string) (InventoryAction, bool) {
	a := InventoryAction(s)
	_, ok := inventoryTransitions[a]
	return a, ok
}

// InventoryItem 订单中的一行
type InventoryItem struct {
	ProductID  int             `json:"product_id"`
	Quantity   int             `json:"quantity"`
	LineAmount decimal.Decimal `json:"line_amount"`
}

// InventoryResult Applied=false 表示订单已经处于目标状态，本次没有改动库存
type InventoryResult struct {
	OrderID int                             `json:"order_id"`
	Action  InventoryAction                 `json:"action"`
	From    affiliate_model.InventoryStatus `json:"from"`
	To      affiliate_model.InventoryStatus `json:"to"`
	Applied bool                            `json:"applied"`
}

// InventoryLedger 卖家库存账本，库存计数只允许这里修改
type InventoryLedger struct {
	db     *gorm.DB
	now    func() time.Time
	events *EventDispatcher
}

func NewInventoryLedger(db *gorm.DB, events *EventDispatcher) *InventoryLedger {
	return &InventoryLedger{db: db, now: time.Now, events: events}
}

// Reserve 预留库存，reserved += q；可售不足时整单失败
func (l *InventoryLedger) Reserve(ctx context.Context, orderID int, items []InventoryItem) (*InventoryResult, error) {
	return l.apply(ctx, ActionReserve, orderID, items)
}

// Allocate 预留转为实际扣减，stock -= q，reserved -= q
func (l *InventoryLedger) Allocate(ctx context.Context, orderID int, items []InventoryItem) (*InventoryResult, error) {
	return l.apply(ctx, ActionAllocate, orderID, items)
}

// Release 取消预留，reserved -= q
func (l *InventoryLedger) Release(ctx context.Context, orderID int, items []InventoryItem) (*InventoryResult, error) {
	return l.apply(ctx, ActionRelease, orderID, items)
}

// Ship 记录销量和销售额，不再改动 stock / reserved
func (l *InventoryLedger) Ship(ctx context.Context, orderID int, items []InventoryItem) (*InventoryResult, error) {
	return l.apply(ctx, ActionShip, orderID, items)
}

// Apply 按动作名执行，管理后台使用
func (l *InventoryLedger) Apply(ctx context.Context, action InventoryAction, orderID int, items []InventoryItem) (*InventoryResult, error) {
	return l.apply(ctx, action, orderID, items)
}

func (l *InventoryLedger) apply(ctx context.Context, action InventoryAction, orderID int, items []InventoryItem) (*InventoryResult, error) {
	var result *InventoryResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = l.ApplyTx(tx, action, orderID, items)
		return err
	})
	if err != nil {
		monitoring.RecordInventoryTransition(string(action), "failed")
		return nil, err
	}

	if result.Applied {
		monitoring.RecordInventoryTransition(string(action), "applied")
		l.events.Publish(Event{
			Type:    EventInventoryChanged,
			OrderID: orderID,
			Payload: map[string]interface{}{
				"action": string(action),
				"from":   string(result.From),
				"to":     string(result.To),
			},
		})
	} else {
		monitoring.RecordInventoryTransition(string(action), "noop")
	}
	return result, nil
}

// ApplyTx 在调用方的事务中执行。库存始终按订单明细记账：items 为空时直接读明细，
// 不为空时必须和明细一致；订单还没有明细时，预留会把 items 记为订单明细，之后的动作都按它执行
func (l *InventoryLedger) ApplyTx(tx *gorm.DB, action InventoryAction, orderID int, items []InventoryItem) (*InventoryResult, error) {
	transition, ok := inventoryTransitions[action]
	if !ok {
		return nil, invalidInput("unknown inventory action %q", action)
	}

	var order affiliate_model.Order
	if err := tx.Select("id", "seller_id", "inventory_status").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}

	result := &InventoryResult{OrderID: orderID, Action: action, From: order.InventoryStatus, To: transition.to}
	if order.InventoryStatus == transition.to {
		// 重复执行同一动作不重复记账
		return result, nil
	}
	if order.InventoryStatus != transition.from {
		return nil, fmt.Errorf("%w: %s from %q", ErrInvalidInventoryAction, action, order.InventoryStatus)
	}
	if order.SellerId == nil {
		return nil, ErrSellerRequired
	}

	lines, err := l.orderLines(tx, action, orderID, items)
	if err != nil {
		return nil, err
	}

	// 先抢占订单状态，并发的同一动作只有一个能继续
	cas := tx.Model(&affiliate_model.Order{}).
		Where("id = ? AND inventory_status = ?", orderID, transition.from).
		Updates(map[string]interface{}{
			"inventory_status": transition.to,
			"update_time":      l.now(),
		})
	if cas.Error != nil {
		return nil, fmt.Errorf("更新订单库存状态失败: %w", cas.Error)
	}
	if cas.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: order %d changed concurrently", ErrInvalidInventoryAction, orderID)
	}

	sellerID := *order.SellerId
	for _, item := range lines {
		if err := l.applyItem(tx, action, sellerID, item); err != nil {
			return nil, err
		}
	}

	result.Applied = true
	log.Printf("📦 订单 %d 库存状态 %q -> %q (%s)", orderID, transition.from, transition.to, action)
	return result, nil
}

func (l *InventoryLedger) applyItem(tx *gorm.DB, action InventoryAction, sellerID int, item InventoryItem) error {
	now := l.now()
	base := tx.Model(&affiliate_model.SellerInventory{}).
		Where("seller_id = ? AND product_id = ? AND is_active = ?", sellerID, item.ProductID, true)

	var res *gorm.DB
	switch action {
	case ActionReserve:
		// 库存行由 Restock 创建，没有入库记录的商品按可售 0 处理
		res = base.Where("stock - reserved_stock >= ?", item.Quantity).
			Updates(map[string]interface{}{
				"reserved_stock": gorm.Expr("reserved_stock + ?", item.Quantity),
				"update_time":    now,
			})
	case ActionAllocate:
		res = base.Where("reserved_stock >= ? AND stock >= ?", item.Quantity, item.Quantity).
			Updates(map[string]interface{}{
				"stock":          gorm.Expr("stock - ?", item.Quantity),
				"reserved_stock": gorm.Expr("reserved_stock - ?", item.Quantity),
				"update_time":    now,
			})
	case ActionRelease:
		res = base.Where("reserved_stock >= ?", item.Quantity).
			Updates(map[string]interface{}{
				"reserved_stock": gorm.Expr("reserved_stock - ?", item.Quantity),
				"update_time":    now,
			})
	case ActionShip:
		res = base.Updates(map[string]interface{}{
			"total_sold":    gorm.Expr("total_sold + ?", item.Quantity),
			"total_revenue": gorm.Expr("total_revenue + ?", item.LineAmount),
			"last_sale_at":  now,
			"update_time":   now,
		})
	}

	if res.Error != nil {
		return fmt.Errorf("更新卖家库存失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if action == ActionReserve {
			return &InsufficientStockError{ProductID: item.ProductID, Available: sellerAvailable(tx, sellerID, item.ProductID)}
		}
		return fmt.Errorf("%w: seller %d product %d cannot %s %d", ErrInvalidInventoryAction, sellerID, item.ProductID, action, item.Quantity)
	}
	return nil
}

// orderLines 本次动作要记账的明细
func (l *InventoryLedger) orderLines(tx *gorm.DB, action InventoryAction, orderID int, items []InventoryItem) ([]InventoryItem, error) {
	for _, item := range items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			return nil, invalidInput("invalid item for product %d, quantity %d", item.ProductID, item.Quantity)
		}
	}

	lines, err := ItemsForOrder(tx, orderID)
	if err != nil {
		return nil, err
	}

	if len(lines) == 0 {
		if len(items) == 0 || action != ActionReserve {
			return nil, invalidInput("order %d has no items", orderID)
		}
		if err := saveOrderLines(tx, orderID, items, l.now()); err != nil {
			return nil, err
		}
		return items, nil
	}

	if len(items) > 0 && !sameQuantities(items, lines) {
		return nil, invalidInput("items do not match the lines of order %d", orderID)
	}
	return lines, nil
}

// sameQuantities 按商品汇总数量后比较
func sameQuantities(a, b []InventoryItem) bool {
	sum := func(items []InventoryItem) map[int]int {
		m := make(map[int]int, len(items))
		for _, it := range items {
			m[it.ProductID] += it.Quantity
		}
		return m
	}
	qa, qb := sum(a), sum(b)
	if len(qa) != len(qb) {
		return false
	}
	for id, q := range qa {
		if qb[id] != q {
			return false
		}
	}
	return true
}

func saveOrderLines(tx *gorm.DB, orderID int, items []InventoryItem, now time.Time) error {
	rows := make([]affiliate_model.OrderItem, 0, len(items))
	for _, it := range items {
		rows = append(rows, affiliate_model.OrderItem{
			OrderId:    orderID,
			ProductId:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  it.LineAmount.Div(decimal.NewFromInt(int64(it.Quantity))).Round(2),
			LineAmount: it.LineAmount,
			CreateTime: now,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("记录订单明细失败: %w", err)
	}
	return nil
}

// ensureSellerInventory 入库时创建库存行
func ensureSellerInventory(tx *gorm.DB, sellerID, productID int, now time.Time) error {
	var count int64
	if err := tx.Model(&affiliate_model.SellerInventory{}).
		Where("seller_id = ? AND product_id = ?", sellerID, productID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("查询卖家库存失败: %w", err)
	}
	if count > 0 {
		return nil
	}

	row := affiliate_model.SellerInventory{
		SellerId:     sellerID,
		ProductId:    productID,
		TotalRevenue: decimal.Zero,
		IsActive:     true,
		CreateTime:   now,
		UpdateTime:   now,
	}
	if err := tx.Create(&row).Error; err != nil && !isDuplicateKey(err) {
		return fmt.Errorf("创建卖家库存失败: %w", err)
	}
	return nil
}

func sellerAvailable(tx *gorm.DB, sellerID, productID int) int {
	var row affiliate_model.SellerInventory
	if err := tx.Where("seller_id = ? AND product_id = ?", sellerID, productID).First(&row).Error; err != nil {
		return 0
	}
	if row.Available() < 0 {
		return 0
	}
	return row.Available()
}

// ItemsForOrder 从订单明细生成库存行
func ItemsForOrder(tx *gorm.DB, orderID int) ([]InventoryItem, error) {
	var rows []affiliate_model.OrderItem
	if err := tx.Where("order_id = ?", orderID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询订单明细失败: %w", err)
	}
	items := make([]InventoryItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, InventoryItem{ProductID: r.ProductId, Quantity: r.Quantity, LineAmount: r.LineAmount})
	}
	return items, nil
}

// Restock 卖家入库，stock += q，库存行不存在时创建
func (l *InventoryLedger) Restock(ctx context.Context, sellerID, productID, quantity int) (*affiliate_model.SellerInventory, error) {
	if sellerID <= 0 || productID <= 0 {
		return nil, invalidInput("seller and product are required")
	}
	if quantity <= 0 {
		return nil, invalidInput("quantity must be positive")
	}

	var row affiliate_model.SellerInventory
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()
		if err := ensureSellerInventory(tx, sellerID, productID, now); err != nil {
			return err
		}
		if err := tx.Model(&affiliate_model.SellerInventory{}).
			Where("seller_id = ? AND product_id = ?", sellerID, productID).
			Updates(map[string]interface{}{
				"stock":       gorm.Expr("stock + ?", quantity),
				"is_active":   true,
				"update_time": now,
			}).Error; err != nil {
			return fmt.Errorf("卖家入库失败: %w", err)
		}
		return tx.Where("seller_id = ? AND product_id = ?", sellerID, productID).First(&row).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("卖家 %d 商品 %d 入库 %d 件，当前库存 %d", sellerID, productID, quantity, row.Stock)
	return &row, nil
}
