package affiliate_service

import (
	"context"
	"errors"
	"testing"

	"nasa-go-affiliate/model/affiliate_model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newStatusManager(d *gorm.DB) (*OrderStatusManager, *InventoryLedger) {
	inv := NewInventoryLedger(d, nil)
	return NewOrderStatusManager(d, inv, NewCommissionLedger(d, 2, nil), nil), inv
}

func seedSellerOrder(t *testing.T, d *gorm.DB, inv *InventoryLedger, seller, qty int, code *string) affiliate_model.Order {
	t.Helper()
	ctx := context.Background()
	p := seedProduct(t, d, "100", 0)
	_, err := inv.Restock(ctx, seller, p.Id, 10)
	require.NoError(t, err)

	total := decimal.NewFromInt(int64(100 * qty))
	order := seedOrder(t, d, total.String(), code, intPtr(seller))
	require.NoError(t, d.Create(&affiliate_model.OrderItem{
		OrderId: order.Id, ProductId: p.Id, Quantity: qty,
		UnitPrice: decimal.NewFromInt(100), LineAmount: total,
	}).Error)
	_, err = inv.Reserve(ctx, order.Id, nil)
	require.NoError(t, err)
	return order
}

func TestOrderStatusDrivesInventoryAndCommission(t *testing.T) {
	d := newTestDB(t)
	m, inv := newStatusManager(d)
	ctx := context.Background()
	const seller = 11

	a := seedAffiliate(t, d, "FLOW", affiliate_model.AffiliateActive, 10)
	order := seedSellerOrder(t, d, inv, seller, 2, strPtr("FLOW"))
	var item affiliate_model.OrderItem
	require.NoError(t, d.Where("order_id = ?", order.Id).First(&item).Error)

	res, err := m.UpdateOrderStatus(ctx, order.Id, StatusPaid, OperatorSystem, "paid")
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.NotNil(t, res.Inventory)
	require.Equal(t, ActionAllocate, res.Inventory.Action)
	row := loadSellerInventory(t, d, seller, item.ProductId)
	require.Equal(t, 8, row.Stock)
	require.Equal(t, 0, row.ReservedStock)

	res, err = m.UpdateOrderStatus(ctx, order.Id, StatusShipped, OperatorSeller, "")
	require.NoError(t, err)
	require.Equal(t, affiliate_model.InventoryShipped, orderInventoryStatus(t, d, order.Id))
	require.NotNil(t, res.Commission)
	require.Equal(t, CommissionSuccess, res.Commission.Kind)
	requireDecimal(t, "20", res.Commission.Amount)

	res, err = m.UpdateOrderStatus(ctx, order.Id, StatusDelivered, OperatorSystem, "")
	require.NoError(t, err)
	require.Equal(t, CommissionAlreadyProcessed, res.Commission.Kind)
	requireDecimal(t, "20", reloadAffiliate(t, d, a.Id).TotalCommissionEarned)

	row = loadSellerInventory(t, d, seller, item.ProductId)
	require.Equal(t, 2, row.TotalSold)

	history, err := m.History(ctx, order.Id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "pending", history[0].FromStatus)
	require.Equal(t, "delivered", history[2].ToStatus)

	// 同状态重复提交不产生记录
	res, err = m.UpdateOrderStatus(ctx, order.Id, StatusDelivered, OperatorSystem, "")
	require.NoError(t, err)
	require.False(t, res.Changed)
	history, err = m.History(ctx, order.Id)
	require.NoError(t, err)
	require.Len(t, history, 3)
}

func TestOrderCancelReleasesReservation(t *testing.T) {
	d := newTestDB(t)
	m, inv := newStatusManager(d)
	const seller = 12

	order := seedSellerOrder(t, d, inv, seller, 3, nil)
	res, err := m.UpdateOrderStatus(context.Background(), order.Id, StatusCancelled, OperatorAdmin, "customer request")
	require.NoError(t, err)
	require.NotNil(t, res.Inventory)
	require.Equal(t, affiliate_model.InventoryReleased, orderInventoryStatus(t, d, order.Id))

	var item affiliate_model.OrderItem
	require.NoError(t, d.Where("order_id = ?", order.Id).First(&item).Error)
	row := loadSellerInventory(t, d, seller, item.ProductId)
	require.Equal(t, 10, row.Stock)
	require.Equal(t, 0, row.ReservedStock)
}

func TestOrderStatusRejectsInvalidTransitions(t *testing.T) {
	d := newTestDB(t)
	m, _ := newStatusManager(d)
	ctx := context.Background()

	order := seedOrder(t, d, "10", nil, nil)
	_, err := m.UpdateOrderStatus(ctx, order.Id, StatusDelivered, OperatorAdmin, "")
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = m.UpdateOrderStatus(ctx, order.Id, StatusPaid, OperatorSeller, "")
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = m.UpdateOrderStatus(ctx, 777777, StatusPaid, OperatorAdmin, "")
	require.ErrorIs(t, err, ErrOrderNotFound)

	// 没有卖家的订单只改状态，不做库存联动
	res, err := m.UpdateOrderStatus(ctx, order.Id, StatusPaid, OperatorAdmin, "")
	require.NoError(t, err)
	require.Nil(t, res.Inventory)

	require.ElementsMatch(t,
		[]OrderStatus{StatusShipped, StatusRefunded, StatusCancelled},
		AllowedTransitions(StatusPaid, OperatorAdmin))
	require.Empty(t, AllowedTransitions(StatusRefunded, OperatorAdmin))
}

func TestCommissionRetriedOnRepeatedStatus(t *testing.T) {
	d := newTestDB(t)
	m, _ := newStatusManager(d)
	ctx := context.Background()

	// 第一次写佣金流水失败，模拟存储抖动
	failed := false
	require.NoError(t, d.Callback().Create().Before("gorm:create").Register("test:fail_commission_once", func(tx *gorm.DB) {
		if tx.Statement.Table == "affiliate_commission_entry" && !failed {
			failed = true
			_ = tx.AddError(errors.New("connection reset"))
		}
	}))

	a := seedAffiliate(t, d, "RETRY", affiliate_model.AffiliateActive, 10)
	order := seedOrder(t, d, "500", strPtr("RETRY"), nil)
	_, err := m.UpdateOrderStatus(ctx, order.Id, StatusPaid, OperatorAdmin, "")
	require.NoError(t, err)

	_, err = m.UpdateOrderStatus(ctx, order.Id, StatusShipped, OperatorAdmin, "")
	require.ErrorIs(t, err, ErrCommissionFailed)
	require.True(t, failed)

	// 状态已经提交，佣金没有入账
	var stored affiliate_model.Order
	require.NoError(t, d.First(&stored, order.Id).Error)
	require.Equal(t, string(StatusShipped), stored.Status)
	var entries int64
	require.NoError(t, d.Model(&affiliate_model.CommissionEntry{}).Count(&entries).Error)
	require.Zero(t, entries)

	res, err := m.UpdateOrderStatus(ctx, order.Id, StatusShipped, OperatorAdmin, "")
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.NotNil(t, res.Commission)
	require.Equal(t, CommissionSuccess, res.Commission.Kind)
	requireDecimal(t, "50", res.Commission.Amount)

	res, err = m.UpdateOrderStatus(ctx, order.Id, StatusShipped, OperatorAdmin, "")
	require.NoError(t, err)
	require.Equal(t, CommissionAlreadyProcessed, res.Commission.Kind)

	require.NoError(t, d.Model(&affiliate_model.CommissionEntry{}).Count(&entries).Error)
	require.Equal(t, int64(1), entries)
	requireDecimal(t, "50", reloadAffiliate(t, d, a.Id).TotalCommissionEarned)
}
