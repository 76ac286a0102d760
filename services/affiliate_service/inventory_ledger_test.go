package affiliate_service

import (
	"context"
	"testing"

	"nasa-go-affiliate/model/affiliate_model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func loadSellerInventory(t *testing.T, d *gorm.DB, sellerID, productID int) affiliate_model.SellerInventory {
	t.Helper()
	var row affiliate_model.SellerInventory
	require.NoError(t, d.Where("seller_id = ? AND product_id = ?", sellerID, productID).First(&row).Error)
	return row
}

func orderInventoryStatus(t *testing.T, d *gorm.DB, orderID int) affiliate_model.InventoryStatus {
	t.Helper()
	var o affiliate_model.Order
	require.NoError(t, d.Select("inventory_status").First(&o, orderID).Error)
	return o.InventoryStatus
}

func TestInventoryReserveAllocateShipConservesStock(t *testing.T) {
	d := newTestDB(t)
	ledger := NewInventoryLedger(d, nil)
	ctx := context.Background()
	const seller = 7

	p := seedProduct(t, d, "250", 0)
	_, err := ledger.Restock(ctx, seller, p.Id, 10)
	require.NoError(t, err)

	order := seedOrder(t, d, "750", nil, intPtr(seller))
	items := []InventoryItem{{ProductID: p.Id, Quantity: 3, LineAmount: decimal.NewFromInt(750)}}

	res, err := ledger.Reserve(ctx, order.Id, items)
	require.NoError(t, err)
	require.True(t, res.Applied)
	row := loadSellerInventory(t, d, seller, p.Id)
	require.Equal(t, 10, row.Stock)
	require.Equal(t, 3, row.ReservedStock)
	require.Equal(t, affiliate_model.InventoryReserved, orderInventoryStatus(t, d, order.Id))

	// 重复预留不重复记账
	res, err = ledger.Reserve(ctx, order.Id, items)
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, 3, loadSellerInventory(t, d, seller, p.Id).ReservedStock)

	_, err = ledger.Allocate(ctx, order.Id, items)
	require.NoError(t, err)
	row = loadSellerInventory(t, d, seller, p.Id)
	require.Equal(t, 7, row.Stock)
	require.Equal(t, 0, row.ReservedStock)

	_, err = ledger.Ship(ctx, order.Id, items)
	require.NoError(t, err)
	row = loadSellerInventory(t, d, seller, p.Id)
	require.Equal(t, 7, row.Stock)
	require.Equal(t, 0, row.ReservedStock)
	require.Equal(t, 3, row.TotalSold)
	requireDecimal(t, "750", row.TotalRevenue)
	require.NotNil(t, row.LastSaleAt)
	require.Equal(t, affiliate_model.InventoryShipped, orderInventoryStatus(t, d, order.Id))

	res, err = ledger.Ship(ctx, order.Id, items)
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, 3, loadSellerInventory(t, d, seller, p.Id).TotalSold)
}

func TestInventoryReleaseRestoresReservation(t *testing.T) {
	d := newTestDB(t)
	ledger := NewInventoryLedger(d, nil)
	ctx := context.Background()
	const seller = 3

	p := seedProduct(t, d, "100", 0)
	_, err := ledger.Restock(ctx, seller, p.Id, 5)
	require.NoError(t, err)

	order := seedOrder(t, d, "200", nil, intPtr(seller))
	items := []InventoryItem{{ProductID: p.Id, Quantity: 2, LineAmount: decimal.NewFromInt(200)}}

	_, err = ledger.Reserve(ctx, order.Id, items)
	require.NoError(t, err)
	_, err = ledger.Release(ctx, order.Id, items)
	require.NoError(t, err)

	row := loadSellerInventory(t, d, seller, p.Id)
	require.Equal(t, 5, row.Stock)
	require.Equal(t, 0, row.ReservedStock)
	require.Equal(t, affiliate_model.InventoryReleased, orderInventoryStatus(t, d, order.Id))

	// released 之后不能再分配或发货
	_, err = ledger.Allocate(ctx, order.Id, items)
	require.ErrorIs(t, err, ErrInvalidInventoryAction)
	_, err = ledger.Ship(ctx, order.Id, items)
	require.ErrorIs(t, err, ErrInvalidInventoryAction)
}

func TestInventoryRejectsInvalidTransitions(t *testing.T) {
	d := newTestDB(t)
	ledger := NewInventoryLedger(d, nil)
	ctx := context.Background()

	p := seedProduct(t, d, "10", 0)
	_, err := ledger.Restock(ctx, 1, p.Id, 5)
	require.NoError(t, err)
	order := seedOrder(t, d, "10", nil, intPtr(1))
	items := []InventoryItem{{ProductID: p.Id, Quantity: 1, LineAmount: decimal.NewFromInt(10)}}

	_, err = ledger.Allocate(ctx, order.Id, items)
	require.ErrorIs(t, err, ErrInvalidInventoryAction)
	_, err = ledger.Ship(ctx, order.Id, items)
	require.ErrorIs(t, err, ErrInvalidInventoryAction)

	noSeller := seedOrder(t, d, "10", nil, nil)
	_, err = ledger.Reserve(ctx, noSeller.Id, items)
	require.ErrorIs(t, err, ErrSellerRequired)

	_, err = ledger.Reserve(ctx, 987654, items)
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, ok := ParseInventoryAction("teleport")
	require.False(t, ok)
}

func TestInventoryReserveIsAllOrNothing(t *testing.T) {
	d := newTestDB(t)
	ledger := NewInventoryLedger(d, nil)
	ctx := context.Background()
	const seller = 9

	plenty := seedProduct(t, d, "10", 0)
	scarce := seedProduct(t, d, "10", 0)
	_, err := ledger.Restock(ctx, seller, plenty.Id, 10)
	require.NoError(t, err)
	_, err = ledger.Restock(ctx, seller, scarce.Id, 1)
	require.NoError(t, err)

	order := seedOrder(t, d, "50", nil, intPtr(seller))
	items := []InventoryItem{
		{ProductID: plenty.Id, Quantity: 3, LineAmount: decimal.NewFromInt(30)},
		{ProductID: scarce.Id, Quantity: 2, LineAmount: decimal.NewFromInt(20)},
	}

	_, err = ledger.Reserve(ctx, order.Id, items)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 1, stockErr.Available)
	require.EqualError(t, err, "insufficient stock, available: 1")

	// 第一行的预留随事务一起回滚
	require.Equal(t, 0, loadSellerInventory(t, d, seller, plenty.Id).ReservedStock)
	require.Equal(t, affiliate_model.InventoryAvailable, orderInventoryStatus(t, d, order.Id))
}

func TestInventoryItemsDefaultToOrderLines(t *testing.T) {
	d := newTestDB(t)
	ledger := NewInventoryLedger(d, nil)
	ctx := context.Background()
	const seller = 4

	p := seedProduct(t, d, "20", 0)
	_, err := ledger.Restock(ctx, seller, p.Id, 4)
	require.NoError(t, err)
	order := seedOrder(t, d, "40", nil, intPtr(seller))
	require.NoError(t, d.Create(&affiliate_model.OrderItem{
		OrderId: order.Id, ProductId: p.Id, Quantity: 2,
		UnitPrice: decimal.NewFromInt(20), LineAmount: decimal.NewFromInt(40),
	}).Error)

	_, err = ledger.Apply(ctx, ActionReserve, order.Id, nil)
	require.NoError(t, err)
	require.Equal(t, 2, loadSellerInventory(t, d, seller, p.Id).ReservedStock)
}

func TestInventoryItemsMustMatchOrderLines(t *testing.T) {
	d := newTestDB(t)
	ledger := NewInventoryLedger(d, nil)
	ctx := context.Background()
	const seller = 5

	p := seedProduct(t, d, "20", 0)
	_, err := ledger.Restock(ctx, seller, p.Id, 10)
	require.NoError(t, err)
	order := seedOrder(t, d, "40", nil, intPtr(seller))
	require.NoError(t, d.Create(&affiliate_model.OrderItem{
		OrderId: order.Id, ProductId: p.Id, Quantity: 2,
		UnitPrice: decimal.NewFromInt(20), LineAmount: decimal.NewFromInt(40),
	}).Error)

	// 预留数量和订单明细不一致
	_, err = ledger.Reserve(ctx, order.Id, []InventoryItem{{ProductID: p.Id, Quantity: 5}})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Equal(t, 0, loadSellerInventory(t, d, seller, p.Id).ReservedStock)
	require.Equal(t, affiliate_model.InventoryAvailable, orderInventoryStatus(t, d, order.Id))

	_, err = ledger.Reserve(ctx, order.Id, []InventoryItem{{ProductID: p.Id, Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, 2, loadSellerInventory(t, d, seller, p.Id).ReservedStock)

	_, err = ledger.Allocate(ctx, order.Id, []InventoryItem{{ProductID: p.Id, Quantity: 1}})
	require.ErrorIs(t, err, ErrInvalidInput)

	// 订单状态联动不带 items，按明细分配，预留全部转为扣减
	_, err = ledger.Allocate(ctx, order.Id, nil)
	require.NoError(t, err)
	row := loadSellerInventory(t, d, seller, p.Id)
	require.Equal(t, 8, row.Stock)
	require.Equal(t, 0, row.ReservedStock)
}

func TestInventoryReserveRecordsLinesForOrderWithoutItems(t *testing.T) {
	d := newTestDB(t)
	ledger := NewInventoryLedger(d, nil)
	ctx := context.Background()
	const seller = 6

	p := seedProduct(t, d, "30", 0)
	_, err := ledger.Restock(ctx, seller, p.Id, 10)
	require.NoError(t, err)
	order := seedOrder(t, d, "150", nil, intPtr(seller))

	_, err = ledger.Reserve(ctx, order.Id, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ledger.Reserve(ctx, order.Id, []InventoryItem{{ProductID: p.Id, Quantity: 5, LineAmount: decimal.NewFromInt(150)}})
	require.NoError(t, err)

	lines, err := ItemsForOrder(d, order.Id)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, 5, lines[0].Quantity)
	requireDecimal(t, "150", lines[0].LineAmount)

	_, err = ledger.Release(ctx, order.Id, []InventoryItem{{ProductID: p.Id, Quantity: 2}})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Equal(t, 5, loadSellerInventory(t, d, seller, p.Id).ReservedStock)

	_, err = ledger.Release(ctx, order.Id, nil)
	require.NoError(t, err)
	row := loadSellerInventory(t, d, seller, p.Id)
	require.Equal(t, 10, row.Stock)
	require.Equal(t, 0, row.ReservedStock)
}

func TestInventoryReserveWithoutRestockFails(t *testing.T) {
	d := newTestDB(t)
	ledger := NewInventoryLedger(d, nil)
	const seller = 8

	p := seedProduct(t, d, "10", 0)
	order := seedOrder(t, d, "10", nil, intPtr(seller))
	items := []InventoryItem{{ProductID: p.Id, Quantity: 1, LineAmount: decimal.NewFromInt(10)}}

	_, err := ledger.Reserve(context.Background(), order.Id, items)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 0, stockErr.Available)

	// 预留不会创建库存行，整单回滚
	var rows int64
	require.NoError(t, d.Model(&affiliate_model.SellerInventory{}).Count(&rows).Error)
	require.Zero(t, rows)
	lines, err := ItemsForOrder(d, order.Id)
	require.NoError(t, err)
	require.Empty(t, lines)
	require.Equal(t, affiliate_model.InventoryAvailable, orderInventoryStatus(t, d, order.Id))
}
