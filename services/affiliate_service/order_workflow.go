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

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var validate = validator.New()

// CreateOrderInput 推广员代客户下单
type CreateOrderInput struct {
	AffiliateID     int    `validate:"required,gt=0"`
	CustomerPhone   string `validate:"required,min=6,max=32"`
	ProductID       int    `validate:"required,gt=0"`
	Quantity        int    `validate:"required,gt=0,lte=10000"`
	ShippingAddress string `validate:"required,max=255"`
	CustomerName    string `validate:"required,max=100"`
	Note            string `validate:"max=500"`
}

// CreateOrderResult 下单结果
type CreateOrderResult struct {
	Order          affiliate_model.Order          `json:"order"`
	Item           affiliate_model.OrderItem      `json:"item"`
	AffiliateOrder affiliate_model.AffiliateOrder `json:"affiliate_order"`
	Tier           TierInfo                       `json:"tier"`
	Commission     decimal.Decimal                `json:"commission"`
}

// OrderWorkflow 推广员下单流程：校验 → 计算佣金 → 同一事务内建单并扣库存
type OrderWorkflow struct {
	db     *gorm.DB
	tiers  *TierService
	scale  int32
	now    func() time.Time
	events *EventDispatcher
}

func NewOrderWorkflow(db *gorm.DB, tiers *TierService, moneyScale int32, events *EventDispatcher) *OrderWorkflow {
	return &OrderWorkflow{db: db, tiers: tiers, scale: moneyScale, now: time.Now, events: events}
}

// CreateAffiliateOrder 校验失败时没有任何副作用；建单和扣库存在同一个事务里
func (w *OrderWorkflow) CreateAffiliateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	result, err := w.create(ctx, in)
	if err != nil {
		var stockErr *InsufficientStockError
		switch {
		case errors.As(err, &stockErr):
			monitoring.RecordAffiliateOrder("insufficient_stock")
		case errors.Is(err, ErrAffiliateNotFound), errors.Is(err, ErrProductNotFound):
			monitoring.RecordAffiliateOrder("rejected")
		default:
			monitoring.RecordAffiliateOrder("failed")
		}
		return nil, err
	}

	monitoring.RecordAffiliateOrder("created")
	w.tiers.Invalidate(ctx, in.AffiliateID)
	log.Printf("✅ 推广员 %d 下单成功 订单号:%s 数量:%d 预计佣金:%s", in.AffiliateID, result.Order.No, in.Quantity, result.Commission.String())
	w.events.Publish(Event{
		Type:        EventOrderCreated,
		AffiliateID: in.AffiliateID,
		OrderID:     result.Order.Id,
		Payload: map[string]interface{}{
			"order_no":   result.Order.No,
			"product_id": in.ProductID,
			"quantity":   in.Quantity,
			"total":      result.Order.TotalAmount.String(),
			"commission": result.Commission.String(),
			"tier":       result.Tier.TierName,
		},
	})
	return result, nil
}

func (w *OrderWorkflow) create(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	d := w.db.WithContext(ctx)

	// 1. 推广员
	var affiliate affiliate_model.Affiliate
	if err := d.First(&affiliate, in.AffiliateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAffiliateNotFound
		}
		return nil, fmt.Errorf("查询推广员失败: %w", err)
	}
	if !affiliate.IsActive() {
		return nil, ErrAffiliateNotFound
	}

	// 2. 商品
	var product affiliate_model.Product
	if err := d.First(&product, in.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("查询商品失败: %w", err)
	}
	if product.Status != "1" {
		return nil, ErrProductNotFound
	}

	// 3. 可售库存
	if product.Available() < in.Quantity {
		return nil, &InsufficientStockError{ProductID: product.Id, Available: max(product.Available(), 0)}
	}

	// 4. 等级和佣金
	lifetime, err := countLifetimeOrders(d, affiliate.Id)
	if err != nil {
		return nil, err
	}
	tier := CalculateTier(lifetime)
	total := product.Price.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(w.scale)
	commission := commissionOf(total, tier.CommissionRatePercent).Round(w.scale)

	// 5-6. 建单、明细、推广订单、扣库存
	result := &CreateOrderResult{Tier: tier, Commission: commission}
	err = d.Transaction(func(tx *gorm.DB) error {
		now := w.now()
		code := affiliate.Code

		result.Order = affiliate_model.Order{
			No:              generateOrderNo(now),
			CustomerName:    in.CustomerName,
			CustomerPhone:   in.CustomerPhone,
			ShippingAddress: in.ShippingAddress,
			Note:            in.Note,
			TotalAmount:     total,
			Status:          "pending",
			AffiliateCode:   &code,
			CreateTime:      now,
			UpdateTime:      now,
		}
		if err := tx.Create(&result.Order).Error; err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}

		result.Item = affiliate_model.OrderItem{
			OrderId:    result.Order.Id,
			ProductId:  product.Id,
			Quantity:   in.Quantity,
			UnitPrice:  product.Price,
			LineAmount: total,
			CreateTime: now,
		}
		if err := tx.Create(&result.Item).Error; err != nil {
			return fmt.Errorf("创建订单明细失败: %w", err)
		}

		result.AffiliateOrder = affiliate_model.AffiliateOrder{
			OrderId:          result.Order.Id,
			AffiliateId:      affiliate.Id,
			OrderType:        affiliate_model.AffiliateOrderCreated,
			CommissionAmount: commission,
			CommissionRate:   tier.CommissionRatePercent,
			CommissionStatus: affiliate_model.CommissionPending,
			CreateTime:       now,
			UpdateTime:       now,
		}
		if err := tx.Create(&result.AffiliateOrder).Error; err != nil {
			return fmt.Errorf("创建推广订单失败: %w", err)
		}

		// 条件扣减，并发下单时以数据库为准
		res := tx.Model(&affiliate_model.Product{}).
			Where("id = ? AND stock - reserved_stock >= ?", product.Id, in.Quantity).
			Updates(map[string]interface{}{
				"stock":       gorm.Expr("stock - ?", in.Quantity),
				"update_time": now,
			})
		if res.Error != nil {
			return fmt.Errorf("库存扣减失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var latest affiliate_model.Product
			available := 0
			if err := tx.Select("stock", "reserved_stock").First(&latest, product.Id).Error; err == nil {
				available = max(latest.Available(), 0)
			}
			return &InsufficientStockError{ProductID: product.Id, Available: available}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// generateOrderNo AFF + 时间 + 随机串
func generateOrderNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("AFF%s%s", now.Format("20060102150405"), suffix)
}
