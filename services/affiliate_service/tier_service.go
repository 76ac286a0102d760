package affiliate_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"nasa-go-affiliate/model/affiliate_model"
	"nasa-go-affiliate/pkg/cache"

	"gorm.io/gorm"
)

// TierService 查询推广员当前等级，累计订单数走缓存
type TierService struct {
	db    *gorm.DB
	cache *cache.CacheManager
	ttl   time.Duration
}

func NewTierService(db *gorm.DB, cm *cache.CacheManager) *TierService {
	return &TierService{db: db, cache: cm, ttl: time.Minute}
}

// AffiliateTier 推广员等级和当前生效的费率
type AffiliateTier struct {
	AffiliateID    int      `json:"affiliate_id"`
	LifetimeOrders int      `json:"lifetime_orders"`
	StoredRate     string   `json:"stored_rate"`
	Tier           TierInfo `json:"tier"`
}

func orderCountKey(affiliateID int) string {
	return fmt.Sprintf("affiliate:orders:%d", affiliateID)
}

// countLifetimeOrders 推广员名下的推广订单数（代下单 + 推荐）
func countLifetimeOrders(tx *gorm.DB, affiliateID int) (int, error) {
	var n int64
	if err := tx.Model(&affiliate_model.AffiliateOrder{}).
		Where("affiliate_id = ?", affiliateID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计推广订单失败: %w", err)
	}
	return int(n), nil
}

// LifetimeOrders 读缓存，未命中时查库
func (s *TierService) LifetimeOrders(ctx context.Context, affiliateID int) (int, error) {
	var n int
	if s.cache != nil {
		if err := s.cache.Get(ctx, orderCountKey(affiliateID), &n); err == nil {
			return n, nil
		}
	}

	n, err := countLifetimeOrders(s.db.WithContext(ctx), affiliateID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, orderCountKey(affiliateID), n, s.ttl); err != nil {
			log.Printf("缓存推广订单数失败: %v", err)
		}
	}
	return n, nil
}

// Invalidate 新订单创建后清掉缓存
func (s *TierService) Invalidate(ctx context.Context, affiliateID int) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, orderCountKey(affiliateID)); err != nil {
		log.Printf("清除推广订单数缓存失败: %v", err)
	}
}

// TierFor 推广员等级
func (s *TierService) TierFor(ctx context.Context, affiliateID int) (*AffiliateTier, error) {
	var affiliate affiliate_model.Affiliate
	if err := s.db.WithContext(ctx).Select("id", "commission_rate").First(&affiliate, affiliateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAffiliateNotFound
		}
		return nil, err
	}

	n, err := s.LifetimeOrders(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	return &AffiliateTier{
		AffiliateID:    affiliateID,
		LifetimeOrders: n,
		StoredRate:     affiliate.CommissionRate.String(),
		Tier:           CalculateTier(n),
	}, nil
}
