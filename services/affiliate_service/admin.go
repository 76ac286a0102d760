package affiliate_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"nasa-go-affiliate/model/affiliate_model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusAction 管理员对推广员的操作
type StatusAction string

const (
	ActionApprove    StatusAction = "approve"
	ActionReject     StatusAction = "reject"
	ActionSuspend    StatusAction = "suspend"
	ActionReactivate StatusAction = "reactivate"
	ActionDeactivate StatusAction = "deactivate"
)

type affiliateTransition struct {
	from []affiliate_model.AffiliateStatus
	to   affiliate_model.AffiliateStatus
}

var affiliateTransitions = map[StatusAction]affiliateTransition{
	ActionApprove:    {from: []affiliate_model.AffiliateStatus{affiliate_model.AffiliatePending}, to: affiliate_model.AffiliateActive},
	ActionReject:     {from: []affiliate_model.AffiliateStatus{affiliate_model.AffiliatePending}, to: affiliate_model.AffiliateInactive},
	ActionSuspend:    {from: []affiliate_model.AffiliateStatus{affiliate_model.AffiliateActive}, to: affiliate_model.AffiliateSuspended},
	ActionReactivate: {from: []affiliate_model.AffiliateStatus{affiliate_model.AffiliateSuspended}, to: affiliate_model.AffiliateActive},
	ActionDeactivate: {from: []affiliate_model.AffiliateStatus{affiliate_model.AffiliateActive, affiliate_model.AffiliateSuspended}, to: affiliate_model.AffiliateInactive},
}

// RegisterInput 客户申请成为推广员
type RegisterInput struct {
	CustomerID int    `validate:"required,gt=0"`
	Name       string `validate:"required,max=100"`
	Phone      string `validate:"omitempty,max=32"`
}

// AdminService 推广员管理，不修改任何财务字段
type AdminService struct {
	db     *gorm.DB
	events *EventDispatcher
	now    func() time.Time
}

func NewAdminService(db *gorm.DB, events *EventDispatcher) *AdminService {
	return &AdminService{db: db, events: events, now: time.Now}
}

// Register 新申请进入 pending，推广码自动生成
func (s *AdminService) Register(ctx context.Context, in RegisterInput) (*affiliate_model.Affiliate, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	now := s.now()
	affiliate := affiliate_model.Affiliate{
		CustomerId: in.CustomerID,
		Code:       generateAffiliateCode(),
		Name:       in.Name,
		Phone:      in.Phone,
		Status:     affiliate_model.AffiliatePending,
		CreateTime: now,
		UpdateTime: now,
	}
	if err := s.db.WithContext(ctx).Create(&affiliate).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, invalidInput("customer %d already registered", in.CustomerID)
		}
		return nil, fmt.Errorf("创建推广员失败: %w", err)
	}
	log.Printf("新推广员申请 %d，推广码 %s", affiliate.Id, affiliate.Code)
	return &affiliate, nil
}

// UpdateStatus 审核、暂停、恢复、停用
func (s *AdminService) UpdateStatus(ctx context.Context, affiliateID int, action StatusAction) (*affiliate_model.Affiliate, error) {
	transition, ok := affiliateTransitions[action]
	if !ok {
		return nil, invalidInput("unknown action %q", action)
	}

	var affiliate affiliate_model.Affiliate
	var from affiliate_model.AffiliateStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&affiliate, affiliateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAffiliateNotFound
			}
			return fmt.Errorf("查询推广员失败: %w", err)
		}

		from = affiliate.Status
		allowed := false
		for _, st := range transition.from {
			if st == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s from %s", ErrInvalidAffiliateStatus, action, from)
		}

		now := s.now()
		updates := map[string]interface{}{
			"status":      transition.to,
			"update_time": now,
		}
		if action == ActionApprove {
			updates["approved_at"] = now
			// 首次通过审核时还没有费率，按当前等级给一个初始值
			if affiliate.CommissionRate.IsZero() {
				n, err := countLifetimeOrders(tx, affiliate.Id)
				if err != nil {
					return err
				}
				updates["commission_rate"] = CalculateTier(n).CommissionRatePercent
			}
		}
		res := tx.Model(&affiliate_model.Affiliate{}).
			Where("id = ? AND status = ?", affiliate.Id, from).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("更新推广员状态失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidAffiliateStatus)
		}
		return tx.First(&affiliate, affiliate.Id).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("推广员 %d 状态 %s -> %s", affiliateID, from, affiliate.Status)
	s.events.Publish(Event{
		Type:        EventAffiliateStatus,
		AffiliateID: affiliateID,
		Payload: map[string]interface{}{
			"action": string(action),
			"from":   string(from),
			"to":     string(affiliate.Status),
		},
	})
	return &affiliate, nil
}

// SyncTierRate 把推广员的存储费率同步为当前等级费率，返回同步后的等级
func (s *AdminService) SyncTierRate(ctx context.Context, affiliateID int) (*AffiliateTier, error) {
	var tier *AffiliateTier
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affiliate affiliate_model.Affiliate
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&affiliate, affiliateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAffiliateNotFound
			}
			return fmt.Errorf("查询推广员失败: %w", err)
		}

		n, err := countLifetimeOrders(tx, affiliateID)
		if err != nil {
			return err
		}
		info := CalculateTier(n)
		if !affiliate.CommissionRate.Equal(info.CommissionRatePercent) {
			if err := tx.Model(&affiliate_model.Affiliate{}).Where("id = ?", affiliateID).
				Updates(map[string]interface{}{
					"commission_rate": info.CommissionRatePercent,
					"update_time":     s.now(),
				}).Error; err != nil {
				return fmt.Errorf("同步费率失败: %w", err)
			}
			log.Printf("推广员 %d 费率 %s -> %s (%s)", affiliateID, affiliate.CommissionRate.String(), info.CommissionRatePercent.String(), info.TierName)
		}
		tier = &AffiliateTier{
			AffiliateID:    affiliateID,
			LifetimeOrders: n,
			StoredRate:     info.CommissionRatePercent.String(),
			Tier:           info,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tier, nil
}

// Get 推广员详情
func (s *AdminService) Get(ctx context.Context, affiliateID int) (*affiliate_model.Affiliate, error) {
	var affiliate affiliate_model.Affiliate
	if err := s.db.WithContext(ctx).First(&affiliate, affiliateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAffiliateNotFound
		}
		return nil, err
	}
	return &affiliate, nil
}

// List 分页列表，status 为空表示全部
func (s *AdminService) List(ctx context.Context, status string, page, pageSize int) ([]affiliate_model.Affiliate, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&affiliate_model.Affiliate{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []affiliate_model.Affiliate
	if err := query.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func generateAffiliateCode() string {
	return "AF" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
