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
	"nasa-go-affiliate/utils"

	"gorm.io/gorm"
)

const (
	ReasonDailyLimit = "daily limit reached"
	ReasonMinGap     = "minimum gap not met"
)

// RateLimitDecision 分享限流判定结果，拒绝是正常结果而不是错误
type RateLimitDecision struct {
	Allowed         bool       `json:"allowed"`
	Reason          string     `json:"reason,omitempty"`
	NextAllowedTime *time.Time `json:"next_allowed_time,omitempty"`
	TodayCount      int        `json:"today_count"`
}

// ShareInput 一次分享
type ShareInput struct {
	AffiliateID    int
	ProductID      *int
	Channel        affiliate_model.ShareChannel
	DestinationURL string
	DeviceInfo     string
	ClientIP       string
}

// ShareResult 记录分享的结果，被拒绝时 Log 为 nil
type ShareResult struct {
	Decision RateLimitDecision         `json:"decision"`
	Log      *affiliate_model.ShareLog `json:"log,omitempty"`
}

// ShareLimiter 推广员分享频率控制：每个自然日上限 + 两次分享的最小间隔
type ShareLimiter struct {
	db         *gorm.DB
	locker     Locker
	location   *time.Location
	dailyLimit int
	minGap     time.Duration
	lockTTL    time.Duration
	now        func() time.Time
	events     *EventDispatcher
}

// ShareLimiterOption 可选配置
type ShareLimiterOption func(*ShareLimiter)

func WithShareClock(now func() time.Time) ShareLimiterOption {
	return func(s *ShareLimiter) { s.now = now }
}

func WithSharePolicy(dailyLimit int, minGap time.Duration) ShareLimiterOption {
	return func(s *ShareLimiter) {
		s.dailyLimit = dailyLimit
		s.minGap = minGap
	}
}

// WithShareLockTTL 没有截止时间的 ctx 等锁的最长时间
func WithShareLockTTL(ttl time.Duration) ShareLimiterOption {
	return func(s *ShareLimiter) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithShareEvents(events *EventDispatcher) ShareLimiterOption {
	return func(s *ShareLimiter) { s.events = events }
}

// NewShareLimiter 默认每天 4 次、间隔 2 小时
func NewShareLimiter(db *gorm.DB, locker Locker, location *time.Location, opts ...ShareLimiterOption) *ShareLimiter {
	if location == nil {
		location = time.Local
	}
	s := &ShareLimiter{
		db:         db,
		locker:     locker,
		location:   location,
		dailyLimit: 4,
		minGap:     2 * time.Hour,
		lockTTL:    10 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckRateLimit 只读判定，不写入任何记录
func (s *ShareLimiter) CheckRateLimit(ctx context.Context, affiliateID int, now time.Time) (RateLimitDecision, error) {
	return s.check(s.db.WithContext(ctx), affiliateID, now)
}

func (s *ShareLimiter) check(tx *gorm.DB, affiliateID int, now time.Time) (RateLimitDecision, error) {
	// 分享时间统一按 UTC 存储和比较，自然日边界按配置时区计算
	now = now.UTC()
	dayStart := utils.StartOfDay(now, s.location).UTC()

	var todayCount int64
	if err := tx.Model(&affiliate_model.ShareLog{}).
		Where("affiliate_id = ? AND create_time >= ? AND create_time <= ?", affiliateID, dayStart, now).
		Count(&todayCount).Error; err != nil {
		return RateLimitDecision{}, fmt.Errorf("统计当日分享次数失败: %w", err)
	}

	decision := RateLimitDecision{TodayCount: int(todayCount)}
	if int(todayCount) >= s.dailyLimit {
		next := utils.NextMidnight(now, s.location)
		decision.Reason = ReasonDailyLimit
		decision.NextAllowedTime = &next
		return decision, nil
	}

	// 间隔只在当天的分享之间计算，跨过零点重新开始
	var last []affiliate_model.ShareLog
	if err := tx.Where("affiliate_id = ? AND create_time >= ? AND create_time <= ?", affiliateID, dayStart, now).
		Order("create_time DESC").Limit(1).Find(&last).Error; err != nil {
		return RateLimitDecision{}, fmt.Errorf("查询最近分享失败: %w", err)
	}
	if len(last) > 0 {
		next := last[0].CreateTime.Add(s.minGap)
		if now.Before(next) {
			decision.Reason = ReasonMinGap
			decision.NextAllowedTime = &next
			return decision, nil
		}
	}

	decision.Allowed = true
	return decision, nil
}

// RecordShare 在推广员粒度的锁内重新判定并写入分享记录，保证并发请求不会突破限制
func (s *ShareLimiter) RecordShare(ctx context.Context, in ShareInput) (*ShareResult, error) {
	if in.AffiliateID <= 0 {
		return nil, invalidInput("affiliate id is required")
	}
	if !in.Channel.Valid() {
		return nil, invalidInput("unknown channel %q", in.Channel)
	}
	if strings.TrimSpace(in.DestinationURL) == "" {
		return nil, invalidInput("destination url is required")
	}

	lockCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTTL)
		defer cancel()
	}
	unlock, err := s.locker.Lock(lockCtx, fmt.Sprintf("affiliate:share:lock:%d", in.AffiliateID))
	if err != nil {
		return nil, fmt.Errorf("获取分享锁失败: %w", err)
	}
	defer unlock()

	var result ShareResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affiliate affiliate_model.Affiliate
		if err := tx.Select("id", "status").First(&affiliate, in.AffiliateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAffiliateNotFound
			}
			return err
		}
		if !affiliate.IsActive() {
			return ErrAffiliateNotFound
		}

		now := s.now().UTC()
		decision, err := s.check(tx, in.AffiliateID, now)
		if err != nil {
			return err
		}
		result.Decision = decision
		if !decision.Allowed {
			return nil
		}

		entry := &affiliate_model.ShareLog{
			AffiliateId:    in.AffiliateID,
			ProductId:      in.ProductID,
			Channel:        in.Channel,
			DestinationUrl: in.DestinationURL,
			DeviceInfo:     in.DeviceInfo,
			ClientIp:       in.ClientIP,
			CreateTime:     now,
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("写入分享记录失败: %w", err)
		}
		result.Log = entry
		result.Decision.TodayCount++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Decision.Allowed {
		monitoring.RecordShareDecision("allowed")
		s.events.Publish(Event{
			Type:        EventShareRecorded,
			AffiliateID: in.AffiliateID,
			Payload: map[string]interface{}{
				"channel":    string(in.Channel),
				"product_id": in.ProductID,
			},
		})
	} else {
		monitoring.RecordShareDecision(decisionLabel(result.Decision.Reason))
		log.Printf("推广员 %d 分享被限流(%s): %s", in.AffiliateID,
			utils.FormatDate(s.now().In(s.location)), result.Decision.Reason)
	}
	return &result, nil
}

func decisionLabel(reason string) string {
	switch reason {
	case ReasonDailyLimit:
		return "daily_limit"
	case ReasonMinGap:
		return "min_gap"
	}
	return "unknown"
}
