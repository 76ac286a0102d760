package affiliate_service

import (
	"context"
	"sync"
	"testing"
	"time"

	"nasa-go-affiliate/model/affiliate_model"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestLimiter(d *gorm.DB, clock *fakeClock) *ShareLimiter {
	return NewShareLimiter(d, NewLocalLocker(), time.UTC, WithShareClock(clock.Now))
}

func shareInput(affiliateID int) ShareInput {
	return ShareInput{
		AffiliateID:    affiliateID,
		Channel:        affiliate_model.ChannelFacebook,
		DestinationURL: "https://example.com/p/1?ref=A1",
	}
}

func TestShareMinimumGap(t *testing.T) {
	d := newTestDB(t)
	a := seedAffiliate(t, d, "GAP1", affiliate_model.AffiliateActive, 5)
	clock := &fakeClock{now: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(d, clock)
	ctx := context.Background()

	res, err := limiter.RecordShare(ctx, shareInput(a.Id))
	require.NoError(t, err)
	require.True(t, res.Decision.Allowed)
	require.NotNil(t, res.Log)

	// 30 分钟后被拒绝
	decision, err := limiter.CheckRateLimit(ctx, a.Id, clock.Now().Add(30*time.Minute))
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonMinGap, decision.Reason)
	require.True(t, decision.NextAllowedTime.Equal(time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)))

	// 3 小时后允许
	decision, err = limiter.CheckRateLimit(ctx, a.Id, clock.Now().Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 1, decision.TodayCount)
}

func TestShareGapResetsAtMidnight(t *testing.T) {
	d := newTestDB(t)
	a := seedAffiliate(t, d, "NIGHT", affiliate_model.AffiliateActive, 5)
	clock := &fakeClock{now: time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC)}
	limiter := newTestLimiter(d, clock)
	ctx := context.Background()

	res, err := limiter.RecordShare(ctx, shareInput(a.Id))
	require.NoError(t, err)
	require.True(t, res.Decision.Allowed)

	// 同一天内仍然受间隔限制
	decision, err := limiter.CheckRateLimit(ctx, a.Id, time.Date(2024, 5, 10, 23, 50, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonMinGap, decision.Reason)

	// 过了零点只看当天的分享
	clock.Set(time.Date(2024, 5, 11, 0, 30, 0, 0, time.UTC))
	decision, err = limiter.CheckRateLimit(ctx, a.Id, clock.Now())
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Zero(t, decision.TodayCount)

	res, err = limiter.RecordShare(ctx, shareInput(a.Id))
	require.NoError(t, err)
	require.True(t, res.Decision.Allowed)
}

func TestShareDailyLimit(t *testing.T) {
	d := newTestDB(t)
	a := seedAffiliate(t, d, "DAY1", affiliate_model.AffiliateActive, 5)
	clock := &fakeClock{}
	limiter := newTestLimiter(d, clock)
	ctx := context.Background()

	for _, hour := range []int{1, 4, 7, 10} {
		clock.Set(time.Date(2024, 5, 10, hour, 0, 0, 0, time.UTC))
		res, err := limiter.RecordShare(ctx, shareInput(a.Id))
		require.NoError(t, err)
		require.True(t, res.Decision.Allowed, "share at %02d:00", hour)
	}

	clock.Set(time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC))
	res, err := limiter.RecordShare(ctx, shareInput(a.Id))
	require.NoError(t, err)
	require.False(t, res.Decision.Allowed)
	require.Nil(t, res.Log)
	require.Equal(t, ReasonDailyLimit, res.Decision.Reason)
	require.Equal(t, 4, res.Decision.TodayCount)
	require.True(t, res.Decision.NextAllowedTime.Equal(time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC)))

	// 新的一天重新计数
	decision, err := limiter.CheckRateLimit(ctx, a.Id, time.Date(2024, 5, 11, 0, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 0, decision.TodayCount)

	var count int64
	require.NoError(t, d.Model(&affiliate_model.ShareLog{}).Where("affiliate_id = ?", a.Id).Count(&count).Error)
	require.Equal(t, int64(4), count)
}

func TestShareConcurrentRequestsRecordOnce(t *testing.T) {
	d := newTestDB(t)
	a := seedAffiliate(t, d, "RACE1", affiliate_model.AffiliateActive, 5)
	clock := &fakeClock{now: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(d, clock)

	var wg sync.WaitGroup
	results := make(chan *ShareResult, 8)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.RecordShare(context.Background(), shareInput(a.Id))
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	allowed := 0
	for res := range results {
		if res.Decision.Allowed {
			allowed++
		}
	}
	require.Equal(t, 1, allowed)
	var count int64
	require.NoError(t, d.Model(&affiliate_model.ShareLog{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestShareRejectsInactiveAffiliateAndBadInput(t *testing.T) {
	d := newTestDB(t)
	a := seedAffiliate(t, d, "SUS1", affiliate_model.AffiliateSuspended, 5)
	limiter := newTestLimiter(d, &fakeClock{now: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	_, err := limiter.RecordShare(ctx, shareInput(a.Id))
	require.ErrorIs(t, err, ErrAffiliateNotFound)

	in := shareInput(a.Id)
	in.Channel = "myspace"
	_, err = limiter.RecordShare(ctx, in)
	require.ErrorIs(t, err, ErrInvalidInput)

	in = shareInput(a.Id)
	in.DestinationURL = "  "
	_, err = limiter.RecordShare(ctx, in)
	require.ErrorIs(t, err, ErrInvalidInput)
}
