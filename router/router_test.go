package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nasa-go-affiliate/db"
	"nasa-go-affiliate/middleware"
	"nasa-go-affiliate/model/affiliate_model"
	"nasa-go-affiliate/pkg/config"
	"nasa-go-affiliate/pkg/jwt"
	"nasa-go-affiliate/pkg/response"
	"nasa-go-affiliate/services/affiliate_service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	db     *gorm.DB
	jwt    *jwt.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := d.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(d))

	svc := affiliate_service.NewServices(config.Default(), affiliate_service.Dependencies{DB: d})
	t.Cleanup(svc.Close)

	manager := jwt.NewJWTManager("router-test-key", "test", time.Hour)
	engine := gin.New()
	engine.Use(middleware.Recovery())
	Init(engine, svc, manager)

	return &testServer{t: t, engine: engine, db: d, jwt: manager}
}

func (s *testServer) token(uid, aid int, role jwt.Role) string {
	tok, err := s.jwt.GenerateToken(uid, aid, role)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, response.SUCCESS, env.Code)

	_, env = s.do(http.MethodGet, "/api/affiliate/tier", "", nil)
	require.Equal(t, response.AUTH_ERROR, env.Code)

	_, env = s.do(http.MethodGet, "/api/affiliate/tier", "not-a-token", nil)
	require.Equal(t, response.AUTH_ERROR, env.Code)

	// 推广员 token 不能访问管理接口
	_, env = s.do(http.MethodGet, "/api/admin/affiliates", s.token(1, 1, jwt.RoleAffiliate), nil)
	require.Equal(t, response.FORBIDDEN, env.Code)
}

func TestAffiliateOrderFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(1, 0, jwt.RoleAdmin)

	_, env := s.do(http.MethodPost, "/api/admin/affiliates", admin, gin.H{"customer_id": 900, "name": "Hoa"})
	require.Equal(t, response.SUCCESS, env.Code, env.Message)
	var registered affiliate_model.Affiliate
	require.NoError(t, json.Unmarshal(env.Data, &registered))

	_, env = s.do(http.MethodPut, fmt.Sprintf("/api/admin/affiliates/%d/status", registered.Id), admin, gin.H{"action": "approve"})
	require.Equal(t, response.SUCCESS, env.Code, env.Message)

	product := affiliate_model.Product{
		Name: "kettle", Price: decimal.NewFromInt(100), Stock: 5, Status: "1",
		CreateTime: time.Now(), UpdateTime: time.Now(),
	}
	require.NoError(t, s.db.Create(&product).Error)

	aff := s.token(900, registered.Id, jwt.RoleAffiliate)
	order := gin.H{
		"product_id":       product.Id,
		"quantity":         3,
		"customer_name":    "Tuan",
		"customer_phone":   "0987654321",
		"shipping_address": "12 Le Loi",
	}
	_, env = s.do(http.MethodPost, "/api/affiliate/orders", aff, order)
	require.Equal(t, response.SUCCESS, env.Code, env.Message)
	var created struct {
		Order affiliate_model.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	_, env = s.do(http.MethodPost, "/api/affiliate/orders", aff, order)
	require.Equal(t, response.INSUFFICIENT_STOCK, env.Code)
	require.Equal(t, "insufficient stock, available: 2", env.Message)

	status, env := s.do(http.MethodPost, "/api/affiliate/orders", aff, gin.H{"product_id": product.Id})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, response.INVALID_PARAMS, env.Code)

	for _, next := range []string{"paid", "shipped"} {
		_, env = s.do(http.MethodPut, fmt.Sprintf("/api/admin/orders/%d/status", created.Order.Id), admin, gin.H{"status": next})
		require.Equal(t, response.SUCCESS, env.Code, env.Message)
	}

	_, env = s.do(http.MethodPut, fmt.Sprintf("/api/admin/orders/%d/status", created.Order.Id), admin, gin.H{"status": "pending"})
	require.Equal(t, response.INVALID_TRANSITION, env.Code)

	_, env = s.do(http.MethodGet, "/api/affiliate/commissions", aff, nil)
	require.Equal(t, response.SUCCESS, env.Code)
	var page struct {
		Items []affiliate_model.CommissionEntry `json:"items"`
		Total int64                             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Equal(t, int64(1), page.Total)
	// 300 × 5%
	require.True(t, decimal.NewFromInt(15).Equal(page.Items[0].CommissionAmount))

	_, env = s.do(http.MethodPost, fmt.Sprintf("/api/admin/affiliates/%d/payout", registered.Id), admin,
		gin.H{"amount": "15", "reference": "BANK-001"})
	require.Equal(t, response.SUCCESS, env.Code, env.Message)
}

func TestShareRateLimitOverHTTP(t *testing.T) {
	s := newTestServer(t)

	a := affiliate_model.Affiliate{
		CustomerId: 77, Code: "SHARE77", Status: affiliate_model.AffiliateActive,
		CommissionRate: decimal.NewFromInt(5), CreateTime: time.Now(), UpdateTime: time.Now(),
	}
	require.NoError(t, s.db.Create(&a).Error)
	aff := s.token(77, a.Id, jwt.RoleAffiliate)

	share := gin.H{"channel": "facebook", "destination_url": "https://shop.example.com/p/1"}
	_, env := s.do(http.MethodPost, "/api/affiliate/share", aff, share)
	require.Equal(t, response.SUCCESS, env.Code, env.Message)

	_, env = s.do(http.MethodPost, "/api/affiliate/share", aff, share)
	require.Equal(t, response.SHARE_RATE_LIMITED, env.Code)
	require.Equal(t, affiliate_service.ReasonMinGap, env.Message)

	_, env = s.do(http.MethodGet, "/api/affiliate/share/check", aff, nil)
	require.Equal(t, response.SUCCESS, env.Code)
	var decision affiliate_service.RateLimitDecision
	require.NoError(t, json.Unmarshal(env.Data, &decision))
	require.False(t, decision.Allowed)
	require.Equal(t, 1, decision.TodayCount)

	_, env = s.do(http.MethodPost, "/api/affiliate/share", aff, gin.H{"channel": "myspace", "destination_url": "https://x.example.com"})
	require.Equal(t, response.INVALID_PARAMS, env.Code)
}
