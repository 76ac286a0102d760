package affiliate_service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrAffiliateNotFound       = errors.New("affiliate not found or inactive")
	ErrProductNotFound         = errors.New("product not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrSellerRequired          = errors.New("order has no seller")
	ErrInvalidInventoryAction  = errors.New("invalid inventory transition")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrInvalidAffiliateStatus  = errors.New("invalid affiliate status transition")
)

// ErrCommissionFailed 订单状态已提交但佣金未入账，重新提交相同状态即可重试
var ErrCommissionFailed = errors.New("commission not credited, retry the status update")

// InsufficientStockError 可售库存不足，Available 为当时的可售数量
type InsufficientStockError struct {
	ProductID int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock, available: %d", e.Available)
}

// invalidInput 包装参数错误，保留 errors.Is(err, ErrInvalidInput)
func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// isDuplicateKey 唯一索引冲突，兼容未开启 TranslateError 的连接
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
