package common

import (
	"errors"
	"log"
	"strconv"

	"nasa-go-affiliate/pkg/response"
	"nasa-go-affiliate/services/affiliate_service"

	"github.com/gin-gonic/gin"
)

// ServiceError 把服务层错误映射为统一错误码
func ServiceError(c *gin.Context, err error) {
	var stockErr *affiliate_service.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		response.ErrorWithData(c, response.INSUFFICIENT_STOCK, gin.H{"available": stockErr.Available}, err.Error())
	case errors.Is(err, affiliate_service.ErrInvalidInput):
		response.Error(c, response.INVALID_PARAMS, err.Error())
	case errors.Is(err, affiliate_service.ErrAffiliateNotFound):
		response.Error(c, response.AFFILIATE_INACTIVE, err.Error())
	case errors.Is(err, affiliate_service.ErrProductNotFound),
		errors.Is(err, affiliate_service.ErrOrderNotFound):
		response.Error(c, response.NOT_FOUND, err.Error())
	case errors.Is(err, affiliate_service.ErrInvalidInventoryAction),
		errors.Is(err, affiliate_service.ErrInvalidStatusTransition),
		errors.Is(err, affiliate_service.ErrInvalidAffiliateStatus),
		errors.Is(err, affiliate_service.ErrSellerRequired):
		response.Error(c, response.INVALID_TRANSITION, err.Error())
	case errors.Is(err, affiliate_service.ErrCommissionFailed):
		log.Printf("请求 %s 佣金入账失败: %v", c.Request.URL.Path, err)
		response.Error(c, response.INTERNAL_ERROR, affiliate_service.ErrCommissionFailed.Error())
	case errors.Is(err, affiliate_service.ErrLockTimeout):
		response.Error(c, response.TOO_MANY_REQUESTS)
	default:
		log.Printf("请求 %s 处理失败: %v", c.Request.URL.Path, err)
		response.Error(c, response.INTERNAL_ERROR)
	}
}

// ParamID 路由中的正整数 ID
func ParamID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		response.Error(c, response.INVALID_PARAMS, "无效的"+name)
		return 0, false
	}
	return id, true
}
