package admin

import (
	"nasa-go-affiliate/services/affiliate_service"
)

// Controller 管理后台接口
type Controller struct {
	svc *affiliate_service.Services
}

func NewController(svc *affiliate_service.Services) *Controller {
	return &Controller{svc: svc}
}
