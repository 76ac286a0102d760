package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// RequestKey 绑定成功后的请求对象在上下文中的 key
const RequestKey = "req"

// ValidationMiddleware 绑定和验证请求数据，obj 只作为类型模板，每个请求绑定到新实例
func ValidationMiddleware(obj interface{}) gin.HandlerFunc {
	typ := reflect.TypeOf(obj).Elem()

	return func(c *gin.Context) {
		req := reflect.New(typ).Interface()
		if err := c.ShouldBind(req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":      20001,
				"message":   bindErrorMessage(err),
				"error":     "error",
				"originUrl": c.Request.URL.Path,
			})
			return
		}
		c.Set(RequestKey, req)
		c.Next()
	}
}

func bindErrorMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make([]string, len(ve))
		for i, fe := range ve {
			out[i] = fe.Field() + " " + fe.Tag()
		}
		return strings.Join(out, ", ")
	}
	if err.Error() == "EOF" {
		return "请求体为空或格式不正确"
	}
	return err.Error()
}
