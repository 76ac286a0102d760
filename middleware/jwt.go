package middleware

import (
	"errors"
	"strings"

	"nasa-go-affiliate/pkg/jwt"
	"nasa-go-affiliate/pkg/response"

	"github.com/gin-gonic/gin"
)

// Jwt 校验 Bearer token 并要求指定角色，解析出的 uid / aid 写入上下文
func Jwt(manager *jwt.JWTManager, role jwt.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("Authorization")
		if token == "" {
			response.Abort(c, response.AUTH_ERROR, "请求未携带token，无权限访问")
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")

		claims, err := manager.ParseToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Abort(c, response.AUTH_ERROR, "授权已过期")
				return
			}
			response.Abort(c, response.AUTH_ERROR, err.Error())
			return
		}

		if claims.Role != role {
			response.Abort(c, response.FORBIDDEN)
			return
		}
		if role == jwt.RoleAffiliate && claims.AID <= 0 {
			response.Abort(c, response.FORBIDDEN, "token未绑定推广员")
			return
		}

		c.Set("uid", claims.UID)
		c.Set("aid", claims.AID)
		c.Set("role", string(claims.Role))
		c.Next()
	}
}
