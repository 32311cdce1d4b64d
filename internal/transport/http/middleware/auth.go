// Package middleware file: internal/transport/http/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"FrameRelay/internal/service"

	"github.com/gin-gonic/gin"
)

const claimContextKey = "framerelay_claim"

// Auth 是一个JWT认证中间件。缺失或非法的令牌直接拒绝请求。
func Auth(auth *service.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "需要认证"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := auth.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "令牌无效或已过期"})
			return
		}

		c.Set(claimContextKey, claims)
		c.Next()
	}
}

// RequireAdmin 是一个确保只有管理员角色才能访问的中间件
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimFrom(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "需要认证"})
			return
		}
		if claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "需要管理员权限"})
			return
		}
		c.Next()
	}
}

// ClaimFrom 从请求上下文取出已认证的 Claim；未认证返回 nil。
func ClaimFrom(c *gin.Context) *service.Claim {
	value, exists := c.Get(claimContextKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*service.Claim)
	if !ok {
		return nil
	}
	return claims
}
