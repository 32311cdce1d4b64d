// Package middleware file: internal/transport/http/middleware/error_handler.go
package middleware

import (
	"errors"
	"net/http"

	"FrameRelay/internal/core/port"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ErrorHandlingMiddleware 是一个Gin中间件，用于集中处理错误。
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// 处理器中通过 c.Error(err) 附加的错误都会被收集到 c.Errors
		if len(c.Errors) == 0 {
			return
		}

		// 只处理最后一个错误，它通常是根本原因
		err := c.Errors.Last().Err

		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数验证失败", "details": ve.Error()})
			return
		}

		var backendErr *port.BackendError
		switch {
		case errors.Is(err, port.ErrUnknownDatasource):
			// 解析阶段的失败：批次未发出任何网络调用
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		case errors.Is(err, port.ErrDatasourceNotConfigured):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

		case errors.As(err, &backendErr):
			if backendErr.Handled {
				// 已在下游转化为正常返回值的失败不应再次走到这里；兜底为 502
				c.JSON(http.StatusBadGateway, gin.H{"error": "后端查询服务不可用"})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": backendErr.Error()})

		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		}
	}
}
