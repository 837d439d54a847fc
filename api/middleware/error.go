package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fyerfyer/doc-rag/api/model"
	"github.com/fyerfyer/doc-rag/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorTypeInternal 未分类错误的类别
const ErrorTypeInternal = "INTERNAL_ERROR"

// StatusForKind 业务错误类别对应的HTTP状态码
// 冲突按请求错误处理，客户端需要删除并重新上传文档
func StatusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 捕获 panic
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					FieldError:   err,
					"stack":      string(debug.Stack()),
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: c.GetString(TraceIDKey),
				}).Error("Panic recovered in API request")

				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)
				errorResponse.ErrorType = ErrorTypeInternal
				errorResponse.TraceID = c.GetString(TraceIDKey)

				// 在开发环境中可以返回详细错误
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		// 处理请求
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		// 取最后一个错误进行处理
		err := c.Errors.Last().Err
		traceID := c.GetString(TraceIDKey)

		errResp := model.NewErrorResponse(http.StatusInternalServerError, "Internal server error")
		errResp.TraceID = traceID
		errResp.ErrorType = ErrorTypeInternal

		fields := logrus.Fields{
			FieldTraceID: traceID,
			FieldPath:    c.Request.URL.Path,
			FieldError:   err.Error(),
		}

		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			status := StatusForKind(appErr.Kind)
			errResp.Code = status
			errResp.Message = appErr.Message
			errResp.ErrorType = string(appErr.Kind)
			fields["error_type"] = appErr.Kind

			if status >= http.StatusInternalServerError {
				log.WithFields(fields).Error("Request failed")
			} else {
				log.WithFields(fields).Warn("Request rejected")
			}
			c.AbortWithStatusJSON(status, errResp)
			return
		}

		// 处理其他类型的错误（如标准库错误）
		log.WithFields(fields).Error("Request failed")

		// 在开发环境下显示具体错误信息
		if gin.Mode() == gin.DebugMode {
			errResp.Message = err.Error()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, errResp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	// 添加错误到上下文中
	_ = c.Error(err)
}
