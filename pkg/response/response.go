package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"stika/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func errorToHTTPStatus(err error) int {
	// 检查是否是 Definition 类型
	def, ok := err.(errors.Definition)
	if !ok {
		return http.StatusInternalServerError
	}

	// 根据错误码映射 HTTP 状态码
	switch def.Code {
	case "TOO_MANY_REQUESTS", "COOLDOWN_ACTIVE":
		return http.StatusTooManyRequests // 429
	case "INVALID_BATCH", "BATCH_TOO_LARGE", "DUPLICATE_IN_BATCH",
		"INVALID_IMAGE", "INVALID_RIDER_ID", "INVALID_REQUEST",
		"EARNINGS_UNKNOWN_RATE", "OUT_OF_ZONE", "VERIFICATION_EXPIRED":
		return http.StatusBadRequest // 400
	case "GEOFENCE_NOT_FOUND", "VERIFICATION_NOT_FOUND",
		"SESSION_NOT_FOUND", "BATCH_NOT_FOUND":
		return http.StatusNotFound // 404
	case "ZONE_AT_CAPACITY", "ALREADY_ASSIGNED", "VERIFICATION_PENDING":
		return http.StatusConflict // 409
	case "NOT_A_RIDER", "ZONE_INACTIVE", "NO_REMAINING_BUDGET",
		"NO_ELIGIBLE_ZONE", "NO_ACTIVE_ASSIGNMENT":
		return http.StatusForbidden // 403
	case "UNAUTHORIZED":
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	statusCode := errorToHTTPStatus(err)

	var code, message string
	var details map[string]interface{}

	if def, ok := err.(errors.Definition); ok {
		code = def.Code
		message = def.Message
	} else {
		code = "INTERNAL_ERROR"
		message = err.Error()
	}

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	statusCode := errorToHTTPStatus(err)

	var code, message string
	if def, ok := err.(errors.Definition); ok {
		code = def.Code
		message = def.Message
	} else {
		code = "INTERNAL_ERROR"
		message = err.Error()
	}

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}

// NoContent 返回 204 No Content（用于 DELETE 等操作）
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
