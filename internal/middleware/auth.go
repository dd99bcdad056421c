package middleware

import (
	"context"
	"fmt"
	"strconv"

	"stika/pkg/token"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"
)

const (
	IdentityKey = token.IdentityKey
)

var (
	authMiddleware *jwt.HertzJWTMiddleware
)

func initAuthMiddleware() error {
	// 使用 token 包中共享的生成器
	sharedGenerator := token.GetGenerator()
	if sharedGenerator == nil {
		return fmt.Errorf("token generator not initialized, call token.Init() first")
	}

	// 基于共享生成器创建 middleware，但需要添加 HTTP 相关的配置
	authMiddleware = &jwt.HertzJWTMiddleware{
		Realm:       "stika API",
		Key:         sharedGenerator.Key,
		Timeout:     sharedGenerator.Timeout,
		MaxRefresh:  sharedGenerator.MaxRefresh,
		IdentityKey: sharedGenerator.IdentityKey,
		TimeFunc:    sharedGenerator.TimeFunc,

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			uid, ok := claims[IdentityKey].(string)
			if !ok {
				if uidFloat, ok := claims[IdentityKey].(float64); ok {
					uid = fmt.Sprintf("%.0f", uidFloat)
				} else {
					return nil
				}
			}
			return uid
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]interface{}{
				"error": map[string]interface{}{
					"code":    "UNAUTHORIZED",
					"message": message,
				},
			})
		},

		TokenLookup:   "header: Authorization, query: token",
		TokenHeadName: "Bearer",
	}

	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// GetRiderID 从请求上下文中获取骑手ID
func GetRiderID(ctx context.Context, c *app.RequestContext) (int64, bool) {
	identity, exists := c.Get(IdentityKey)
	if !exists {
		return 0, false
	}

	id, ok := identity.(string)
	if !ok {
		return 0, false
	}

	riderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}

	return riderID, true
}

// GetUserID 兼容 ratelimit 等按字符串标识限流的场景
func GetUserID(ctx context.Context, c *app.RequestContext) (string, bool) {
	identity, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	id, ok := identity.(string)
	if !ok {
		return "", false
	}

	return id, true
}
