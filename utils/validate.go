package utils

import (
	"github.com/google/uuid"
)

// ValidateMobileID 校验客户端生成的采样/收益标识是否为合法 UUID
func ValidateMobileID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
