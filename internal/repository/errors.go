package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsUniqueViolation 判断是否唯一约束冲突。
// 并发下两次调用同时通过查重时，第二次提交靠唯一索引被拒，调用方把它当作"已存在"处理。
// postgres报"duplicate key"，sqlite报"UNIQUE constraint failed"。
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsNotFound 判断是否查无记录
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
