package repository

import (
	"errors"
	"strings"
)

// ErrDuplicate 唯一约束冲突
var ErrDuplicate = errors.New("duplicate record")

// IsUniqueViolation 判断是否为唯一约束冲突（兼容 sqlite 与 postgres）
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func wrapUnique(err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return errors.Join(ErrDuplicate, err)
	}
	return err
}
