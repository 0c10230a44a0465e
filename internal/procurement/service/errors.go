package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/procura/internal/procurement/repository"
)

// ErrRunConflict 该BOM已有运行中的流水线任务
var ErrRunConflict = errors.New("a processing run is already active for this BOM")

// ErrNotFound 实体不存在（透传仓库层哨兵）
var ErrNotFound = repository.ErrNotFound

// InvalidStateError 状态机非法流转：报告期望状态与实际状态，便于调用方纠正
type InvalidStateError struct {
	Entity   string
	ID       string
	Op       string
	Expected []string
	Actual   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s from status %q (expected %s)",
		e.Entity, e.ID, e.Op, e.Actual, strings.Join(e.Expected, " or "))
}

func newInvalidState(entity, id, op, actual string, expected ...string) *InvalidStateError {
	return &InvalidStateError{Entity: entity, ID: id, Op: op, Expected: expected, Actual: actual}
}

// IsInvalidState 判断是否为非法流转错误
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}
