package utils

import (
	"fmt"

	"go.uber.org/zap"
)

// HandlePanic must be deferred directly. It logs a recovered panic with its
// stack and then runs fn, so a crashed goroutine can still release what it holds.
func HandlePanic(logger *zap.Logger, fn func()) {
	if r := recover(); r != nil {
		logger.Error("recovered from panic", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
	}

	if fn != nil {
		fn()
	}
}
