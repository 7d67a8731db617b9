package logs

import (
	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/utils"
	"go.uber.org/zap"
)

var Logger *zap.Logger

func init() {
	var err error
	build := utils.GetValueOnEnv(zap.NewProduction, zap.NewDevelopment)
	Logger, err = build(zap.AddCaller())
	if err != nil {
		panic(err)
	}
}

// With returns a child logger tagged with the component name.
func With(component string) *zap.Logger {
	return Logger.With(zap.String(consts.LogFieldComponent, component))
}

func Debug(msg string, fields ...zap.Field) {
	Logger.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Logger.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Logger.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Logger.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Logger.Fatal(msg, fields...)
}

func Sync() {
	_ = Logger.Sync()
}
