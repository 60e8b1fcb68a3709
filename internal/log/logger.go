package log

import "github.com/lonng/nanokrnl/internal/env"

// Logger 日志接口, 参数按 Format 的规则格式化
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Error(args ...any)
	Fatal(args ...any)
}

func init() {
	SetLogger(NewConsoleLogger())
}

var (
	debug func(args ...any)
	Info  func(args ...any)
	Error func(args ...any)
	Fatal func(args ...any)
)

// Debug 仅在 env.Debug 打开时输出
func Debug(args ...any) {
	if !env.Debug {
		return
	}
	debug(args...)
}

// SetLogger rewrites the default logger
func SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	debug = logger.Debug
	Info = logger.Info
	Error = logger.Error
	Fatal = logger.Fatal
}
