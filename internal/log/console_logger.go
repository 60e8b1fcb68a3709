package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ConsoleLogger 基于 zap 的控制台日志
type ConsoleLogger struct {
	sugar *zap.SugaredLogger
}

// NewConsoleLogger 创建输出到 stdout 的日志, 级别过滤交给 Debug 开关, 这里全部放行
func NewConsoleLogger() *ConsoleLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &ConsoleLogger{sugar: logger.Sugar()}
}

// NewZapLogger 包装一个已有的 zap.Logger
func NewZapLogger(logger *zap.Logger) *ConsoleLogger {
	return &ConsoleLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (c *ConsoleLogger) Debug(args ...any) {
	c.sugar.Debug(FormatArgs(args...))
}

func (c *ConsoleLogger) Info(args ...any) {
	c.sugar.Info(FormatArgs(args...))
}

func (c *ConsoleLogger) Error(args ...any) {
	c.sugar.Error(FormatArgs(args...))
}

// Fatal 输出后退出进程
func (c *ConsoleLogger) Fatal(args ...any) {
	c.sugar.Fatal(FormatArgs(args...))
}

// Sync 刷新缓冲
func (c *ConsoleLogger) Sync() error {
	return c.sugar.Sync()
}
