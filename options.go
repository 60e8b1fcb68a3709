package nanokrnl

import (
	"time"

	"github.com/lonng/nanokrnl/internal/env"
	"github.com/lonng/nanokrnl/internal/log"
	"github.com/lonng/nanokrnl/ki"
	"github.com/lonng/nanokrnl/ki/kiapi"
)

// Options 内核选项
type Options struct {
	Config        ki.Config     // 子系统配置
	ClockInterval time.Duration // 时钟中断的名义间隔
	err           error         // 选项解析中的错误, New 时返回
}

// DefaultOptions 默认选项
func DefaultOptions() *Options {
	return &Options{
		Config:        ki.DefaultConfig(),
		ClockInterval: env.ClockInterval,
	}
}

type Option func(*Options)

//==== 基本

// WithDebugMode 启用调试
func WithDebugMode() Option {
	return func(opt *Options) {
		env.Debug = true
	}
}

// WithLogger 设置日志
func WithLogger(logger log.Logger) Option {
	return func(opt *Options) {
		log.SetLogger(logger)
	}
}

// WithConfigFile 从 TOML 文件加载配置, 覆盖之前的配置项
func WithConfigFile(path string) Option {
	return func(opt *Options) {
		if err := LoadConfig(path, opt); err != nil && opt.err == nil {
			opt.err = err
		}
	}
}

//==== 时钟

// WithClockInterval 设置时钟中断的名义间隔
func WithClockInterval(interval time.Duration) Option {
	return func(opt *Options) {
		opt.ClockInterval = interval
	}
}

// WithTickIncrement 设置每个 tick 推进的中断时间, 单位 100ns
func WithTickIncrement(increment uint64) Option {
	return func(opt *Options) {
		opt.Config.TickIncrement = increment
	}
}

// WithHostTimeOffset 设置系统时间相对宿主机时间的偏移, 单位 100ns
func WithHostTimeOffset(offset int64) Option {
	return func(opt *Options) {
		opt.Config.HostTimeOffset = offset
	}
}

// WithHostClock 设置宿主机时钟
func WithHostClock(clock kiapi.HostClock) Option {
	return func(opt *Options) {
		opt.Config.HostClock = clock
	}
}

//==== 定时器表

// WithTableSize 设置定时器表桶数, 必须是 2 的幂
func WithTableSize(size uint32) Option {
	return func(opt *Options) {
		opt.Config.TableSize = size
	}
}

// WithSweepBudget 设置扫描的访问预算和到期预算
func WithSweepBudget(visit, active uint32) Option {
	return func(opt *Options) {
		opt.Config.VisitBudget = visit
		opt.Config.ActiveBudget = active
	}
}

// WithDebugKernel 每次扫描后校验整张定时器表
func WithDebugKernel() Option {
	return func(opt *Options) {
		opt.Config.DebugKernel = true
	}
}

//==== 回调

// WithWaitSatisfier 设置等待满足回调
func WithWaitSatisfier(satisfier ki.WaitSatisfier) Option {
	return func(opt *Options) {
		opt.Config.Satisfier = satisfier
	}
}

// WithApcFree 设置 APC 释放回调
func WithApcFree(fn func(apc *ki.Apc)) Option {
	return func(opt *Options) {
		opt.Config.FreeApc = fn
	}
}

// WithBugCheckHandler 设置致命错误处理
func WithBugCheckHandler(fn kiapi.BugCheckFunc) Option {
	return func(opt *Options) {
		opt.Config.BugCheck = fn
	}
}
