package ki

import (
	"fmt"
	"sync/atomic"

	"github.com/lonng/nanokrnl/internal/log"
	"github.com/lonng/nanokrnl/ki/kiapi"
	"github.com/pingcap/errors"
)

const (
	// DefaultTickIncrement 每个 tick 推进的中断时间, 单位 100ns
	DefaultTickIncrement uint64 = 0x2710
	// DefaultTableSize 定时器表桶数
	DefaultTableSize uint32 = 32
	// DefaultVisitBudget 一次扫描在刷新批次前最多访问的定时器数
	DefaultVisitBudget uint32 = 24
	// DefaultActiveBudget 一次扫描在刷新批次前最多到期的定时器数
	DefaultActiveBudget uint32 = 4
	// MaxDpcBatch 单个批次能容纳的 DPC 数
	MaxDpcBatch = 16
)

// Config 内核可调参数
type Config struct {
	TickIncrement  uint64 `toml:"tick_increment"`   // 每 tick 推进的中断时间
	TableSize      uint32 `toml:"table_size"`       // 定时器表桶数, 必须是 2 的幂
	VisitBudget    uint32 `toml:"visit_budget"`     // 访问预算
	ActiveBudget   uint32 `toml:"active_budget"`    // 到期预算, 不超过 MaxDpcBatch
	DebugKernel    bool   `toml:"debug_kernel"`     // 扫描后校验整张表
	HostTimeOffset int64  `toml:"host_time_offset"` // 系统时间相对宿主机时间的初始偏移

	HostClock kiapi.HostClock    `toml:"-"` // 宿主机时钟, 为空时使用墙上时间
	Satisfier WaitSatisfier      `toml:"-"` // 等待满足回调, 为空时忽略
	FreeApc   func(apc *Apc)     `toml:"-"` // APC 释放回调, 为空时清零
	BugCheck  kiapi.BugCheckFunc `toml:"-"` // 致命错误处理, 为空时终止进程
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		TickIncrement: DefaultTickIncrement,
		TableSize:     DefaultTableSize,
		VisitBudget:   DefaultVisitBudget,
		ActiveBudget:  DefaultActiveBudget,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.TickIncrement == 0 {
		return errors.New("tick increment must be positive")
	}
	if c.TableSize == 0 || c.TableSize&(c.TableSize-1) != 0 {
		return errors.Errorf("timer table size %d is not a power of two", c.TableSize)
	}
	if c.VisitBudget == 0 || c.ActiveBudget == 0 {
		return errors.New("sweep budgets must be positive")
	}
	if c.ActiveBudget > MaxDpcBatch {
		return errors.Errorf("active budget %d exceeds dpc batch capacity %d", c.ActiveBudget, MaxDpcBatch)
	}
	return nil
}

// Stats 运行计数快照
type Stats struct {
	Ticks          uint64 // 时钟中断次数
	SkippedChecks  uint64 // 因 TimerLock 被占用而跳过的检查
	Sweeps         uint64 // 扫描次数
	Expired        uint64 // 到期的定时器数
	DpcsRetired    uint64 // 执行的 DPC 数
	BatchFlushes   uint64 // 批次刷新次数
	ApcsDelivered  uint64 // 投递的 APC 数
	SatisfiedWaits uint64 // 满足的等待块数
}

type stats struct {
	ticks          atomic.Uint64
	skippedChecks  atomic.Uint64
	sweeps         atomic.Uint64
	expired        atomic.Uint64
	dpcsRetired    atomic.Uint64
	batchFlushes   atomic.Uint64
	apcsDelivered  atomic.Uint64
	satisfiedWaits atomic.Uint64
}

// System 内核定时与延迟执行子系统, 所有共享状态都在这里, 由三把锁保护
type System struct {
	cfg Config

	timerLock      KernelLock // 保护定时器表
	dispatcherLock KernelLock // 保护对象信号状态和等待链
	apcLock        KernelLock // 保护所有线程的 APC 队列

	wheel     timerWheel // 定时器表
	sweepHand uint32     // 下次扫描的起始 tick, TimerLock 保护

	interruptTime atomic.Uint64 // 单调中断时间
	systemTime    atomic.Uint64 // 系统时间
	hostDelta     atomic.Int64  // 系统时间相对宿主机的偏移
	tickCount     atomic.Uint32 // tick 计数

	expireDpc Dpc      // 定时器到期扫描的 DPC
	dpcQueue  dpcQueue // 待执行的 DPC 队列

	stats stats
}

// NewSystem 按配置创建子系统
func NewSystem(cfg Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HostClock == nil {
		cfg.HostClock = WallClock
	}
	if cfg.Satisfier == nil {
		cfg.Satisfier = nopSatisfier{}
	}
	s := &System{cfg: cfg}
	s.timerLock.init("TimerLock", s)
	s.dispatcherLock.init("DispatcherLock", s)
	s.apcLock.init("ApcLock", s)
	s.wheel.init(cfg.TableSize, cfg.TickIncrement)
	s.dpcQueue.lock.init("DpcLock", s)
	s.dpcQueue.init()
	s.hostDelta.Store(cfg.HostTimeOffset)
	s.systemTime.Store(uint64(int64(cfg.HostClock.SystemTime()) + cfg.HostTimeOffset))
	InitializeDpc(&s.expireDpc, s.timerExpiration, nil)
	log.Debug("Kernel timer table initialized, buckets=%v, increment=%v.", cfg.TableSize, cfg.TickIncrement)
	return s, nil
}

// Config 返回生效的配置
func (s *System) Config() Config {
	return s.cfg
}

// TimerLock 返回定时器表锁
func (s *System) TimerLock() *KernelLock {
	return &s.timerLock
}

// DispatcherLock 返回调度器锁
func (s *System) DispatcherLock() *KernelLock {
	return &s.dispatcherLock
}

// BugCheck 报告致命的内部一致性错误, 不会返回
func (s *System) BugCheck(code uint32, format string, args ...any) {
	message := log.Format(format, args...)
	log.Error("Kernel bug check %v: %v", uintptr(code), message)
	if s.cfg.BugCheck != nil {
		s.cfg.BugCheck(code, message)
	} else {
		log.Fatal("Kernel stopped on bug check.", message)
	}
	panic(&BugCheckError{Code: code, Message: message})
}

// BugCheckError 处理函数返回后 BugCheck 以它 panic, DPC 与 APC 回调的恢复逻辑不会吞掉它
type BugCheckError struct {
	Code    uint32
	Message string
}

func (e *BugCheckError) Error() string {
	return fmt.Sprintf("bug check 0x%X: %s", e.Code, e.Message)
}

// Stats 返回运行计数快照
func (s *System) Stats() Stats {
	return Stats{
		Ticks:          s.stats.ticks.Load(),
		SkippedChecks:  s.stats.skippedChecks.Load(),
		Sweeps:         s.stats.sweeps.Load(),
		Expired:        s.stats.expired.Load(),
		DpcsRetired:    s.stats.dpcsRetired.Load(),
		BatchFlushes:   s.stats.batchFlushes.Load(),
		ApcsDelivered:  s.stats.apcsDelivered.Load(),
		SatisfiedWaits: s.stats.satisfiedWaits.Load(),
	}
}
