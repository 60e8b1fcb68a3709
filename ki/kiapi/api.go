package kiapi

// Mode 处理器模式, APC 按模式分别排队
type Mode = int

const (
	// KernelMode 内核模式
	KernelMode Mode = 0
	// UserMode 用户模式
	UserMode Mode = 1
	// MaximumMode 模式数量
	MaximumMode = 2
)

// TimerType 定时器类型
type TimerType = uint8

const (
	// NotificationTimer 到期后唤醒全部等待者, 保持 signaled
	NotificationTimer TimerType = 8
	// SynchronizationTimer 到期后只唤醒一个等待者, 唤醒后自动复位
	SynchronizationTimer TimerType = 9
)

// WaitKeyTimeout 等待块的超时标记, 不关联任何对象, 满足等待时跳过
const WaitKeyTimeout int16 = 0x102

// BugCheck 代码
const (
	BugCheckTimerTable    uint32 = 0xC7 // 定时器表状态非法
	BugCheckDpcBatchFull  uint32 = 0xC8 // DPC 批次溢出
	BugCheckLockRecursion uint32 = 0xC9 // 同一持有者重复加锁, 或未持锁访问受保护状态
)

// NormalRoutine APC 回调, 参数为上下文和两个系统参数
type NormalRoutine func(context any, arg1, arg2 uintptr)

// BugCheckFunc 内部一致性错误的处理函数, 默认实现终止进程, 不应返回
type BugCheckFunc func(code uint32, message string)

// HostClock 宿主机时间来源
type HostClock interface {
	// SystemTime 返回 FILETIME 格式的当前时间, 单位 100ns, 起点 1601-01-01
	SystemTime() uint64
}

// HostClockFunc 适配函数为 HostClock
type HostClockFunc func() uint64

// SystemTime 实现 HostClock
func (f HostClockFunc) SystemTime() uint64 {
	return f()
}
