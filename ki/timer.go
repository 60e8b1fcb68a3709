package ki

import (
	"github.com/lonng/nanokrnl/ki/kiapi"
)

// dispatcherHeader 可等待对象的公共头, DispatcherLock 保护 signaled 与 waitList,
// TimerLock 保护 inserted 与 absolute
type dispatcherHeader struct {
	typ      kiapi.TimerType // 对象类型
	absolute bool            // 到期时间是否按绝对系统时间给出
	inserted bool            // 是否挂在定时器表中
	signaled bool            // 信号状态
	waitList []*WaitBlock    // 等待该对象的等待块, 先进先出
}

// Timer 内核定时器, 由调用方分配, 初始化后由 System 管理
type Timer struct {
	header  dispatcherHeader
	dueTime uint64 // 中断时间下的到期时刻
	period  int32  // 周期, 毫秒, 0 表示一次性
	dpc     *Dpc   // 到期时排队的 DPC, 可为空

	prev, next *Timer // 桶内链表
	hand       uint32 // 所在桶
}

// InitializeTimer 初始化定时器为未插入, 未触发状态
func InitializeTimer(timer *Timer, typ kiapi.TimerType) {
	*timer = Timer{header: dispatcherHeader{typ: typ}}
}

// Type 定时器类型
func (t *Timer) Type() kiapi.TimerType {
	return t.header.typ
}

// DueTime 到期时刻, 中断时间, 100ns
func (t *Timer) DueTime() uint64 {
	return t.dueTime
}

// Period 周期, 毫秒
func (t *Timer) Period() int32 {
	return t.period
}

// Inserted 是否在定时器表中
func (t *Timer) Inserted() bool {
	return t.header.inserted
}

// Absolute 是否为绝对时间定时器
func (t *Timer) Absolute() bool {
	return t.header.absolute
}

// Hand 所在桶的下标
func (t *Timer) Hand() uint32 {
	return t.hand
}

// SetTimer 设置定时器, 已插入的定时器先取消. dueTime 为负表示相对间隔, 否则为绝对系统时间,
// period 以毫秒为单位, 为 0 表示一次性. 返回设置前定时器是否处于插入状态
func (s *System) SetTimer(timer *Timer, dueTime int64, period int32, dpc *Dpc) bool {
	s.timerLock.Lock()
	s.dispatcherLock.Lock()
	wasInserted := timer.header.inserted
	if wasInserted {
		s.removeTreeTimer(timer)
	}
	timer.header.signaled = false
	timer.dpc = dpc
	timer.period = period
	if hand, ok := s.computeDueTime(timer, dueTime); ok {
		s.insertOrComplete(timer, hand)
	} else {
		s.signalTimer(timer)
	}
	s.dispatcherLock.Unlock()
	s.timerLock.Unlock()
	return wasInserted
}

// CancelTimer 取消定时器, 返回取消前是否处于插入状态
func (s *System) CancelTimer(timer *Timer) bool {
	s.timerLock.Lock()
	defer s.timerLock.Unlock()
	wasInserted := timer.header.inserted
	if wasInserted {
		s.removeTreeTimer(timer)
	}
	return wasInserted
}

// ReadStateTimer 读取定时器的信号状态
func (s *System) ReadStateTimer(timer *Timer) bool {
	s.dispatcherLock.Lock()
	defer s.dispatcherLock.Unlock()
	return timer.header.signaled
}
