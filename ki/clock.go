package ki

import (
	"time"

	"github.com/lonng/nanokrnl/internal/log"
	"github.com/lonng/nanokrnl/ki/kiapi"
)

// 1601-01-01 到 1970-01-01 的 100ns 数
const unixEpochFileTime uint64 = 116444736000000000

// WallClock 以墙上时间作为宿主机时钟
var WallClock kiapi.HostClock = kiapi.HostClockFunc(func() uint64 {
	return FileTimeFromTime(time.Now())
})

// FileTimeFromTime 把 time.Time 转为 FILETIME
func FileTimeFromTime(t time.Time) uint64 {
	return uint64(t.UnixNano()/100) + unixEpochFileTime
}

// TimeFromFileTime 把 FILETIME 转为 time.Time
func TimeFromFileTime(ft uint64) time.Time {
	return time.Unix(0, int64(ft-unixEpochFileTime)*100)
}

// RelativeDueTime 把时长转为相对到期时间
func RelativeDueTime(d time.Duration) int64 {
	return -int64(d / 100)
}

// QueryInterruptTime 单调中断时间, 100ns
func (s *System) QueryInterruptTime() uint64 {
	return s.interruptTime.Load()
}

// QuerySystemTime 系统时间, FILETIME
func (s *System) QuerySystemTime() uint64 {
	return s.systemTime.Load()
}

// TickCount tick 计数
func (s *System) TickCount() uint32 {
	return s.tickCount.Load()
}

// ClockTick 时钟中断: 推进中断时间, 系统时间和 tick 计数, 然后检查旧 tick 对应的桶,
// 有到期定时器时排队到期 DPC. TimerLock 被占用时本次检查跳过
func (s *System) ClockTick(scalingFactor uint32) {
	interruptTime := s.interruptTime.Add(s.cfg.TickIncrement * uint64(scalingFactor))
	s.updateSystemTime()
	oldTick := s.tickCount.Add(scalingFactor) - scalingFactor
	s.stats.ticks.Add(1)

	if !s.timerLock.TryLock() {
		s.stats.skippedChecks.Add(1)
		log.Debug("Kernel clock check skipped, tick=%v.", oldTick)
		return
	}
	b := &s.wheel.buckets[oldTick&s.wheel.mask]
	if !b.empty() && interruptTime >= b.time {
		s.InsertQueueDpc(&s.expireDpc, uintptr(oldTick), 0)
	}
	s.timerLock.Unlock()
}

// updateSystemTime 宿主机时间加偏移, 不回退. 偏移在读取旧值之后重新读取,
// 与 SetSystemTime 先改偏移再写时间的顺序配合, CAS 不会用旧偏移覆盖新设置的时间
func (s *System) updateSystemTime() {
	host := int64(s.cfg.HostClock.SystemTime())
	for {
		old := s.systemTime.Load()
		now := uint64(host + s.hostDelta.Load())
		if now <= old || s.systemTime.CompareAndSwap(old, now) {
			return
		}
	}
}

// SetSystemTime 设置系统时间, 返回旧值, 可以回退. 中断时间和 tick 计数不变.
// 绝对时间定时器按新时间重新散列, 因此到期的立即触发
func (s *System) SetSystemTime(newTime uint64) uint64 {
	s.timerLock.Lock()
	s.dispatcherLock.Lock()
	oldTime := s.systemTime.Load()
	delta := int64(newTime - oldTime)
	s.hostDelta.Add(delta)
	s.systemTime.Store(newTime)

	var absolute []*Timer
	for i := range s.wheel.buckets {
		for t := s.wheel.buckets[i].head; t != nil; t = t.next {
			if t.header.absolute {
				absolute = append(absolute, t)
			}
		}
	}
	interruptTime := s.QueryInterruptTime()
	var expired []*Timer
	for _, t := range absolute {
		s.wheel.unlink(t)
		due := int64(t.dueTime) - delta
		if due <= int64(interruptTime) {
			t.header.inserted = false
			expired = append(expired, t)
			continue
		}
		t.dueTime = uint64(due)
		s.wheel.link(t, s.wheel.hand(t.dueTime))
	}
	log.Debug("Kernel system time changed, delta=%v, rehashed=%v, expired=%v.", delta, len(absolute), len(expired))
	s.timerListExpire(expired)
	return oldTime
}

// ComputeWaitInterval 重新计算被打断的等待的剩余时间. 绝对时间原样返回,
// 相对时间返回 dueTime 距当前中断时间的负间隔
func (s *System) ComputeWaitInterval(original int64, dueTime uint64) int64 {
	if original >= 0 {
		return original
	}
	return int64(s.QueryInterruptTime() - dueTime)
}
