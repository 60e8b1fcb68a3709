package ki

import (
	"github.com/lonng/nanokrnl/internal/log"
	"github.com/lonng/nanokrnl/ki/kiapi"
)

// sweep 一次到期处理的上下文
type sweep struct {
	sys     *System
	batch   dpcBatch
	visited uint32 // 剩余访问预算
	active  uint32 // 剩余到期预算
}

// flush 释放两把锁执行批次, 再按 TimerLock, DispatcherLock 的顺序重新加锁
func (w *sweep) flush() {
	s := w.sys
	s.dispatcherLock.Unlock()
	s.timerLock.Unlock()
	s.drainBatch(&w.batch)
	w.visited = s.cfg.VisitBudget
	w.active = s.cfg.ActiveBudget
	s.timerLock.Lock()
	s.dispatcherLock.Lock()
}

// finish 释放两把锁并执行剩余批次
func (w *sweep) finish() {
	s := w.sys
	s.dispatcherLock.Unlock()
	s.timerLock.Unlock()
	s.drainBatch(&w.batch)
}

func (s *System) newSweep(systemTime uint64) *sweep {
	w := &sweep{sys: s, visited: s.cfg.VisitBudget, active: s.cfg.ActiveBudget}
	w.batch.arg1 = uintptr(uint32(systemTime))
	w.batch.arg2 = uintptr(uint32(systemTime >> 32))
	return w
}

// timerExpiration 到期 DPC 的回调. 从上次扫描停下的 tick 扫到当前 tick, 落后超过一圈时扫满一圈.
// 到期的定时器摘除, 触发, 周期定时器重新插入, 其 DPC 收集到批次中, 预算耗尽时刷新批次
func (s *System) timerExpiration(_ *Dpc, _ any, arg1, _ uintptr) {
	systemTime := s.QuerySystemTime()
	interruptTime := s.QueryInterruptTime()
	size := uint32(len(s.wheel.buckets))
	mask := s.wheel.mask
	w := s.newSweep(systemTime)

	s.timerLock.Lock()
	s.dispatcherLock.Lock()
	s.stats.sweeps.Add(1)

	current := uint32(interruptTime / s.cfg.TickIncrement)
	limit := s.TickCount()
	if int32(current-limit) > 0 {
		limit = current
	}
	index := s.sweepHand
	if limit-index >= size {
		limit = index + size - 1
	}
	log.Debug("Kernel timer sweep, requested=%v, from=%v, to=%v.", arg1, index, limit)
	index--
	limit &= mask

	for {
		index = (index + 1) & mask
		b := &s.wheel.buckets[index]
		for b.head != nil {
			timer := b.head
			w.visited--
			if timer.dueTime <= interruptTime {
				w.active--
				s.removeTreeTimer(timer)
				s.expireTimer(timer, &w.batch)
				if w.active == 0 || w.visited == 0 {
					w.flush()
				}
				continue
			}
			if b.time > timer.dueTime {
				s.BugCheck(kiapi.BugCheckTimerTable, "bucket %v caches %v past its head %v", index, b.time, timer.dueTime)
			}
			b.time = timer.dueTime
			if w.visited == 0 {
				w.flush()
			}
			break
		}
		if index == limit {
			break
		}
	}
	s.sweepHand = current

	if s.cfg.DebugKernel {
		s.checkTimerTable(interruptTime)
	}
	w.finish()
}

// expireTimer 触发一个已摘除的定时器, 其 DPC 进入批次. 需持有两把锁
func (s *System) expireTimer(timer *Timer, batch *dpcBatch) {
	s.stats.expired.Add(1)
	timer.header.signaled = true
	s.unwaitTimer(timer)
	if timer.period > 0 {
		s.rearmTimer(timer)
	}
	if timer.dpc != nil {
		s.pushBatch(batch, timer.dpc)
	}
}

// signalTimer 触发一个不在表中的定时器, 其 DPC 直接排队. 需持有两把锁
func (s *System) signalTimer(timer *Timer) {
	s.stats.expired.Add(1)
	timer.header.inserted = false
	timer.header.signaled = true
	s.unwaitTimer(timer)
	if timer.period > 0 {
		s.rearmTimer(timer)
	}
	if timer.dpc != nil {
		systemTime := s.QuerySystemTime()
		s.InsertQueueDpc(timer.dpc, uintptr(uint32(systemTime)), uintptr(uint32(systemTime>>32)))
	}
}

// rearmTimer 周期定时器按周期重新插入, 直到插入成功
func (s *System) rearmTimer(timer *Timer) {
	interval := int64(timer.period) * -10000
	for !s.InsertTimer(timer, interval) {
	}
}

// timerListExpire 触发一组已摘除的定时器, 需持有两把锁, 返回时两把锁均已释放
func (s *System) timerListExpire(expired []*Timer) {
	w := s.newSweep(s.QuerySystemTime())
	for i, timer := range expired {
		s.expireTimer(timer, &w.batch)
		if w.batch.count == int(s.cfg.ActiveBudget) && i < len(expired)-1 {
			w.flush()
		}
	}
	w.finish()
}
