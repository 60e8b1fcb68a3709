package ki

import (
	"github.com/lonng/nanokrnl/internal/log"
	"github.com/lonng/nanokrnl/ki/kiapi"
)

// WaitBlock 线程等待一个对象的记录, 同一线程的等待块通过 NextWaitBlock 连成环
type WaitBlock struct {
	Thread        *Thread    // 等待的线程
	Object        any        // 等待的对象, 超时块为空
	WaitKey       int16      // 等待键, kiapi.WaitKeyTimeout 表示超时块
	NextWaitBlock *WaitBlock // 同一线程的下一个等待块
}

// WaitSatisfier 对象被满足时的回调, 由线程调度器实现, 决定是否唤醒线程
type WaitSatisfier interface {
	SatisfySingleObject(object any, thread *Thread)
}

// WaitSatisfierFunc 适配函数为 WaitSatisfier
type WaitSatisfierFunc func(object any, thread *Thread)

// SatisfySingleObject 实现 WaitSatisfier
func (f WaitSatisfierFunc) SatisfySingleObject(object any, thread *Thread) {
	f(object, thread)
}

type nopSatisfier struct{}

func (nopSatisfier) SatisfySingleObject(object any, thread *Thread) {
	log.Debug("Kernel wait satisfied without a scheduler, thread=%v.", thread)
}

// SatisfyAll 从 first 开始沿环满足线程的每个等待块, 跳过超时块. 需持有 DispatcherLock
func (s *System) SatisfyAll(first *WaitBlock) {
	s.dispatcherLock.assertHeld()
	thread := first.Thread
	wb := first
	for {
		if wb.WaitKey != kiapi.WaitKeyTimeout {
			s.stats.satisfiedWaits.Add(1)
			s.cfg.Satisfier.SatisfySingleObject(wb.Object, thread)
		}
		wb = wb.NextWaitBlock
		if wb == nil || wb == first {
			return
		}
	}
}

// WaitOnTimer 把等待块挂到定时器的等待链上
func (s *System) WaitOnTimer(timer *Timer, wb *WaitBlock) {
	s.dispatcherLock.Lock()
	defer s.dispatcherLock.Unlock()
	wb.Object = timer
	timer.header.waitList = append(timer.header.waitList, wb)
}

// RemoveWaitBlock 从定时器的等待链上摘除等待块, 不在链上返回 false
func (s *System) RemoveWaitBlock(timer *Timer, wb *WaitBlock) bool {
	s.dispatcherLock.Lock()
	defer s.dispatcherLock.Unlock()
	for i, cur := range timer.header.waitList {
		if cur == wb {
			timer.header.waitList = append(timer.header.waitList[:i], timer.header.waitList[i+1:]...)
			return true
		}
	}
	return false
}

// Waiters 等待定时器的等待块数
func (s *System) Waiters(timer *Timer) int {
	s.dispatcherLock.Lock()
	defer s.dispatcherLock.Unlock()
	return len(timer.header.waitList)
}

// unwaitTimer 定时器触发后满足等待者: 通知定时器满足全部等待者,
// 同步定时器只满足第一个并复位信号. 需持有 DispatcherLock
func (s *System) unwaitTimer(timer *Timer) {
	list := timer.header.waitList
	if len(list) == 0 {
		return
	}
	if timer.header.typ == kiapi.SynchronizationTimer {
		first := list[0]
		timer.header.waitList = list[1:]
		timer.header.signaled = false
		s.SatisfyAll(first)
		return
	}
	timer.header.waitList = nil
	for _, wb := range list {
		s.SatisfyAll(wb)
	}
}
