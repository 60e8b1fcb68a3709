package ki

import (
	"math"

	"github.com/lonng/nanokrnl/internal/log"
	"github.com/lonng/nanokrnl/ki/kiapi"
)

// InfiniteTime 空桶的缓存到期时间
const InfiniteTime uint64 = math.MaxUint64

// bucket 定时器表的一个桶, 按到期时间升序, 同时刻先进先出
type bucket struct {
	head *Timer
	tail *Timer
	time uint64 // 桶内最早到期时间, 空桶为 InfiniteTime
	size int
}

func (b *bucket) empty() bool {
	return b.head == nil
}

// timerWheel 散列时间轮, 桶下标 = (dueTime / increment) & mask
type timerWheel struct {
	buckets   []bucket
	mask      uint32
	increment uint64
}

func (w *timerWheel) init(size uint32, increment uint64) {
	w.buckets = make([]bucket, size)
	for i := range w.buckets {
		w.buckets[i].time = InfiniteTime
	}
	w.mask = size - 1
	w.increment = increment
}

func (w *timerWheel) hand(dueTime uint64) uint32 {
	return uint32(dueTime/w.increment) & w.mask
}

// link 从尾部向前找插入位置, 返回是否成为桶头
func (w *timerWheel) link(timer *Timer, hand uint32) bool {
	b := &w.buckets[hand]
	timer.hand = hand
	prev := b.tail
	for prev != nil && prev.dueTime > timer.dueTime {
		prev = prev.prev
	}
	timer.prev = prev
	if prev == nil {
		timer.next = b.head
		b.head = timer
	} else {
		timer.next = prev.next
		prev.next = timer
	}
	if timer.next == nil {
		b.tail = timer
	} else {
		timer.next.prev = timer
	}
	b.size++
	if b.head == timer {
		b.time = timer.dueTime
		return true
	}
	return false
}

// unlink 摘除定时器, 并维护桶的缓存时间
func (w *timerWheel) unlink(timer *Timer) {
	b := &w.buckets[timer.hand]
	if timer.prev == nil {
		b.head = timer.next
	} else {
		timer.prev.next = timer.next
	}
	if timer.next == nil {
		b.tail = timer.prev
	} else {
		timer.next.prev = timer.prev
	}
	timer.prev, timer.next = nil, nil
	b.size--
	if b.head == nil {
		b.time = InfiniteTime
	} else {
		b.time = b.head.dueTime
	}
}

// computeDueTime 把调用方的到期时间换算为中断时间, 设置 inserted 并返回桶下标.
// 绝对时间已经过去时返回 false, 调用方应立即触发
func (s *System) computeDueTime(timer *Timer, dueTime int64) (uint32, bool) {
	timer.header.absolute = false
	if dueTime >= 0 {
		diff := int64(s.QuerySystemTime()) - dueTime
		if diff >= 0 {
			timer.header.signaled = true
			return 0, false
		}
		timer.header.absolute = true
		dueTime = diff
	}
	timer.dueTime = s.QueryInterruptTime() + uint64(-dueTime)
	timer.header.inserted = true
	return s.wheel.hand(timer.dueTime), true
}

// insertTimerTable 把定时器挂到桶上, 若成为桶头且已经到期返回 true
func (s *System) insertTimerTable(timer *Timer, hand uint32) bool {
	if s.wheel.link(timer, hand) {
		return timer.dueTime <= s.QueryInterruptTime()
	}
	return false
}

// InsertTimer 按到期时间插入定时器, 调用方需持有 TimerLock 和 DispatcherLock. 返回 false 表示已到期,
// 此时定时器不在表中, 由调用方负责触发
func (s *System) InsertTimer(timer *Timer, dueTime int64) bool {
	s.timerLock.assertHeld()
	s.dispatcherLock.assertHeld()
	if timer.period == 0 {
		timer.header.signaled = false
	}
	hand, ok := s.computeDueTime(timer, dueTime)
	if !ok {
		return false
	}
	if s.insertTimerTable(timer, hand) {
		s.wheel.unlink(timer)
		timer.header.inserted = false
		return false
	}
	return true
}

// RemoveTimer 从表中摘除定时器, 调用方需持有 TimerLock
func (s *System) RemoveTimer(timer *Timer) {
	s.timerLock.assertHeld()
	if timer.header.inserted {
		s.removeTreeTimer(timer)
	}
}

func (s *System) removeTreeTimer(timer *Timer) {
	timer.header.inserted = false
	s.wheel.unlink(timer)
}

// insertOrComplete 插入定时器, 插入时已经到期则立即完成
func (s *System) insertOrComplete(timer *Timer, hand uint32) {
	if s.insertTimerTable(timer, hand) {
		log.Debug("Kernel timer expired on insert, hand=%v.", hand)
		s.removeTreeTimer(timer)
		s.signalTimer(timer)
	}
}

// checkTimerTable 校验整张表: 顺序, 桶下标, 缓存时间, 且没有早于 reference 的定时器
func (s *System) checkTimerTable(reference uint64) {
	for i := range s.wheel.buckets {
		b := &s.wheel.buckets[i]
		if b.empty() {
			if b.time != InfiniteTime {
				s.BugCheck(kiapi.BugCheckTimerTable, "empty bucket %v caches due time %v", i, b.time)
			}
			continue
		}
		if b.time != b.head.dueTime {
			s.BugCheck(kiapi.BugCheckTimerTable, "bucket %v caches %v but head is due at %v", i, b.time, b.head.dueTime)
		}
		var prev *Timer
		for t := b.head; t != nil; t = t.next {
			if t.dueTime <= reference {
				s.BugCheck(kiapi.BugCheckTimerTable, "timer in bucket %v due at %v is overdue at %v", i, t.dueTime, reference)
			}
			if !t.header.inserted || t.hand != uint32(i) || s.wheel.hand(t.dueTime) != uint32(i) {
				s.BugCheck(kiapi.BugCheckTimerTable, "timer due at %v is misplaced in bucket %v", t.dueTime, i)
			}
			if prev != nil && prev.dueTime > t.dueTime {
				s.BugCheck(kiapi.BugCheckTimerTable, "bucket %v is out of order", i)
			}
			prev = t
		}
	}
}
