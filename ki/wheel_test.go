package ki

import (
	"testing"

	"github.com/lonng/nanokrnl/ki/kiapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotBuckets(s *System) []bucket {
	return append([]bucket(nil), s.wheel.buckets...)
}

func TestInsertTimer(t *testing.T) {
	s := newTestSystem(t)
	inc := int64(s.Config().TickIncrement)

	t.Run("hand and order", func(t *testing.T) {
		timers := make([]Timer, 64)
		for i := range timers {
			InitializeTimer(&timers[i], kiapi.NotificationTimer)
			due := -(int64(i%7)*inc*int64(s.Config().TableSize) + int64(i*131%977) + 1)
			assert.True(t, insertLocked(s, &timers[i], due))
		}
		for i := range s.wheel.buckets {
			b := &s.wheel.buckets[i]
			n := 0
			var prev *Timer
			for tm := b.head; tm != nil; tm = tm.next {
				assert.Equal(t, uint32(i), s.wheel.hand(tm.dueTime))
				assert.Equal(t, uint32(i), tm.Hand())
				if prev != nil {
					assert.LessOrEqual(t, prev.dueTime, tm.dueTime)
				}
				prev = tm
				n++
			}
			assert.Equal(t, b.size, n)
			if b.empty() {
				assert.Equal(t, InfiniteTime, b.time)
			} else {
				assert.Equal(t, b.head.dueTime, b.time)
			}
		}
		for i := range timers {
			removeLocked(s, &timers[i])
		}
		for i := range s.wheel.buckets {
			assert.True(t, s.wheel.buckets[i].empty())
			assert.Equal(t, InfiniteTime, s.wheel.buckets[i].time)
		}
	})

	t.Run("ties are fifo", func(t *testing.T) {
		var a, b, c Timer
		for _, tm := range []*Timer{&a, &b, &c} {
			InitializeTimer(tm, kiapi.NotificationTimer)
		}
		insertLocked(s, &a, -100)
		insertLocked(s, &b, -100)
		insertLocked(s, &c, -50)
		bk := &s.wheel.buckets[0]
		assert.Same(t, &c, bk.head)
		assert.Same(t, &a, bk.head.next)
		assert.Same(t, &b, bk.tail)
		assert.Equal(t, uint64(50), bk.time)
		removeLocked(s, &a)
		removeLocked(s, &b)
		removeLocked(s, &c)
	})

	t.Run("insert then remove restores the wheel", func(t *testing.T) {
		var keep, probe Timer
		InitializeTimer(&keep, kiapi.NotificationTimer)
		InitializeTimer(&probe, kiapi.NotificationTimer)
		insertLocked(s, &keep, -3*inc)
		before := snapshotBuckets(s)
		for _, due := range []int64{-3 * inc, -3*inc - 1, -3*inc + 1, -40 * inc} {
			require.True(t, insertLocked(s, &probe, due))
			removeLocked(s, &probe)
			assert.Equal(t, before, snapshotBuckets(s))
		}
		removeLocked(s, &keep)
	})

	t.Run("remove unlinked timer", func(t *testing.T) {
		var tm Timer
		InitializeTimer(&tm, kiapi.NotificationTimer)
		before := snapshotBuckets(s)
		assert.NotPanics(t, func() { removeLocked(s, &tm) })
		assert.NotPanics(t, func() { removeLocked(s, &tm) })
		assert.Equal(t, before, snapshotBuckets(s))
		assert.False(t, tm.Inserted())
	})

	t.Run("absolute time in the past", func(t *testing.T) {
		var tm Timer
		InitializeTimer(&tm, kiapi.NotificationTimer)
		assert.False(t, insertLocked(s, &tm, int64(s.QuerySystemTime())-1))
		assert.False(t, tm.Inserted())
		assert.True(t, s.ReadStateTimer(&tm))
	})

	t.Run("absolute time in the future", func(t *testing.T) {
		var tm Timer
		InitializeTimer(&tm, kiapi.NotificationTimer)
		assert.True(t, insertLocked(s, &tm, int64(s.QuerySystemTime())+7*inc))
		assert.True(t, tm.Absolute())
		assert.Equal(t, s.QueryInterruptTime()+uint64(7*inc), tm.DueTime())
		removeLocked(s, &tm)
	})
}

func TestInsertTimerRequiresLock(t *testing.T) {
	s := newTestSystem(t)
	var tm Timer
	InitializeTimer(&tm, kiapi.NotificationTimer)
	requireBugCheck(t, kiapi.BugCheckLockRecursion, func() {
		s.InsertTimer(&tm, -1)
	})

	// 信号状态归 DispatcherLock 保护, 只持 TimerLock 不够
	s.TimerLock().Lock()
	requireBugCheck(t, kiapi.BugCheckLockRecursion, func() {
		s.InsertTimer(&tm, -1)
	})
	s.TimerLock().Unlock()
	assert.False(t, tm.Inserted())
	assert.Equal(t, 0, s.wheel.buckets[0].size)
}

func TestCheckTimerTable(t *testing.T) {
	s := newTestSystem(t)
	var tm Timer
	InitializeTimer(&tm, kiapi.NotificationTimer)
	insertLocked(s, &tm, -10)

	assert.NotPanics(t, func() { s.checkTimerTable(s.QueryInterruptTime()) })
	requireBugCheck(t, kiapi.BugCheckTimerTable, func() {
		s.checkTimerTable(tm.DueTime())
	})

	s.wheel.buckets[1].time = 5
	requireBugCheck(t, kiapi.BugCheckTimerTable, func() {
		s.checkTimerTable(0)
	})
}
