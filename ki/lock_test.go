package ki

import (
	"sync"
	"testing"

	"github.com/lonng/nanokrnl/ki/kiapi"
	"github.com/stretchr/testify/assert"
)

func TestKernelLock(t *testing.T) {
	s := newTestSystem(t)
	l := s.TimerLock()

	t.Run("lock and unlock", func(t *testing.T) {
		l.Lock()
		assert.True(t, l.Held())
		assert.Equal(t, int32(1), l.Acquired())
		l.Unlock()
		assert.False(t, l.Held())
		assert.Equal(t, int32(0), l.Acquired())
	})

	t.Run("try lock", func(t *testing.T) {
		assert.True(t, l.TryLock())
		l.Unlock()
	})

	t.Run("other owner", func(t *testing.T) {
		locked := make(chan struct{})
		release := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock()
			close(locked)
			<-release
			l.Unlock()
		}()
		<-locked
		assert.False(t, l.Held())
		assert.False(t, l.TryLock())
		close(release)
		wg.Wait()
		assert.True(t, l.TryLock())
		l.Unlock()
	})
}

func TestKernelLockRecursion(t *testing.T) {
	s := newTestSystem(t)
	var code uint32
	s.cfg.BugCheck = func(c uint32, message string) { code = c }

	s.DispatcherLock().Lock()
	requireBugCheck(t, kiapi.BugCheckLockRecursion, func() {
		s.DispatcherLock().Lock()
	})
	requireBugCheck(t, kiapi.BugCheckLockRecursion, func() {
		s.DispatcherLock().TryLock()
	})
	s.DispatcherLock().Unlock()
	assert.Equal(t, kiapi.BugCheckLockRecursion, code)
}

func TestClockTickSkipsBusyLock(t *testing.T) {
	s := newTestSystem(t)
	var tm Timer
	InitializeTimer(&tm, kiapi.NotificationTimer)
	insertLocked(s, &tm, -1)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.TimerLock().Lock()
		close(locked)
		<-release
		s.TimerLock().Unlock()
		close(done)
	}()
	<-locked
	s.ClockTick(1)
	close(release)
	<-done

	assert.Equal(t, uint64(1), s.Stats().SkippedChecks)
	assert.Equal(t, 0, s.QueuedDpcs())
	assert.Equal(t, uint32(1), s.TickCount())

	// 同一个桶一圈后再次检查
	for i := uint32(1); i < s.Config().TableSize+1; i++ {
		s.ClockTick(1)
		s.RetireDpcList()
	}
	assert.False(t, tm.Inserted())
	assert.True(t, s.ReadStateTimer(&tm))
}
