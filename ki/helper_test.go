package ki

import (
	"testing"
	"time"

	"github.com/lonng/nanokrnl/ki/kiapi"
	"github.com/stretchr/testify/require"
)

var testEpoch = FileTimeFromTime(time.Date(2001, 11, 15, 0, 0, 0, 0, time.UTC))

func newTestSystem(t *testing.T, mutate ...func(cfg *Config)) *System {
	cfg := DefaultConfig()
	cfg.HostClock = kiapi.HostClockFunc(func() uint64 { return testEpoch })
	cfg.BugCheck = func(code uint32, message string) {}
	for _, fn := range mutate {
		fn(&cfg)
	}
	s, err := NewSystem(cfg)
	require.NoError(t, err)
	return s
}

// tick 推进 n 个 tick, 每个 tick 后执行队列中的 DPC
func tick(s *System, n int) {
	for i := 0; i < n; i++ {
		s.ClockTick(1)
		s.RetireDpcList()
	}
}

// insertLocked 按 TimerLock, DispatcherLock 的顺序持锁插入
func insertLocked(s *System, timer *Timer, dueTime int64) bool {
	s.TimerLock().Lock()
	s.DispatcherLock().Lock()
	defer func() {
		s.DispatcherLock().Unlock()
		s.TimerLock().Unlock()
	}()
	return s.InsertTimer(timer, dueTime)
}

func removeLocked(s *System, timer *Timer) {
	s.TimerLock().Lock()
	defer s.TimerLock().Unlock()
	s.RemoveTimer(timer)
}

// recorder 记录 DPC 的执行顺序
type recorder struct {
	fired []any
}

func (r *recorder) routine(_ *Dpc, context any, _, _ uintptr) {
	r.fired = append(r.fired, context)
}

func (r *recorder) dpc(context any) *Dpc {
	dpc := &Dpc{}
	InitializeDpc(dpc, r.routine, context)
	return dpc
}

func requireBugCheck(t *testing.T, code uint32, fn func()) {
	defer func() {
		err := recover()
		require.NotNil(t, err)
		bc, ok := err.(*BugCheckError)
		require.True(t, ok, "unexpected panic %v", err)
		require.Equal(t, code, bc.Code)
	}()
	fn()
}
