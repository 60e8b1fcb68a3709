package ki

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDpcQueue(t *testing.T) {
	s := newTestSystem(t)
	r := &recorder{}
	x, y, z := r.dpc("X"), r.dpc("Y"), r.dpc("Z")

	assert.True(t, s.InsertQueueDpc(x, 1, 2))
	assert.False(t, s.InsertQueueDpc(x, 3, 4))
	assert.True(t, s.InsertQueueDpc(y, 0, 0))
	assert.True(t, s.InsertQueueDpc(z, 0, 0))
	assert.Equal(t, 3, s.QueuedDpcs())

	select {
	case <-s.SoftwareInterrupt():
	default:
		t.Fatal("software interrupt not requested")
	}

	assert.True(t, s.RemoveQueueDpc(y))
	assert.False(t, s.RemoveQueueDpc(y))
	assert.False(t, y.Inserted())

	assert.Equal(t, 2, s.RetireDpcList())
	assert.Equal(t, []any{"X", "Z"}, r.fired)
	assert.Equal(t, 0, s.QueuedDpcs())
	assert.Equal(t, 0, s.RetireDpcList())
}

func TestDpcArguments(t *testing.T) {
	s := newTestSystem(t)
	var got [2]uintptr
	var self *Dpc
	dpc := &Dpc{}
	InitializeDpc(dpc, func(d *Dpc, context any, arg1, arg2 uintptr) {
		self = d
		got = [2]uintptr{arg1, arg2}
		assert.Equal(t, "ctx", context)
		assert.False(t, s.TimerLock().Held())
		assert.False(t, s.DispatcherLock().Held())
	}, "ctx")
	s.InsertQueueDpc(dpc, 7, 9)
	s.RetireDpcList()
	assert.Same(t, dpc, self)
	assert.Equal(t, [2]uintptr{7, 9}, got)
}

func TestDpcPanicRecovered(t *testing.T) {
	s := newTestSystem(t)
	r := &recorder{}
	bad := &Dpc{}
	InitializeDpc(bad, func(*Dpc, any, uintptr, uintptr) { panic("boom") }, nil)
	s.InsertQueueDpc(bad, 0, 0)
	s.InsertQueueDpc(r.dpc("after"), 0, 0)
	assert.NotPanics(t, func() { s.RetireDpcList() })
	assert.Equal(t, []any{"after"}, r.fired)
	assert.Equal(t, uint64(2), s.Stats().DpcsRetired)
}

func TestDpcRemovedBeforeSweep(t *testing.T) {
	s := newTestSystem(t)
	s.InsertQueueDpc(&s.expireDpc, 0, 0)
	assert.True(t, s.RemoveQueueDpc(&s.expireDpc))
	s.RetireDpcList()
	assert.Equal(t, uint64(0), s.Stats().Sweeps)
}
