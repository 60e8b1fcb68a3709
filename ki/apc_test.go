package ki

import (
	"testing"

	"github.com/lonng/nanokrnl/ki/kiapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverApcs(t *testing.T) {
	freed := map[*Apc]int{}
	s := newTestSystem(t, func(cfg *Config) {
		cfg.FreeApc = func(apc *Apc) { freed[apc]++ }
	})
	th := NewThread(1)
	var order []any
	routine := func(context any, arg1, arg2 uintptr) {
		order = append(order, context)
		assert.Equal(t, uintptr(11), arg1)
		assert.Equal(t, uintptr(22), arg2)
	}
	apcs := make([]Apc, 3)
	for i, name := range []string{"X", "Y", "Z"} {
		InitializeApc(&apcs[i], th, kiapi.KernelMode, routine, name)
		require.True(t, s.InsertQueueApc(&apcs[i], 11, 22))
	}
	assert.False(t, s.InsertQueueApc(&apcs[0], 11, 22))
	assert.True(t, th.ApcPending(kiapi.KernelMode))
	assert.False(t, th.ApcPending(kiapi.UserMode))

	t.Run("disabled", func(t *testing.T) {
		s.EnterCriticalRegion(th)
		assert.Equal(t, 0, s.DeliverApcs(th, kiapi.KernelMode))
		assert.Empty(t, order)
		assert.Equal(t, 3, s.QueuedApcs(th, kiapi.KernelMode))
		assert.False(t, th.ApcPending(kiapi.KernelMode))
		s.LeaveCriticalRegion(th)
		assert.True(t, th.ApcPending(kiapi.KernelMode))
	})

	t.Run("enabled", func(t *testing.T) {
		assert.Equal(t, 3, s.DeliverApcs(th, kiapi.KernelMode))
		assert.Equal(t, []any{"X", "Y", "Z"}, order)
		assert.Len(t, freed, 3)
		for i := range apcs {
			assert.Equal(t, 1, freed[&apcs[i]])
			assert.False(t, apcs[i].Inserted())
		}
		assert.Equal(t, 0, s.QueuedApcs(th, kiapi.KernelMode))
		assert.Equal(t, uint64(3), s.Stats().ApcsDelivered)
	})
}

func TestNestedCriticalRegion(t *testing.T) {
	s := newTestSystem(t)
	th := NewThread(2)
	apc := &Apc{}
	InitializeApc(apc, th, kiapi.KernelMode, nil, nil)
	s.EnterCriticalRegion(th)
	s.EnterCriticalRegion(th)
	s.InsertQueueApc(apc, 0, 0)
	s.DeliverApcs(th, kiapi.KernelMode)
	s.LeaveCriticalRegion(th)
	assert.False(t, th.ApcPending(kiapi.KernelMode))
	assert.Equal(t, int32(1), th.KernelApcDisable())
	s.LeaveCriticalRegion(th)
	assert.True(t, th.ApcPending(kiapi.KernelMode))
	assert.Equal(t, 1, s.DeliverApcs(th, kiapi.KernelMode))
	// 默认释放清零
	assert.Nil(t, apc.Thread)
}

func TestUserApcIgnoresCriticalRegion(t *testing.T) {
	s := newTestSystem(t)
	th := NewThread(3)
	called := 0
	apc := &Apc{}
	InitializeApc(apc, th, kiapi.UserMode, func(any, uintptr, uintptr) { called++ }, nil)
	s.InsertQueueApc(apc, 0, 0)
	s.EnterCriticalRegion(th)
	assert.Equal(t, 1, s.DeliverApcs(th, kiapi.UserMode))
	assert.Equal(t, 1, called)
}

func TestRemoveQueueApc(t *testing.T) {
	s := newTestSystem(t)
	th := NewThread(4)
	var a, b Apc
	InitializeApc(&a, th, kiapi.KernelMode, nil, nil)
	InitializeApc(&b, th, kiapi.KernelMode, nil, nil)
	s.InsertQueueApc(&a, 0, 0)
	s.InsertQueueApc(&b, 0, 0)
	assert.True(t, s.RemoveQueueApc(&a))
	assert.False(t, s.RemoveQueueApc(&a))
	assert.True(t, th.ApcPending(kiapi.KernelMode))
	assert.True(t, s.RemoveQueueApc(&b))
	assert.False(t, th.ApcPending(kiapi.KernelMode))
	assert.Equal(t, 0, s.DeliverApcs(th, kiapi.KernelMode))
}

func TestApcQueuedFromCallback(t *testing.T) {
	s := newTestSystem(t)
	th := NewThread(5)
	var order []string
	var second Apc
	InitializeApc(&second, th, kiapi.KernelMode, func(any, uintptr, uintptr) {
		order = append(order, "second")
	}, nil)
	first := &Apc{}
	InitializeApc(first, th, kiapi.KernelMode, func(any, uintptr, uintptr) {
		order = append(order, "first")
		s.InsertQueueApc(&second, 0, 0)
	}, nil)
	s.InsertQueueApc(first, 0, 0)
	assert.Equal(t, 2, s.DeliverApcs(th, kiapi.KernelMode))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestApcPanicRecovered(t *testing.T) {
	s := newTestSystem(t)
	th := NewThread(6)
	var bad, good Apc
	called := false
	InitializeApc(&bad, th, kiapi.UserMode, func(any, uintptr, uintptr) { panic("boom") }, nil)
	InitializeApc(&good, th, kiapi.UserMode, func(any, uintptr, uintptr) { called = true }, nil)
	s.InsertQueueApc(&bad, 0, 0)
	s.InsertQueueApc(&good, 0, 0)
	assert.NotPanics(t, func() { s.DeliverApcs(th, kiapi.UserMode) })
	assert.True(t, called)
}
