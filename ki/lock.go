package ki

import (
	"sync"
	"sync/atomic"

	"github.com/lonng/nanokrnl/ki/kiapi"
	"github.com/timandy/routine"
)

// KernelLock 不可重入的内核锁, 记录持有者协程, 同一协程重复加锁直接 bug check
type KernelLock struct {
	name     string        // 锁名称, 用于诊断
	mu       sync.Mutex    // 互斥锁
	owner    atomic.Uint64 // 持有者协程 id, 0 表示空闲
	acquired atomic.Int32  // 加锁计数, 仅用于断言
	sys      *System       // 所属系统, 用于 bug check
}

func (l *KernelLock) init(name string, sys *System) {
	l.name = name
	l.sys = sys
}

// Lock 阻塞加锁
func (l *KernelLock) Lock() {
	gid := goid()
	if l.owner.Load() == gid {
		l.sys.BugCheck(kiapi.BugCheckLockRecursion, "%v re-acquired by its owner goroutine %v", l.name, gid)
	}
	l.mu.Lock()
	l.owner.Store(gid)
	l.acquired.Add(1)
}

// TryLock 非阻塞加锁, 锁被占用时返回 false
func (l *KernelLock) TryLock() bool {
	gid := goid()
	if l.owner.Load() == gid {
		l.sys.BugCheck(kiapi.BugCheckLockRecursion, "%v re-acquired by its owner goroutine %v", l.name, gid)
	}
	if !l.mu.TryLock() {
		return false
	}
	l.owner.Store(gid)
	l.acquired.Add(1)
	return true
}

// Unlock 解锁
func (l *KernelLock) Unlock() {
	l.acquired.Add(-1)
	l.owner.Store(0)
	l.mu.Unlock()
}

// Held 当前协程是否持有该锁
func (l *KernelLock) Held() bool {
	return l.owner.Load() == goid()
}

// Acquired 返回加锁计数, 只会是 0 或 1
func (l *KernelLock) Acquired() int32 {
	return l.acquired.Load()
}

// assertHeld 要求调用方已持有该锁
func (l *KernelLock) assertHeld() {
	if !l.Held() {
		l.sys.BugCheck(kiapi.BugCheckLockRecursion, "%v is not held by the calling goroutine", l.name)
	}
}

func goid() uint64 {
	return uint64(routine.Goid())
}
