package ki

import (
	"sync/atomic"

	"github.com/lonng/nanokrnl/internal/log"
	"github.com/lonng/nanokrnl/ki/kiapi"
	"github.com/timandy/routine"
)

// Apc 异步过程调用对象
type Apc struct {
	Thread          *Thread             // 目标线程
	Mode            kiapi.Mode          // 投递模式
	NormalRoutine   kiapi.NormalRoutine // 回调, 为空时只释放
	NormalContext   any                 // 回调上下文
	SystemArgument1 uintptr
	SystemArgument2 uintptr

	inserted   bool // 是否在队列中, ApcLock 保护
	prev, next *Apc
}

// Inserted 是否在队列中
func (a *Apc) Inserted() bool {
	return a.inserted
}

type apcList struct {
	head, tail *Apc
	size       int
}

func (l *apcList) pushBack(apc *Apc) {
	apc.prev, apc.next = l.tail, nil
	if l.tail == nil {
		l.head = apc
	} else {
		l.tail.next = apc
	}
	l.tail = apc
	l.size++
}

func (l *apcList) remove(apc *Apc) {
	if apc.prev == nil {
		l.head = apc.next
	} else {
		apc.prev.next = apc.next
	}
	if apc.next == nil {
		l.tail = apc.prev
	} else {
		apc.next.prev = apc.prev
	}
	apc.prev, apc.next = nil, nil
	l.size--
}

// Thread APC 投递所需的线程状态
type Thread struct {
	ID               int64
	apcLists         [kiapi.MaximumMode]apcList     // 每种模式一个队列, ApcLock 保护
	apcPending       [kiapi.MaximumMode]atomic.Bool // 每种模式的待投递标记
	kernelApcDisable atomic.Int32                   // 临界区嵌套计数, 非零时不投递内核 APC
}

// NewThread 创建线程状态
func NewThread(id int64) *Thread {
	return &Thread{ID: id}
}

// ApcPending 指定模式是否有待投递的 APC
func (th *Thread) ApcPending(mode kiapi.Mode) bool {
	return th.apcPending[mode].Load()
}

// KernelApcDisable 临界区嵌套计数
func (th *Thread) KernelApcDisable() int32 {
	return th.kernelApcDisable.Load()
}

func (th *Thread) String() string {
	return log.Format("thread(%v)", th.ID)
}

// InitializeApc 初始化 APC
func InitializeApc(apc *Apc, thread *Thread, mode kiapi.Mode, routine kiapi.NormalRoutine, context any) {
	*apc = Apc{Thread: thread, Mode: mode, NormalRoutine: routine, NormalContext: context}
}

// InsertQueueApc 把 APC 排到目标线程对应模式的队尾并置待投递标记, 已在队列中返回 false
func (s *System) InsertQueueApc(apc *Apc, arg1, arg2 uintptr) bool {
	s.apcLock.Lock()
	defer s.apcLock.Unlock()
	if apc.inserted {
		return false
	}
	apc.SystemArgument1 = arg1
	apc.SystemArgument2 = arg2
	apc.inserted = true
	apc.Thread.apcLists[apc.Mode].pushBack(apc)
	apc.Thread.apcPending[apc.Mode].Store(true)
	return true
}

// RemoveQueueApc 把 APC 从队列移除, 不在队列中返回 false
func (s *System) RemoveQueueApc(apc *Apc) bool {
	s.apcLock.Lock()
	defer s.apcLock.Unlock()
	if !apc.inserted {
		return false
	}
	list := &apc.Thread.apcLists[apc.Mode]
	list.remove(apc)
	apc.inserted = false
	if list.head == nil {
		apc.Thread.apcPending[apc.Mode].Store(false)
	}
	return true
}

// QueuedApcs 线程指定模式的队列长度
func (s *System) QueuedApcs(thread *Thread, mode kiapi.Mode) int {
	s.apcLock.Lock()
	defer s.apcLock.Unlock()
	return thread.apcLists[mode].size
}

// DeliverApcs 按先进先出投递线程指定模式的 APC, 回调在锁外执行, 执行后释放 APC.
// 内核模式在临界区内停止投递, 剩余的留在队列中. 返回投递个数
func (s *System) DeliverApcs(thread *Thread, mode kiapi.Mode) int {
	thread.apcPending[mode].Store(false)
	list := &thread.apcLists[mode]
	n := 0
	s.apcLock.Lock()
	for list.head != nil {
		if mode == kiapi.KernelMode && thread.kernelApcDisable.Load() != 0 {
			break
		}
		apc := list.head
		list.remove(apc)
		apc.inserted = false
		s.apcLock.Unlock()
		s.callApc(apc)
		s.freeApc(apc)
		n++
		s.apcLock.Lock()
	}
	s.apcLock.Unlock()
	s.stats.apcsDelivered.Add(uint64(n))
	return n
}

func (s *System) callApc(apc *Apc) {
	if apc.NormalRoutine == nil {
		return
	}
	defer func() {
		if err := recover(); err != nil {
			if _, ok := err.(*BugCheckError); ok {
				panic(err)
			}
			log.Error("Kernel apc routine panicked.", routine.NewRuntimeError(err))
		}
	}()
	apc.NormalRoutine(apc.NormalContext, apc.SystemArgument1, apc.SystemArgument2)
}

func (s *System) freeApc(apc *Apc) {
	if s.cfg.FreeApc != nil {
		s.cfg.FreeApc(apc)
		return
	}
	*apc = Apc{}
}

// EnterCriticalRegion 进入临界区, 禁止投递内核 APC
func (s *System) EnterCriticalRegion(thread *Thread) {
	thread.kernelApcDisable.Add(1)
}

// LeaveCriticalRegion 离开临界区, 最外层离开时若有积压的内核 APC 重新置待投递标记
func (s *System) LeaveCriticalRegion(thread *Thread) {
	if thread.kernelApcDisable.Add(-1) != 0 {
		return
	}
	s.apcLock.Lock()
	if thread.apcLists[kiapi.KernelMode].head != nil {
		thread.apcPending[kiapi.KernelMode].Store(true)
	}
	s.apcLock.Unlock()
}
