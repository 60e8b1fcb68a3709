package ki

import (
	"github.com/lonng/nanokrnl/internal/log"
	"github.com/lonng/nanokrnl/ki/kiapi"
	"github.com/timandy/routine"
)

// DeferredRoutine DPC 回调, arg1 arg2 为排队时给出的系统参数
type DeferredRoutine func(dpc *Dpc, context any, arg1, arg2 uintptr)

// Dpc 延迟过程调用对象
type Dpc struct {
	routine    DeferredRoutine
	context    any
	arg1, arg2 uintptr
	inserted   bool // 是否在 DPC 队列中, DpcLock 保护
	next       *Dpc
}

// InitializeDpc 初始化 DPC
func InitializeDpc(dpc *Dpc, routine DeferredRoutine, context any) {
	*dpc = Dpc{routine: routine, context: context}
}

// Inserted 是否在队列中
func (d *Dpc) Inserted() bool {
	return d.inserted
}

// dpcQueue 先进先出的 DPC 队列, 入队时发出软中断
type dpcQueue struct {
	lock      KernelLock
	head      *Dpc
	tail      *Dpc
	size      int
	interrupt chan struct{} // 软中断请求, 容量 1, 多次请求合并
}

func (q *dpcQueue) init() {
	q.interrupt = make(chan struct{}, 1)
}

// InsertQueueDpc 把 DPC 排入队列, 已在队列中返回 false
func (s *System) InsertQueueDpc(dpc *Dpc, arg1, arg2 uintptr) bool {
	q := &s.dpcQueue
	q.lock.Lock()
	if dpc.inserted {
		q.lock.Unlock()
		return false
	}
	dpc.inserted = true
	dpc.arg1, dpc.arg2 = arg1, arg2
	dpc.next = nil
	if q.tail == nil {
		q.head = dpc
	} else {
		q.tail.next = dpc
	}
	q.tail = dpc
	q.size++
	q.lock.Unlock()
	s.requestSoftwareInterrupt()
	return true
}

// RemoveQueueDpc 从队列移除 DPC, 不在队列中返回 false
func (s *System) RemoveQueueDpc(dpc *Dpc) bool {
	q := &s.dpcQueue
	q.lock.Lock()
	defer q.lock.Unlock()
	if !dpc.inserted {
		return false
	}
	var prev *Dpc
	for cur := q.head; cur != nil; prev, cur = cur, cur.next {
		if cur != dpc {
			continue
		}
		if prev == nil {
			q.head = cur.next
		} else {
			prev.next = cur.next
		}
		if q.tail == cur {
			q.tail = prev
		}
		break
	}
	dpc.inserted = false
	dpc.next = nil
	q.size--
	return true
}

// RetireDpcList 依次执行队列中的 DPC, 直到队列为空, 返回执行的个数.
// 同一时刻只应有一个协程调用
func (s *System) RetireDpcList() int {
	q := &s.dpcQueue
	n := 0
	for {
		q.lock.Lock()
		dpc := q.head
		if dpc == nil {
			q.lock.Unlock()
			return n
		}
		q.head = dpc.next
		if q.head == nil {
			q.tail = nil
		}
		q.size--
		dpc.inserted = false
		dpc.next = nil
		entry := dpcEntry{dpc: dpc, routine: dpc.routine, context: dpc.context}
		arg1, arg2 := dpc.arg1, dpc.arg2
		q.lock.Unlock()
		s.callDpc(entry, arg1, arg2)
		n++
	}
}

// QueuedDpcs 队列中的 DPC 数
func (s *System) QueuedDpcs() int {
	s.dpcQueue.lock.Lock()
	defer s.dpcQueue.lock.Unlock()
	return s.dpcQueue.size
}

// SoftwareInterrupt 返回软中断通道, 有 DPC 入队时可读
func (s *System) SoftwareInterrupt() <-chan struct{} {
	return s.dpcQueue.interrupt
}

func (s *System) requestSoftwareInterrupt() {
	select {
	case s.dpcQueue.interrupt <- struct{}{}:
	default:
	}
}

// callDpc 执行回调, 回调的 panic 记录后吞掉, bug check 继续上抛
func (s *System) callDpc(entry dpcEntry, arg1, arg2 uintptr) {
	defer func() {
		if err := recover(); err != nil {
			if _, ok := err.(*BugCheckError); ok {
				panic(err)
			}
			log.Error("Kernel dpc routine panicked.", routine.NewRuntimeError(err))
		}
	}()
	s.stats.dpcsRetired.Add(1)
	if entry.routine != nil {
		entry.routine(entry.dpc, entry.context, arg1, arg2)
	}
}

// dpcEntry 批次中的一项, 回调和上下文在入批时取快照
type dpcEntry struct {
	dpc     *Dpc
	routine DeferredRoutine
	context any
}

// dpcBatch 在锁内收集, 在锁外执行的定长 DPC 批次
type dpcBatch struct {
	entries    [MaxDpcBatch]dpcEntry
	count      int
	arg1, arg2 uintptr
}

func (s *System) pushBatch(batch *dpcBatch, dpc *Dpc) {
	if batch.count == len(batch.entries) {
		s.BugCheck(kiapi.BugCheckDpcBatchFull, "dpc batch overflow, capacity %v", len(batch.entries))
	}
	batch.entries[batch.count] = dpcEntry{dpc: dpc, routine: dpc.routine, context: dpc.context}
	batch.count++
}

// drainBatch 按入批顺序执行并清空批次, 调用时不得持有任何锁
func (s *System) drainBatch(batch *dpcBatch) {
	if batch.count == 0 {
		return
	}
	s.stats.batchFlushes.Add(1)
	n := batch.count
	log.Debug("Kernel dpc batch flush, count=%v.", n)
	batch.count = 0
	for i := 0; i < n; i++ {
		entry := batch.entries[i]
		batch.entries[i] = dpcEntry{}
		s.callDpc(entry, batch.arg1, batch.arg2)
	}
}
