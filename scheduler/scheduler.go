package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lonng/nanokrnl/internal/env"
	"github.com/lonng/nanokrnl/internal/log"
	"github.com/lonng/nanokrnl/ki"
	"github.com/timandy/routine"
)

// Task 在 DPC 协程上执行的任务
type Task func()

// State 调度器状态
type State = int32

const (
	// StateCreated 已创建, 未启动
	StateCreated State = 0
	// StateRunning 正在运行
	StateRunning State = 1
	// StateClosed 已关闭
	StateClosed State = 2
)

// Scheduler 驱动内核的两个协程: 时钟协程按固定间隔产生时钟中断, 把实际流逝的时间折算为 tick 倍数;
// DPC 协程响应软中断, 执行 DPC 队列和提交的任务
type Scheduler struct {
	name     string        // 调度器名称
	sys      *ki.System    // 被驱动的内核
	interval time.Duration // 时钟中断的名义间隔
	state    atomic.Int32  // 调度器状态
	chDie    chan struct{} // 关闭信号通道
	chTasks  chan Task     // 任务队列
	wg       sync.WaitGroup
}

// NewScheduler 构造调度器, 需要调用 Start() 启动
func NewScheduler(name string, sys *ki.System, interval time.Duration) *Scheduler {
	if interval <= 0 {
		panic("interval must > 0")
	}
	return &Scheduler{
		name:     name,
		sys:      sys,
		interval: interval,
		chDie:    make(chan struct{}),
		chTasks:  make(chan Task, 1<<8),
	}
}

// runTask 执行一个任务, 捕获 panic
func (s *Scheduler) runTask(task Task) {
	if task == nil {
		return
	}
	defer func() {
		if err := recover(); err != nil {
			if _, ok := err.(*ki.BugCheckError); ok {
				panic(err)
			}
			log.Error("Kernel scheduler [%v] execute task error.", s.name, routine.NewRuntimeError(err))
		}
	}()
	task()
}

// scaling 把流逝的时间折算为 tick 倍数, 不足一个间隔的部分留到下次
func (s *Scheduler) scaling(elapsed time.Duration, carry *time.Duration) uint32 {
	elapsed += *carry
	n := elapsed / s.interval
	*carry = elapsed - n*s.interval
	return uint32(n)
}

// runClock 时钟协程的主循环
func (s *Scheduler) runClock() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := time.Now()
	var carry time.Duration
	for {
		select {
		case now := <-ticker.C:
			factor := s.scaling(now.Sub(last), &carry)
			last = now
			if factor > 0 {
				s.sys.ClockTick(factor)
			}

		case <-s.chDie:
			return
		}
	}
}

// runDpc DPC 协程的主循环
func (s *Scheduler) runDpc() {
	defer s.wg.Done()
	retire := func() { s.sys.RetireDpcList() }
	for {
		select {
		case <-s.sys.SoftwareInterrupt():
			s.runTask(retire)

		case task := <-s.chTasks:
			s.runTask(task)

		case <-s.chDie:
			return
		}
	}
}

// Start 启动调度器
func (s *Scheduler) Start() {
	if !s.state.CompareAndSwap(StateCreated, StateRunning) {
		return
	}
	if env.Debug {
		log.Info("Kernel scheduler [%v] starting, interval=%v.", s.name, s.interval)
	}
	s.wg.Add(2)
	go s.runClock()
	go s.runDpc()
}

// Close 关闭调度器, 等待两个协程退出
func (s *Scheduler) Close() {
	if !s.state.CompareAndSwap(StateRunning, StateClosed) {
		return
	}
	close(s.chDie)
	s.wg.Wait()
	if env.Debug {
		log.Info("Kernel scheduler [%v] closed.", s.name)
	}
}

// State 返回调度器的当前状态
func (s *Scheduler) State() State {
	return s.state.Load()
}

// Execute 提交一个任务到 DPC 协程
func (s *Scheduler) Execute(task Task) bool {
	if s.state.Load() != StateRunning {
		if env.Debug {
			log.Info("Kernel scheduler [%v] is not running, new tasks are not accepted.", s.name)
		}
		return false
	}
	select {
	case s.chTasks <- task:
		return true
	case <-s.chDie:
		return false
	}
}
