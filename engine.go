// Copyright (c) nano Authors. All Rights Reserved.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package nanokrnl

import (
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lonng/nanokrnl/internal/log"
	"github.com/lonng/nanokrnl/ki"
	"github.com/lonng/nanokrnl/ki/kiapi"
	"github.com/lonng/nanokrnl/scheduler"
	"github.com/pingcap/errors"
)

// VERSION returns current nanokrnl version
var VERSION = "0.1.0"

// Kernel 内核引擎, 持有定时与延迟执行子系统和驱动它的调度器
type Kernel struct {
	*ki.System
	opts    Options
	running int32
	sched   *scheduler.Scheduler
	chDie   chan struct{} // Shutdown 时关闭
}

// New 创建内核实例, 配置非法时返回错误
func New(opts ...Option) (*Kernel, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.err != nil {
		return nil, options.err
	}
	sys, err := ki.NewSystem(options.Config)
	if err != nil {
		return nil, errors.Annotate(err, "nanokrnl config")
	}
	return &Kernel{
		System:  sys,
		opts:    *options,
		running: 0,
	}, nil
}

// Startup 启动时钟和 DPC 协程
func (k *Kernel) Startup() error {
	if !atomic.CompareAndSwapInt32(&k.running, 0, 1) {
		return ErrKernelRunning
	}
	k.chDie = make(chan struct{})
	k.sched = scheduler.NewScheduler("kernel", k.System, k.opts.ClockInterval)
	k.sched.Start()
	log.Info("Kernel started, clock interval %v, %v timer buckets.", k.opts.ClockInterval, k.opts.Config.TableSize)
	return nil
}

// Shutdown 停止时钟和 DPC 协程
func (k *Kernel) Shutdown() {
	if !atomic.CompareAndSwapInt32(&k.running, 1, 0) {
		return
	}
	k.sched.Close()
	close(k.chDie)
	stats := k.Stats()
	log.Info("Kernel stopped after %v ticks, %v sweeps, %v timers expired.", stats.Ticks, stats.Sweeps, stats.Expired)
}

// Running 是否在运行
func (k *Kernel) Running() bool {
	return atomic.LoadInt32(&k.running) == 1
}

// Execute 在 DPC 协程上执行任务
func (k *Kernel) Execute(task func()) error {
	if !k.Running() || !k.sched.Execute(task) {
		return ErrKernelStopped
	}
	return nil
}

// AfterFunc 创建一个定时器, d 之后在 DPC 协程上执行 fn, period 非零时按周期重复.
// 周期以毫秒计, 不是整毫秒或超出范围时返回 ErrInvalidPeriod. 返回的定时器可交给 CancelTimer 取消
func (k *Kernel) AfterFunc(d time.Duration, period time.Duration, fn func()) (*ki.Timer, error) {
	if period < 0 || period%time.Millisecond != 0 || period/time.Millisecond > math.MaxInt32 {
		return nil, errors.Annotatef(ErrInvalidPeriod, "period %v", period)
	}
	timer := &ki.Timer{}
	dpc := &ki.Dpc{}
	ki.InitializeTimer(timer, kiapi.NotificationTimer)
	ki.InitializeDpc(dpc, func(*ki.Dpc, any, uintptr, uintptr) { fn() }, nil)
	k.SetTimer(timer, ki.RelativeDueTime(d), int32(period/time.Millisecond), dpc)
	return timer, nil
}

// Run 启动内核并等待退出信号
func (k *Kernel) Run() error {
	err := k.Startup()
	if err != nil {
		return err
	}
	k.Wait()
	return nil
}

// Wait 等待退出信号或 Shutdown, 未启动时立即返回
func (k *Kernel) Wait() {
	if !k.Running() {
		return
	}
	sg := make(chan os.Signal, 1)
	signal.Notify(sg, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(sg)
	select {
	case <-sg:
		k.Shutdown()
	case <-k.chDie:
	}
}
