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
	"github.com/lonng/nanokrnl/ki"
	"github.com/lonng/nanokrnl/ki/kiapi"
)

// 对外暴露的内核对象
type (
	Timer         = ki.Timer
	Dpc           = ki.Dpc
	Apc           = ki.Apc
	Thread        = ki.Thread
	WaitBlock     = ki.WaitBlock
	WaitSatisfier = ki.WaitSatisfier
	Stats         = ki.Stats
)

// 对外暴露的常量
const (
	KernelMode           = kiapi.KernelMode
	UserMode             = kiapi.UserMode
	NotificationTimer    = kiapi.NotificationTimer
	SynchronizationTimer = kiapi.SynchronizationTimer
)

var (
	// InitializeTimer 初始化定时器
	InitializeTimer = ki.InitializeTimer
	// InitializeDpc 初始化 DPC
	InitializeDpc = ki.InitializeDpc
	// InitializeApc 初始化 APC
	InitializeApc = ki.InitializeApc
	// NewThread 创建线程状态
	NewThread = ki.NewThread
	// RelativeDueTime 把时长转为相对到期时间
	RelativeDueTime = ki.RelativeDueTime
)
