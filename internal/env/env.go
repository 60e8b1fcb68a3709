package env

import (
	"time"
)

//goland:noinspection GoVarAndConstTypeMayBeOmitted,GoCommentStart
var (
	Debug         bool          = false            //调试模式, 输出 debug 日志
	ClockInterval time.Duration = time.Millisecond //时钟中断的名义间隔, 一次中断推进一个 tick
)
