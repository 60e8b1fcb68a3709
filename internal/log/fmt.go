package log

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Format 按顺序替换 format 中的占位符, 支持 %% %d %s %v %q %T %t %f:
//   - 参数多于占位符时, 剩余参数以空格拼接追加在末尾;
//   - 最后一个参数为 error 时, 以 " - 错误信息" 追加在末尾;
//   - 参数不足或未知的占位符原样保留.
//
// 示例:
//
//	Format("timer %v hand %v", 1, 7)          // "timer 1 hand 7"
//	Format("dpc", 0x1000)                     // "dpc 4096"
//	Format("insert %v", t, errors.New("bad")) // "insert <t> - bad"
//	Format("%% %d", 42)                       // "% 42"
func Format(format string, args ...any) string {
	var tail error
	if n := len(args); n > 0 {
		if e, ok := args[n-1].(error); ok {
			tail = e
			args = args[:n-1]
		}
	}

	var sb strings.Builder
	sb.Grow(len(format) + len(args)*8)
	next := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			sb.WriteByte('%')
			break
		}
		i++
		verb := format[i]
		switch {
		case verb == '%':
			sb.WriteByte('%')
		case next >= len(args):
			sb.WriteByte('%')
			sb.WriteByte(verb)
		default:
			if !writeVerb(&sb, verb, args[next]) {
				sb.WriteByte('%')
				sb.WriteByte(verb)
				continue
			}
			next++
		}
	}

	for _, arg := range args[next:] {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(toString(arg))
	}

	if tail != nil {
		sb.WriteString(" - ")
		sb.WriteString(tail.Error())
	}
	return sb.String()
}

// writeVerb 写入一个占位符, 不认识的占位符返回 false 且不消耗参数
func writeVerb(sb *strings.Builder, verb byte, arg any) bool {
	switch verb {
	case 'd', 'f', 's', 't', 'v':
		sb.WriteString(toString(arg))
	case 'q':
		sb.WriteString(strconv.Quote(toString(arg)))
	case 'T':
		sb.WriteString(toTypeString(arg))
	default:
		return false
	}
	return true
}

// FormatArgs 第一个参数作为 format, 只有一个参数时原样输出
func FormatArgs(args ...any) string {
	switch len(args) {
	case 0:
		return ""
	case 1:
		return toString(args[0])
	default:
		return Format(toString(args[0]), args[1:]...)
	}
}

func toTypeString(val any) string {
	if val == nil {
		return "<nil>"
	}
	return reflect.TypeOf(val).String()
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case uintptr:
		return "0x" + strconv.FormatUint(uint64(v), 16)
	case error:
		return v.Error()
	default:
		return fmt.Sprint(val)
	}
}
